package wvproto

// KeyContainerType mirrors License.KeyContainer.KeyType (spec §3
// ContentKey key-type enum).
type KeyContainerType uint32

const (
	KeyTypeSigning         KeyContainerType = 1
	KeyTypeContent         KeyContainerType = 2
	KeyTypeKeyControl      KeyContainerType = 3
	KeyTypeOperatorSession KeyContainerType = 4
	KeyTypeEntitlement     KeyContainerType = 5
	KeyTypeOEMContent      KeyContainerType = 6
)

// KeyContainer is one entry of License.key (spec §4.3 step 5).
type KeyContainer struct {
	ID    []byte
	IV    []byte
	Key   []byte
	Type  KeyContainerType
	Level uint32
}

const (
	fieldKCID    = 1
	fieldKCIV    = 2
	fieldKCKey   = 3
	fieldKCType  = 4
	fieldKCLevel = 5
)

func (kc KeyContainer) marshal() []byte {
	var out []byte
	out = appendBytesField(out, fieldKCID, kc.ID)
	out = appendBytesField(out, fieldKCIV, kc.IV)
	out = appendBytesField(out, fieldKCKey, kc.Key)
	out = appendVarintField(out, fieldKCType, uint64(kc.Type))
	out = appendVarintField(out, fieldKCLevel, uint64(kc.Level))
	return out
}

func unmarshalKeyContainer(b []byte) (KeyContainer, error) {
	fields, err := scanFields(b)
	if err != nil {
		return KeyContainer{}, err
	}
	var kc KeyContainer
	for _, f := range fields {
		switch f.num {
		case fieldKCID:
			kc.ID = append([]byte{}, f.raw...)
		case fieldKCIV:
			kc.IV = append([]byte{}, f.raw...)
		case fieldKCKey:
			kc.Key = append([]byte{}, f.raw...)
		case fieldKCType:
			kc.Type = KeyContainerType(decodeVarintValue(f.raw))
		case fieldKCLevel:
			kc.Level = uint32(decodeVarintValue(f.raw))
		}
	}
	return kc, nil
}

// License is the content decoded from a LICENSE-typed SignedMessage (spec
// §4.3 step 5).
type License struct {
	RequestID        []byte
	LicenseStartTime int64
	Keys             []KeyContainer
}

const (
	fieldLicenseRequestID        = 1
	fieldLicenseStartTime        = 2
	fieldLicenseKey              = 3
)

func (m *License) Marshal() []byte {
	var out []byte
	out = appendBytesField(out, fieldLicenseRequestID, m.RequestID)
	out = appendVarintField(out, fieldLicenseStartTime, uint64(m.LicenseStartTime))
	for _, kc := range m.Keys {
		out = appendMessageField(out, fieldLicenseKey, kc.marshal())
	}
	return out
}

func UnmarshalLicense(b []byte) (*License, error) {
	fields, err := scanFields(b)
	if err != nil {
		return nil, err
	}
	m := &License{}
	for _, f := range fields {
		switch f.num {
		case fieldLicenseRequestID:
			m.RequestID = append([]byte{}, f.raw...)
		case fieldLicenseStartTime:
			m.LicenseStartTime = int64(decodeVarintValue(f.raw))
		case fieldLicenseKey:
			kc, err := unmarshalKeyContainer(f.raw)
			if err != nil {
				return nil, err
			}
			m.Keys = append(m.Keys, kc)
		}
	}
	return m, nil
}
