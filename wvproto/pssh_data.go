package wvproto

// WidevinePsshData is the payload carried in a version-0 Widevine PSSH
// box's data field (spec §4.1): "decode data as Widevine PSSH-data
// protobuf and return its key_id field, enforcing each entry is 16
// bytes". Field numbers match license_protocol.proto's WidevinePsshData
// message.
type WidevinePsshData struct {
	Algorithm           uint32
	KeyIDs              [][]byte
	Provider            string
	ContentID           []byte
	TrackType           string
	Policy              string
	CryptoPeriodIndex   uint32
	GroupedLicense      []byte
	ProtectionScheme    uint32
	CryptoPeriodSeconds uint32
}

const (
	fieldPsshAlgorithm           = 1
	fieldPsshKeyID               = 2
	fieldPsshProvider            = 3
	fieldPsshContentID           = 4
	fieldPsshTrackType           = 5
	fieldPsshPolicy              = 6
	fieldPsshCryptoPeriodIndex   = 7
	fieldPsshGroupedLicense      = 8
	fieldPsshProtectionScheme    = 9
	fieldPsshCryptoPeriodSeconds = 10
)

// Marshal encodes the message. Widevine emits key ids in field order;
// this package preserves that for determinism though the wire format does
// not require it.
func (m *WidevinePsshData) Marshal() []byte {
	var out []byte
	out = appendVarintField(out, fieldPsshAlgorithm, uint64(m.Algorithm))
	for _, kid := range m.KeyIDs {
		out = appendBytesField(out, fieldPsshKeyID, kid)
	}
	out = appendStringField(out, fieldPsshProvider, m.Provider)
	out = appendBytesField(out, fieldPsshContentID, m.ContentID)
	out = appendStringField(out, fieldPsshTrackType, m.TrackType)
	out = appendStringField(out, fieldPsshPolicy, m.Policy)
	out = appendVarintField(out, fieldPsshCryptoPeriodIndex, uint64(m.CryptoPeriodIndex))
	out = appendBytesField(out, fieldPsshGroupedLicense, m.GroupedLicense)
	out = appendVarintField(out, fieldPsshProtectionScheme, uint64(m.ProtectionScheme))
	out = appendVarintField(out, fieldPsshCryptoPeriodSeconds, uint64(m.CryptoPeriodSeconds))
	return out
}

// UnmarshalWidevinePsshData decodes a WidevinePsshData message.
func UnmarshalWidevinePsshData(b []byte) (*WidevinePsshData, error) {
	fields, err := scanFields(b)
	if err != nil {
		return nil, err
	}
	m := &WidevinePsshData{}
	for _, f := range fields {
		switch f.num {
		case fieldPsshAlgorithm:
			m.Algorithm = uint32(decodeVarintValue(f.raw))
		case fieldPsshKeyID:
			m.KeyIDs = append(m.KeyIDs, append([]byte{}, f.raw...))
		case fieldPsshProvider:
			m.Provider = string(f.raw)
		case fieldPsshContentID:
			m.ContentID = append([]byte{}, f.raw...)
		case fieldPsshTrackType:
			m.TrackType = string(f.raw)
		case fieldPsshPolicy:
			m.Policy = string(f.raw)
		case fieldPsshCryptoPeriodIndex:
			m.CryptoPeriodIndex = uint32(decodeVarintValue(f.raw))
		case fieldPsshGroupedLicense:
			m.GroupedLicense = append([]byte{}, f.raw...)
		case fieldPsshProtectionScheme:
			m.ProtectionScheme = uint32(decodeVarintValue(f.raw))
		case fieldPsshCryptoPeriodSeconds:
			m.CryptoPeriodSeconds = uint32(decodeVarintValue(f.raw))
		}
	}
	return m, nil
}
