package wvproto

// LicenseType mirrors LicenseType enum: STREAMING=1, OFFLINE=2,
// AUTOMATIC=3.
type LicenseType uint32

const (
	LicenseTypeStreaming LicenseType = 1
	LicenseTypeOffline   LicenseType = 2
	LicenseTypeAutomatic LicenseType = 3
)

// ContentIdentification carries the PSSH init data and requested license
// type (spec §4.3 step 2).
type ContentIdentification struct {
	PsshData    [][]byte
	LicenseType LicenseType
	RequestID   []byte
}

const (
	fieldCIDPsshData    = 1
	fieldCIDLicenseType = 2
	fieldCIDRequestID   = 3
)

func (c ContentIdentification) marshal() []byte {
	var out []byte
	for _, d := range c.PsshData {
		out = appendBytesField(out, fieldCIDPsshData, d)
	}
	out = appendVarintField(out, fieldCIDLicenseType, uint64(c.LicenseType))
	out = appendBytesField(out, fieldCIDRequestID, c.RequestID)
	return out
}

func unmarshalContentIdentification(b []byte) (ContentIdentification, error) {
	fields, err := scanFields(b)
	if err != nil {
		return ContentIdentification{}, err
	}
	var c ContentIdentification
	for _, f := range fields {
		switch f.num {
		case fieldCIDPsshData:
			c.PsshData = append(c.PsshData, append([]byte{}, f.raw...))
		case fieldCIDLicenseType:
			c.LicenseType = LicenseType(decodeVarintValue(f.raw))
		case fieldCIDRequestID:
			c.RequestID = append([]byte{}, f.raw...)
		}
	}
	return c, nil
}

// LicenseRequest is the core message signed and sent to the license
// server (spec §4.3 step 2).
type LicenseRequest struct {
	ClientID          *ClientIdentification
	ContentID         *ContentIdentification
	Type              RequestType
	RequestTime       int64
	KeyControlNonce   uint32
	ProtocolVersion   uint32
	KeyControlNonceDeprecated uint32
	EncryptedClientID *EncryptedClientIdentification
}

// RequestType mirrors LicenseRequest.RequestType: NEW=1, RENEWAL=2,
// RELEASE=3.
type RequestType uint32

const (
	RequestTypeNew     RequestType = 1
	RequestTypeRenewal RequestType = 2
	RequestTypeRelease RequestType = 3
)

const (
	fieldLRClientID        = 1
	fieldLRContentID       = 2
	fieldLRType            = 3
	fieldLRRequestTime     = 4
	fieldLRKeyControlNonce = 5
	fieldLRProtocolVersion = 6
	fieldLREncryptedClientID = 8
)

// Marshal encodes the LicenseRequest. Exactly one of ClientID or
// EncryptedClientID should be set, matching spec §4.3 step 1 ("plaintext
// or encrypted").
func (m *LicenseRequest) Marshal() []byte {
	var out []byte
	if m.ClientID != nil {
		out = appendMessageField(out, fieldLRClientID, m.ClientID.Marshal())
	}
	if m.ContentID != nil {
		out = appendMessageField(out, fieldLRContentID, m.ContentID.marshal())
	}
	out = appendVarintField(out, fieldLRType, uint64(m.Type))
	out = appendVarintField(out, fieldLRRequestTime, uint64(m.RequestTime))
	out = appendVarintField(out, fieldLRKeyControlNonce, uint64(m.KeyControlNonce))
	out = appendVarintField(out, fieldLRProtocolVersion, uint64(m.ProtocolVersion))
	if m.EncryptedClientID != nil {
		out = appendMessageField(out, fieldLREncryptedClientID, m.EncryptedClientID.Marshal())
	}
	return out
}

func UnmarshalLicenseRequest(b []byte) (*LicenseRequest, error) {
	fields, err := scanFields(b)
	if err != nil {
		return nil, err
	}
	m := &LicenseRequest{}
	for _, f := range fields {
		switch f.num {
		case fieldLRClientID:
			ci, err := UnmarshalClientIdentification(f.raw)
			if err != nil {
				return nil, err
			}
			m.ClientID = ci
		case fieldLRContentID:
			cid, err := unmarshalContentIdentification(f.raw)
			if err != nil {
				return nil, err
			}
			m.ContentID = &cid
		case fieldLRType:
			m.Type = RequestType(decodeVarintValue(f.raw))
		case fieldLRRequestTime:
			m.RequestTime = int64(decodeVarintValue(f.raw))
		case fieldLRKeyControlNonce:
			m.KeyControlNonce = uint32(decodeVarintValue(f.raw))
		case fieldLRProtocolVersion:
			m.ProtocolVersion = uint32(decodeVarintValue(f.raw))
		case fieldLREncryptedClientID:
			eci, err := UnmarshalEncryptedClientIdentification(f.raw)
			if err != nil {
				return nil, err
			}
			m.EncryptedClientID = eci
		}
	}
	return m, nil
}
