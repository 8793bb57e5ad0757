package wvproto

// CertificateType mirrors DrmCertificate.Type.
type CertificateType uint32

const (
	CertTypeRoot       CertificateType = 1
	CertTypeIntermediate CertificateType = 3
	CertTypeUser       CertificateType = 4
	CertTypeService    CertificateType = 5
)

// DrmCertificate is the Widevine service/provider certificate wrapped by
// SignedDrmCertificate (spec §4.3, service-certificate installation).
type DrmCertificate struct {
	Type                CertificateType
	SerialNumber        []byte
	CreationTimeSeconds int64
	PublicKey           []byte // DER RSA public key
	SystemID            uint32
	ProviderID          string
}

const (
	fieldDCType                = 1
	fieldDCSerialNumber        = 2
	fieldDCCreationTimeSeconds = 3
	fieldDCPublicKey           = 4
	fieldDCSystemID            = 5
	fieldDCProviderID          = 8
)

func (m *DrmCertificate) Marshal() []byte {
	var out []byte
	out = appendVarintField(out, fieldDCType, uint64(m.Type))
	out = appendBytesField(out, fieldDCSerialNumber, m.SerialNumber)
	out = appendVarintField(out, fieldDCCreationTimeSeconds, uint64(m.CreationTimeSeconds))
	out = appendBytesField(out, fieldDCPublicKey, m.PublicKey)
	out = appendVarintField(out, fieldDCSystemID, uint64(m.SystemID))
	out = appendStringField(out, fieldDCProviderID, m.ProviderID)
	return out
}

func UnmarshalDrmCertificate(b []byte) (*DrmCertificate, error) {
	fields, err := scanFields(b)
	if err != nil {
		return nil, err
	}
	m := &DrmCertificate{}
	for _, f := range fields {
		switch f.num {
		case fieldDCType:
			m.Type = CertificateType(decodeVarintValue(f.raw))
		case fieldDCSerialNumber:
			m.SerialNumber = append([]byte{}, f.raw...)
		case fieldDCCreationTimeSeconds:
			m.CreationTimeSeconds = int64(decodeVarintValue(f.raw))
		case fieldDCPublicKey:
			m.PublicKey = append([]byte{}, f.raw...)
		case fieldDCSystemID:
			m.SystemID = uint32(decodeVarintValue(f.raw))
		case fieldDCProviderID:
			m.ProviderID = string(f.raw)
		}
	}
	return m, nil
}

// SignedDrmCertificate wraps a serialized DrmCertificate with its
// issuer's signature (spec §4.3: "Accept either a SignedMessage{type=
// SERVICE_CERTIFICATE, msg=signed_cert_bytes} or a bare
// SignedDrmCertificate").
type SignedDrmCertificate struct {
	DrmCertificate []byte
	Signature      []byte
}

const (
	fieldSDCDrmCertificate = 1
	fieldSDCSignature      = 2
)

func (m *SignedDrmCertificate) Marshal() []byte {
	var out []byte
	out = appendBytesField(out, fieldSDCDrmCertificate, m.DrmCertificate)
	out = appendBytesField(out, fieldSDCSignature, m.Signature)
	return out
}

func UnmarshalSignedDrmCertificate(b []byte) (*SignedDrmCertificate, error) {
	fields, err := scanFields(b)
	if err != nil {
		return nil, err
	}
	m := &SignedDrmCertificate{}
	for _, f := range fields {
		switch f.num {
		case fieldSDCDrmCertificate:
			m.DrmCertificate = append([]byte{}, f.raw...)
		case fieldSDCSignature:
			m.Signature = append([]byte{}, f.raw...)
		}
	}
	return m, nil
}
