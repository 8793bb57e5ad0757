package wvproto

// ClientIdentificationType mirrors license_protocol.proto's
// ClientIdentification.TokenType.
type ClientIdentificationType uint32

const (
	ClientIDTypeKeybox ClientIdentificationType = 0
	ClientIDTypeDRT    ClientIdentificationType = 1
	ClientIDTypeOEMCRT ClientIdentificationType = 3
)

// NameValue is a generic (name, value) pair used by ClientInfo and
// DeviceCredentials.
type NameValue struct {
	Name  string
	Value string
}

// ClientCapabilities is the subset of
// ClientIdentification.ClientCapabilities this port cares about: the
// fields that influence license-server key provisioning decisions.
type ClientCapabilities struct {
	ClientToken            bool
	SessionToken           bool
	MaxHDCPVersion         uint32
	OEMCryptoAPIVersion    uint32
	AntiRollbackUsageTable bool
	SRMVersion             uint32
}

// ClientIdentification is the device identity blob embedded, plaintext or
// privacy-wrapped, in every Widevine LicenseRequest (spec §4.2, §4.3).
type ClientIdentification struct {
	Type                 ClientIdentificationType
	Token                []byte
	ClientInfo           []NameValue
	ProviderClientToken  []byte
	LicenseCounter       uint32
	ClientCapabilities   *ClientCapabilities
	VMPData              []byte
	DeviceCredentials    []NameValue
}

const (
	fieldCIType                = 1
	fieldCIToken                = 2
	fieldCIClientInfo           = 3
	fieldCIProviderClientToken  = 4
	fieldCILicenseCounter       = 5
	fieldCIClientCapabilities   = 6
	fieldCIVMPData              = 7
	fieldCIDeviceCredentials    = 8

	fieldNVName  = 1
	fieldNVValue = 2

	fieldCCClientToken            = 1
	fieldCCSessionToken           = 2
	fieldCCMaxHDCPVersion         = 3
	fieldCCOEMCryptoAPIVersion    = 4
	fieldCCAntiRollbackUsageTable = 5
	fieldCCSRMVersion             = 6
)

func (nv NameValue) marshal() []byte {
	var out []byte
	out = appendStringField(out, fieldNVName, nv.Name)
	out = appendStringField(out, fieldNVValue, nv.Value)
	return out
}

func unmarshalNameValue(b []byte) (NameValue, error) {
	fields, err := scanFields(b)
	if err != nil {
		return NameValue{}, err
	}
	var nv NameValue
	for _, f := range fields {
		switch f.num {
		case fieldNVName:
			nv.Name = string(f.raw)
		case fieldNVValue:
			nv.Value = string(f.raw)
		}
	}
	return nv, nil
}

func (c ClientCapabilities) marshal() []byte {
	var out []byte
	out = appendBoolField(out, fieldCCClientToken, c.ClientToken)
	out = appendBoolField(out, fieldCCSessionToken, c.SessionToken)
	out = appendVarintField(out, fieldCCMaxHDCPVersion, uint64(c.MaxHDCPVersion))
	out = appendVarintField(out, fieldCCOEMCryptoAPIVersion, uint64(c.OEMCryptoAPIVersion))
	out = appendBoolField(out, fieldCCAntiRollbackUsageTable, c.AntiRollbackUsageTable)
	out = appendVarintField(out, fieldCCSRMVersion, uint64(c.SRMVersion))
	return out
}

func unmarshalClientCapabilities(b []byte) (*ClientCapabilities, error) {
	fields, err := scanFields(b)
	if err != nil {
		return nil, err
	}
	c := &ClientCapabilities{}
	for _, f := range fields {
		switch f.num {
		case fieldCCClientToken:
			c.ClientToken = decodeVarintValue(f.raw) != 0
		case fieldCCSessionToken:
			c.SessionToken = decodeVarintValue(f.raw) != 0
		case fieldCCMaxHDCPVersion:
			c.MaxHDCPVersion = uint32(decodeVarintValue(f.raw))
		case fieldCCOEMCryptoAPIVersion:
			c.OEMCryptoAPIVersion = uint32(decodeVarintValue(f.raw))
		case fieldCCAntiRollbackUsageTable:
			c.AntiRollbackUsageTable = decodeVarintValue(f.raw) != 0
		case fieldCCSRMVersion:
			c.SRMVersion = uint32(decodeVarintValue(f.raw))
		}
	}
	return c, nil
}

// Marshal encodes the ClientIdentification message.
func (m *ClientIdentification) Marshal() []byte {
	var out []byte
	out = appendVarintField(out, fieldCIType, uint64(m.Type))
	out = appendBytesField(out, fieldCIToken, m.Token)
	for _, nv := range m.ClientInfo {
		out = appendMessageField(out, fieldCIClientInfo, nv.marshal())
	}
	out = appendBytesField(out, fieldCIProviderClientToken, m.ProviderClientToken)
	out = appendVarintField(out, fieldCILicenseCounter, uint64(m.LicenseCounter))
	if m.ClientCapabilities != nil {
		out = appendMessageField(out, fieldCIClientCapabilities, m.ClientCapabilities.marshal())
	}
	out = appendBytesField(out, fieldCIVMPData, m.VMPData)
	for _, nv := range m.DeviceCredentials {
		out = appendMessageField(out, fieldCIDeviceCredentials, nv.marshal())
	}
	return out
}

// UnmarshalClientIdentification decodes a ClientIdentification message,
// used at WVD load time to validate "the client-identification protobuf
// must decode successfully" (spec §3).
func UnmarshalClientIdentification(b []byte) (*ClientIdentification, error) {
	fields, err := scanFields(b)
	if err != nil {
		return nil, err
	}
	m := &ClientIdentification{}
	for _, f := range fields {
		switch f.num {
		case fieldCIType:
			m.Type = ClientIdentificationType(decodeVarintValue(f.raw))
		case fieldCIToken:
			m.Token = append([]byte{}, f.raw...)
		case fieldCIClientInfo:
			nv, err := unmarshalNameValue(f.raw)
			if err != nil {
				return nil, err
			}
			m.ClientInfo = append(m.ClientInfo, nv)
		case fieldCIProviderClientToken:
			m.ProviderClientToken = append([]byte{}, f.raw...)
		case fieldCILicenseCounter:
			m.LicenseCounter = uint32(decodeVarintValue(f.raw))
		case fieldCIClientCapabilities:
			cc, err := unmarshalClientCapabilities(f.raw)
			if err != nil {
				return nil, err
			}
			m.ClientCapabilities = cc
		case fieldCIVMPData:
			m.VMPData = append([]byte{}, f.raw...)
		case fieldCIDeviceCredentials:
			nv, err := unmarshalNameValue(f.raw)
			if err != nil {
				return nil, err
			}
			m.DeviceCredentials = append(m.DeviceCredentials, nv)
		}
	}
	return m, nil
}

// EncryptedClientIdentification wraps a ClientIdentification under
// privacy mode (spec §4.3): an AES-CBC-PKCS7 ciphertext of the
// plaintext ClientIdentification bytes, with the AES key itself
// RSA-OAEP-wrapped to the service certificate's public key.
type EncryptedClientIdentification struct {
	ProviderID             string
	ServiceCertificateSerialNumber []byte
	EncryptedClientID      []byte
	EncryptedClientIDIV    []byte
	EncryptedPrivacyKey    []byte
}

const (
	fieldECIProviderID                     = 1
	fieldECIServiceCertificateSerialNumber = 2
	fieldECIEncryptedClientID              = 3
	fieldECIEncryptedClientIDIV            = 4
	fieldECIEncryptedPrivacyKey            = 5
)

func (m *EncryptedClientIdentification) Marshal() []byte {
	var out []byte
	out = appendStringField(out, fieldECIProviderID, m.ProviderID)
	out = appendBytesField(out, fieldECIServiceCertificateSerialNumber, m.ServiceCertificateSerialNumber)
	out = appendBytesField(out, fieldECIEncryptedClientID, m.EncryptedClientID)
	out = appendBytesField(out, fieldECIEncryptedClientIDIV, m.EncryptedClientIDIV)
	out = appendBytesField(out, fieldECIEncryptedPrivacyKey, m.EncryptedPrivacyKey)
	return out
}

func UnmarshalEncryptedClientIdentification(b []byte) (*EncryptedClientIdentification, error) {
	fields, err := scanFields(b)
	if err != nil {
		return nil, err
	}
	m := &EncryptedClientIdentification{}
	for _, f := range fields {
		switch f.num {
		case fieldECIProviderID:
			m.ProviderID = string(f.raw)
		case fieldECIServiceCertificateSerialNumber:
			m.ServiceCertificateSerialNumber = append([]byte{}, f.raw...)
		case fieldECIEncryptedClientID:
			m.EncryptedClientID = append([]byte{}, f.raw...)
		case fieldECIEncryptedClientIDIV:
			m.EncryptedClientIDIV = append([]byte{}, f.raw...)
		case fieldECIEncryptedPrivacyKey:
			m.EncryptedPrivacyKey = append([]byte{}, f.raw...)
		}
	}
	return m, nil
}
