package wvproto

// MessageType mirrors SignedMessage.MessageType.
type MessageType uint32

const (
	MessageTypeLicenseRequest         MessageType = 1
	MessageTypeLicense                MessageType = 2
	MessageTypeErrorResponse          MessageType = 3
	MessageTypeServiceCertificate     MessageType = 4
	MessageTypeSessionKeyRequest      MessageType = 5
	MessageTypeLicenseCertificateStatusRequest MessageType = 8
)

// SignedMessage is the outer envelope both the license request and the
// license response are wrapped in (spec §4.3 step 5, §4.4 step 1).
type SignedMessage struct {
	Type                 MessageType
	Msg                  []byte
	Signature            []byte
	SessionKey           []byte
	RemoteAttestation    []byte
	// OemCryptoCoreMessage is prepended to the HMAC input only when
	// present (spec §4.3 step 4).
	OemCryptoCoreMessage []byte
}

const (
	fieldSMType                 = 1
	fieldSMMsg                  = 2
	fieldSMSignature            = 3
	fieldSMSessionKey           = 4
	fieldSMRemoteAttestation    = 5
	fieldSMOemCryptoCoreMessage = 6
)

func (m *SignedMessage) Marshal() []byte {
	var out []byte
	out = appendVarintField(out, fieldSMType, uint64(m.Type))
	out = appendBytesField(out, fieldSMMsg, m.Msg)
	out = appendBytesField(out, fieldSMSignature, m.Signature)
	out = appendBytesField(out, fieldSMSessionKey, m.SessionKey)
	out = appendBytesField(out, fieldSMRemoteAttestation, m.RemoteAttestation)
	out = appendBytesField(out, fieldSMOemCryptoCoreMessage, m.OemCryptoCoreMessage)
	return out
}

func UnmarshalSignedMessage(b []byte) (*SignedMessage, error) {
	fields, err := scanFields(b)
	if err != nil {
		return nil, err
	}
	m := &SignedMessage{}
	for _, f := range fields {
		switch f.num {
		case fieldSMType:
			m.Type = MessageType(decodeVarintValue(f.raw))
		case fieldSMMsg:
			m.Msg = append([]byte{}, f.raw...)
		case fieldSMSignature:
			m.Signature = append([]byte{}, f.raw...)
		case fieldSMSessionKey:
			m.SessionKey = append([]byte{}, f.raw...)
		case fieldSMRemoteAttestation:
			m.RemoteAttestation = append([]byte{}, f.raw...)
		case fieldSMOemCryptoCoreMessage:
			m.OemCryptoCoreMessage = append([]byte{}, f.raw...)
		}
	}
	return m, nil
}
