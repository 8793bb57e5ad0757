// Package contentkey defines the ContentKey result entity shared by the
// Widevine and PlayReady license-exchange sessions (spec §3 "ContentKey").
package contentkey

// Type is a protocol-neutral classification of a recovered key, mirroring
// the key-type distinctions Widevine's KeyContainer makes; PlayReady
// licenses recover content keys almost exclusively, but use the same type
// so both sessions return a uniform result list.
type Type uint8

const (
	TypeUnspecified     Type = 0
	TypeSigning         Type = 1
	TypeContent         Type = 2
	TypeKeyControl      Type = 3
	TypeOperatorSession Type = 4
	TypeEntitlement     Type = 5
	TypeOEMContent      Type = 6
)

func (t Type) String() string {
	switch t {
	case TypeSigning:
		return "Signing"
	case TypeContent:
		return "Content"
	case TypeKeyControl:
		return "KeyControl"
	case TypeOperatorSession:
		return "OperatorSession"
	case TypeEntitlement:
		return "Entitlement"
	case TypeOEMContent:
		return "OEMContent"
	default:
		return "Unspecified"
	}
}

// ContentKey is the decrypted (kid, key) pair a license exchange produces
// (spec §3). Values are returned by the session, never persisted by this
// layer.
type ContentKey struct {
	KeyID   [16]byte
	Key     []byte
	KeyType Type
}
