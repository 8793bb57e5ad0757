package widevine

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/tibellium/cdm-go/contentkey"
	"github.com/tibellium/cdm-go/cryptoutil"
	"github.com/tibellium/cdm-go/pssh"
	"github.com/tibellium/cdm-go/wvproto"
)

// State is the Session's tagged state (spec §4.3 "the session advances
// through New -> AwaitingResponse -> Complete and never backward").
type State int

const (
	StateNew State = iota
	StateAwaitingResponse
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	case StateComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

var (
	ErrWrongState          = errors.New("widevine: session method called in the wrong state")
	ErrUnexpectedMessageType = errors.New("widevine: SignedMessage has an unexpected type")
	ErrBadSessionKeyLength = errors.New("widevine: recovered session key is not 16 bytes")
	ErrLicenseSignature    = errors.New("widevine: license response HMAC does not verify")
	ErrNoContentKeys       = errors.New("widevine: license carries no content-typed keys")
)

// Option configures a Session at construction time.
type Option func(*Session)

// WithServiceCertificate installs a verified service certificate, enabling
// privacy-mode client-identification wrapping for the challenge this
// session builds (spec §4.3 step 1).
func WithServiceCertificate(cert *ServiceCertificate) Option {
	return func(s *Session) { s.serviceCert = cert }
}

// WithRootKey overrides the root key ParseServiceCertificate-style helpers
// on this session use; Session itself never calls ParseServiceCertificate,
// so this only matters to callers that store the key alongside the
// session for later certificate verification.
func WithRootKey(key *rsa.PublicKey) Option {
	return func(s *Session) { s.rootKey = key }
}

// Session drives one Widevine license exchange against a single Device
// (spec §4.3, component C6).
type Session struct {
	device      *Device
	serviceCert *ServiceCertificate
	rootKey     *rsa.PublicKey

	state State

	requestID  []byte
	encContext []byte
	macContext []byte
}

// NewSession starts a fresh exchange bound to device.
func NewSession(device *Device, opts ...Option) *Session {
	s := &Session{device: device, state: StateNew, rootKey: GoogleRootKeyV3()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports the session's current state.
func (s *Session) State() State { return s.state }

// RootKey returns the root key this session was configured with, for
// callers that verify a service certificate just before installing it via
// WithServiceCertificate.
func (s *Session) RootKey() *rsa.PublicKey { return s.rootKey }

// BuildLicenseChallenge assembles, signs, and serializes a LicenseRequest
// for the given PSSH box, advancing the session to AwaitingResponse (spec
// §4.3 steps 1-3).
func (s *Session) BuildLicenseChallenge(box *pssh.Box, licenseType wvproto.LicenseType) ([]byte, error) {
	if s.state != StateNew {
		return nil, fmt.Errorf("%w: BuildLicenseChallenge requires New, have %s", ErrWrongState, s.state)
	}

	requestID := make([]byte, 32)
	if _, err := rand.Read(requestID); err != nil {
		return nil, fmt.Errorf("widevine: generate request id: %w", err)
	}

	var nonce [4]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("widevine: generate key control nonce: %w", err)
	}

	lr := &wvproto.LicenseRequest{
		ContentID: &wvproto.ContentIdentification{
			PsshData:    [][]byte{box.Serialize()},
			LicenseType: licenseType,
			RequestID:   requestID,
		},
		Type:            wvproto.RequestTypeNew,
		RequestTime:     time.Now().Unix(),
		KeyControlNonce: uint32(nonce[0])<<24 | uint32(nonce[1])<<16 | uint32(nonce[2])<<8 | uint32(nonce[3]),
		ProtocolVersion: 21,
	}

	if s.serviceCert != nil {
		eci, err := wrapClientIdentification(s.serviceCert, s.device.ClientIdentificationBytes())
		if err != nil {
			return nil, fmt.Errorf("widevine: wrap client identification: %w", err)
		}
		lr.EncryptedClientID = eci
	} else {
		lr.ClientID = s.device.ClientIdentification()
	}

	requestBytes := lr.Marshal()

	s.encContext = buildContext("ENCRYPTION", requestBytes, 0x00, 0x00, 0x00, 0x80)
	s.macContext = buildContext("AUTHENTICATION", requestBytes, 0x00, 0x00, 0x02, 0x00)
	s.requestID = requestID

	signature, err := cryptoutil.SignPSS(s.device.PrivateKey(), requestBytes)
	if err != nil {
		return nil, fmt.Errorf("widevine: sign license request: %w", err)
	}

	sm := &wvproto.SignedMessage{
		Type:      wvproto.MessageTypeLicenseRequest,
		Msg:       requestBytes,
		Signature: signature,
	}

	s.state = StateAwaitingResponse
	return sm.Marshal(), nil
}

// buildContext builds the fixed "label\0" || request || suffix byte string
// used as CMAC input for key derivation (spec §4.3 step 3).
func buildContext(label string, request []byte, suffix ...byte) []byte {
	out := make([]byte, 0, len(label)+1+len(request)+len(suffix))
	out = append(out, label...)
	out = append(out, 0x00)
	out = append(out, request...)
	out = append(out, suffix...)
	return out
}

func wrapClientIdentification(cert *ServiceCertificate, clientIDBytes []byte) (*wvproto.EncryptedClientIdentification, error) {
	privacyKey := make([]byte, 16)
	if _, err := rand.Read(privacyKey); err != nil {
		return nil, err
	}
	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	padded := cryptoutil.Pkcs7Pad(clientIDBytes, 16)
	ciphertext, err := cryptoutil.CBCEncrypt(privacyKey, iv, padded)
	if err != nil {
		return nil, err
	}

	pub, err := cert.PublicKey()
	if err != nil {
		return nil, err
	}
	wrappedKey, err := cryptoutil.EncryptOAEP(pub, privacyKey)
	if err != nil {
		return nil, err
	}

	return &wvproto.EncryptedClientIdentification{
		ProviderID:                     cert.ProviderID(),
		ServiceCertificateSerialNumber: cert.SerialNumber(),
		EncryptedClientID:              ciphertext,
		EncryptedClientIDIV:            iv,
		EncryptedPrivacyKey:            wrappedKey,
	}, nil
}

// ParseLicenseResponse recovers the session key, derives the session's
// encryption and authentication keys, verifies the response's HMAC, and
// decrypts each key container (spec §4.3 steps 4-6). The session moves to
// Complete only when at least one content key was recovered; any error,
// including ErrNoContentKeys, leaves it in AwaitingResponse.
func (s *Session) ParseLicenseResponse(data []byte) ([]contentkey.ContentKey, error) {
	if s.state != StateAwaitingResponse {
		return nil, fmt.Errorf("%w: ParseLicenseResponse requires AwaitingResponse, have %s", ErrWrongState, s.state)
	}

	sm, err := wvproto.UnmarshalSignedMessage(data)
	if err != nil {
		return nil, fmt.Errorf("widevine: decode SignedMessage: %w", err)
	}
	if sm.Type != wvproto.MessageTypeLicense {
		return nil, fmt.Errorf("%w: got %d, want LICENSE", ErrUnexpectedMessageType, sm.Type)
	}

	sessionKey, err := cryptoutil.DecryptOAEP(s.device.PrivateKey(), sm.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("widevine: recover session key: %w", err)
	}
	if len(sessionKey) != 16 {
		return nil, ErrBadSessionKeyLength
	}

	encKey, macKeyServer, macKeyClient, err := deriveSessionKeys(sessionKey, s.encContext, s.macContext)
	if err != nil {
		return nil, fmt.Errorf("widevine: derive session keys: %w", err)
	}
	_ = macKeyClient // reserved for license renewal/release requests, not license parsing

	hmacInput := append(append([]byte{}, sm.OemCryptoCoreMessage...), sm.Msg...)
	if err := cryptoutil.VerifyHMACSHA256(macKeyServer, hmacInput, sm.Signature); err != nil {
		return nil, ErrLicenseSignature
	}

	license, err := wvproto.UnmarshalLicense(sm.Msg)
	if err != nil {
		return nil, fmt.Errorf("widevine: decode License: %w", err)
	}

	keys := make([]contentkey.ContentKey, 0, len(license.Keys))
	haveContentKey := false
	for i, kc := range license.Keys {
		plain, err := cryptoutil.CBCDecrypt(encKey, kc.IV, kc.Key)
		if err != nil {
			return nil, fmt.Errorf("widevine: decrypt key container %d: %w", i, err)
		}
		unpadded, err := cryptoutil.Pkcs7Unpad(plain, 16)
		if err != nil {
			return nil, fmt.Errorf("widevine: unpad key container %d: %w", i, err)
		}

		keyType := mapKeyType(kc.Type)
		if keyType == contentkey.TypeContent {
			haveContentKey = true
		}

		var kid [16]byte
		copy(kid[:], kc.ID)
		keys = append(keys, contentkey.ContentKey{KeyID: kid, Key: unpadded, KeyType: keyType})
	}

	if !haveContentKey {
		return nil, ErrNoContentKeys
	}

	s.state = StateComplete
	return keys, nil
}

// deriveSessionKeys computes enc_key, mac_key_server, and mac_key_client
// from the recovered 16-byte session key (spec §4.3 step 3):
//
//	enc_key        = CMAC(session_key, 0x01 || enc_context)
//	mac_key_server = CMAC(session_key, 0x01 || mac_context) || CMAC(session_key, 0x02 || mac_context)
//	mac_key_client = CMAC(session_key, 0x03 || mac_context) || CMAC(session_key, 0x04 || mac_context)
func deriveSessionKeys(sessionKey, encContext, macContext []byte) (encKey, macKeyServer, macKeyClient []byte, err error) {
	encKey, err = cryptoutil.CMAC(sessionKey, append([]byte{0x01}, encContext...))
	if err != nil {
		return nil, nil, nil, err
	}

	mac1, err := cryptoutil.CMAC(sessionKey, append([]byte{0x01}, macContext...))
	if err != nil {
		return nil, nil, nil, err
	}
	mac2, err := cryptoutil.CMAC(sessionKey, append([]byte{0x02}, macContext...))
	if err != nil {
		return nil, nil, nil, err
	}
	macKeyServer = append(append([]byte{}, mac1...), mac2...)

	mac3, err := cryptoutil.CMAC(sessionKey, append([]byte{0x03}, macContext...))
	if err != nil {
		return nil, nil, nil, err
	}
	mac4, err := cryptoutil.CMAC(sessionKey, append([]byte{0x04}, macContext...))
	if err != nil {
		return nil, nil, nil, err
	}
	macKeyClient = append(append([]byte{}, mac3...), mac4...)

	return encKey, macKeyServer, macKeyClient, nil
}

func mapKeyType(t wvproto.KeyContainerType) contentkey.Type {
	switch t {
	case wvproto.KeyTypeSigning:
		return contentkey.TypeSigning
	case wvproto.KeyTypeContent:
		return contentkey.TypeContent
	case wvproto.KeyTypeKeyControl:
		return contentkey.TypeKeyControl
	case wvproto.KeyTypeOperatorSession:
		return contentkey.TypeOperatorSession
	case wvproto.KeyTypeEntitlement:
		return contentkey.TypeEntitlement
	case wvproto.KeyTypeOEMContent:
		return contentkey.TypeOEMContent
	default:
		return contentkey.TypeUnspecified
	}
}
