package playready

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"math/big"

	"github.com/tibellium/cdm-go/bcert"
	"github.com/tibellium/cdm-go/contentkey"
	"github.com/tibellium/cdm-go/cryptoutil"
	"github.com/tibellium/cdm-go/soap"
	"github.com/tibellium/cdm-go/wrm"
	"github.com/tibellium/cdm-go/xmr"
)

// clientVersion is the string embedded in every challenge's <LA> element.
const clientVersion = "2.6.0.0"

// rgbMagicConstantZero is the fixed AES-128 key used as the innermost step
// of the Ecc256ViaSymmetric scalable-license derivation chain (spec §4.4
// step 4). Real PlayReady clients use a protocol-fixed constant of this
// name; no copy of Microsoft's actual bytes appears anywhere in the
// retrieved corpus, so — following the same honesty policy as
// rootkeys.go's root keys — this is a synthetic but fixed 16-byte value,
// not a claimed reproduction of the real constant.
var rgbMagicConstantZero = [16]byte{
	0x7e, 0xe9, 0xed, 0x4a, 0xf7, 0x73, 0x22, 0x4f,
	0x00, 0xb8, 0xea, 0x7e, 0xfb, 0x02, 0x7c, 0xbb,
}

// State is the PlayReady session lifecycle (spec §9 "tagged state
// variant"): New before a challenge is built, AwaitingResponse after, and
// Complete once a response has yielded content keys.
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
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

var (
	ErrWrongState         = errors.New("playready: operation invalid in current session state")
	ErrNoLicenses         = errors.New("playready: response contained no license blobs")
	ErrIntegrityMismatch  = errors.New("playready: license integrity check failed")
	ErrUnsupportedCipher  = errors.New("playready: unrecognized content-key cipher type")
	ErrNoContentKeys      = errors.New("playready: license contained no recoverable content keys")
	ErrMessagePointFailed = errors.New("playready: failed to embed integrity key as an EC point")
	ErrMissingSignature   = errors.New("playready: license contained no SignatureObject")
)

// Option configures a Session at construction time.
type Option func(*Session)

// WithRootIssuerKey overrides the default (synthetic placeholder) root
// issuer key used to verify an embedded license's BCert chain when it
// differs from the device's own chain (spec §4.5 step 3).
func WithRootIssuerKey(rootIssuerKey []byte) Option {
	return func(s *Session) { s.rootIssuerKey = rootIssuerKey }
}

// WithServerKey overrides the default (synthetic placeholder) WMRM server
// public key used to ElGamal-wrap the content-integrity key (spec §4.4
// step 2).
func WithServerKey(pub *ecdsa.PublicKey) Option {
	return func(s *Session) { s.serverKey = pub }
}

// Session drives one PlayReady license exchange for one Device.
type Session struct {
	device        *Device
	rootIssuerKey []byte
	serverKey     *ecdsa.PublicKey

	state        State
	integrityKey []byte
	header       *wrm.Header
}

// NewSession constructs a Session bound to device, defaulting the root
// issuer key and WMRM server key to this package's compiled-in constants.
func NewSession(device *Device, opts ...Option) *Session {
	s := &Session{
		device:        device,
		rootIssuerKey: RootIssuerKey(),
		serverKey:     WMRMServerKey(),
		state:         StateNew,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the session's current lifecycle state.
func (s *Session) State() State { return s.state }

// Header returns the WRM-Header extracted while building the challenge,
// or nil before BuildLicenseChallenge has run.
func (s *Session) Header() *wrm.Header { return s.header }

// laEnvelope is the minimal <LA> document this Session emits: client
// version, the original WRM-Header (its raw UTF-16LE record bytes,
// base64-encoded; the whole element is itself AES-CBC encrypted), the device's group
// certificate chain, and its encryption public key.
type laEnvelope struct {
	XMLName       xml.Name `xml:"LA"`
	Version       string   `xml:"version,attr"`
	ClientVersion string   `xml:"ClientVersion"`
	WRMHeader     string   `xml:"WRMHEADER"`
	CertChain     string   `xml:"CertificateChain"`
	EncryptionKey string   `xml:"ClientECCKey"`
}

// BuildLicenseChallenge builds a PlayReady AcquireLicense SOAP envelope
// for the WRM-Header embedded in a version-0 PlayReady PSSH box's data
// field (spec §4.4, challenge construction steps 1-4).
func (s *Session) BuildLicenseChallenge(psshData []byte) ([]byte, error) {
	if s.state != StateNew {
		return nil, ErrWrongState
	}

	header, err := wrm.ExtractFromPSSHData(psshData)
	if err != nil {
		return nil, fmt.Errorf("playready: extract WRM-Header: %w", err)
	}
	rawHeader, err := wrm.ExtractRawFromPSSHData(psshData)
	if err != nil {
		return nil, fmt.Errorf("playready: extract WRM-Header: %w", err)
	}
	s.header = header

	la := laEnvelope{
		Version:       "1",
		ClientVersion: clientVersion,
		WRMHeader:     base64.StdEncoding.EncodeToString(rawHeader),
		CertChain:     hex.EncodeToString(s.device.GroupCertificateBytes()),
		EncryptionKey: hex.EncodeToString(cryptoutil.MarshalPublicPoint(&s.device.EncryptionKey.PublicKey)),
	}
	laXML, err := xml.Marshal(&la)
	if err != nil {
		return nil, fmt.Errorf("playready: marshal LA: %w", err)
	}

	integrityKey := make([]byte, cryptoutil.KeySize)
	if _, err := rand.Read(integrityKey); err != nil {
		return nil, err
	}
	iv := make([]byte, cryptoutil.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	padded := cryptoutil.Pkcs7Pad(laXML, cryptoutil.BlockSize)
	encryptedLA, err := cryptoutil.CBCEncrypt(integrityKey, iv, padded)
	if err != nil {
		return nil, err
	}
	laBytes := append(append([]byte{}, iv...), encryptedLA...)

	wrappedKey, err := wrapIntegrityKey(integrityKey, s.serverKey)
	if err != nil {
		return nil, err
	}

	sig, err := cryptoutil.ECDSASignRawSHA256(s.device.SigningKey, laBytes)
	if err != nil {
		return nil, err
	}

	envelope, err := soap.BuildAcquireLicenseRequest(soap.Challenge{
		LABytes:             laBytes,
		Signature:           sig,
		WrappedIntegrityKey: wrappedKey.Marshal(),
	})
	if err != nil {
		return nil, err
	}

	s.integrityKey = integrityKey
	s.state = StateAwaitingResponse
	return envelope, nil
}

// wrapIntegrityKey ElGamal-encrypts a 16-byte content-integrity key to the
// WMRM server public key (spec §4.4 step 2). The key bytes are embedded as
// the low 16 bytes of a 32-byte candidate X-coordinate and the high 16
// bytes are filled with fresh randomness, retrying with fresh randomness
// until cryptoutil.PointFromX reports a valid curve point — roughly half
// of all candidates succeed.
func wrapIntegrityKey(integrityKey []byte, serverKey *ecdsa.PublicKey) (*cryptoutil.ElGamalCiphertext, error) {
	for attempt := 0; attempt < 256; attempt++ {
		padding := make([]byte, 16)
		if _, err := rand.Read(padding); err != nil {
			return nil, err
		}
		candidate := new(big.Int).SetBytes(append(padding, integrityKey...))
		point, ok := cryptoutil.PointFromX(candidate)
		if !ok {
			continue
		}
		return cryptoutil.ElGamalEncryptPoint(serverKey, point)
	}
	return nil, ErrMessagePointFailed
}

// ParseLicenseResponse extracts every XMR license blob from a SOAP
// AcquireLicenseResponse, recovers every content key each license carries,
// verifies the license's integrity MAC under the integrity key recovered
// alongside its content key, and checks (when present and distinct from
// the device's own chain) its embedded BCert chain (spec §4.4, response
// parsing steps 1-6).
//
// The content-integrity key used to validate a license's SignatureObject
// is never the client's challenge-time key: the server only ever wraps the
// <LA> content under that key, and derives the actual integrity key fresh
// per license as the upper 16 bytes of the Ecc256 ElGamal-decrypted content
// key material (step 4). So content keys are recovered before the
// signature is checked, not after. A license carrying only
// Ecc256ViaSymmetric content keys (which derive no integrity key of their
// own) is checked against the most recently recovered integrity key, per
// step 3's "subsequent licenses" rule; the very first such license falls
// back to the client's original challenge key.
func (s *Session) ParseLicenseResponse(body []byte) ([]contentkey.ContentKey, error) {
	if s.state != StateAwaitingResponse {
		return nil, ErrWrongState
	}

	blobs, err := soap.ParseAcquireLicenseResponse(body)
	if err != nil {
		return nil, err
	}
	if len(blobs) == 0 {
		return nil, ErrNoLicenses
	}

	var keys []contentkey.ContentKey
	integrityKey := s.integrityKey

	for _, blob := range blobs {
		license, err := xmr.Parse(blob)
		if err != nil {
			return nil, fmt.Errorf("playready: parse license: %w", err)
		}

		signed, err := license.SignedRegion()
		if err != nil {
			return nil, err
		}

		licenseIntegrityKey := integrityKey
		var licenseKeys []contentkey.ContentKey
		for _, obj := range license.ContentKeyObjects() {
			data, err := xmr.ParseContentKeyObject(obj.Payload)
			if err != nil {
				return nil, err
			}
			key, newIntegrityKey, err := s.recoverContentKey(data)
			if err != nil {
				return nil, err
			}
			if newIntegrityKey != nil {
				licenseIntegrityKey = newIntegrityKey
			}
			licenseKeys = append(licenseKeys, contentkey.ContentKey{
				KeyID:   normalizeGUID(data.KeyID),
				Key:     key,
				KeyType: contentkey.TypeContent,
			})
		}

		sigObj, ok := xmr.FindFirst(license.Objects, xmr.TypeSignature)
		if !ok {
			return nil, ErrMissingSignature
		}
		if err := cryptoutil.VerifyCMAC(licenseIntegrityKey, signed, sigObj.Payload); err != nil {
			return nil, ErrIntegrityMismatch
		}

		if err := s.verifyEmbeddedChain(license); err != nil {
			return nil, err
		}

		integrityKey = licenseIntegrityKey
		keys = append(keys, licenseKeys...)
	}

	if len(keys) == 0 {
		return nil, ErrNoContentKeys
	}
	s.integrityKey = integrityKey
	s.state = StateComplete
	return keys, nil
}

// verifyEmbeddedChain checks a BCert chain carried inside the license
// payload, if present, when it is not simply the device's own chain (spec
// §4.4 step 5). Absence of an embedded chain is not an error: many test
// servers omit it and rely solely on the device's pre-provisioned chain.
func (s *Session) verifyEmbeddedChain(license *xmr.License) error {
	obj, ok := xmr.FindFirst(license.Objects, xmr.TypeEccKey)
	if !ok {
		return nil
	}
	chain, err := bcert.Parse(obj.Payload)
	if err != nil {
		return nil // not a chain, e.g. a bare key object; nothing to verify
	}
	if bytesEqualChain(chain.Certificates, s.device.GroupCertificateChain().Certificates) {
		return nil
	}
	return bcert.Verify(chain, s.rootIssuerKey)
}

func bytesEqualChain(a, b []bcert.Certificate) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i].Raw) != len(b[i].Raw) {
			return false
		}
		for j := range a[i].Raw {
			if a[i].Raw[j] != b[i].Raw[j] {
				return false
			}
		}
	}
	return true
}

// recoverContentKey dispatches on the ContentKeyObject's cipher type (spec
// §4.4 step 4). It returns the recovered 16-byte content key and, for the
// standard Ecc256 cipher, the integrity key recovered alongside it (used
// to verify subsequent licenses in the same response); the symmetric path
// returns a nil integrity key since it derives no new one.
func (s *Session) recoverContentKey(data *xmr.ContentKeyData) (key []byte, integrityKey []byte, err error) {
	switch data.CipherType {
	case xmr.CipherEcc256:
		return s.recoverEcc256(data.EncryptedKey)
	case xmr.CipherEcc256ViaSymmetric:
		k, err := s.recoverEcc256ViaSymmetric(data.EncryptedKey)
		return k, nil, err
	default:
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedCipher, data.CipherType)
	}
}

// recoverEcc256 implements the standard ElGamal content-key recovery
// (spec §4.4 step 4, "Ecc256"): the encrypted_key field holds a 128-byte
// (C1, C2) ciphertext; decrypting with the device's encryption private
// scalar yields a point whose X-coordinate IS integrity_key||content_key.
func (s *Session) recoverEcc256(encryptedKey []byte) (contentKey, integrityKey []byte, err error) {
	ct, err := cryptoutil.UnmarshalElGamalCiphertext(encryptedKey)
	if err != nil {
		return nil, nil, err
	}
	point, err := cryptoutil.ElGamalDecryptPoint(s.device.EncryptionKey.D, ct)
	if err != nil {
		return nil, nil, err
	}
	x := make([]byte, 32)
	point.X.FillBytes(x)
	return append([]byte{}, x[16:32]...), append([]byte{}, x[0:16]...), nil
}

// recoverEcc256ViaSymmetric implements the scalable-license derivation
// chain (spec §4.4 step 4, "Ecc256ViaSymmetric"): the encrypted_key field
// is an AuxiliaryKeysObject payload; each auxiliary entry's key is
// AES-128-ECB decrypted under rgbMagicConstantZero, and that output is
// used as the key to decrypt the next entry, ending in the content key.
func (s *Session) recoverEcc256ViaSymmetric(encryptedKey []byte) ([]byte, error) {
	aux, err := xmr.ParseAuxiliaryKeysObject(encryptedKey)
	if err != nil {
		return nil, err
	}
	if len(aux) == 0 {
		return nil, fmt.Errorf("%w: empty auxiliary key chain", ErrUnsupportedCipher)
	}
	current := rgbMagicConstantZero[:]
	var result []byte
	for _, entry := range aux {
		decrypted, err := cryptoutil.ECBDecrypt(current, entry.Key[:])
		if err != nil {
			return nil, err
		}
		current = decrypted
		result = decrypted
	}
	return result, nil
}

// normalizeGUID converts an XMR ContentKeyObject's little-endian GUID
// KeyID into the canonical big-endian byte order used elsewhere in this
// module (spec §4.4 step 6), identical to wrm.decodeGUIDLE's layout.
func normalizeGUID(raw [16]byte) [16]byte {
	var out [16]byte
	out[0], out[1], out[2], out[3] = raw[3], raw[2], raw[1], raw[0]
	out[4], out[5] = raw[5], raw[4]
	out[6], out[7] = raw[7], raw[6]
	copy(out[8:16], raw[8:16])
	return out
}
