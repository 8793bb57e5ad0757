// Package bcert implements the PlayReady binary certificate (BCert) chain
// format and its chain-verification rules (spec §4.5, §4.6). A chain is an
// outer CHAI-framed list of CERT-framed certificates, leaf first, root
// last, each carrying a TLV attribute list.
package bcert

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tibellium/cdm-go/cryptoutil"
)

const (
	magicChain = "CHAI"
	magicCert  = "CERT"

	chainHeaderLen = 16 // magic(4) + version(4) + total_length(4) + flags(4)
	certHeaderLen  = 16 // magic(4) + version(4) + total_length(4) + certificate_length(4)
	attrHeaderLen  = 8  // flags(2) + tag(2) + length(4)

	// MaxChainLength is the largest chain this verifier accepts (spec
	// §4.5: "For a chain of length 1 ≤ N ≤ 6").
	MaxChainLength = 6
)

// Attribute tags of interest (spec §4.6).
const (
	TagBasicInfo     uint16 = 0x0001
	TagDeviceInfo    uint16 = 0x0004
	TagFeatures      uint16 = 0x0005
	TagKeyInfo       uint16 = 0x0006
	TagManufacturer  uint16 = 0x0007
	TagSignatureInfo uint16 = 0x0008
)

// CertType is Certificate.BasicInfo's cert-type field.
type CertType uint32

const (
	CertTypeUnknown      CertType = 0
	CertTypePCCertificate CertType = 2
	CertTypeIssuer       CertType = 3
)

var (
	ErrTooShort        = errors.New("bcert: input shorter than minimum frame size")
	ErrBadChainMagic   = errors.New("bcert: bad chain magic")
	ErrBadCertMagic    = errors.New("bcert: bad certificate magic")
	ErrTruncated       = errors.New("bcert: truncated frame")
	ErrChainTooLong    = errors.New("bcert: chain exceeds maximum length")
	ErrNoKeyInfo       = errors.New("bcert: certificate has no key-info attribute")
	ErrNoSignatureInfo = errors.New("bcert: certificate has no signature-info attribute")
	ErrNoBasicInfo     = errors.New("bcert: certificate has no basic-info attribute")
)

// Attribute is one decoded TLV entry from a certificate's attribute list.
type Attribute struct {
	Flags   uint16
	Tag     uint16
	Payload []byte
}

// Certificate is one parsed CERT-framed certificate (spec §4.6).
type Certificate struct {
	Version           uint32
	CertificateLength uint32 // length of the leading signed region, as stored in the header
	Raw               []byte // the full certificate frame, as parsed
	Attributes        []Attribute
}

// Chain is a parsed CHAI-framed certificate chain, leaf first, root last.
type Chain struct {
	Version      uint32
	Flags        uint32
	Certificates []Certificate
}

// Parse decodes a BCert chain (spec §4.6).
func Parse(b []byte) (*Chain, error) {
	if len(b) < chainHeaderLen {
		return nil, ErrTooShort
	}
	if string(b[0:4]) != magicChain {
		return nil, ErrBadChainMagic
	}
	version := binary.BigEndian.Uint32(b[4:8])
	totalLength := binary.BigEndian.Uint32(b[8:12])
	flags := binary.BigEndian.Uint32(b[12:16])
	if int64(totalLength) > int64(len(b)) {
		return nil, ErrTruncated
	}

	certCountOff := 16
	if certCountOff+4 > len(b) {
		return nil, ErrTruncated
	}
	certCount := binary.BigEndian.Uint32(b[certCountOff : certCountOff+4])
	if certCount > MaxChainLength {
		return nil, ErrChainTooLong
	}

	chain := &Chain{Version: version, Flags: flags}
	off := certCountOff + 4
	for i := uint32(0); i < certCount; i++ {
		cert, n, err := parseCertificate(b[off:])
		if err != nil {
			return nil, fmt.Errorf("bcert: certificate %d: %w", i, err)
		}
		chain.Certificates = append(chain.Certificates, *cert)
		off += n
	}
	return chain, nil
}

func parseCertificate(b []byte) (*Certificate, int, error) {
	if len(b) < certHeaderLen {
		return nil, 0, ErrTooShort
	}
	if string(b[0:4]) != magicCert {
		return nil, 0, ErrBadCertMagic
	}
	version := binary.BigEndian.Uint32(b[4:8])
	totalLength := binary.BigEndian.Uint32(b[8:12])
	certificateLength := binary.BigEndian.Uint32(b[12:16])
	if int64(totalLength) > int64(len(b)) || totalLength < certHeaderLen {
		return nil, 0, ErrTruncated
	}
	if certificateLength > totalLength {
		return nil, 0, ErrTruncated
	}

	cert := &Certificate{
		Version:           version,
		CertificateLength: certificateLength,
		Raw:               append([]byte{}, b[:totalLength]...),
	}

	off := certHeaderLen
	for off < int(totalLength) {
		if off+attrHeaderLen > int(totalLength) {
			return nil, 0, ErrTruncated
		}
		attrFlags := binary.BigEndian.Uint16(b[off : off+2])
		attrTag := binary.BigEndian.Uint16(b[off+2 : off+4])
		attrLen := binary.BigEndian.Uint32(b[off+4 : off+8])
		if attrLen < attrHeaderLen || off+int(attrLen) > int(totalLength) {
			return nil, 0, ErrTruncated
		}
		payload := b[off+attrHeaderLen : off+int(attrLen)]
		cert.Attributes = append(cert.Attributes, Attribute{
			Flags:   attrFlags,
			Tag:     attrTag,
			Payload: append([]byte{}, payload...),
		})
		off += int(attrLen)
	}
	return cert, int(totalLength), nil
}

// Attribute returns the first attribute with the given tag, or false if
// absent.
func (c *Certificate) Attribute(tag uint16) (Attribute, bool) {
	for _, a := range c.Attributes {
		if a.Tag == tag {
			return a, true
		}
	}
	return Attribute{}, false
}

// BasicInfo is the decoded payload of the TagBasicInfo attribute.
type BasicInfo struct {
	CertID         []byte
	SecurityLevel  uint32
	Flags          uint32
	CertType       CertType
	ExpirationDate uint32
	ClientID       []byte
}

// BasicInfo decodes the certificate's basic-info attribute.
func (c *Certificate) BasicInfo() (*BasicInfo, error) {
	attr, ok := c.Attribute(TagBasicInfo)
	if !ok {
		return nil, ErrNoBasicInfo
	}
	p := attr.Payload
	if len(p) < 16+4+4+4+4+16 {
		return nil, fmt.Errorf("%w: truncated payload", ErrNoBasicInfo)
	}
	return &BasicInfo{
		CertID:         append([]byte{}, p[0:16]...),
		SecurityLevel:  binary.BigEndian.Uint32(p[16:20]),
		Flags:          binary.BigEndian.Uint32(p[20:24]),
		CertType:       CertType(binary.BigEndian.Uint32(p[24:28])),
		ExpirationDate: binary.BigEndian.Uint32(p[28:32]),
		ClientID:       append([]byte{}, p[32:48]...),
	}, nil
}

// KeyUsage mirrors one entry of a key-info attribute's key list.
type KeyUsage struct {
	Usage     uint32
	PublicKey []byte // 64-byte P-256 X||Y
}

// KeyInfo decodes the certificate's key-info attribute: a u32 key count
// followed by, for each key, a usage-count u32, that many usage u32s, a
// key-type u16, a key-length u16, and the raw public-key bytes.
func (c *Certificate) KeyInfo() ([]KeyUsage, error) {
	attr, ok := c.Attribute(TagKeyInfo)
	if !ok {
		return nil, ErrNoKeyInfo
	}
	p := attr.Payload
	if len(p) < 4 {
		return nil, fmt.Errorf("%w: truncated payload", ErrNoKeyInfo)
	}
	keyCount := binary.BigEndian.Uint32(p[0:4])
	off := 4
	out := make([]KeyUsage, 0, keyCount)
	for i := uint32(0); i < keyCount; i++ {
		if off+4 > len(p) {
			return nil, fmt.Errorf("%w: truncated key entry", ErrNoKeyInfo)
		}
		usageCount := binary.BigEndian.Uint32(p[off : off+4])
		off += 4
		var usage uint32
		for j := uint32(0); j < usageCount; j++ {
			if off+4 > len(p) {
				return nil, fmt.Errorf("%w: truncated usage list", ErrNoKeyInfo)
			}
			usage = binary.BigEndian.Uint32(p[off : off+4])
			off += 4
		}
		if off+4 > len(p) {
			return nil, fmt.Errorf("%w: truncated key type/length", ErrNoKeyInfo)
		}
		off += 2 // key type
		keyLen := binary.BigEndian.Uint16(p[off : off+2])
		off += 2
		if off+int(keyLen) > len(p) {
			return nil, fmt.Errorf("%w: truncated key bytes", ErrNoKeyInfo)
		}
		out = append(out, KeyUsage{Usage: usage, PublicKey: append([]byte{}, p[off:off+int(keyLen)]...)})
		off += int(keyLen)
	}
	return out, nil
}

// SignatureInfo is the decoded payload of the TagSignatureInfo attribute.
type SignatureInfo struct {
	SignatureType uint16
	Signature     []byte // 64-byte raw R||S
	SigningKey    []byte // 64-byte P-256 X||Y
}

// SignatureInfo decodes the certificate's signature-info attribute: a u16
// signature-type, a u16 signature-length, the raw signature, and the
// signing (issuer) public key.
func (c *Certificate) SignatureInfo() (*SignatureInfo, error) {
	attr, ok := c.Attribute(TagSignatureInfo)
	if !ok {
		return nil, ErrNoSignatureInfo
	}
	p := attr.Payload
	if len(p) < 4 {
		return nil, fmt.Errorf("%w: truncated payload", ErrNoSignatureInfo)
	}
	sigType := binary.BigEndian.Uint16(p[0:2])
	sigLen := binary.BigEndian.Uint16(p[2:4])
	off := 4
	if off+int(sigLen) > len(p) {
		return nil, fmt.Errorf("%w: truncated signature", ErrNoSignatureInfo)
	}
	sig := append([]byte{}, p[off:off+int(sigLen)]...)
	off += int(sigLen)
	signingKey := append([]byte{}, p[off:]...)
	return &SignatureInfo{SignatureType: sigType, Signature: sig, SigningKey: signingKey}, nil
}

// ChainError describes a failed chain-verification step, naming the
// certificate index and the reason (spec §4.5: "a fatal chain-invalid
// error with the failing index and reason").
type ChainError struct {
	Index  int
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("bcert: chain invalid at certificate %d: %s", e.Index, e.Reason)
}

// Verify checks a BCert chain against the PlayReady root issuer key (spec
// §4.5): each certificate's signature verifies over its own signed bytes;
// each non-root child's signing key is present in its parent's key list
// and, for non-root intermediates, the certificate is of type Issuer; and
// the root's signing key equals rootIssuerKey (64-byte P-256 X||Y).
func Verify(chain *Chain, rootIssuerKey []byte) error {
	n := len(chain.Certificates)
	if n == 0 || n > MaxChainLength {
		return &ChainError{Index: -1, Reason: "chain length out of range"}
	}

	for i, cert := range chain.Certificates {
		sigInfo, err := cert.SignatureInfo()
		if err != nil {
			return &ChainError{Index: i, Reason: err.Error()}
		}
		pub, err := cryptoutil.UnmarshalPublicPoint(sigInfo.SigningKey)
		if err != nil {
			return &ChainError{Index: i, Reason: "invalid signing key: " + err.Error()}
		}
		signedBytes := cert.Raw[:cert.CertificateLength]
		if err := cryptoutil.ECDSAVerifyRawSHA256(pub, signedBytes, sigInfo.Signature); err != nil {
			return &ChainError{Index: i, Reason: "signature verification failed"}
		}

		if i < n-1 {
			parent := chain.Certificates[i+1]
			parentKeyInfo, err := parent.KeyInfo()
			if err != nil {
				return &ChainError{Index: i + 1, Reason: "parent has no key-info: " + err.Error()}
			}
			linked := false
			for _, ku := range parentKeyInfo {
				if bytesEqual(ku.PublicKey, sigInfo.SigningKey) {
					linked = true
					break
				}
			}
			if !linked {
				return &ChainError{Index: i, Reason: "signing key not present in parent key-info"}
			}
		}

		if i > 0 && i < n-1 {
			basic, err := cert.BasicInfo()
			if err != nil {
				return &ChainError{Index: i, Reason: "missing basic-info: " + err.Error()}
			}
			if basic.CertType != CertTypeIssuer {
				return &ChainError{Index: i, Reason: "non-root intermediate is not an Issuer certificate"}
			}
		}
	}

	rootSigInfo, err := chain.Certificates[n-1].SignatureInfo()
	if err != nil {
		return &ChainError{Index: n - 1, Reason: "root has no signature-info: " + err.Error()}
	}
	if !bytesEqual(rootSigInfo.SigningKey, rootIssuerKey) {
		return &ChainError{Index: n - 1, Reason: "root signing key does not match hard-coded root issuer key"}
	}

	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
