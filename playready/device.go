// Package playready implements the PlayReady device serialization format
// and the license-exchange session state machine (spec §4.2, §4.4,
// component C3/C7).
package playready

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tibellium/cdm-go/bcert"
	"github.com/tibellium/cdm-go/cryptoutil"
)

const (
	prdMagic = "PRD"

	eccKeyLen = 96 // 32-byte scalar + 64-byte uncompressed public point
)

var (
	ErrBadMagic           = errors.New("playready: bad PRD magic")
	ErrUnsupportedVersion = errors.New("playready: unsupported PRD version")
	ErrTruncated          = errors.New("playready: truncated PRD file")
	ErrInvalidKey         = errors.New("playready: ECC key is invalid")
	ErrInvalidGroupChain  = errors.New("playready: group certificate chain does not parse")
)

// Device is a load-time-validated PlayReady device identity (spec §3
// PlayReadyDevice): a 3-tier 96-byte ECC key set plus the BCert group
// certificate chain that vouches for the encryption and signing keys.
type Device struct {
	Version uint8

	// GroupKey is only present in version 3 files (spec §4.2).
	GroupKey      *ecdsa.PrivateKey
	EncryptionKey *ecdsa.PrivateKey
	SigningKey    *ecdsa.PrivateKey

	groupCertBytes []byte
	groupChain     *bcert.Chain
}

// GroupCertificateChain returns the device's parsed BCert chain.
func (d *Device) GroupCertificateChain() *bcert.Chain { return d.groupChain }

// GroupCertificateBytes returns the raw group certificate chain bytes, as
// stored in the device file.
func (d *Device) GroupCertificateBytes() []byte { return d.groupCertBytes }

// ParseDevice decodes a PRD file (spec §4.2):
//
//	v3 (current): "PRD" || version(u8=3) || group_key(96) ||
//	  encryption_key(96) || signing_key(96) || group_cert_len(u32 BE) || group_cert
//	v2 (legacy):   "PRD" || version(u8=2) || group_cert_len(u32 BE) ||
//	  group_cert || encryption_key(96) || signing_key(96)
func ParseDevice(b []byte) (*Device, error) {
	if len(b) < 4 {
		return nil, ErrTruncated
	}
	if string(b[0:3]) != prdMagic {
		return nil, ErrBadMagic
	}
	version := b[3]

	switch version {
	case 3:
		return parseV3(b[4:])
	case 2:
		return parseV2(b[4:])
	default:
		return nil, ErrUnsupportedVersion
	}
}

func parseV3(b []byte) (*Device, error) {
	if len(b) < 3*eccKeyLen+4 {
		return nil, ErrTruncated
	}
	groupKey, err := parseECCKey(b[0:eccKeyLen])
	if err != nil {
		return nil, fmt.Errorf("%w: group_key: %v", ErrInvalidKey, err)
	}
	off := eccKeyLen
	encKey, err := parseECCKey(b[off : off+eccKeyLen])
	if err != nil {
		return nil, fmt.Errorf("%w: encryption_key: %v", ErrInvalidKey, err)
	}
	off += eccKeyLen
	signKey, err := parseECCKey(b[off : off+eccKeyLen])
	if err != nil {
		return nil, fmt.Errorf("%w: signing_key: %v", ErrInvalidKey, err)
	}
	off += eccKeyLen

	groupCert, err := readGroupCert(b, off)
	if err != nil {
		return nil, err
	}

	chain, err := bcert.Parse(groupCert)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGroupChain, err)
	}

	return &Device{
		Version:        3,
		GroupKey:       groupKey,
		EncryptionKey:  encKey,
		SigningKey:     signKey,
		groupCertBytes: groupCert,
		groupChain:     chain,
	}, nil
}

func parseV2(b []byte) (*Device, error) {
	groupCert, off, err := readGroupCertWithOffset(b, 0)
	if err != nil {
		return nil, err
	}
	if len(b) < off+2*eccKeyLen {
		return nil, ErrTruncated
	}
	encKey, err := parseECCKey(b[off : off+eccKeyLen])
	if err != nil {
		return nil, fmt.Errorf("%w: encryption_key: %v", ErrInvalidKey, err)
	}
	off += eccKeyLen
	signKey, err := parseECCKey(b[off : off+eccKeyLen])
	if err != nil {
		return nil, fmt.Errorf("%w: signing_key: %v", ErrInvalidKey, err)
	}

	chain, err := bcert.Parse(groupCert)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGroupChain, err)
	}

	return &Device{
		Version:        2,
		EncryptionKey:  encKey,
		SigningKey:     signKey,
		groupCertBytes: groupCert,
		groupChain:     chain,
	}, nil
}

func readGroupCert(b []byte, off int) ([]byte, error) {
	cert, _, err := readGroupCertWithOffset(b, off)
	return cert, err
}

func readGroupCertWithOffset(b []byte, off int) ([]byte, int, error) {
	if off+4 > len(b) {
		return nil, 0, ErrTruncated
	}
	certLen := binary.BigEndian.Uint32(b[off : off+4])
	off += 4
	if off+int(certLen) > len(b) {
		return nil, 0, ErrTruncated
	}
	cert := append([]byte{}, b[off:off+int(certLen)]...)
	off += int(certLen)
	return cert, off, nil
}

// parseECCKey decodes a 96-byte ECC key (32-byte private scalar, [1,n-1],
// followed by a 64-byte uncompressed public point verified on-curve),
// spec §3 PlayReadyDevice invariants.
func parseECCKey(b []byte) (*ecdsa.PrivateKey, error) {
	if len(b) != eccKeyLen {
		return nil, ErrTruncated
	}
	d, err := cryptoutil.ScalarFromBytes(b[0:32])
	if err != nil {
		return nil, err
	}
	pub, err := cryptoutil.UnmarshalPublicPoint(b[32:96])
	if err != nil {
		return nil, err
	}
	return &ecdsa.PrivateKey{PublicKey: *pub, D: d}, nil
}

// NewECCKeyFromScalar builds a 96-byte ECC key from a 32-byte private
// scalar alone, deriving the public point by base-point scalar
// multiplication (spec §4.2, §9 open question (c)).
func NewECCKeyFromScalar(scalar []byte) (*ecdsa.PrivateKey, error) {
	d, err := cryptoutil.ScalarFromBytes(scalar)
	if err != nil {
		return nil, err
	}
	pub := cryptoutil.DerivePublicKey(d)
	return &ecdsa.PrivateKey{PublicKey: *pub, D: d}, nil
}

func serializeECCKey(key *ecdsa.PrivateKey) []byte {
	out := make([]byte, eccKeyLen)
	key.D.FillBytes(out[0:32])
	copy(out[32:96], cryptoutil.MarshalPublicPoint(&key.PublicKey))
	return out
}

// Serialize re-encodes the device to the exact PRD byte layout Parse
// reads for its version.
func (d *Device) Serialize() []byte {
	var out []byte
	out = append(out, prdMagic...)
	out = append(out, d.Version)

	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(d.groupCertBytes)))

	switch d.Version {
	case 3:
		out = append(out, serializeECCKey(d.GroupKey)...)
		out = append(out, serializeECCKey(d.EncryptionKey)...)
		out = append(out, serializeECCKey(d.SigningKey)...)
		out = append(out, lenBuf...)
		out = append(out, d.groupCertBytes...)
	case 2:
		out = append(out, lenBuf...)
		out = append(out, d.groupCertBytes...)
		out = append(out, serializeECCKey(d.EncryptionKey)...)
		out = append(out, serializeECCKey(d.SigningKey)...)
	}
	return out
}
