package cryptoutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"math/big"
)

// Curve is the single curve every ECDSA/ElGamal operation in this package
// uses: NIST P-256 (secp256r1), mandated by both PlayReady's BCert chain
// and its ElGamal content-key scheme (spec §9).
func Curve() elliptic.Curve { return elliptic.P256() }

// coordSize is the fixed-width encoding length for a P-256 field element
// or scalar.
const coordSize = 32

// ECDSASignRawSHA256 signs hash (the SHA-256 digest of msg) with priv and
// returns the signature as raw R||S, each zero-padded to 32 bytes — the
// format PlayReady requires (spec §4.4 step 3), not the ASN.1 DER encoding
// crypto/ecdsa's higher-level helpers produce.
func ECDSASignRawSHA256(priv *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, err
	}
	return encodeRawSignature(r, s), nil
}

// ECDSAVerifyRawSHA256 verifies a raw R||S signature (64 bytes) over
// SHA-256(msg) against pub, used for both BCert certificate-chain
// signatures (spec §4.5) and XMR/SOAP challenge signatures.
func ECDSAVerifyRawSHA256(pub *ecdsa.PublicKey, msg, sig []byte) error {
	r, s, err := decodeRawSignature(sig)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(msg)
	if !ecdsa.Verify(pub, digest[:], r, s) {
		return ErrSignatureInvalid
	}
	return nil
}

func encodeRawSignature(r, s *big.Int) []byte {
	out := make([]byte, 2*coordSize)
	r.FillBytes(out[:coordSize])
	s.FillBytes(out[coordSize:])
	return out
}

func decodeRawSignature(sig []byte) (r, s *big.Int, err error) {
	if len(sig) != 2*coordSize {
		return nil, nil, ErrSignatureInvalid
	}
	r = new(big.Int).SetBytes(sig[:coordSize])
	s = new(big.Int).SetBytes(sig[coordSize:])
	return r, s, nil
}

// MarshalPublicPoint encodes a P-256 public key as uncompressed X||Y, 64
// bytes, the wire format used by PRD device files, BCert key-info
// attributes, and the hard-coded root/WMRM keys.
func MarshalPublicPoint(pub *ecdsa.PublicKey) []byte {
	out := make([]byte, 2*coordSize)
	pub.X.FillBytes(out[:coordSize])
	pub.Y.FillBytes(out[coordSize:])
	return out
}

// UnmarshalPublicPoint decodes a 64-byte uncompressed X||Y point and
// verifies it lies on P-256 (spec §3 PlayReadyDevice invariant: "every
// public point lies on the curve").
func UnmarshalPublicPoint(b []byte) (*ecdsa.PublicKey, error) {
	if len(b) != 2*coordSize {
		return nil, ErrPointNotOnCurve
	}
	x := new(big.Int).SetBytes(b[:coordSize])
	y := new(big.Int).SetBytes(b[coordSize:])
	curve := Curve()
	if !curve.IsOnCurve(x, y) {
		return nil, ErrPointNotOnCurve
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// ScalarFromBytes decodes a 32-byte big-endian private scalar and checks
// it lies in [1, n-1] (spec §3 PlayReadyDevice invariant).
func ScalarFromBytes(b []byte) (*big.Int, error) {
	if len(b) != coordSize {
		return nil, ErrScalarOutOfRange
	}
	d := new(big.Int).SetBytes(b)
	n := Curve().Params().N
	if d.Sign() <= 0 || d.Cmp(n) >= 0 {
		return nil, ErrScalarOutOfRange
	}
	return d, nil
}

// DerivePublicKey computes the P-256 public point for a private scalar via
// base-point scalar multiplication — used when a PRD device is built from
// a 32-byte private-only key (spec §4.2, §9 open question (c)).
func DerivePublicKey(d *big.Int) *ecdsa.PublicKey {
	curve := Curve()
	x, y := curve.ScalarBaseMult(d.Bytes())
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
}
