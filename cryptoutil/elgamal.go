package cryptoutil

import (
	"crypto/ecdsa"
	"crypto/rand"
	"math/big"
)

// ElGamalCiphertext is a PlayReady ElGamal-on-P-256 ciphertext: two curve
// points, each marshaled as 64-byte uncompressed X||Y (spec §4.4 step 4,
// "Ecc256"). This mirrors the teacher's ecies.go encrypt/decrypt, which
// also computes a shared point via elliptic.Unmarshal + ScalarMult and
// then derives key material from its X-coordinate; here the two-point
// ElGamal shape (rather than ECIES's single ephemeral-key + AEAD
// envelope) is the protocol-mandated wire format.
type ElGamalCiphertext struct {
	C1, C2 *ecdsa.PublicKey
}

// Marshal encodes the ciphertext as C1 || C2, 128 bytes total.
func (c ElGamalCiphertext) Marshal() []byte {
	out := make([]byte, 0, 128)
	out = append(out, MarshalPublicPoint(c.C1)...)
	out = append(out, MarshalPublicPoint(c.C2)...)
	return out
}

// UnmarshalElGamalCiphertext decodes a 128-byte C1||C2 buffer, validating
// both points lie on P-256.
func UnmarshalElGamalCiphertext(b []byte) (*ElGamalCiphertext, error) {
	if len(b) != 128 {
		return nil, ErrPointNotOnCurve
	}
	c1, err := UnmarshalPublicPoint(b[:64])
	if err != nil {
		return nil, err
	}
	c2, err := UnmarshalPublicPoint(b[64:])
	if err != nil {
		return nil, err
	}
	return &ElGamalCiphertext{C1: c1, C2: c2}, nil
}

// ElGamalEncryptPoint encrypts message point M to recipient public key pub
// using a fresh random ephemeral scalar k:
//
//	C1 = k*G
//	C2 = M + k*Pub
//
// Used to wrap the PlayReady content-integrity key to the hard-coded WMRM
// server public key when building a license challenge (spec §4.4 step 2).
func ElGamalEncryptPoint(pub *ecdsa.PublicKey, m *ecdsa.PublicKey) (*ElGamalCiphertext, error) {
	curve := Curve()
	k, err := rand.Int(rand.Reader, curve.Params().N)
	if err != nil {
		return nil, err
	}
	if k.Sign() == 0 {
		k.SetInt64(1)
	}

	c1x, c1y := curve.ScalarBaseMult(k.Bytes())
	kpx, kpy := curve.ScalarMult(pub.X, pub.Y, k.Bytes())
	c2x, c2y := curve.Add(m.X, m.Y, kpx, kpy)

	return &ElGamalCiphertext{
		C1: &ecdsa.PublicKey{Curve: curve, X: c1x, Y: c1y},
		C2: &ecdsa.PublicKey{Curve: curve, X: c2x, Y: c2y},
	}, nil
}

// ElGamalDecryptPoint recovers the message point M = C2 - priv*C1, i.e.
// M = C2 + (-priv*C1), using curve point negation (x, p-y). This is the
// core of PlayReady's Ecc256 content-key recovery (spec §4.4 step 4): the
// caller then takes M's affine X-coordinate directly as the 32-byte
// integrity_key||content_key payload — there is no message-unmapping step,
// because the protocol defines the key material to *be* the recovered
// point's X-coordinate.
func ElGamalDecryptPoint(priv *big.Int, ct *ElGamalCiphertext) (*ecdsa.PublicKey, error) {
	curve := Curve()
	sx, sy := curve.ScalarMult(ct.C1.X, ct.C1.Y, priv.Bytes())

	negY := new(big.Int).Sub(curve.Params().P, sy)
	negY.Mod(negY, curve.Params().P)

	mx, my := curve.Add(ct.C2.X, ct.C2.Y, sx, negY)
	if !curve.IsOnCurve(mx, my) {
		return nil, ErrElGamalDecodeFailed
	}
	return &ecdsa.PublicKey{Curve: curve, X: mx, Y: my}, nil
}

// PointFromX tries to build a valid P-256 point whose affine X-coordinate
// equals x, taking as Y whichever square root of x^3 - 3x + b
// big.Int.ModSqrt returns. Roughly half of all 32-byte values are a valid
// X-coordinate (the other half have no square root mod P); ok reports
// which happened. This is the client-side complement to
// ElGamalDecryptPoint's "X-coordinate is the message" contract (spec §4.4
// step 2): to ElGamal-wrap a fixed 16-byte content-integrity key, the
// caller embeds it into a 32-byte candidate X and retries with a fresh
// candidate until PointFromX reports ok.
func PointFromX(x *big.Int) (pub *ecdsa.PublicKey, ok bool) {
	curve := Curve().Params()
	rhs := new(big.Int).Mul(x, x)
	rhs.Mul(rhs, x)
	threeX := new(big.Int).Lsh(x, 1)
	threeX.Add(threeX, x)
	rhs.Sub(rhs, threeX)
	rhs.Add(rhs, curve.B)
	rhs.Mod(rhs, curve.P)

	y := new(big.Int).ModSqrt(rhs, curve.P)
	if y == nil {
		return nil, false
	}
	if !Curve().IsOnCurve(x, y) {
		return nil, false
	}
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}, true
}

// PointFromX32 builds a fixture message point for encryption/decryption
// round-trip tests by scalar-multiplying the base point with a
// caller-chosen scalar, so the resulting point's X-coordinate is whatever
// the test asserts against after ElGamalDecryptPoint. It has no role
// outside tests and fixture construction — a real content key is recovered
// from a server-issued ciphertext, never constructed this way in
// production flow.
func PointFromX32(scalar []byte) *ecdsa.PublicKey {
	curve := Curve()
	x, y := curve.ScalarBaseMult(scalar)
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
}
