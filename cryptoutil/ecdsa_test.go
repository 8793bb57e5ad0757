package cryptoutil

import (
	"crypto/ecdsa"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func genECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(Curve(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestECDSARawSignVerifyRoundTrip(t *testing.T) {
	key := genECKey(t)
	msg := []byte("<LA>...challenge...</LA>")

	sig, err := ECDSASignRawSHA256(key, msg)
	require.NoError(t, err)
	require.Len(t, sig, 64)
	require.NoError(t, ECDSAVerifyRawSHA256(&key.PublicKey, msg, sig))
}

func TestECDSAVerifyRejectsBitFlip(t *testing.T) {
	key := genECKey(t)
	msg := []byte("certificate bytes")
	sig, err := ECDSASignRawSHA256(key, msg)
	require.NoError(t, err)

	sig[0] ^= 0xff
	require.ErrorIs(t, ECDSAVerifyRawSHA256(&key.PublicKey, msg, sig), ErrSignatureInvalid)
}

func TestPublicPointRoundTrip(t *testing.T) {
	key := genECKey(t)
	marshaled := MarshalPublicPoint(&key.PublicKey)
	require.Len(t, marshaled, 64)

	recovered, err := UnmarshalPublicPoint(marshaled)
	require.NoError(t, err)
	require.Equal(t, key.PublicKey.X, recovered.X)
	require.Equal(t, key.PublicKey.Y, recovered.Y)
}

func TestUnmarshalPublicPointRejectsOffCurve(t *testing.T) {
	bad := make([]byte, 64)
	bad[63] = 1
	_, err := UnmarshalPublicPoint(bad)
	require.ErrorIs(t, err, ErrPointNotOnCurve)
}

func TestScalarFromBytesRange(t *testing.T) {
	_, err := ScalarFromBytes(make([]byte, 32)) // zero scalar
	require.ErrorIs(t, err, ErrScalarOutOfRange)

	n := Curve().Params().N.Bytes()
	_, err = ScalarFromBytes(n) // == N, out of range
	require.ErrorIs(t, err, ErrScalarOutOfRange)

	key := genECKey(t)
	scalarBytes := make([]byte, 32)
	key.D.FillBytes(scalarBytes)
	d, err := ScalarFromBytes(scalarBytes)
	require.NoError(t, err)
	require.Equal(t, 0, d.Cmp(key.D))
}

func TestDerivePublicKeyMatchesGenerate(t *testing.T) {
	key := genECKey(t)
	derived := DerivePublicKey(key.D)
	require.Equal(t, key.PublicKey.X, derived.X)
	require.Equal(t, key.PublicKey.Y, derived.Y)
}
