package cryptoutil

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/require"
)

func genRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestPSSSignVerifyRoundTrip(t *testing.T) {
	key := genRSAKey(t)
	msg := []byte("license request bytes")

	sig, err := SignPSS(key, msg)
	require.NoError(t, err)
	require.NoError(t, VerifyPSS(&key.PublicKey, msg, sig))
}

func TestPSSVerifyRejectsTamperedCertificate(t *testing.T) {
	key := genRSAKey(t)
	msg := []byte("drm_certificate bytes")
	sig, err := SignPSS(key, msg)
	require.NoError(t, err)

	tampered := append([]byte{}, msg...)
	tampered[0] ^= 0xff
	require.ErrorIs(t, VerifyPSS(&key.PublicKey, tampered, sig), ErrSignatureInvalid)
}

func TestOAEPRoundTrip(t *testing.T) {
	key := genRSAKey(t)
	privacyKey := randBytes(t, KeySize)

	wrapped, err := EncryptOAEP(&key.PublicKey, privacyKey)
	require.NoError(t, err)

	recovered, err := DecryptOAEP(key, wrapped)
	require.NoError(t, err)
	require.Equal(t, privacyKey, recovered)
}

func TestOAEPRejectsWrongKey(t *testing.T) {
	key := genRSAKey(t)
	wrong := genRSAKey(t)

	ct, err := EncryptOAEP(&key.PublicKey, randBytes(t, KeySize))
	require.NoError(t, err)

	_, err = DecryptOAEP(wrong, ct)
	require.Error(t, err)
}
