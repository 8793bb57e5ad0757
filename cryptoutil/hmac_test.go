package cryptoutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHMACSHA256RoundTrip(t *testing.T) {
	key := randBytes(t, 32)
	msg := randBytes(t, 256)
	mac := HMACSHA256(key, msg)
	require.NoError(t, VerifyHMACSHA256(key, msg, mac))

	mac[0] ^= 1
	require.ErrorIs(t, VerifyHMACSHA256(key, msg, mac), ErrMACMismatch)
}
