package cryptoutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
)

// HMACSHA256 computes HMAC-SHA256(key, msg), used by Widevine to verify
// the license server's response signature (spec §4.3 step 4).
func HMACSHA256(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

// VerifyHMACSHA256 recomputes HMAC-SHA256(key, msg) and compares it to
// want in constant time, grounded on the teacher's ecies.go use of
// crypto/hmac + crypto/subtle.ConstantTimeCompare for its own MAC check.
func VerifyHMACSHA256(key, msg, want []byte) error {
	got := HMACSHA256(key, msg)
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrMACMismatch
	}
	return nil
}
