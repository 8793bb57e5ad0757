// Package cryptoutil implements the cryptographic primitives shared by the
// Widevine and PlayReady license-exchange protocols: AES-128 in CBC/ECB
// mode with PKCS#7 padding, AES-128-CMAC, HMAC-SHA256, RSA-PSS/OAEP with
// the SHA-1 profile both protocols mandate, ECDSA-SHA256 over P-256 with
// raw R||S signatures, and EC ElGamal over P-256.
//
// Every protocol-mandated parameter (hash algorithm, salt length, curve) is
// fixed by the functions in this package rather than left configurable;
// callers cannot accidentally negotiate a weaker profile.
package cryptoutil

import "errors"

var (
	// ErrCiphertextNotBlockAligned is returned by CBC/ECB decrypt when the
	// input length is not a multiple of the AES block size.
	ErrCiphertextNotBlockAligned = errors.New("cryptoutil: ciphertext is not a multiple of the block size")

	// ErrInvalidPadding is returned by PKCS#7 unpad on any malformed
	// padding: a zero pad byte, a pad byte greater than the block size, or
	// inconsistent trailing pad bytes.
	ErrInvalidPadding = errors.New("cryptoutil: invalid PKCS#7 padding")

	// ErrInvalidKeySize reports a key that is not the size a function
	// requires. No function in this package returns it; the AES helpers
	// wrap the key-size error from crypto/aes instead.
	ErrInvalidKeySize = errors.New("cryptoutil: invalid key size")

	// ErrMACMismatch is returned by HMAC/CMAC verification helpers on a
	// constant-time comparison failure.
	ErrMACMismatch = errors.New("cryptoutil: MAC verification failed")

	// ErrSignatureInvalid is returned by ECDSA/RSA-PSS verification on a
	// failed signature check.
	ErrSignatureInvalid = errors.New("cryptoutil: signature verification failed")

	// ErrPointNotOnCurve is returned when a supplied public point (ECDSA
	// public key or ElGamal ciphertext component) does not lie on P-256.
	ErrPointNotOnCurve = errors.New("cryptoutil: point is not on the curve")

	// ErrScalarOutOfRange is returned when a private scalar is not in
	// [1, n-1] for the curve in use.
	ErrScalarOutOfRange = errors.New("cryptoutil: scalar out of range")

	// ErrElGamalDecodeFailed is returned when an ElGamal-decrypted point
	// cannot be recovered (e.g. malformed ciphertext components).
	ErrElGamalDecodeFailed = errors.New("cryptoutil: elgamal decryption failed")
)
