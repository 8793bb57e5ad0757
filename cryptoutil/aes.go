package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// BlockSize is the AES block size used throughout both protocols (both are
// AES-128 only).
const BlockSize = aes.BlockSize

// KeySize is the key length both protocols use for every symmetric key
// derived or carried: 16 bytes (AES-128).
const KeySize = 16

// CBCEncrypt encrypts plaintext (which must already be a multiple of the
// block size — callers pad with Pkcs7Pad first) under AES-128-CBC with the
// given 16-byte key and IV.
func CBCEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: aes.NewCipher: %w", err)
	}
	if len(plaintext)%BlockSize != 0 {
		return nil, ErrCiphertextNotBlockAligned
	}
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out, nil
}

// CBCDecrypt decrypts ciphertext under AES-128-CBC. It does not remove
// PKCS#7 padding; call Pkcs7Unpad on the result when the caller expects
// padded plaintext.
func CBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: aes.NewCipher: %w", err)
	}
	if len(ciphertext)%BlockSize != 0 {
		return nil, ErrCiphertextNotBlockAligned
	}
	if len(ciphertext) == 0 {
		return nil, nil
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

// ECBDecrypt decrypts ciphertext under AES-128-ECB (no padding). ECB mode
// is not exposed by crypto/cipher directly; PlayReady's scalable-license
// derivation chain (spec §4.4 step 4, Ecc256ViaSymmetric) requires it, so
// each block is decrypted independently with the raw block cipher.
func ECBDecrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: aes.NewCipher: %w", err)
	}
	if len(ciphertext)%BlockSize != 0 {
		return nil, ErrCiphertextNotBlockAligned
	}
	out := make([]byte, len(ciphertext))
	for off := 0; off < len(ciphertext); off += BlockSize {
		block.Decrypt(out[off:off+BlockSize], ciphertext[off:off+BlockSize])
	}
	return out, nil
}

// ECBEncrypt is the encryption counterpart of ECBDecrypt, provided for
// symmetry and for tests that need to construct scalable-license fixtures.
func ECBEncrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: aes.NewCipher: %w", err)
	}
	if len(plaintext)%BlockSize != 0 {
		return nil, ErrCiphertextNotBlockAligned
	}
	out := make([]byte, len(plaintext))
	for off := 0; off < len(plaintext); off += BlockSize {
		block.Encrypt(out[off:off+BlockSize], plaintext[off:off+BlockSize])
	}
	return out, nil
}

// Pkcs7Pad pads data to a multiple of blockSize per RFC 5652. blockSize
// must be in [1, 255].
func Pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

// Pkcs7Unpad removes and validates PKCS#7 padding. It rejects a pad byte
// of zero, a pad byte greater than blockSize, a pad longer than the input,
// and any trailing byte that does not equal the declared pad length —
// every rejection spec.md §8 requires of the "PKCS#7" universal law.
func Pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrInvalidPadding
	}
	// Check every padding byte, without short-circuiting on the first
	// mismatch, to avoid leaking the position of the first bad byte via
	// timing (spec.md §9 "constant-time concerns").
	mismatch := 0
	for i := len(data) - padLen; i < len(data); i++ {
		mismatch |= int(data[i]) ^ padLen
	}
	if mismatch != 0 {
		return nil, ErrInvalidPadding
	}
	return data[:len(data)-padLen], nil
}
