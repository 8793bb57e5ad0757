package cryptoutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // protocol-mandated: Widevine signs with RSA-PSS-SHA1.
	"fmt"
)

// PSSSaltLength is the salt length both the Widevine license-request
// signature and the service-certificate signature use.
const PSSSaltLength = 20

var pssOptions = &rsa.PSSOptions{
	SaltLength: PSSSaltLength,
	Hash:       crypto.SHA1,
}

// SignPSS signs raw message bytes with RSA-PSS using SHA-1/MGF1-SHA-1 and
// a 20-byte salt, per spec §4.3 step 4. It hashes msg exactly once
// internally; callers must pass the raw message, not a pre-computed
// digest, or the result would be a signature over a double-hashed value
// that no verifier would accept — the "classic defect" spec.md §9 warns
// against.
func SignPSS(priv *rsa.PrivateKey, msg []byte) ([]byte, error) {
	h := sha1.Sum(msg) //nolint:gosec
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA1, h[:], pssOptions)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: rsa PSS sign: %w", err)
	}
	return sig, nil
}

// VerifyPSS verifies an RSA-PSS-SHA1 signature over raw message bytes
// produced by SignPSS, returning ErrSignatureInvalid on mismatch.
func VerifyPSS(pub *rsa.PublicKey, msg, sig []byte) error {
	h := sha1.Sum(msg) //nolint:gosec
	if err := rsa.VerifyPSS(pub, crypto.SHA1, h[:], sig, pssOptions); err != nil {
		return ErrSignatureInvalid
	}
	return nil
}

// EncryptOAEP encrypts plaintext to pub using RSA-OAEP with SHA-1 and an
// empty label, the profile both the Widevine privacy-mode key wrap (spec
// §4.3) and session-key delivery (spec §4.3 step 2 of parse_license_response)
// use.
func EncryptOAEP(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	ct, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, plaintext, nil) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: rsa OAEP encrypt: %w", err)
	}
	return ct, nil
}

// DecryptOAEP is the decryption counterpart of EncryptOAEP.
func DecryptOAEP(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	pt, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, priv, ciphertext, nil) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: rsa OAEP decrypt: %w", err)
	}
	return pt, nil
}
