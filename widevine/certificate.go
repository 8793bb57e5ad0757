package widevine

import (
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"

	"github.com/tibellium/cdm-go/cryptoutil"
	"github.com/tibellium/cdm-go/wvproto"
)

// ErrServiceCertificateSignature is returned when a service certificate's
// signature does not verify against the configured root key.
var ErrServiceCertificateSignature = errors.New("widevine: service certificate signature invalid")

// rootKeyV3 and rootKeyV4 are the hard-coded Widevine root RSA public keys
// (spec §4.3 "Service-certificate installation") that GoogleRootKeyV3 and
// GoogleRootKeyV4 return; ParseServiceCertificate verifies a service
// certificate's signature against whichever root key it is given.
// Exponent is the standard 65537 for both.
//
// The moduli, hex-decoded at init time from rootkeys.go, are synthetic
// placeholders, not Google's production root keys; a caller supplies the
// real root key through WithRootKey (see DESIGN.md).
var (
	rootKeyV3 *rsa.PublicKey
	rootKeyV4 *rsa.PublicKey
)

const rsaPublicExponent = 65537

func init() {
	rootKeyV3 = &rsa.PublicKey{N: mustModulus(googleRootModulusV3Hex), E: rsaPublicExponent}
	rootKeyV4 = &rsa.PublicKey{N: mustModulus(googleRootModulusV4Hex), E: rsaPublicExponent}
}

func mustModulus(hexDigits string) *big.Int {
	n := new(big.Int)
	if _, ok := n.SetString(hexDigits, 16); !ok {
		panic("widevine: malformed embedded root modulus")
	}
	return n
}

// GoogleRootKeyV3 returns the default Widevine root RSA public key.
func GoogleRootKeyV3() *rsa.PublicKey { return rootKeyV3 }

// GoogleRootKeyV4 returns the newer Widevine root RSA public key, selected
// via WithRootKey for devices/servers that have migrated to it.
func GoogleRootKeyV4() *rsa.PublicKey { return rootKeyV4 }

// ServiceCertificate is a verified Widevine service (or provider)
// certificate, installed into a Session to enable privacy-mode client-id
// wrapping (spec §4.3).
type ServiceCertificate struct {
	cert *wvproto.DrmCertificate
}

// PublicKey returns the service certificate's RSA public key, used to
// RSA-OAEP-wrap the privacy-mode key.
func (s *ServiceCertificate) PublicKey() (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKCS1PublicKey(s.cert.PublicKey)
	if err == nil {
		return pub, nil
	}
	key, err := x509.ParsePKIXPublicKey(s.cert.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("widevine: service certificate public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("widevine: service certificate public key is not RSA")
	}
	return rsaKey, nil
}

// ProviderID returns the certificate's provider_id field.
func (s *ServiceCertificate) ProviderID() string { return s.cert.ProviderID }

// SerialNumber returns the certificate's serial_number field.
func (s *ServiceCertificate) SerialNumber() []byte { return s.cert.SerialNumber }

// ParseServiceCertificate verifies and decodes a service certificate (spec
// §4.3 "Service-certificate installation"). It accepts either a
// SignedMessage{type=SERVICE_CERTIFICATE, msg=signed_cert_bytes} or a bare
// SignedDrmCertificate, trying the former first.
func ParseServiceCertificate(b []byte, rootKey *rsa.PublicKey) (*ServiceCertificate, error) {
	signedCertBytes := b
	if sm, err := wvproto.UnmarshalSignedMessage(b); err == nil && sm.Type == wvproto.MessageTypeServiceCertificate && len(sm.Msg) > 0 {
		signedCertBytes = sm.Msg
	}

	signed, err := wvproto.UnmarshalSignedDrmCertificate(signedCertBytes)
	if err != nil {
		return nil, fmt.Errorf("widevine: decode SignedDrmCertificate: %w", err)
	}

	if err := cryptoutil.VerifyPSS(rootKey, signed.DrmCertificate, signed.Signature); err != nil {
		return nil, ErrServiceCertificateSignature
	}

	cert, err := wvproto.UnmarshalDrmCertificate(signed.DrmCertificate)
	if err != nil {
		return nil, fmt.Errorf("widevine: decode DrmCertificate: %w", err)
	}

	return &ServiceCertificate{cert: cert}, nil
}
