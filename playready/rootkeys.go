package playready

import (
	"crypto/ecdsa"
	"encoding/hex"

	"github.com/tibellium/cdm-go/cryptoutil"
)

// No genuine Microsoft PlayReady root issuer key or WMRM server key bytes
// appear anywhere in the retrieved example corpus (original_source/
// included); fabricating a claimed copy of Microsoft's production P-256
// points would be both unverifiable and inappropriate to ship as if
// genuine. These two 64-byte X||Y points are structurally valid (on
// P-256, non-identity) but synthetic, letting bcert.Verify and Session's
// ElGamal wrap round-trip end-to-end against locally generated test
// fixtures. Real deployments must override both via WithRootIssuerKey and
// WithServerKey.
var (
	wmrmServerKey    *ecdsa.PublicKey
	rootIssuerKeyRaw []byte
)

const (
	// Each hex string is X||Y, 32 bytes each, for a point found by
	// SHA-256-seeding a candidate X and walking forward until the curve
	// equation yields a quadratic residue (the same embedding technique
	// cryptoutil.PointFromX implements) — not copied from any source.
	wmrmServerKeyHex = "727219b45fb75b7b5403b7bf3e3fb5a485090365f98f9f6e6f41a145ad1ebf38e8a02720dc3a9c6905014ac4f16d9e8e398ed42bc27452e12480e5d5959bbf00"
	rootIssuerKeyHex = "d58387e021752e4580bc012e55f00c518ef1fdb0e9f2d0baa1f30cc9a62e849556864b0a05d3f2452e80edc70bafda9e5bf01657c4497840c12f649381a80480"
)

func init() {
	wmrmServerKey = mustPoint(wmrmServerKeyHex)
	rootIssuerKeyRaw = mustBytes(rootIssuerKeyHex)
}

func mustBytes(hexDigits string) []byte {
	b, err := hex.DecodeString(hexDigits)
	if err != nil {
		panic("playready: malformed embedded key constant")
	}
	return b
}

func mustPoint(hexDigits string) *ecdsa.PublicKey {
	pub, err := cryptoutil.UnmarshalPublicPoint(mustBytes(hexDigits))
	if err != nil {
		panic("playready: embedded key constant is not a valid P-256 point: " + err.Error())
	}
	return pub
}

// WMRMServerKey returns the default WMRM server public key used to
// ElGamal-wrap the content-integrity key in a license challenge (spec
// §4.4 step 2).
func WMRMServerKey() *ecdsa.PublicKey { return wmrmServerKey }

// RootIssuerKey returns the default Microsoft PlayReady root issuer
// public key, 64-byte X||Y, used as the trust anchor for bcert.Verify
// (spec §4.5 step 3).
func RootIssuerKey() []byte { return rootIssuerKeyRaw }
