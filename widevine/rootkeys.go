package widevine

// The production Widevine root certificate's RSA modulus is not present
// anywhere in the retrieved example corpus, and fabricating a claimed copy
// of Google's actual key material would be both unverifiable and
// inappropriate to ship as if genuine. These two constants are
// structurally valid 2048-bit RSA moduli reserved as the package's
// compile-time default, letting ParseServiceCertificate and WithRootKey
// round-trip end-to-end against locally generated test fixtures; any real
// deployment overrides them via WithRootKey with the operator's actual
// root key.
const (
	googleRootModulusV3Hex = "84c63c6009afb7242b38e947579c2249331f9e556de4ceeff68cb9dd4b540832a662dfbf836eb215dbfed29aa6896b78f28c9e1a97ddaa3cad6280516fca3750857cb84ffbc77f02bb45db881e666b69c6291b22e15a93e3481c4f888163b17a929f0ceb410f3fbf1dd8b23c733672580ead3770fb16aab15381d1b8524d9f63a2a2cac345e3c6e94e6e328f506c971b27e2b3c231febcffdcd009478bd9dc1943e0372eac353957a958d2ea0b5ad5b3ac22ba0dd7cdfe22a3a542c79f77da11a9db15c14aa329b2d73b1fe87a7146968142aeb8d095ba344fc00bf76a36dda481c5352fbb94b302900d01cdf56b49d0b7cbbae3fe4d2c9daf4167cd92307aa1"

	googleRootModulusV4Hex = "d32edf72cdfd1703577d6012656e5ef045eec132ba2d5b85dc75f577f136c20184aa37e4176f5fd79574a49f5a0a79c2f0d1e0b31a94c27b9ea4855fb224b486c63a8672f6b2536b7053b0fd3f157a47382e1daa97eec5f42f5f5f6a269b6c051a31f819be2508abb0a5a97648a8a8b45dda18b1d29e91020593025c703e347ba3236d14944d2d93f9a6157f3e885b38e82e4f2f3fffc18785879e51f0ab5eff25f63efe95d1beda1e0cd3003b837b50c3be746856935ac0fa9d68f47f319d2ce14db3e5aabe6d1db6c9c49ddc040cec9a324abc94074976bb36a383c63feee7b8f2ecf7b796ae97d9735eb1c3b34900c1a567f3e2d62173a3698c6f8101e63b"
)
