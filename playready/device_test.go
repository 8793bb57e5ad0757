package playready

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tibellium/cdm-go/cryptoutil"
)

const (
	testChainHeaderLen = 16
	testCertHeaderLen  = 16
)

// buildMinimalChain assembles a one-certificate BCert chain with no
// attributes — enough for bcert.Parse to succeed, which is all a PRD
// device constructor requires (chain signature verification is a Session
// concern, not a device-load concern).
func buildMinimalChain(t *testing.T) []byte {
	t.Helper()
	cert := make([]byte, testCertHeaderLen)
	copy(cert[0:4], "CERT")
	binary.BigEndian.PutUint32(cert[4:8], 1)
	binary.BigEndian.PutUint32(cert[8:12], uint32(testCertHeaderLen))
	binary.BigEndian.PutUint32(cert[12:16], uint32(testCertHeaderLen))

	out := make([]byte, testChainHeaderLen+4+len(cert))
	copy(out[0:4], "CHAI")
	binary.BigEndian.PutUint32(out[4:8], 1)
	binary.BigEndian.PutUint32(out[8:12], uint32(len(out)))
	binary.BigEndian.PutUint32(out[16:20], 1)
	copy(out[20:], cert)
	return out
}

func genECCKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(cryptoutil.Curve(), rand.Reader)
	require.NoError(t, err)
	return priv
}

func buildPRDv3(t *testing.T, group, enc, sign *ecdsa.PrivateKey, chain []byte) []byte {
	t.Helper()
	out := []byte(prdMagic)
	out = append(out, 3)
	out = append(out, serializeECCKey(group)...)
	out = append(out, serializeECCKey(enc)...)
	out = append(out, serializeECCKey(sign)...)
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(chain)))
	out = append(out, lenBuf...)
	out = append(out, chain...)
	return out
}

func TestParseDeviceV3RoundTrip(t *testing.T) {
	group, enc, sign := genECCKey(t), genECCKey(t), genECCKey(t)
	chain := buildMinimalChain(t)
	raw := buildPRDv3(t, group, enc, sign, chain)

	dev, err := ParseDevice(raw)
	require.NoError(t, err)
	require.Equal(t, uint8(3), dev.Version)
	require.Equal(t, 0, group.D.Cmp(dev.GroupKey.D))
	require.Equal(t, 0, enc.D.Cmp(dev.EncryptionKey.D))
	require.Equal(t, 0, sign.D.Cmp(dev.SigningKey.D))
	require.Len(t, dev.GroupCertificateChain().Certificates, 1)

	require.Equal(t, raw, dev.Serialize())
}

func TestParseDeviceV2RoundTrip(t *testing.T) {
	enc, sign := genECCKey(t), genECCKey(t)
	chain := buildMinimalChain(t)

	raw := []byte(prdMagic)
	raw = append(raw, 2)
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(chain)))
	raw = append(raw, lenBuf...)
	raw = append(raw, chain...)
	raw = append(raw, serializeECCKey(enc)...)
	raw = append(raw, serializeECCKey(sign)...)

	dev, err := ParseDevice(raw)
	require.NoError(t, err)
	require.Equal(t, uint8(2), dev.Version)
	require.Nil(t, dev.GroupKey)
	require.Equal(t, raw, dev.Serialize())
}

func TestParseDeviceRejectsBadMagic(t *testing.T) {
	_, err := ParseDevice([]byte("XXX\x03"))
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestParseDeviceRejectsUnsupportedVersion(t *testing.T) {
	group, enc, sign := genECCKey(t), genECCKey(t), genECCKey(t)
	chain := buildMinimalChain(t)
	raw := buildPRDv3(t, group, enc, sign, chain)
	raw[3] = 99

	_, err := ParseDevice(raw)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestParseDeviceRejectsTruncatedGroupCert(t *testing.T) {
	group, enc, sign := genECCKey(t), genECCKey(t), genECCKey(t)
	chain := buildMinimalChain(t)
	raw := buildPRDv3(t, group, enc, sign, chain)
	raw = raw[:len(raw)-5]

	_, err := ParseDevice(raw)
	require.Error(t, err)
}

func TestNewECCKeyFromScalarDerivesMatchingPublicPoint(t *testing.T) {
	priv := genECCKey(t)
	scalarBytes := make([]byte, 32)
	priv.D.FillBytes(scalarBytes)

	derived, err := NewECCKeyFromScalar(scalarBytes)
	require.NoError(t, err)
	require.Equal(t, 0, priv.X.Cmp(derived.X))
	require.Equal(t, 0, priv.Y.Cmp(derived.Y))
}

// v3 export/import (spec §8 concrete scenario 4): exporting the three
// scalars and the raw chain and rebuilding via the 32-byte builder
// reproduces an identical serialized device.
func TestDeviceV3ExportImportRoundTrip(t *testing.T) {
	group, enc, sign := genECCKey(t), genECCKey(t), genECCKey(t)
	chain := buildMinimalChain(t)
	raw := buildPRDv3(t, group, enc, sign, chain)

	dev, err := ParseDevice(raw)
	require.NoError(t, err)

	groupScalar := make([]byte, 32)
	dev.GroupKey.D.FillBytes(groupScalar)
	encScalar := make([]byte, 32)
	dev.EncryptionKey.D.FillBytes(encScalar)
	signScalar := make([]byte, 32)
	dev.SigningKey.D.FillBytes(signScalar)

	rebuiltGroup, err := NewECCKeyFromScalar(groupScalar)
	require.NoError(t, err)
	rebuiltEnc, err := NewECCKeyFromScalar(encScalar)
	require.NoError(t, err)
	rebuiltSign, err := NewECCKeyFromScalar(signScalar)
	require.NoError(t, err)

	rebuilt := &Device{
		Version:       3,
		GroupKey:      rebuiltGroup,
		EncryptionKey: rebuiltEnc,
		SigningKey:    rebuiltSign,
	}
	rebuilt.groupCertBytes = dev.GroupCertificateBytes()

	require.Equal(t, dev.Serialize(), rebuilt.Serialize())
}
