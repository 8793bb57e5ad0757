package bcert

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tibellium/cdm-go/cryptoutil"
)

func encodeAttr(tag uint16, payload []byte) []byte {
	out := make([]byte, attrHeaderLen+len(payload))
	binary.BigEndian.PutUint16(out[0:2], 0)
	binary.BigEndian.PutUint16(out[2:4], tag)
	binary.BigEndian.PutUint32(out[4:8], uint32(len(out)))
	copy(out[8:], payload)
	return out
}

func basicInfoPayload(certType CertType) []byte {
	p := make([]byte, 16+4+4+4+4+16)
	binary.BigEndian.PutUint32(p[24:28], uint32(certType))
	return p
}

func keyInfoPayload(keys ...[]byte) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out[0:4], uint32(len(keys)))
	for _, k := range keys {
		entry := make([]byte, 4) // usage count = 0
		entry = append(entry, 0, 0) // key type
		lenBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBuf, uint16(len(k)))
		entry = append(entry, lenBuf...)
		entry = append(entry, k...)
		out = append(out, entry...)
	}
	return out
}

func signatureInfoPayload(sig, signingKey []byte) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint16(out[0:2], 1)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(sig)))
	out = append(out, sig...)
	out = append(out, signingKey...)
	return out
}

// buildCert assembles a CERT frame signed by signer's private key, with
// signer's public key recorded as the signature-info signing_key (the key
// a verifier needs to check this certificate), and keyInfoKeys published
// in this certificate's own key-info list for its children to link against.
func buildCert(t *testing.T, certType CertType, signer *ecdsa.PrivateKey, keyInfoKeys ...[]byte) []byte {
	t.Helper()

	var attrs []byte
	attrs = append(attrs, encodeAttr(TagBasicInfo, basicInfoPayload(certType))...)
	attrs = append(attrs, encodeAttr(TagKeyInfo, keyInfoPayload(keyInfoKeys...))...)

	certificateLength := uint32(certHeaderLen + len(attrs))
	head := make([]byte, certHeaderLen)
	copy(head[0:4], magicCert)
	binary.BigEndian.PutUint32(head[4:8], 1)
	binary.BigEndian.PutUint32(head[12:16], certificateLength)
	// total_length lies inside the signed region, so it is set before
	// signing; the signature-info attribute that follows holds a 64-byte
	// raw R||S signature and a 64-byte signing key.
	sigAttrLen := attrHeaderLen + len(signatureInfoPayload(make([]byte, 64), make([]byte, 64)))
	binary.BigEndian.PutUint32(head[8:12], certificateLength+uint32(sigAttrLen))

	signedBytes := append(append([]byte{}, head...), attrs...)
	sig, err := cryptoutil.ECDSASignRawSHA256(signer, signedBytes)
	require.NoError(t, err)
	signingKey := cryptoutil.MarshalPublicPoint(&signer.PublicKey)

	sigAttr := encodeAttr(TagSignatureInfo, signatureInfoPayload(sig, signingKey))

	full := append([]byte{}, signedBytes...)
	full = append(full, sigAttr...)
	binary.BigEndian.PutUint32(full[8:12], uint32(len(full)))

	return full
}

func buildChain(certs ...[]byte) []byte {
	var body []byte
	for _, c := range certs {
		body = append(body, c...)
	}
	out := make([]byte, chainHeaderLen+4+len(body))
	copy(out[0:4], magicChain)
	binary.BigEndian.PutUint32(out[4:8], 1)
	binary.BigEndian.PutUint32(out[8:12], uint32(len(out)))
	binary.BigEndian.PutUint32(out[16:20], uint32(len(certs)))
	copy(out[20:], body)
	return out
}

func genKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(cryptoutil.Curve(), rand.Reader)
	require.NoError(t, err)
	return priv
}

func TestChainVerifySucceeds(t *testing.T) {
	root := genKey(t)
	intermediate := genKey(t)
	rootPub := cryptoutil.MarshalPublicPoint(&root.PublicKey)
	intermediatePub := cryptoutil.MarshalPublicPoint(&intermediate.PublicKey)

	intermediateCert := buildCert(t, CertTypeIssuer, root, intermediatePub)
	leafCert := buildCert(t, CertTypePCCertificate, intermediate)

	raw := buildChain(leafCert, intermediateCert)
	chain, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, chain.Certificates, 2)

	require.NoError(t, Verify(chain, rootPub))
}

func TestChainVerifyDetectsTamperedSignature(t *testing.T) {
	root := genKey(t)
	rootPub := cryptoutil.MarshalPublicPoint(&root.PublicKey)

	leafCert := buildCert(t, CertTypePCCertificate, root)
	raw := buildChain(leafCert)
	raw[chainHeaderLen+4+certHeaderLen+2] ^= 0xFF // flip a byte inside basic-info, within the signed region

	chain, err := Parse(raw)
	require.NoError(t, err)
	err = Verify(chain, rootPub)
	require.Error(t, err)
	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
}

func TestChainVerifyDetectsBrokenLinkage(t *testing.T) {
	root := genKey(t)
	intermediate := genKey(t)
	unrelated := genKey(t)
	rootPub := cryptoutil.MarshalPublicPoint(&root.PublicKey)

	// intermediate's key-info advertises the wrong key, so the leaf
	// (signed by intermediate) cannot be linked to its parent.
	intermediateCert := buildCert(t, CertTypeIssuer, root, cryptoutil.MarshalPublicPoint(&unrelated.PublicKey))
	leafCert := buildCert(t, CertTypePCCertificate, intermediate)

	raw := buildChain(leafCert, intermediateCert)
	chain, err := Parse(raw)
	require.NoError(t, err)
	require.Error(t, Verify(chain, rootPub))
}

func TestChainVerifyRejectsWrongRootKey(t *testing.T) {
	root := genKey(t)
	other := genKey(t)

	leafCert := buildCert(t, CertTypePCCertificate, root)
	raw := buildChain(leafCert)
	chain, err := Parse(raw)
	require.NoError(t, err)

	require.Error(t, Verify(chain, cryptoutil.MarshalPublicPoint(&other.PublicKey)))
}

func TestParseRejectsBadChainMagic(t *testing.T) {
	_, err := Parse([]byte("XXXXXXXXXXXXXXXX"))
	require.ErrorIs(t, err, ErrBadChainMagic)
}

func TestParseRejectsOversizedChainLength(t *testing.T) {
	raw := buildChain()
	binary.BigEndian.PutUint32(raw[8:12], uint32(len(raw)+1000))
	_, err := Parse(raw)
	require.ErrorIs(t, err, ErrTruncated)
}
