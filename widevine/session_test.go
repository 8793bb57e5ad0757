package widevine

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tibellium/cdm-go/cryptoutil"
	"github.com/tibellium/cdm-go/pssh"
	"github.com/tibellium/cdm-go/wvproto"
)

func buildWVD(t *testing.T, priv *rsa.PrivateKey, clientID *wvproto.ClientIdentification) []byte {
	t.Helper()
	privDER := x509.MarshalPKCS1PrivateKey(priv)
	clientIDBytes := clientID.Marshal()

	out := []byte(wvdMagic)
	out = append(out, currentWVDVersion, byte(DeviceTypeAndroid), byte(SecurityLevelL3), 0)

	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(privDER)))
	out = append(out, lenBuf...)
	out = append(out, privDER...)

	binary.BigEndian.PutUint16(lenBuf, uint16(len(clientIDBytes)))
	out = append(out, lenBuf...)
	out = append(out, clientIDBytes...)
	return out
}

func testDevice(t *testing.T) (*Device, *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	clientID := &wvproto.ClientIdentification{
		Type:  wvproto.ClientIDTypeKeybox,
		Token: []byte("test-token"),
	}
	dev, err := ParseDevice(buildWVD(t, priv, clientID))
	require.NoError(t, err)
	return dev, priv
}

func testPSSHBox(t *testing.T) *pssh.Box {
	t.Helper()
	kid := make([]byte, 16)
	kid[0] = 0xAB
	psshData := &wvproto.WidevinePsshData{KeyIDs: [][]byte{kid}, Provider: "test-provider"}
	raw := psshData.Marshal()

	total := 28 + 4 + len(raw)
	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	copy(buf[4:8], "pssh")
	copy(buf[12:28], pssh.SystemIDWidevine[:])
	binary.BigEndian.PutUint32(buf[28:32], uint32(len(raw)))
	copy(buf[32:], raw)

	box, err := pssh.Parse(buf)
	require.NoError(t, err)
	return box
}

// fakeServerRespond generates a fresh session key and signs a LICENSE
// response for the given LicenseRequest bytes under it, modeling the Widevine license server side of
// the exchange so the session can be exercised end to end without a live
// server.
func fakeServerRespond(t *testing.T, requestBytes []byte, kid [16]byte, contentKey []byte) ([]byte, []byte) {
	t.Helper()
	sessionKey := make([]byte, 16)
	_, err := rand.Read(sessionKey)
	require.NoError(t, err)

	encContext := buildContext("ENCRYPTION", requestBytes, 0x00, 0x00, 0x00, 0x80)
	macContext := buildContext("AUTHENTICATION", requestBytes, 0x00, 0x00, 0x02, 0x00)
	encKey, macKeyServer, _, err := deriveSessionKeys(sessionKey, encContext, macContext)
	require.NoError(t, err)

	iv := make([]byte, 16)
	_, err = rand.Read(iv)
	require.NoError(t, err)
	padded := cryptoutil.Pkcs7Pad(contentKey, 16)
	wrappedKey, err := cryptoutil.CBCEncrypt(encKey, iv, padded)
	require.NoError(t, err)

	license := &wvproto.License{
		RequestID: []byte("response-request-id"),
		Keys: []wvproto.KeyContainer{
			{ID: kid[:], IV: iv, Key: wrappedKey, Type: wvproto.KeyTypeContent},
		},
	}
	licenseBytes := license.Marshal()

	hmacSig := cryptoutil.HMACSHA256(macKeyServer, licenseBytes)

	return sessionKey, (&wvproto.SignedMessage{
		Type:       wvproto.MessageTypeLicense,
		Msg:        licenseBytes,
		Signature:  hmacSig,
		SessionKey: nil, // filled by caller once OAEP-wrapped against the device key
	}).Marshal()
}

func wrapSessionKeyAndRebuild(t *testing.T, devicePub *rsa.PublicKey, sessionKey []byte, sm *wvproto.SignedMessage) []byte {
	t.Helper()
	wrapped, err := cryptoutil.EncryptOAEP(devicePub, sessionKey)
	require.NoError(t, err)
	sm.SessionKey = wrapped
	return sm.Marshal()
}

func TestBuildLicenseChallengePlaintext(t *testing.T) {
	device, _ := testDevice(t)
	session := NewSession(device)
	box := testPSSHBox(t)

	challenge, err := session.BuildLicenseChallenge(box, wvproto.LicenseTypeStreaming)
	require.NoError(t, err)
	require.Equal(t, StateAwaitingResponse, session.State())

	sm, err := wvproto.UnmarshalSignedMessage(challenge)
	require.NoError(t, err)
	require.Equal(t, wvproto.MessageTypeLicenseRequest, sm.Type)

	lr, err := wvproto.UnmarshalLicenseRequest(sm.Msg)
	require.NoError(t, err)
	require.NotNil(t, lr.ClientID)
	require.Nil(t, lr.EncryptedClientID)
	require.Equal(t, []byte("test-token"), lr.ClientID.Token)

	err = cryptoutil.VerifyPSS(&device.PrivateKey().PublicKey, sm.Msg, sm.Signature)
	require.NoError(t, err)
}

func TestBuildLicenseChallengeRejectsWrongState(t *testing.T) {
	device, _ := testDevice(t)
	session := NewSession(device)
	box := testPSSHBox(t)

	_, err := session.BuildLicenseChallenge(box, wvproto.LicenseTypeStreaming)
	require.NoError(t, err)

	_, err = session.BuildLicenseChallenge(box, wvproto.LicenseTypeStreaming)
	require.ErrorIs(t, err, ErrWrongState)
}

func TestBuildLicenseChallengePrivacyMode(t *testing.T) {
	device, _ := testDevice(t)

	servicePriv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rootPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	cert := &wvproto.DrmCertificate{
		Type:       wvproto.CertTypeService,
		ProviderID: "acme",
		PublicKey:  x509.MarshalPKCS1PublicKey(&servicePriv.PublicKey),
	}
	certBytes := cert.Marshal()
	sig, err := cryptoutil.SignPSS(rootPriv, certBytes)
	require.NoError(t, err)
	signed := &wvproto.SignedDrmCertificate{DrmCertificate: certBytes, Signature: sig}

	svcCert, err := ParseServiceCertificate(signed.Marshal(), &rootPriv.PublicKey)
	require.NoError(t, err)

	session := NewSession(device, WithServiceCertificate(svcCert))
	box := testPSSHBox(t)

	challenge, err := session.BuildLicenseChallenge(box, wvproto.LicenseTypeStreaming)
	require.NoError(t, err)

	sm, err := wvproto.UnmarshalSignedMessage(challenge)
	require.NoError(t, err)
	lr, err := wvproto.UnmarshalLicenseRequest(sm.Msg)
	require.NoError(t, err)
	require.Nil(t, lr.ClientID)
	require.NotNil(t, lr.EncryptedClientID)
	require.Equal(t, "acme", lr.EncryptedClientID.ProviderID)

	privacyKey, err := cryptoutil.DecryptOAEP(servicePriv, lr.EncryptedClientID.EncryptedPrivacyKey)
	require.NoError(t, err)
	padded, err := cryptoutil.CBCDecrypt(privacyKey, lr.EncryptedClientID.EncryptedClientIDIV, lr.EncryptedClientID.EncryptedClientID)
	require.NoError(t, err)
	clientIDBytes, err := cryptoutil.Pkcs7Unpad(padded, 16)
	require.NoError(t, err)
	require.Equal(t, device.ClientIdentificationBytes(), clientIDBytes)
}

func TestParseLicenseResponseRoundTrip(t *testing.T) {
	device, _ := testDevice(t)
	session := NewSession(device)
	box := testPSSHBox(t)

	challenge, err := session.BuildLicenseChallenge(box, wvproto.LicenseTypeStreaming)
	require.NoError(t, err)
	sm, err := wvproto.UnmarshalSignedMessage(challenge)
	require.NoError(t, err)

	var kid [16]byte
	kid[0] = 0xCD
	wantKey := []byte("0123456789abcdef")

	sessionKey, respBytes := fakeServerRespond(t, sm.Msg, kid, wantKey)
	respSM, err := wvproto.UnmarshalSignedMessage(respBytes)
	require.NoError(t, err)
	finalResp := wrapSessionKeyAndRebuild(t, &device.PrivateKey().PublicKey, sessionKey, respSM)

	keys, err := session.ParseLicenseResponse(finalResp)
	require.NoError(t, err)
	require.Equal(t, StateComplete, session.State())
	require.Len(t, keys, 1)
	require.Equal(t, kid, keys[0].KeyID)
	require.Equal(t, wantKey, keys[0].Key)
}

func TestParseLicenseResponseRejectsWrongState(t *testing.T) {
	device, _ := testDevice(t)
	session := NewSession(device)
	_, err := session.ParseLicenseResponse([]byte{})
	require.ErrorIs(t, err, ErrWrongState)
}

func TestParseLicenseResponseRejectsWrongMessageType(t *testing.T) {
	device, _ := testDevice(t)
	session := NewSession(device)
	box := testPSSHBox(t)
	_, err := session.BuildLicenseChallenge(box, wvproto.LicenseTypeStreaming)
	require.NoError(t, err)

	sm := &wvproto.SignedMessage{Type: wvproto.MessageTypeErrorResponse}
	_, err = session.ParseLicenseResponse(sm.Marshal())
	require.ErrorIs(t, err, ErrUnexpectedMessageType)
}

func TestParseLicenseResponseRejectsTamperedSignature(t *testing.T) {
	device, _ := testDevice(t)
	session := NewSession(device)
	box := testPSSHBox(t)
	challenge, err := session.BuildLicenseChallenge(box, wvproto.LicenseTypeStreaming)
	require.NoError(t, err)
	sm, err := wvproto.UnmarshalSignedMessage(challenge)
	require.NoError(t, err)

	var kid [16]byte
	sessionKey, respBytes := fakeServerRespond(t, sm.Msg, kid, []byte("0123456789abcdef"))
	respSM, err := wvproto.UnmarshalSignedMessage(respBytes)
	require.NoError(t, err)
	respSM.Signature[0] ^= 0xFF
	finalResp := wrapSessionKeyAndRebuild(t, &device.PrivateKey().PublicKey, sessionKey, respSM)

	_, err = session.ParseLicenseResponse(finalResp)
	require.ErrorIs(t, err, ErrLicenseSignature)
}

func TestParseLicenseResponseRejectsBadSessionKeyLength(t *testing.T) {
	device, _ := testDevice(t)
	session := NewSession(device)
	box := testPSSHBox(t)
	_, err := session.BuildLicenseChallenge(box, wvproto.LicenseTypeStreaming)
	require.NoError(t, err)

	badKey, err := cryptoutil.EncryptOAEP(&device.PrivateKey().PublicKey, []byte("short"))
	require.NoError(t, err)
	sm := &wvproto.SignedMessage{Type: wvproto.MessageTypeLicense, SessionKey: badKey}
	_, err = session.ParseLicenseResponse(sm.Marshal())
	require.ErrorIs(t, err, ErrBadSessionKeyLength)
}

func TestParseLicenseResponseRejectsNoContentKeys(t *testing.T) {
	device, _ := testDevice(t)
	session := NewSession(device)
	box := testPSSHBox(t)
	challenge, err := session.BuildLicenseChallenge(box, wvproto.LicenseTypeStreaming)
	require.NoError(t, err)
	sm, err := wvproto.UnmarshalSignedMessage(challenge)
	require.NoError(t, err)

	sessionKey := make([]byte, 16)
	_, err = rand.Read(sessionKey)
	require.NoError(t, err)
	encContext := buildContext("ENCRYPTION", sm.Msg, 0x00, 0x00, 0x00, 0x80)
	macContext := buildContext("AUTHENTICATION", sm.Msg, 0x00, 0x00, 0x02, 0x00)
	encKey, macKeyServer, _, err := deriveSessionKeys(sessionKey, encContext, macContext)
	require.NoError(t, err)

	iv := make([]byte, 16)
	_, err = rand.Read(iv)
	require.NoError(t, err)
	wrappedKey, err := cryptoutil.CBCEncrypt(encKey, iv, cryptoutil.Pkcs7Pad([]byte("signingkey123456"), 16))
	require.NoError(t, err)

	license := &wvproto.License{Keys: []wvproto.KeyContainer{{ID: make([]byte, 16), IV: iv, Key: wrappedKey, Type: wvproto.KeyTypeSigning}}}
	licenseBytes := license.Marshal()
	respSM := &wvproto.SignedMessage{
		Type:      wvproto.MessageTypeLicense,
		Msg:       licenseBytes,
		Signature: cryptoutil.HMACSHA256(macKeyServer, licenseBytes),
	}
	finalResp := wrapSessionKeyAndRebuild(t, &device.PrivateKey().PublicKey, sessionKey, respSM)

	_, err = session.ParseLicenseResponse(finalResp)
	require.ErrorIs(t, err, ErrNoContentKeys)
}
