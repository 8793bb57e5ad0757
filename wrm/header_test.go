package wrm

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

func toUTF16LE(t *testing.T, s string) []byte {
	t.Helper()
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	b, err := enc.Bytes([]byte(s))
	require.NoError(t, err)
	return b
}

// leGUID builds a little-endian-ordered GUID (Microsoft mixed-endian
// layout) from a canonical big-endian 16-byte key id, the inverse of
// decodeGUIDLE, so tests can assert the round trip.
func leGUID(kid KeyID) string {
	raw := make([]byte, 16)
	raw[0], raw[1], raw[2], raw[3] = kid[3], kid[2], kid[1], kid[0]
	raw[4], raw[5] = kid[5], kid[4]
	raw[6], raw[7] = kid[7], kid[6]
	copy(raw[8:16], kid[8:16])
	return base64.StdEncoding.EncodeToString(raw)
}

func TestParseWRMHeaderV40(t *testing.T) {
	kid := KeyID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	xmlDoc := `<WRMHEADER version="4.0.0.0"><DATA><KID>` + leGUID(kid) +
		`</KID><LA_URL>https://license.example/acquire</LA_URL></DATA></WRMHEADER>`

	h, err := Parse(toUTF16LE(t, xmlDoc))
	require.NoError(t, err)
	require.Equal(t, "4.0.0.0", h.Version)
	require.Equal(t, []KeyID{kid}, h.KeyIDs)
	require.Equal(t, "https://license.example/acquire", h.LAURL)
}

func TestParseWRMHeaderV42MultiKID(t *testing.T) {
	kid1 := KeyID{0x11, 0x11, 0x11, 0x11, 0x22, 0x22, 0x33, 0x33, 0x44, 0x44, 0x44, 0x44, 0x44, 0x44, 0x44, 0x44}
	kid2 := KeyID{0x55, 0x55, 0x55, 0x55, 0x66, 0x66, 0x77, 0x77, 0x88, 0x88, 0x88, 0x88, 0x88, 0x88, 0x88, 0x88}
	xmlDoc := `<WRMHEADER version="4.2.0.0"><DATA><PROTECTINFO><KIDS>` +
		`<KID ALGID="AESCTR" CHECKSUM="abcd">` + leGUID(kid1) + `</KID>` +
		`<KID ALGID="AESCTR" CHECKSUM="efgh">` + leGUID(kid2) + `</KID>` +
		`</KIDS></PROTECTINFO><LA_URL>https://license.example</LA_URL></DATA></WRMHEADER>`

	h, err := Parse(toUTF16LE(t, xmlDoc))
	require.NoError(t, err)
	require.Equal(t, "4.2.0.0", h.Version)
	require.Equal(t, []KeyID{kid1, kid2}, h.KeyIDs)
	require.Equal(t, "AESCTR", h.ContentKeyAlgorithm)
	require.Equal(t, "abcd", h.Checksum)
}

func TestParseWRMHeaderNoKID(t *testing.T) {
	xmlDoc := `<WRMHEADER version="4.0.0.0"><DATA><LA_URL>https://x</LA_URL></DATA></WRMHEADER>`
	_, err := Parse(toUTF16LE(t, xmlDoc))
	require.ErrorIs(t, err, ErrInvalidXML)
}

func buildPRH(t *testing.T, records map[uint16][]byte) []byte {
	t.Helper()
	var body []byte
	count := uint16(0)
	for typ, data := range records {
		hdr := make([]byte, 4)
		binary.LittleEndian.PutUint16(hdr[0:2], typ)
		binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(data)))
		body = append(body, hdr...)
		body = append(body, data...)
		count++
	}
	out := make([]byte, 6+len(body))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(out)))
	binary.LittleEndian.PutUint16(out[4:6], count)
	copy(out[6:], body)
	return out
}

func TestExtractFromPSSHData(t *testing.T) {
	kid := KeyID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	xmlDoc := `<WRMHEADER version="4.0.0.0"><DATA><KID>` + leGUID(kid) + `</KID></DATA></WRMHEADER>`
	wrmBytes := toUTF16LE(t, xmlDoc)

	prh := buildPRH(t, map[uint16][]byte{1: wrmBytes})
	h, err := ExtractFromPSSHData(prh)
	require.NoError(t, err)
	require.Equal(t, []KeyID{kid}, h.KeyIDs)
}

func TestExtractFromPSSHDataNoWRMRecord(t *testing.T) {
	prh := buildPRH(t, map[uint16][]byte{2: []byte("not a wrm header")})
	_, err := ExtractFromPSSHData(prh)
	require.ErrorIs(t, err, ErrNoWRMRecord)
}

func TestExtractFromPSSHDataTruncated(t *testing.T) {
	_, err := ExtractFromPSSHData([]byte{0x01, 0x02})
	require.ErrorIs(t, err, ErrTruncatedObject)
}
