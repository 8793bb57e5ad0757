// Package wrm implements the PlayReady Header (PRH) container and the
// WRM-Header XML document it carries (spec §4.1, §4.6). A PRH is the
// little-endian-framed record list found inside a version-0 PlayReady PSSH
// box's data field; a WRM-Header is UTF-16LE XML describing the content
// key's algorithm, key id(s), and license-acquisition URLs. Versions 4.0
// through 4.3 are supported, matching the range the original implementation
// (see original_source/drm/playready-format) documents.
package wrm

import (
	"bytes"
	"encoding/binary"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

var (
	// ErrTruncatedObject is returned when a PlayReady Header's declared
	// length or a record's declared length runs past the end of the
	// buffer.
	ErrTruncatedObject = errors.New("wrm: truncated PlayReady header object")

	// ErrNoWRMRecord is returned when a PlayReady Header contains no
	// type-1 (WRM-Header) record.
	ErrNoWRMRecord = errors.New("wrm: no WRM-Header record found")

	// ErrInvalidXML is returned when the decoded record is not
	// well-formed WRMHEADER XML.
	ErrInvalidXML = errors.New("wrm: invalid WRMHEADER XML")

	// ErrInvalidKID is returned when a <KID> element does not base64
	// decode to exactly 16 bytes.
	ErrInvalidKID = errors.New("wrm: KID is not a 16-byte GUID")
)

const recordTypeWRMHeader = 1

// KeyID is a content key identifier in canonical (big-endian) byte order,
// matching pssh.KeyID.
type KeyID [16]byte

// Header is a parsed WRM-Header document (spec §4.6, WRM-Header).
type Header struct {
	Version             string
	KeyIDs              []KeyID
	ContentKeyAlgorithm string
	Checksum            string
	LAURL               string
	LUIURL              string
	DSID                string
	DecryptorSetup      string
}

// ExtractFromPSSHData locates the type-1 WRM-Header record inside a
// version-0 PlayReady PSSH box's data field (a PlayReady Header object: a
// little-endian length-prefixed record list) and parses it.
func ExtractFromPSSHData(data []byte) (*Header, error) {
	raw, err := extractWRMRecord(data)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// ExtractRawFromPSSHData locates the same type-1 record as
// ExtractFromPSSHData but returns its raw UTF-16LE XML bytes unparsed, for
// callers (the PlayReady challenge builder) that must echo the original
// WRM-Header verbatim rather than a reconstruction of it.
func ExtractRawFromPSSHData(data []byte) ([]byte, error) {
	return extractWRMRecord(data)
}

// extractWRMRecord walks the PlayReady Header object framing:
//
//	length       uint32 LE (total object size, including this field)
//	record_count uint16 LE
//	records[]    { type uint16 LE; length uint16 LE; data []byte }
//
// and returns the raw UTF-16LE bytes of the first type-1 record.
func extractWRMRecord(b []byte) ([]byte, error) {
	if len(b) < 6 {
		return nil, ErrTruncatedObject
	}
	totalLen := binary.LittleEndian.Uint32(b[0:4])
	if int64(totalLen) > int64(len(b)) {
		return nil, ErrTruncatedObject
	}
	recordCount := binary.LittleEndian.Uint16(b[4:6])

	off := 6
	for i := uint16(0); i < recordCount; i++ {
		if off+4 > len(b) {
			return nil, ErrTruncatedObject
		}
		recType := binary.LittleEndian.Uint16(b[off : off+2])
		recLen := binary.LittleEndian.Uint16(b[off+2 : off+4])
		off += 4
		if off+int(recLen) > len(b) {
			return nil, ErrTruncatedObject
		}
		recData := b[off : off+int(recLen)]
		off += int(recLen)
		if recType == recordTypeWRMHeader {
			return recData, nil
		}
	}
	return nil, ErrNoWRMRecord
}

// wrmXML mirrors the union of fields used across WRM-Header versions 4.0
// through 4.3. Not every field is populated by every version: 4.0 carries a
// single <KID> directly under <DATA>; 4.1+ nest one or more <KID> elements
// under <PROTECTINFO><KIDS>.
type wrmXML struct {
	XMLName xml.Name `xml:"WRMHEADER"`
	Version string   `xml:"version,attr"`
	Data    struct {
		KID                 string `xml:"KID"`
		LAURL               string `xml:"LA_URL"`
		LUIURL              string `xml:"LUI_URL"`
		DSID                string `xml:"DS_ID"`
		ContentKeyAlgorithm string `xml:"CONTENTKEYALGID"` // WRM 4.0 spelling.
		Checksum            string `xml:"CHECKSUM"`
		ProtectInfo         struct {
			KeyLen int    `xml:"KEYLEN"`
			AlgID  string `xml:"ALGID"`
			KIDs   struct {
				KID []struct {
					Value    string `xml:",chardata"`
					AlgID    string `xml:"ALGID,attr"`
					Checksum string `xml:"CHECKSUM,attr"`
				} `xml:"KID"`
			} `xml:"KIDS"`
		} `xml:"PROTECTINFO"`
	} `xml:"DATA"`
}

// Parse decodes UTF-16LE WRM-Header XML bytes (spec §4.6).
func Parse(utf16le []byte) (*Header, error) {
	decoded, err := decodeUTF16LE(utf16le)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidXML, err)
	}

	var doc wrmXML
	if err := xml.NewDecoder(bytes.NewReader(decoded)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidXML, err)
	}

	h := &Header{
		Version: doc.Version,
		LAURL:   doc.Data.LAURL,
		LUIURL:  doc.Data.LUIURL,
		DSID:    doc.Data.DSID,
	}

	switch {
	case doc.Data.KID != "":
		// Version 4.0: single KID, no per-key algorithm/checksum.
		kid, err := decodeGUIDLE(doc.Data.KID)
		if err != nil {
			return nil, err
		}
		h.KeyIDs = []KeyID{kid}
		h.ContentKeyAlgorithm = doc.Data.ContentKeyAlgorithm
		h.Checksum = doc.Data.Checksum
	case len(doc.Data.ProtectInfo.KIDs.KID) > 0:
		// Versions 4.1-4.3: one or more KIDs under PROTECTINFO/KIDS.
		for _, k := range doc.Data.ProtectInfo.KIDs.KID {
			kid, err := decodeGUIDLE(k.Value)
			if err != nil {
				return nil, err
			}
			h.KeyIDs = append(h.KeyIDs, kid)
			if h.ContentKeyAlgorithm == "" {
				h.ContentKeyAlgorithm = k.AlgID
			}
			if h.Checksum == "" {
				h.Checksum = k.Checksum
			}
		}
		if h.ContentKeyAlgorithm == "" {
			h.ContentKeyAlgorithm = doc.Data.ProtectInfo.AlgID
		}
	default:
		return nil, fmt.Errorf("%w: no KID element present", ErrInvalidXML)
	}

	return h, nil
}

func decodeUTF16LE(b []byte) ([]byte, error) {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	return dec.Bytes(b)
}

// decodeGUIDLE base64-decodes a WRM-Header <KID> value and converts it from
// Microsoft's mixed-endian GUID layout (first three fields little-endian,
// last two big-endian) to the canonical big-endian byte order used
// elsewhere in this module (spec §4.1: "normalize to big-endian").
func decodeGUIDLE(b64 string) (KeyID, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return KeyID{}, fmt.Errorf("%w: %v", ErrInvalidKID, err)
	}
	if len(raw) != 16 {
		return KeyID{}, ErrInvalidKID
	}
	var kid KeyID
	kid[0], kid[1], kid[2], kid[3] = raw[3], raw[2], raw[1], raw[0]
	kid[4], kid[5] = raw[5], raw[4]
	kid[6], kid[7] = raw[7], raw[6]
	copy(kid[8:16], raw[8:16])
	return kid, nil
}
