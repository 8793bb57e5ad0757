// Package pssh implements the ISO-BMFF Protection System Specific Header
// box shared by both DRM protocols (spec §3, §4.1), plus the
// protocol-specific key-id extraction rules layered on top of it (spec
// §4.1, component C5). The box layout itself is fixed by the ISO/IEC
// 23001-7 standard; this package treats it as plain owned bytes plus a
// parsed view, per spec.md §9's ownership guidance.
package pssh

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tibellium/cdm-go/wrm"
	"github.com/tibellium/cdm-go/wvproto"
)

const (
	minBoxLen  = 32
	magicPssh  = "pssh"
	v1HeaderOverhead = 4 // kid_count field
	keyIDLen   = 16
)

var (
	// ErrTooShort is returned when the input is shorter than the minimum
	// possible PSSH box (32 bytes: the v0 header plus a zero-length data
	// field).
	ErrTooShort = errors.New("pssh: input shorter than minimum box size")

	// ErrBadMagic is returned when bytes[4:8] is not "pssh".
	ErrBadMagic = errors.New("pssh: bad box magic")

	// ErrUnsupportedVersion is returned for any version byte other than
	// 0 or 1.
	ErrUnsupportedVersion = errors.New("pssh: unsupported box version")

	// ErrBoxSizeExceedsBuffer is returned when the declared box_size is
	// larger than the number of bytes available.
	ErrBoxSizeExceedsBuffer = errors.New("pssh: declared box size exceeds input buffer")

	// ErrTrailingBytes is returned when bytes remain after the declared
	// end of the box.
	ErrTrailingBytes = errors.New("pssh: trailing bytes after declared box end")

	// ErrTruncated is returned when a length-prefixed field (key-id list
	// or data payload) runs past the end of the input.
	ErrTruncated = errors.New("pssh: truncated field")

	// ErrSystemIDMismatch reports a box whose system_id does not match the
	// protocol being asked about. No function in this package returns it;
	// ResolveKeyIDs reports an unknown system_id with
	// ErrUnrecognizedSystemID.
	ErrSystemIDMismatch = errors.New("pssh: system_id does not match requested protocol")
)

// SystemID is the 16-byte tag identifying which protocol's payload is
// carried in a box's data field (spec §3).
type SystemID [16]byte

func (s SystemID) String() string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", s[0:4], s[4:6], s[6:8], s[8:10], s[10:16])
}

var (
	// SystemIDWidevine is edef8ba9-79d6-4ace-a3c8-27dcd51d21ed.
	SystemIDWidevine = SystemID{0xed, 0xef, 0x8b, 0xa9, 0x79, 0xd6, 0x4a, 0xce, 0xa3, 0xc8, 0x27, 0xdc, 0xd5, 0x1d, 0x21, 0xed}

	// SystemIDPlayReady is 9a04f079-9840-4286-ab92-e65be0885f95.
	SystemIDPlayReady = SystemID{0x9a, 0x04, 0xf0, 0x79, 0x98, 0x40, 0x42, 0x86, 0xab, 0x92, 0xe6, 0x5b, 0xe0, 0x88, 0x5f, 0x95}

	// SystemIDClearKey is e2719d58-a985-b3c9-781a-b030af78d30e.
	SystemIDClearKey = SystemID{0xe2, 0x71, 0x9d, 0x58, 0xa9, 0x85, 0xb3, 0xc9, 0x78, 0x1a, 0xb0, 0x30, 0xaf, 0x78, 0xd3, 0x0e}

	// SystemIDFairPlay is 94ce86fb-07ff-4f43-adb8-93d2fa968ca2.
	SystemIDFairPlay = SystemID{0x94, 0xce, 0x86, 0xfb, 0x07, 0xff, 0x4f, 0x43, 0xad, 0xb8, 0x93, 0xd2, 0xfa, 0x96, 0x8c, 0xa2}
)

// Box is a parsed PSSH box (spec §3, "PsshBox").
type Box struct {
	Version  uint8
	Flags    [3]byte
	SystemID SystemID
	// KeyIDs holds the header-level key ids, present only for version 1
	// boxes. It is nil (not an empty slice) for version 0.
	KeyIDs []KeyID
	Data   []byte
}

// KeyID is a 16-byte content key identifier.
type KeyID [16]byte

// Parse decodes a PSSH box from raw bytes. It rejects inputs shorter than
// 32 bytes, an unsupported version, a declared box_size larger than the
// buffer, trailing bytes after the declared end, and truncation of any
// length-prefixed field (spec §4.1).
func Parse(b []byte) (*Box, error) {
	if len(b) < minBoxLen {
		return nil, ErrTooShort
	}

	boxSize := binary.BigEndian.Uint32(b[0:4])
	if int64(boxSize) > int64(len(b)) {
		return nil, ErrBoxSizeExceedsBuffer
	}
	if string(b[4:8]) != magicPssh {
		return nil, ErrBadMagic
	}

	version := b[8]
	if version > 1 {
		return nil, ErrUnsupportedVersion
	}

	box := &Box{Version: version}
	copy(box.Flags[:], b[9:12])
	copy(box.SystemID[:], b[12:28])

	off := 28
	if version == 1 {
		if off+v1HeaderOverhead > len(b) {
			return nil, ErrTruncated
		}
		kidCount := binary.BigEndian.Uint32(b[off : off+4])
		off += 4
		need := int64(kidCount) * keyIDLen
		if int64(off)+need > int64(len(b)) {
			return nil, ErrTruncated
		}
		box.KeyIDs = make([]KeyID, kidCount)
		for i := uint32(0); i < kidCount; i++ {
			copy(box.KeyIDs[i][:], b[off:off+keyIDLen])
			off += keyIDLen
		}
	}

	if off+4 > len(b) {
		return nil, ErrTruncated
	}
	dataSize := binary.BigEndian.Uint32(b[off : off+4])
	off += 4
	if int64(off)+int64(dataSize) > int64(len(b)) {
		return nil, ErrTruncated
	}
	box.Data = append([]byte{}, b[off:off+int(dataSize)]...)
	off += int(dataSize)

	if off != int(boxSize) || off != len(b) {
		return nil, ErrTrailingBytes
	}

	return box, nil
}

// ParseBase64 decodes standard-alphabet base64 (with padding) and parses
// the result as a PSSH box.
func ParseBase64(s string) (*Box, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("pssh: base64 decode: %w", err)
	}
	return Parse(raw)
}

// Serialize emits the exact byte sequence that Parse would read back,
// satisfying the "serialize(parse(b)) == b" round-trip law (spec §8).
func (b *Box) Serialize() []byte {
	total := 28
	if b.Version == 1 {
		total += 4 + len(b.KeyIDs)*keyIDLen
	}
	total += 4 + len(b.Data)

	out := make([]byte, total)
	binary.BigEndian.PutUint32(out[0:4], uint32(total))
	copy(out[4:8], magicPssh)
	out[8] = b.Version
	copy(out[9:12], b.Flags[:])
	copy(out[12:28], b.SystemID[:])

	off := 28
	if b.Version == 1 {
		binary.BigEndian.PutUint32(out[off:off+4], uint32(len(b.KeyIDs)))
		off += 4
		for _, kid := range b.KeyIDs {
			copy(out[off:off+keyIDLen], kid[:])
			off += keyIDLen
		}
	}
	binary.BigEndian.PutUint32(out[off:off+4], uint32(len(b.Data)))
	off += 4
	copy(out[off:off+len(b.Data)], b.Data)

	return out
}

// ToBase64 is the inverse of ParseBase64.
func (b *Box) ToBase64() string {
	return base64.StdEncoding.EncodeToString(b.Serialize())
}

// ErrUnrecognizedSystemID is returned by ResolveKeyIDs when the box's
// system_id is neither Widevine nor PlayReady, so no key-id extraction
// rule applies (spec §4.1).
var ErrUnrecognizedSystemID = errors.New("pssh: no key-id extraction rule for this system_id")

// ResolveKeyIDs returns the box's content key ids regardless of version or
// system (spec §4.1):
//
//   - version 1: the header-level KeyIDs field is authoritative for every
//     system_id, so it is returned directly.
//   - version 0, Widevine: Data is a WidevinePsshData protobuf; its key_id
//     repeated field is decoded and each entry validated to be 16 bytes.
//   - version 0, PlayReady: Data is a PlayReady Header object; the type-1
//     WRM-Header record inside it carries the key id(s), little-endian
//     GUID-encoded, which are normalized to big-endian.
func (b *Box) ResolveKeyIDs() ([]KeyID, error) {
	if b.Version == 1 {
		return b.KeyIDs, nil
	}

	switch b.SystemID {
	case SystemIDWidevine:
		psshData, err := wvproto.UnmarshalWidevinePsshData(b.Data)
		if err != nil {
			return nil, fmt.Errorf("pssh: decode widevine pssh data: %w", err)
		}
		out := make([]KeyID, len(psshData.KeyIDs))
		for i, raw := range psshData.KeyIDs {
			if len(raw) != keyIDLen {
				return nil, fmt.Errorf("pssh: widevine key_id %d is %d bytes, want 16", i, len(raw))
			}
			copy(out[i][:], raw)
		}
		return out, nil
	case SystemIDPlayReady:
		h, err := wrm.ExtractFromPSSHData(b.Data)
		if err != nil {
			return nil, fmt.Errorf("pssh: extract WRM-Header: %w", err)
		}
		out := make([]KeyID, len(h.KeyIDs))
		for i, kid := range h.KeyIDs {
			out[i] = KeyID(kid)
		}
		return out, nil
	default:
		return nil, ErrUnrecognizedSystemID
	}
}
