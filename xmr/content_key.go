package xmr

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CipherType is ContentKeyObject's cipher_type field (spec §4.4 step 4).
type CipherType uint16

const (
	CipherEcc256             CipherType = 1
	CipherEcc256ViaSymmetric CipherType = 2
)

// ErrTruncatedContentKey is returned when a ContentKeyObject's payload is
// too short for its declared fields.
var ErrTruncatedContentKey = errors.New("xmr: truncated ContentKeyObject payload")

// ContentKeyData is the decoded payload of a ContentKeyObject (type
// 0x000A): key_id, key_type, cipher_type, and the still-encrypted key
// material, whose shape depends on CipherType.
type ContentKeyData struct {
	// KeyID is in little-endian GUID byte order as stored on the wire;
	// callers normalize to big-endian (spec §4.4 step 6).
	KeyID        [16]byte
	KeyType      uint16
	CipherType   CipherType
	EncryptedKey []byte
}

// ParseContentKeyObject decodes a ContentKeyObject payload:
//
//	key_id        [16]byte
//	key_type      uint16 BE
//	cipher_type   uint16 BE
//	key_length    uint16 BE
//	encrypted_key []byte (key_length bytes)
func ParseContentKeyObject(payload []byte) (*ContentKeyData, error) {
	if len(payload) < 16+2+2+2 {
		return nil, ErrTruncatedContentKey
	}
	d := &ContentKeyData{}
	copy(d.KeyID[:], payload[0:16])
	d.KeyType = binary.BigEndian.Uint16(payload[16:18])
	d.CipherType = CipherType(binary.BigEndian.Uint16(payload[18:20]))
	keyLen := binary.BigEndian.Uint16(payload[20:22])
	if 22+int(keyLen) > len(payload) {
		return nil, fmt.Errorf("%w: encrypted_key truncated", ErrTruncatedContentKey)
	}
	d.EncryptedKey = append([]byte{}, payload[22:22+int(keyLen)]...)
	return d, nil
}

// AuxiliaryKey is one entry of an AuxiliaryKeysObject (spec §4.4 step 4,
// Ecc256ViaSymmetric scalable-license derivation).
type AuxiliaryKey struct {
	Location uint32
	Key      [16]byte
}

// ParseAuxiliaryKeysObject decodes an AuxiliaryKeysObject payload (type
// 0x0051): a uint16 count followed by that many {location uint32 BE, key
// [16]byte} entries.
func ParseAuxiliaryKeysObject(payload []byte) ([]AuxiliaryKey, error) {
	if len(payload) < 2 {
		return nil, ErrTruncatedContentKey
	}
	count := binary.BigEndian.Uint16(payload[0:2])
	off := 2
	out := make([]AuxiliaryKey, 0, count)
	for i := uint16(0); i < count; i++ {
		if off+4+16 > len(payload) {
			return nil, fmt.Errorf("%w: auxiliary key entry truncated", ErrTruncatedContentKey)
		}
		var ak AuxiliaryKey
		ak.Location = binary.BigEndian.Uint32(payload[off : off+4])
		off += 4
		copy(ak.Key[:], payload[off:off+16])
		off += 16
		out = append(out, ak)
	}
	return out, nil
}
