// Package xmr implements the PlayReady eXtensible Media Rights (XMR)
// binary license TLV format (spec §4.4, §4.6). An XMR blob is a flat
// byte stream: a fixed header (magic, version, rights id) followed by a
// tree of typed, length-prefixed objects. Objects whose flags carry the
// container bit nest further objects in their payload; all others carry
// an opaque leaf payload.
package xmr

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	magicXMR  = "XMR\x00"
	headerLen = 4 + 4 + 16 // magic + version + rights_id
	objHeaderLen = 8        // flags(2) + type(2) + length(4)

	// FlagContainer marks an object whose payload is itself a sequence
	// of nested objects rather than opaque data (spec §4.6).
	FlagContainer uint16 = 0x02
)

// Recognized object types (spec §4.4 step 4, §4.6).
const (
	TypeContentKey      uint16 = 0x000A
	TypeSignature       uint16 = 0x000B
	TypeEccKey          uint16 = 0x002A
	TypeAuxiliaryKeys   uint16 = 0x0051
)

var (
	ErrTooShort       = errors.New("xmr: input shorter than minimum header size")
	ErrBadMagic       = errors.New("xmr: bad XMR magic")
	ErrInvalidObject  = errors.New("xmr: object violates offset/length invariant")
	ErrSignatureMissing = errors.New("xmr: no SignatureObject present")
)

// Object is one parsed TLV node. For container objects, Children holds the
// nested objects and Payload is nil; for leaf objects, Payload holds the
// raw bytes and Children is nil.
type Object struct {
	Flags    uint16
	Type     uint16
	// Offset and End are the byte offsets, within the original blob, of
	// this object's header start and payload end. They are preserved so
	// callers can recompute the "bytes preceding the signature object"
	// span required by the integrity check (spec §4.4 step 3).
	Offset   int
	End      int
	Payload  []byte
	Children []Object
}

// License is a parsed XMR license (spec §4.4 step 2).
type License struct {
	Version  uint32
	RightsID [16]byte
	Objects  []Object
	// raw is the complete original blob, retained so integrity
	// verification can hash an exact byte range.
	raw []byte
}

// Parse decodes an XMR license blob.
func Parse(b []byte) (*License, error) {
	if len(b) < headerLen {
		return nil, ErrTooShort
	}
	if string(b[0:4]) != magicXMR {
		return nil, ErrBadMagic
	}
	l := &License{
		Version: binary.BigEndian.Uint32(b[4:8]),
		raw:     b,
	}
	copy(l.RightsID[:], b[8:24])

	objs, err := parseObjects(b, headerLen, len(b))
	if err != nil {
		return nil, err
	}
	l.Objects = objs
	return l, nil
}

// parseObjects recursively decodes every object in b[start:end], accepting
// any node satisfying offset+8 <= end, length >= 8, offset+length <= end
// (spec §4.6).
func parseObjects(b []byte, start, end int) ([]Object, error) {
	var out []Object
	off := start
	for off < end {
		if off+objHeaderLen > end {
			return nil, fmt.Errorf("%w: header at %d exceeds scope end %d", ErrInvalidObject, off, end)
		}
		flags := binary.BigEndian.Uint16(b[off : off+2])
		typ := binary.BigEndian.Uint16(b[off+2 : off+4])
		length := binary.BigEndian.Uint32(b[off+4 : off+8])
		if length < objHeaderLen {
			return nil, fmt.Errorf("%w: object at %d has length %d < 8", ErrInvalidObject, off, length)
		}
		objEnd := off + int(length)
		if objEnd > end {
			return nil, fmt.Errorf("%w: object at %d extends past scope end %d", ErrInvalidObject, off, end)
		}

		obj := Object{Flags: flags, Type: typ, Offset: off, End: objEnd}
		payloadStart := off + objHeaderLen
		if flags&FlagContainer != 0 {
			children, err := parseObjects(b, payloadStart, objEnd)
			if err != nil {
				return nil, err
			}
			obj.Children = children
		} else {
			obj.Payload = append([]byte{}, b[payloadStart:objEnd]...)
		}

		out = append(out, obj)
		off = objEnd
	}
	return out, nil
}

// FindFirst returns the first object of the given type, searching depth
// first in encounter order, or false if none is present.
func FindFirst(objs []Object, typ uint16) (Object, bool) {
	for _, o := range objs {
		if o.Type == typ {
			return o, true
		}
		if found, ok := FindFirst(o.Children, typ); ok {
			return found, true
		}
	}
	return Object{}, false
}

// FindAll returns every object of the given type, in encounter order.
func FindAll(objs []Object, typ uint16) []Object {
	var out []Object
	for _, o := range objs {
		if o.Type == typ {
			out = append(out, o)
		}
		out = append(out, FindAll(o.Children, typ)...)
	}
	return out
}

// SignedRegion returns the bytes from the start of the license blob up to
// (but not including) the payload of the first SignatureObject, the exact
// span the integrity MAC is computed over (spec §4.4 step 3).
func (l *License) SignedRegion() ([]byte, error) {
	sig, ok := FindFirst(l.Objects, TypeSignature)
	if !ok {
		return nil, ErrSignatureMissing
	}
	payloadStart := sig.Offset + objHeaderLen
	return l.raw[:payloadStart], nil
}

// ContentKeyObjects returns every ContentKeyObject in the license, in
// encounter order (spec §4.4 step 4).
func (l *License) ContentKeyObjects() []Object {
	return FindAll(l.Objects, TypeContentKey)
}
