// Package wvproto implements the Widevine license-protocol messages (spec
// §4.3, component C3) as hand-written protobuf-wire-format encoders and
// decoders over google.golang.org/protobuf/encoding/protowire. No .proto
// file is compiled here (see DESIGN.md): each message is a plain Go struct
// with a Marshal/Unmarshal pair built directly on protowire's tag/varint
// primitives, modeled on the field layout of Widevine's
// license_protocol.proto as read from the retrieved original-source tree.
package wvproto

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned when a message's wire bytes cannot be parsed as
// a well-formed protobuf encoding (bad tag, truncated varint/length, etc).
var ErrMalformed = errors.New("wvproto: malformed protobuf message")

// field is one decoded (number, type, raw-value) triple, produced while
// scanning a message's top-level fields. raw holds exactly the encoded
// value bytes (not the tag), so the caller can re-decode it according to
// its own field's wire type.
type field struct {
	num protowire.Number
	typ protowire.Type
	raw []byte
}

// scanFields walks b and returns every top-level (number, type, value)
// triple. It is the shared core of every message's Unmarshal method.
func scanFields(b []byte) ([]field, error) {
	var out []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: bad tag", ErrMalformed)
		}
		b = b[n:]

		var raw []byte
		switch typ {
		case protowire.VarintType:
			_, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad varint", ErrMalformed)
			}
			raw = b[:n]
			b = b[n:]
		case protowire.Fixed32Type:
			if len(b) < 4 {
				return nil, fmt.Errorf("%w: truncated fixed32", ErrMalformed)
			}
			raw = b[:4]
			b = b[4:]
		case protowire.Fixed64Type:
			if len(b) < 8 {
				return nil, fmt.Errorf("%w: truncated fixed64", ErrMalformed)
			}
			raw = b[:8]
			b = b[8:]
		case protowire.BytesType:
			val, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: bad length-delimited field", ErrMalformed)
			}
			raw = val
			b = b[n:]
		default:
			return nil, fmt.Errorf("%w: unsupported wire type %d", ErrMalformed, typ)
		}
		out = append(out, field{num: num, typ: typ, raw: raw})
	}
	return out, nil
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendBytes(b, v)
	return b
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	return appendBytesField(b, num, []byte(v))
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	b = protowire.AppendVarint(b, v)
	return b
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarintField(b, num, 1)
}

func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	if msg == nil {
		return b
	}
	return appendBytesField(b, num, msg)
}

func decodeVarintValue(raw []byte) uint64 {
	v, _ := protowire.ConsumeVarint(raw)
	return v
}
