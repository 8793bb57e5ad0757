// Package widevine implements the Widevine device serialization format and
// the license-exchange session state machine (spec §4.2, §4.3, component
// C4/C6).
package widevine

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tibellium/cdm-go/wvproto"
)

const (
	wvdMagic          = "WVD"
	currentWVDVersion = 2
)

var (
	ErrBadMagic            = errors.New("widevine: bad WVD magic")
	ErrUnsupportedVersion  = errors.New("widevine: unsupported WVD version")
	ErrUnknownDeviceType   = errors.New("widevine: unknown device_type")
	ErrUnknownSecurityLevel = errors.New("widevine: unknown security_level")
	ErrTruncated           = errors.New("widevine: truncated WVD file")
	ErrInvalidPrivateKey   = errors.New("widevine: private key is not valid PKCS#1 or PKCS#8")
	ErrInvalidClientID     = errors.New("widevine: client identification protobuf does not decode")
)

// DeviceType mirrors the WVD device_type byte. Only the values a v2 WVD
// file may declare are accepted by Parse; String falls back to a generic
// label for any other numeric value encountered elsewhere (e.g. read back
// from a certificate field).
type DeviceType uint8

const (
	DeviceTypeAndroid DeviceType = 1
	DeviceTypeChrome  DeviceType = 2
)

func (d DeviceType) String() string {
	switch d {
	case DeviceTypeAndroid:
		return "Android"
	case DeviceTypeChrome:
		return "Chrome"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(d))
	}
}

func (d DeviceType) valid() bool {
	return d == DeviceTypeAndroid || d == DeviceTypeChrome
}

// SecurityLevel mirrors the WVD security_level byte.
type SecurityLevel uint8

const (
	SecurityLevelL1 SecurityLevel = 1
	SecurityLevelL2 SecurityLevel = 2
	SecurityLevelL3 SecurityLevel = 3
)

func (s SecurityLevel) String() string {
	switch s {
	case SecurityLevelL1:
		return "L1"
	case SecurityLevelL2:
		return "L2"
	case SecurityLevelL3:
		return "L3"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

func (s SecurityLevel) valid() bool {
	return s == SecurityLevelL1 || s == SecurityLevelL2 || s == SecurityLevelL3
}

// Device is a load-time-validated Widevine device identity (spec §3
// WidevineDevice).
type Device struct {
	Version       uint8
	DeviceType    DeviceType
	SecurityLevel SecurityLevel

	privateKey *rsa.PrivateKey

	// clientIDBytes is the original, unmodified client_id_protobuf bytes
	// as read from the file, returned verbatim by Serialize so the
	// round-trip law holds exactly even though the decoded struct's
	// field order is not guaranteed to match on re-encode.
	clientIDBytes []byte
	clientID      *wvproto.ClientIdentification
}

// PrivateKey returns the device's parsed RSA private key.
func (d *Device) PrivateKey() *rsa.PrivateKey { return d.privateKey }

// ClientIdentification returns the device's decoded client identity.
func (d *Device) ClientIdentification() *wvproto.ClientIdentification { return d.clientID }

// ClientIdentificationBytes returns the raw client_id_protobuf bytes as
// stored in the device file.
func (d *Device) ClientIdentificationBytes() []byte { return d.clientIDBytes }

// ParseDevice decodes a WVD file (spec §4.2):
//
//	"WVD" || version(u8) || device_type(u8) || security_level(u8) ||
//	flags(u8, reserved) || private_key_len(u16 BE) || private_key_DER ||
//	client_id_len(u16 BE) || client_id_protobuf
func ParseDevice(b []byte) (*Device, error) {
	if len(b) < 3+4 {
		return nil, ErrTruncated
	}
	if string(b[0:3]) != wvdMagic {
		return nil, ErrBadMagic
	}
	version := b[3]
	if version != currentWVDVersion {
		return nil, ErrUnsupportedVersion
	}

	deviceType := DeviceType(b[4])
	if !deviceType.valid() {
		return nil, ErrUnknownDeviceType
	}
	securityLevel := SecurityLevel(b[5])
	if !securityLevel.valid() {
		return nil, ErrUnknownSecurityLevel
	}
	// b[6] is the reserved flags byte.

	off := 7
	if off+2 > len(b) {
		return nil, ErrTruncated
	}
	privKeyLen := binary.BigEndian.Uint16(b[off : off+2])
	off += 2
	if off+int(privKeyLen) > len(b) {
		return nil, ErrTruncated
	}
	privKeyDER := b[off : off+int(privKeyLen)]
	off += int(privKeyLen)

	priv, err := parseRSAPrivateKey(privKeyDER)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	if off+2 > len(b) {
		return nil, ErrTruncated
	}
	clientIDLen := binary.BigEndian.Uint16(b[off : off+2])
	off += 2
	if off+int(clientIDLen) > len(b) {
		return nil, ErrTruncated
	}
	clientIDBytes := append([]byte{}, b[off:off+int(clientIDLen)]...)
	off += int(clientIDLen)

	clientID, err := wvproto.UnmarshalClientIdentification(clientIDBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClientID, err)
	}

	return &Device{
		Version:       version,
		DeviceType:    deviceType,
		SecurityLevel: securityLevel,
		privateKey:    priv,
		clientIDBytes: clientIDBytes,
		clientID:      clientID,
	}, nil
}

func parseRSAPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("widevine: PKCS#8 key is not RSA")
	}
	return rsaKey, nil
}

// Serialize re-encodes the device to the exact WVD byte layout Parse
// reads, using PKCS#1 for the private key and the original client-id bytes
// verbatim (spec §3 PsshBox-style "serialize is the exact inverse").
func (d *Device) Serialize() []byte {
	privKeyDER := x509.MarshalPKCS1PrivateKey(d.privateKey)

	out := make([]byte, 0, 7+2+len(privKeyDER)+2+len(d.clientIDBytes))
	out = append(out, wvdMagic...)
	out = append(out, d.Version, byte(d.DeviceType), byte(d.SecurityLevel), 0)

	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(privKeyDER)))
	out = append(out, lenBuf...)
	out = append(out, privKeyDER...)

	binary.BigEndian.PutUint16(lenBuf, uint16(len(d.clientIDBytes)))
	out = append(out, lenBuf...)
	out = append(out, d.clientIDBytes...)

	return out
}
