// Package soap implements the PlayReady SOAP 1.1 license-acquisition
// envelope (spec §4.4 step 4): building the AcquireLicense challenge
// request and parsing the AcquireLicenseResponse to recover the embedded
// XMR license blobs.
package soap

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
)

const (
	nsSoapEnvelope = "http://schemas.xmlsoap.org/soap/envelope/"
	nsProtocols    = "http://schemas.microsoft.com/DRM/2007/03/protocols"
	nsMessages     = "http://schemas.microsoft.com/DRM/2007/03/protocols/messages"
	nsXMLDSig      = "http://www.w3.org/2000/09/xmldsig#"
)

// ErrNoLicense is returned when an AcquireLicenseResponse contains no
// <License> element.
var ErrNoLicense = errors.New("soap: response contains no License element")

// Challenge holds the pieces needed to build an AcquireLicense envelope
// (spec §4.4 step 2-4). LABytes is the already AES-CBC-encrypted <LA>
// content; Signature is the raw R||S ECDSA-SHA256 signature over LABytes;
// WrappedIntegrityKey is the ElGamal (C1||C2) ciphertext of the content-
// integrity key that encrypted LABytes, carried alongside it in the clear
// so the server can recover the integrity key before it can decrypt LABytes.
type Challenge struct {
	LABytes             []byte
	Signature           []byte
	WrappedIntegrityKey []byte
}

// envelope mirrors the minimal SOAP 1.1 structure this package emits.
type envelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	XMLNS   string   `xml:"xmlns:soap,attr"`
	Body    struct {
		AcquireLicense struct {
			XMLNS     string `xml:"xmlns,attr"`
			Challenge struct {
				Inner struct {
					XMLNS        string `xml:"xmlns,attr"`
					LA           laElement
					EncryptedKey string `xml:"EncryptedKey"`
					Signature    signatureElement
				} `xml:"Challenge"`
			} `xml:"challenge"`
		} `xml:"AcquireLicense"`
	} `xml:"soap:Body"`
}

type laElement struct {
	XMLName xml.Name `xml:"LA"`
	ID      string   `xml:"Id,attr"`
	Space   string   `xml:"xml:space,attr"`
	Content []byte   `xml:",innerxml"`
}

type signatureElement struct {
	XMLName        xml.Name `xml:"Signature"`
	XMLNS          string   `xml:"xmlns,attr"`
	SignedInfo     string   `xml:"SignedInfo"`
	SignatureValue string   `xml:"SignatureValue"`
}

// BuildAcquireLicenseRequest renders the SOAP 1.1 AcquireLicense envelope
// carrying the signed challenge (spec §4.4 step 4).
func BuildAcquireLicenseRequest(c Challenge) ([]byte, error) {
	var env envelope
	env.XMLNS = nsSoapEnvelope
	env.Body.AcquireLicense.XMLNS = nsProtocols
	inner := &env.Body.AcquireLicense.Challenge.Inner
	inner.XMLNS = nsMessages
	inner.LA = laElement{ID: "SignedData", Space: "preserve", Content: c.LABytes}
	inner.EncryptedKey = base64.StdEncoding.EncodeToString(c.WrappedIntegrityKey)
	inner.Signature = signatureElement{
		XMLNS:          nsXMLDSig,
		SignedInfo:     "",
		SignatureValue: base64.StdEncoding.EncodeToString(c.Signature),
	}

	out, err := xml.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("soap: marshal envelope: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// ParseAcquireLicenseResponse extracts every base64-encoded XMR license
// blob from a SOAP AcquireLicenseResponse (spec §4.4 step 1). It scans for
// <License> elements by local name at any nesting depth, since servers
// vary in how deeply they wrap AcquireLicenseResponse/Result/Licenses.
func ParseAcquireLicenseResponse(body []byte) ([][]byte, error) {
	return scanLicenseElements(body)
}

// scanLicenseElements performs a generic depth-first scan for <License>
// elements, tolerant of arbitrary ancestor nesting.
func scanLicenseElements(body []byte) ([][]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var out [][]byte
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "License" {
			continue
		}
		var text string
		if err := dec.DecodeElement(&text, &start); err != nil {
			return nil, fmt.Errorf("soap: decode License element: %w", err)
		}
		raw, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("soap: decode License element: %w", err)
		}
		out = append(out, raw)
	}
	if len(out) == 0 {
		return nil, ErrNoLicense
	}
	return out, nil
}
