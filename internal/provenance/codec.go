package provenance

// Package provenance encodes a document's identity triple into a scannable
// QR code and decodes scanned images back into the triple. The codec never
// consults the registry; reconciling a decoded payload against stored
// records is the verification engine's job.

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strconv"

	"github.com/makiuchi-d/gozxing"
	zxqrcode "github.com/makiuchi-d/gozxing/qrcode"
	qrcode "github.com/skip2/go-qrcode"
)

var (
	// ErrNoCodeFound means the image contains no recognizable QR code.
	ErrNoCodeFound = errors.New("no provenance code found in image")
	// ErrMalformedPayload means a QR code was found but its payload is not
	// a valid provenance triple.
	ErrMalformedPayload = errors.New("provenance payload is malformed")
)

// Payload is the identity triple embedded in a provenance code.
// Field order here defines the canonical serialized form.
type Payload struct {
	DocumentID   string `json:"document_id"`
	SerialNumber string `json:"serial_number"`
	Owner        string `json:"owner"`
}

// qrSize is the rendered QR image edge length in pixels.
const qrSize = 256

// Encode serializes the payload to its canonical JSON form, renders it as a
// QR PNG, and returns the PNG base64-encoded for transport and storage.
func Encode(p Payload) (string, error) {
	if p.DocumentID == "" || p.SerialNumber == "" || p.Owner == "" {
		return "", fmt.Errorf("encode provenance: all of document_id, serial_number, owner are required")
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal provenance payload: %w", err)
	}

	png, err := qrcode.Encode(string(payload), qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("render provenance code: %w", err)
	}

	return base64.StdEncoding.EncodeToString(png), nil
}

// Decode scans an arbitrary raster image for a QR code and parses its
// payload into the provenance triple.
//
// Returns ErrNoCodeFound when the image decodes but carries no QR code, and
// ErrMalformedPayload when a code is present but its content is not the
// expected triple. Undecodable image bytes also map to ErrNoCodeFound: an
// upload that is not a readable image cannot carry a code.
func Decode(imageBytes []byte) (Payload, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrNoCodeFound, err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Payload{}, fmt.Errorf("prepare image for scanning: %w", err)
	}

	result, err := zxqrcode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		if _, ok := err.(gozxing.NotFoundException); ok {
			return Payload{}, ErrNoCodeFound
		}
		if _, ok := err.(gozxing.ReaderException); ok {
			return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return Payload{}, fmt.Errorf("scan image: %w", err)
	}

	return parsePayload(result.GetText())
}

// parsePayload accepts the canonical JSON form. The document identifier may
// arrive as either a JSON string or a bare integer; older codes used the
// numeric database id.
func parsePayload(text string) (Payload, error) {
	var raw struct {
		DocumentID   json.RawMessage `json:"document_id"`
		SerialNumber string          `json:"serial_number"`
		Owner        string          `json:"owner"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	id, err := decodeID(raw.DocumentID)
	if err != nil {
		return Payload{}, err
	}

	p := Payload{DocumentID: id, SerialNumber: raw.SerialNumber, Owner: raw.Owner}
	if p.DocumentID == "" || p.SerialNumber == "" || p.Owner == "" {
		return Payload{}, fmt.Errorf("%w: missing required field", ErrMalformedPayload)
	}
	return p, nil
}

func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatInt(n, 10), nil
	}
	return "", fmt.Errorf("%w: document_id must be a string or integer", ErrMalformedPayload)
}
