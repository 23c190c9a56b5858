package provenance

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	p := Payload{
		DocumentID:   "7f6c3b1e-9a7d-4a41-9f1e-1f2a3b4c5d6e",
		SerialNumber: "A1B2C3D4",
		Owner:        "alice@example.com",
	}

	encoded, err := Encode(p)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err, "provenance code must be valid base64")

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestEncode_RequiresAllFields(t *testing.T) {
	_, err := Encode(Payload{SerialNumber: "A1B2C3D4", Owner: "alice"})
	assert.Error(t, err)

	_, err = Encode(Payload{DocumentID: "id", Owner: "alice"})
	assert.Error(t, err)

	_, err = Encode(Payload{DocumentID: "id", SerialNumber: "A1B2C3D4"})
	assert.Error(t, err)
}

func TestDecode_NoCode(t *testing.T) {
	t.Run("blank image", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 200, 200))
		for y := 0; y < 200; y++ {
			for x := 0; x < 200; x++ {
				img.Set(x, y, color.White)
			}
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))

		_, err := Decode(buf.Bytes())
		assert.ErrorIs(t, err, ErrNoCodeFound)
	})

	t.Run("not an image at all", func(t *testing.T) {
		_, err := Decode([]byte("this is plain text, not pixels"))
		assert.ErrorIs(t, err, ErrNoCodeFound)
	})
}

func TestDecode_MalformedPayload(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"not json", "hello, I am just a QR code"},
		{"missing fields", `{"document_id":"abc"}`},
		{"empty fields", `{"document_id":"","serial_number":"","owner":""}`},
		{"wrong id type", `{"document_id":{"nested":true},"serial_number":"A1B2C3D4","owner":"alice"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := qrcode.Encode(tc.content, qrcode.Medium, 256)
			require.NoError(t, err)

			_, err = Decode(raw)
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestDecode_NumericDocumentID(t *testing.T) {
	raw, err := qrcode.Encode(`{"document_id":42,"serial_number":"A1B2C3D4","owner":"alice"}`, qrcode.Medium, 256)
	require.NoError(t, err)

	p, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "42", p.DocumentID)
}
