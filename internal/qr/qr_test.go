package qr

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	png, err := Encode("SKA-RNG-123456-a1b2c3", 256)
	require.NoError(t, err)

	text, err := NewDecoder().DecodeBytes(png)
	require.NoError(t, err)
	assert.Equal(t, "SKA-RNG-123456-a1b2c3", text)
}

func TestEncode_Empty(t *testing.T) {
	_, err := Encode("", 0)
	assert.Error(t, err)
}

func TestDecode_BlankImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = uint8(color.White.Y >> 8)
	}
	_, err := NewDecoder().Decode(img)
	require.Error(t, err)
}

func TestDecodeBytes_NotAnImage(t *testing.T) {
	_, err := NewDecoder().DecodeBytes([]byte("plain text"))
	assert.Error(t, err)
}
