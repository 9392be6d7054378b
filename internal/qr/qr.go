// Package qr encodes product labels and decodes scanned frames.
package qr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // uploaded photos
	_ "image/png"
	"io"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	goqr "github.com/skip2/go-qrcode"
)

// DefaultSize label edge in pixels.
const DefaultSize = 256

// Encode renders content as a PNG QR code.
func Encode(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, errors.New("qr: empty content")
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := goqr.Encode(content, goqr.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}
	return png, nil
}

// Decoder extracts identifier text from one image.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

// MultiDecoder tries QR first, then the 1D formats printed on product tags.
// Readers keep scratch buffers between calls, so decoding is serialized.
type MultiDecoder struct {
	mu      sync.Mutex
	readers []gozxing.Reader
}

func NewDecoder() *MultiDecoder {
	return &MultiDecoder{readers: []gozxing.Reader{
		zxqr.NewQRCodeReader(),
		oned.NewCode128Reader(),
		oned.NewEAN13Reader(),
	}}
}

// Decode returns the decoded text. When no code is present the error is a
// gozxing NotFoundException.
func (d *MultiDecoder) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("qr: bitmap: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var lastErr error
	for _, r := range d.readers {
		res, err := r.Decode(bmp, nil)
		if err == nil {
			return res.GetText(), nil
		}
		lastErr = err
	}
	return "", lastErr
}

// DecodeReader decodes a single PNG or JPEG image.
func (d *MultiDecoder) DecodeReader(r io.Reader) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("qr: read image: %w", err)
	}
	return d.Decode(img)
}

func (d *MultiDecoder) DecodeBytes(b []byte) (string, error) {
	return d.DecodeReader(bytes.NewReader(b))
}
