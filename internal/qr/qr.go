// Package qr renders redemption URLs as scannable PNG codes.
package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the square pixel size of rendered codes; large enough for a
// projected classroom display.
const DefaultSize = 256

// PNG encodes a URL as a QR code image.
func PNG(url string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(url, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
