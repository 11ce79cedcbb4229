// Package qr encodes lookup URLs as scannable PNG images.
package qr

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

const (
	// InlineSize is the pixel size of tokens embedded in JSON responses.
	InlineSize = 300
	// DownloadSize is the pixel size of tokens offered as a file.
	DownloadSize = 500

	dataURLPrefix = "data:image/png;base64,"
)

// PNG encodes text as a QR code image of the given size.
func PNG(text string, size int) ([]byte, error) {
	png, err := qrcode.Encode(text, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// DataURL encodes text as an inline PNG data URL.
func DataURL(text string) (string, error) {
	png, err := PNG(text, InlineSize)
	if err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}
