package notify

import (
	"errors"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultQRSize = 256
	maxQRSize     = 1024
)

var ErrEmptyCode = errors.New("notify: empty activation code")

// PNG encodes code as a QR image. size <= 0 picks DefaultQRSize.
func PNG(code string, size int) ([]byte, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	if size > maxQRSize {
		size = maxQRSize
	}
	return qrcode.Encode(code, qrcode.Medium, size)
}
