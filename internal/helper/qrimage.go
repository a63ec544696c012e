package helper

import (
	"encoding/base64"
	"fmt"

	qrCode "github.com/skip2/go-qrcode"
)

// QRImageDataURL renders a pairing code string as a PNG data URL so the
// frontend can drop it straight into an <img> tag.
func QRImageDataURL(code string) (string, error) {
	png, err := qrCode.Encode(code, qrCode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encode qr image: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
