package wgconf

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// ClientQR кодирует клиентский конфиг в PNG с QR-кодом — мобильные
// клиенты WireGuard импортируют его камерой.
func ClientQR(conf []byte) ([]byte, error) {
	png, err := qrcode.Encode(string(conf), qrcode.Medium, 512)
	if err != nil {
		return nil, fmt.Errorf("wgconf: encode qr: %w", err)
	}
	return png, nil
}
