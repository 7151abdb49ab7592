package bundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Build собирает tar.gz с артефактами выдачи пира: <user>.conf и
// <user>.png. Мост доставляет архив оператору одним сообщением.
// Заголовки фиксированы, поэтому одинаковые входы дают одинаковый
// архив и sha256.
func Build(username string, conf, qrPNG []byte) ([]byte, string, error) {
	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	gz.Name = ""
	gz.Comment = ""
	gz.ModTime = time.Unix(0, 0)

	tw := tar.NewWriter(gz)
	add := func(name string, data []byte, mode int64) error {
		hdr := &tar.Header{
			Name:    name,
			Mode:    mode,
			Size:    int64(len(data)),
			ModTime: time.Unix(0, 0),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err := tw.Write(data)
		return err
	}

	// конфиг содержит приватный ключ — режим 0600
	if err := add(username+".conf", conf, 0o600); err != nil {
		_ = tw.Close()
		_ = gz.Close()
		return nil, "", fmt.Errorf("bundle: %w", err)
	}
	if len(qrPNG) > 0 {
		if err := add(username+".png", qrPNG, 0o644); err != nil {
			_ = tw.Close()
			_ = gz.Close()
			return nil, "", fmt.Errorf("bundle: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		_ = gz.Close()
		return nil, "", fmt.Errorf("bundle: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, "", fmt.Errorf("bundle: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	return buf.Bytes(), hex.EncodeToString(sum[:]), nil
}
