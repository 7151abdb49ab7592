package wgconf

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile атомарно пишет серверный конфиг: временный файл в том же
// каталоге + rename, чтобы падение посреди записи не оставило живой
// файл обрезанным.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("wgconf: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("wgconf: chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("wgconf: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("wgconf: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("wgconf: rename into place: %w", err)
	}
	return nil
}
