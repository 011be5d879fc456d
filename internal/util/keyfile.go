package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const keyFileMode = 0o600

// LoadOrCreateKey reads the hex key stored at path, generating and
// persisting a new one on first run. The file is owner read/write only.
func LoadOrCreateKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key := strings.TrimSpace(string(data))
		if len(key) != 2*keyBytes {
			return "", fmt.Errorf("key file %s: expected %d hex chars, got %d", path, 2*keyBytes, len(key))
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read key file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create key dir: %w", err)
	}

	key, err := GenerateKey()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}

	if err := persistKey(path, key); err != nil {
		return "", err
	}
	return key, nil
}

// writeKey is replaced in tests to simulate a failing disk.
var writeKey = func(w io.Writer, key string) error {
	_, err := io.WriteString(w, key)
	return err
}

// persistKey creates path exclusively and writes key to it. On any write,
// sync or close failure the partial file is removed so the next start
// generates a fresh key instead of failing on a truncated one.
func persistKey(path, key string) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, keyFileMode)
	if err != nil {
		return fmt.Errorf("create key file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if err := writeKey(f, key); err != nil {
		f.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close key file: %w", err)
	}
	return nil
}
