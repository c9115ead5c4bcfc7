package vault

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// KeySize is the size of the master key in bytes.
const KeySize = 32

const (
	keyFileMode = 0o600
	keyDirMode  = 0o700

	// A concurrent creator may not have finished writing when we read.
	readRetries  = 40
	readInterval = 25 * time.Millisecond
)

// MasterKey is the raw key material stored in the key file.
type MasterKey []byte

// GenerateMasterKey generates a cryptographically secure random master key.
func GenerateMasterKey() (MasterKey, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("vault: generate master key: %w", err)
	}
	return MasterKey(key), nil
}

// String returns a safe representation that never includes the key.
func (mk MasterKey) String() string {
	return fmt.Sprintf("MasterKey[%d bytes]", len(mk))
}

// LoadOrCreateKeyFile returns the key stored at path, creating it with
// owner-only permissions when absent. created reports whether this call
// wrote the file. Creation uses O_EXCL so two processes racing on first
// start agree on a single key.
func LoadOrCreateKeyFile(path string) (key MasterKey, created bool, err error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false, errors.New("vault: key file path is required")
	}

	key, err = readKeyFile(path)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		key, err = waitForKeyFile(path)
		return key, false, err
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, keyDirMode); err != nil {
			return nil, false, fmt.Errorf("vault: create key directory: %w", err)
		}
	}

	key, err = GenerateMasterKey()
	if err != nil {
		return nil, false, err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, keyFileMode)
	if errors.Is(err, fs.ErrExist) {
		key, err = waitForKeyFile(path)
		return key, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("vault: create key file: %w", err)
	}

	if _, err := file.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, false, fmt.Errorf("vault: write key file: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return nil, false, fmt.Errorf("vault: sync key file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, false, fmt.Errorf("vault: close key file: %w", err)
	}

	return key, true, nil
}

func waitForKeyFile(path string) (MasterKey, error) {
	var lastErr error
	for i := 0; i < readRetries; i++ {
		key, err := readKeyFile(path)
		if err == nil {
			return key, nil
		}
		lastErr = err
		time.Sleep(readInterval)
	}
	return nil, lastErr
}

func readKeyFile(path string) (MasterKey, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm()&0o077 != 0 {
		if err := os.Chmod(path, keyFileMode); err != nil {
			return nil, fmt.Errorf("vault: restrict key file permissions: %w", err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vault: read key file: %w", err)
	}

	key, err := DecodeMasterKey(string(raw))
	if err != nil {
		return nil, fmt.Errorf("vault: key file %s: %w", path, err)
	}
	return key, nil
}

// DecodeMasterKey accepts hex or base64 key material of exactly KeySize bytes.
func DecodeMasterKey(encoded string) (MasterKey, error) {
	v := strings.TrimSpace(encoded)
	if v == "" {
		return nil, errors.New("key material is empty")
	}

	var decoded []byte
	if b, err := hex.DecodeString(v); err == nil {
		decoded = b
	} else if b, err := base64.StdEncoding.DecodeString(v); err == nil {
		decoded = b
	} else {
		return nil, errors.New("key material is neither hex nor base64")
	}

	if len(decoded) != KeySize {
		return nil, fmt.Errorf("invalid key size: expected %d bytes, got %d", KeySize, len(decoded))
	}
	return MasterKey(decoded), nil
}

// Open loads or creates the key file at path and returns a ready Crypto.
func Open(path string, opts ...Option) (*Crypto, bool, error) {
	key, created, err := LoadOrCreateKeyFile(path)
	if err != nil {
		return nil, false, err
	}
	c, err := NewCrypto(key, opts...)
	if err != nil {
		return nil, false, err
	}
	return c, created, nil
}
