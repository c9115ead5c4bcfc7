package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sentinelsoc/sentinel/pkg/crypto"
)

const defaultSaltLength = 16

// ErrDecrypt is returned for ciphertext that is malformed or was sealed with
// another key. Callers must treat it as an unusable credential, never as an
// empty one.
var ErrDecrypt = errors.New("vault crypto: unable to decrypt value")

// Crypto seals short secrets (API keys) with AES-256-GCM under a key derived
// from the master key file.
type Crypto struct {
	key         []byte
	salt        []byte
	params      crypto.Argon2Parameters
	fingerprint string
}

type cryptoConfig struct {
	params crypto.Argon2Parameters
	salt   []byte
}

// Option configures the vault crypto helper.
type Option func(*cryptoConfig)

// WithSalt overrides the salt used for Argon2 key derivation.
func WithSalt(salt []byte) Option {
	cp := make([]byte, len(salt))
	copy(cp, salt)
	return func(cfg *cryptoConfig) {
		cfg.salt = cp
	}
}

// WithArgon2Parameters overrides the Argon2 parameters used during key derivation.
func WithArgon2Parameters(params crypto.Argon2Parameters) Option {
	return func(cfg *cryptoConfig) {
		cfg.params = params
	}
}

// NewCrypto derives an AES key from the provided master key using Argon2id.
func NewCrypto(masterKey []byte, opts ...Option) (*Crypto, error) {
	if len(masterKey) == 0 {
		return nil, errors.New("vault crypto: master key is required")
	}

	cfg := cryptoConfig{
		params: crypto.DefaultArgon2Params(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if len(cfg.salt) == 0 {
		cfg.salt = deriveSalt(masterKey)
	} else if len(cfg.salt) < defaultSaltLength {
		return nil, fmt.Errorf("vault crypto: salt must be at least %d bytes (got %d)", defaultSaltLength, len(cfg.salt))
	}

	derived, err := crypto.DeriveKeyArgon2id(masterKey, cfg.salt, cfg.params)
	if err != nil {
		return nil, fmt.Errorf("vault crypto: derive key: %w", err)
	}

	return &Crypto{
		key:         derived,
		salt:        append([]byte(nil), cfg.salt...),
		params:      cfg.params,
		fingerprint: fingerprint(masterKey),
	}, nil
}

// EncryptString seals plaintext with a fresh random nonce and returns
// base64(nonce || ciphertext).
func (c *Crypto) EncryptString(plaintext string) (string, error) {
	if c == nil || len(c.key) == 0 {
		return "", errors.New("vault crypto: key is not initialised")
	}
	return crypto.Encrypt([]byte(plaintext), c.key)
}

// DecryptString opens a value produced by EncryptString. Any failure is
// reported as ErrDecrypt.
func (c *Crypto) DecryptString(ciphertext string) (string, error) {
	if c == nil || len(c.key) == 0 {
		return "", errors.New("vault crypto: key is not initialised")
	}
	plaintext, err := crypto.Decrypt(ciphertext, c.key)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

// Fingerprint identifies the master key without revealing it.
func (c *Crypto) Fingerprint() string {
	return c.fingerprint
}

// Salt returns a copy of the salt used during derivation.
func (c *Crypto) Salt() []byte {
	return append([]byte(nil), c.salt...)
}

// Parameters returns the Argon2 parameters used during derivation.
func (c *Crypto) Parameters() crypto.Argon2Parameters {
	return c.params
}

func deriveSalt(masterKey []byte) []byte {
	sum := sha256.Sum256(masterKey)
	return sum[:defaultSaltLength]
}

func fingerprint(masterKey []byte) string {
	h := sha256.New()
	h.Write([]byte("sentinel/key-fingerprint/v1"))
	h.Write(masterKey)
	return hex.EncodeToString(h.Sum(nil)[:8])
}
