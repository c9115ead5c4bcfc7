package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// MinSaltLength is the shortest salt DeriveKeyArgon2id accepts.
const MinSaltLength = 16

var (
	ErrEmptySecret = errors.New("argon2: secret is required")
	ErrShortSalt   = errors.New("argon2: salt too short")
	ErrBadParams   = errors.New("argon2: invalid parameters")
)

// Argon2Parameters are the Argon2id cost factors. Memory is in KiB.
type Argon2Parameters struct {
	Time      uint32
	Memory    uint32
	Threads   uint8
	KeyLength uint32
}

// DefaultArgon2Params returns the cost used to stretch the vault master key.
func DefaultArgon2Params() Argon2Parameters {
	return Argon2Parameters{Time: 2, Memory: 64 << 10, Threads: 4, KeyLength: 32}
}

// DefaultPasswordParams returns the cost for newly hashed passwords and session tokens.
func DefaultPasswordParams() Argon2Parameters {
	return Argon2Parameters{Time: 4, Memory: 64 << 10, Threads: 1, KeyLength: 32}
}

// Validate reports ErrBadParams when p cannot drive Argon2id or yields a
// key that is not a valid AES key size.
func (p Argon2Parameters) Validate() error {
	var problem string
	switch {
	case p.Time == 0:
		problem = "time cost must be positive"
	case p.Threads == 0:
		problem = "parallelism must be positive"
	case p.Memory < 8*uint32(p.Threads):
		problem = "memory must be at least 8 KiB per thread"
	case p.KeyLength != 16 && p.KeyLength != 24 && p.KeyLength != 32:
		problem = fmt.Sprintf("key length %d is not an AES key size", p.KeyLength)
	default:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrBadParams, problem)
}

// IsZero reports whether no parameter has been set.
func (p Argon2Parameters) IsZero() bool {
	return p == Argon2Parameters{}
}

// DeriveKeyArgon2id stretches secret with salt into a params.KeyLength key.
func DeriveKeyArgon2id(secret, salt []byte, params Argon2Parameters) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if len(salt) < MinSaltLength {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrShortSalt, len(salt), MinSaltLength)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return argon2.IDKey(secret, salt, params.Time, params.Memory, params.Threads, params.KeyLength), nil
}
