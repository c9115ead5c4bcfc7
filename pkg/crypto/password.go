package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const passwordSaltLength = 16

// ErrMalformedHash is returned when a stored password hash cannot be parsed.
var ErrMalformedHash = errors.New("crypto: malformed password hash")

// HashPassword returns an Argon2id hash of password in PHC string format.
func HashPassword(password string) (string, error) {
	return HashPasswordWithParams(password, DefaultPasswordParams())
}

// HashPasswordWithParams is HashPassword with explicit cost parameters.
func HashPasswordWithParams(password string, params Argon2Parameters) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	salt := make([]byte, passwordSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		params.Memory, params.Time, params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword compares the stored hash with the plaintext candidate.
// Argon2id PHC strings and legacy bcrypt hashes are accepted.
func VerifyPassword(hashedPassword, password string) bool {
	switch {
	case strings.HasPrefix(hashedPassword, "$argon2id$"):
		ok, err := verifyArgon2id(hashedPassword, password)
		return err == nil && ok
	case strings.HasPrefix(hashedPassword, "$2a$"),
		strings.HasPrefix(hashedPassword, "$2b$"),
		strings.HasPrefix(hashedPassword, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
	default:
		return false
	}
}

func verifyArgon2id(encoded, password string) (bool, error) {
	// $argon2id$v=19$m=65536,t=4,p=1$<salt>$<hash>
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrMalformedHash
	}

	var params Argon2Parameters
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil {
		return false, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrMalformedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false, ErrMalformedHash
	}
	params.KeyLength = uint32(len(want))
	if params.Time == 0 || params.Threads == 0 {
		return false, ErrMalformedHash
	}

	got := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLength)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
