// Package repository owns every read and write against the relational store:
// users, sessions, auth logs, encrypted API credentials and settings. Other
// packages depend on it through the methods below and never issue queries
// themselves.
package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sentinelsoc/sentinel/pkg/crypto"
)

const (
	// DefaultSessionTTL is the validity window of a new session.
	DefaultSessionTTL = 24 * time.Hour
	// DefaultLockoutThreshold is the failure count that locks an account.
	DefaultLockoutThreshold = 5
	// DefaultLockoutDuration is how long a lockout lasts.
	DefaultLockoutDuration = 30 * time.Minute

	sessionTokenBytes = 32
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateUser is returned when a username or email is already taken.
	ErrDuplicateUser = errors.New("repository: username or email already exists")
	// ErrSessionInvalid covers unknown, expired and deactivated-owner sessions alike.
	ErrSessionInvalid = errors.New("repository: session invalid")
	// ErrCredentialUnusable is returned when a stored API key cannot be decrypted.
	ErrCredentialUnusable = errors.New("repository: stored credential cannot be decrypted")
)

// Cipher seals API keys at rest.
type Cipher interface {
	EncryptString(plaintext string) (string, error)
	DecryptString(ciphertext string) (string, error)
}

// Config describes tunable behaviour for the Repository.
type Config struct {
	SessionTTL       time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration
	PasswordParams   crypto.Argon2Parameters
	Clock            func() time.Time
}

// Repository is the gorm-backed store for the credential and session core.
type Repository struct {
	db     *gorm.DB
	cipher Cipher

	sessionTTL       time.Duration
	lockoutThreshold int
	lockoutDuration  time.Duration
	passwordParams   crypto.Argon2Parameters
	clock            func() time.Time
}

// New constructs a Repository. cipher may be nil when API credentials are not used.
func New(db *gorm.DB, cipher Cipher, cfg Config) (*Repository, error) {
	if db == nil {
		return nil, errors.New("repository: db is required")
	}

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}

	lockout := cfg.LockoutDuration
	if lockout <= 0 {
		lockout = DefaultLockoutDuration
	}

	params := cfg.PasswordParams
	if params.IsZero() {
		params = crypto.DefaultPasswordParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &Repository{
		db:               db,
		cipher:           cipher,
		sessionTTL:       ttl,
		lockoutThreshold: threshold,
		lockoutDuration:  lockout,
		passwordParams:   params,
		clock:            clock,
	}, nil
}

// SessionTTL returns the configured session validity window.
func (r *Repository) SessionTTL() time.Duration {
	return r.sessionTTL
}

// LockoutThreshold returns the failure count that locks an account.
func (r *Repository) LockoutThreshold() int {
	return r.lockoutThreshold
}

// now returns the clock in UTC; every timestamp the repository writes or compares goes through it.
func (r *Repository) now() time.Time {
	return r.clock().UTC()
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
