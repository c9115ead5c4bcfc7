package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelsoc/sentinel/internal/repository"
	apperrors "github.com/sentinelsoc/sentinel/pkg/errors"
	"github.com/sentinelsoc/sentinel/pkg/logger"
)

const keyPreviewLength = 8

// KeyLengthBounds constrains the length of a service's API key.
type KeyLengthBounds struct {
	Min int
	Max int
}

// DefaultKeyLengthBounds returns the known key formats of the built-in services.
func DefaultKeyLengthBounds() map[string]KeyLengthBounds {
	return map[string]KeyLengthBounds{
		"abuseipdb":  {Min: 50, Max: 100},
		"virustotal": {Min: 60, Max: 80},
		"shodan":     {Min: 30, Max: 40},
	}
}

// KeyStore is the subset of the repository holding API credentials.
type KeyStore interface {
	SaveKey(ctx context.Context, service, plaintext string) error
	GetKey(ctx context.Context, service string) (string, error)
	ListServices(ctx context.Context) ([]repository.ServiceStatus, error)
	DeleteKey(ctx context.Context, service string) error
	SetActive(ctx context.Context, service string, active bool) error
}

// KeyDescription describes one credential with a short preview of the key.
type KeyDescription struct {
	Service    string  `json:"service"`
	HasKey     bool    `json:"has_key"`
	KeyPreview *string `json:"key_preview"`
}

// KeyStats summarises the credential store.
type KeyStats struct {
	ActiveAPIs int        `json:"active_apis"`
	LastUpdate *time.Time `json:"last_update"`
	DBSize     int64      `json:"db_size"`
}

// SizeFunc reports the database footprint in bytes.
type SizeFunc func(ctx context.Context) (int64, error)

// APIKeyService manages upstream API keys on behalf of administrators.
type APIKeyService struct {
	store    KeyStore
	services []string
	bounds   map[string]KeyLengthBounds
	size     SizeFunc
	log      *zap.Logger
}

// APIKeyOption customises the APIKeyService.
type APIKeyOption func(*APIKeyService)

// WithDatabaseSize lets Stats report how large the database is.
func WithDatabaseSize(fn SizeFunc) APIKeyOption {
	return func(s *APIKeyService) {
		s.size = fn
	}
}

// NewAPIKeyService constructs the service. services lists the names keys may be stored for.
func NewAPIKeyService(store KeyStore, services []string, opts ...APIKeyOption) (*APIKeyService, error) {
	if store == nil {
		return nil, errors.New("api key service: store is required")
	}
	if len(services) == 0 {
		return nil, errors.New("api key service: at least one service is required")
	}

	allowed := make([]string, 0, len(services))
	for _, service := range services {
		allowed = append(allowed, normaliseService(service))
	}

	svc := &APIKeyService{
		store:    store,
		services: allowed,
		bounds:   DefaultKeyLengthBounds(),
		log:      logger.WithModule("apikeys"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Save validates and stores key for service, replacing any previous key.
func (s *APIKeyService) Save(ctx context.Context, service, key string) error {
	ctx = ensureContext(ctx)

	service, err := s.checkService(service)
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return apperrors.NewValidation("Service name and API key required")
	}
	if bounds, ok := s.bounds[service]; ok && (len(key) < bounds.Min || len(key) > bounds.Max) {
		return apperrors.NewValidation(fmt.Sprintf("Invalid API key format for %s", service))
	}

	if err := s.store.SaveKey(ctx, service, key); err != nil {
		return apperrors.NewPersistence(err)
	}
	s.log.Info("api key saved", withActor(ctx, zap.String("service", service))...)
	return nil
}

// Describe reports whether service has a usable key, with a preview of its first characters.
func (s *APIKeyService) Describe(ctx context.Context, service string) (*KeyDescription, error) {
	ctx = ensureContext(ctx)

	service, err := s.checkService(service)
	if err != nil {
		return nil, err
	}

	desc := &KeyDescription{Service: service}
	key, err := s.store.GetKey(ctx, service)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return desc, nil
	case errors.Is(err, repository.ErrCredentialUnusable):
		s.log.Warn("stored api key cannot be decrypted", zap.String("service", service))
		desc.HasKey = true
		return desc, nil
	case err != nil:
		return nil, apperrors.NewPersistence(err)
	}

	desc.HasKey = true
	preview := keyPreview(key)
	desc.KeyPreview = &preview
	return desc, nil
}

// List returns the status of every stored credential.
func (s *APIKeyService) List(ctx context.Context) ([]repository.ServiceStatus, error) {
	statuses, err := s.store.ListServices(ensureContext(ctx))
	if err != nil {
		return nil, apperrors.NewPersistence(err)
	}
	return statuses, nil
}

// Delete removes the key for service. Deleting a missing key succeeds.
func (s *APIKeyService) Delete(ctx context.Context, service string) error {
	service, err := s.checkService(service)
	if err != nil {
		return err
	}
	if err := s.store.DeleteKey(ensureContext(ctx), service); err != nil {
		return apperrors.NewPersistence(err)
	}
	s.log.Info("api key deleted", withActor(ctx, zap.String("service", service))...)
	return nil
}

// SetActive enables or disables the stored key without deleting it.
func (s *APIKeyService) SetActive(ctx context.Context, service string, active bool) error {
	service, err := s.checkService(service)
	if err != nil {
		return err
	}
	if err := s.store.SetActive(ensureContext(ctx), service, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewConfig(service)
		}
		return apperrors.NewPersistence(err)
	}
	s.log.Info("api key status changed", withActor(ctx, zap.String("service", service), zap.Bool("active", active))...)
	return nil
}

// Stats counts active keys, reports the most recent update and, when
// configured, the database size.
func (s *APIKeyService) Stats(ctx context.Context) (*KeyStats, error) {
	statuses, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &KeyStats{}
	for i := range statuses {
		if statuses[i].IsActive {
			stats.ActiveAPIs++
		}
		updated := statuses[i].UpdatedAt
		if stats.LastUpdate == nil || updated.After(*stats.LastUpdate) {
			stats.LastUpdate = &updated
		}
	}

	// A size failure degrades to zero rather than hiding the key counts.
	if s.size != nil {
		size, err := s.size(ctx)
		if err != nil {
			s.log.Warn("database size unavailable", zap.Error(err))
		} else {
			stats.DBSize = size
		}
	}
	return stats, nil
}

func (s *APIKeyService) checkService(service string) (string, error) {
	service = normaliseService(service)
	if service == "" {
		return "", apperrors.NewValidation("Service name required")
	}
	if !containsString(s.services, service) {
		return "", apperrors.NewValidation("Unsupported service: " + service)
	}
	return service, nil
}

func keyPreview(key string) string {
	if len(key) <= keyPreviewLength {
		return strings.Repeat("*", len(key)) + "..."
	}
	return key[:keyPreviewLength] + "..."
}
