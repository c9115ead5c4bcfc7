package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm/clause"

	"github.com/sentinelsoc/sentinel/internal/models"
)

// ServiceStatus describes a stored credential without exposing it.
type ServiceStatus struct {
	ServiceName string    `json:"service_name"`
	HasKey      bool      `json:"has_key"`
	IsActive    bool      `json:"is_active"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func normaliseService(service string) string {
	return strings.ToLower(strings.TrimSpace(service))
}

func (r *Repository) requireCipher() error {
	if r.cipher == nil {
		return errors.New("repository: no cipher configured for API credentials")
	}
	return nil
}

// SaveKey encrypts plaintext and upserts it for service. Saving over an
// existing row replaces the key and re-activates it.
func (r *Repository) SaveKey(ctx context.Context, service, plaintext string) error {
	service = normaliseService(service)
	if service == "" || plaintext == "" {
		return errors.New("repository: service and key are required")
	}
	if err := r.requireCipher(); err != nil {
		return err
	}

	ciphertext, err := r.cipher.EncryptString(plaintext)
	if err != nil {
		return fmt.Errorf("repository: encrypt api key: %w", err)
	}

	now := r.now()
	row := &models.APICredential{
		ServiceName: service,
		Ciphertext:  ciphertext,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "service_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"api_key", "is_active", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("repository: save api key: %w", err)
	}
	return nil
}

// GetKey returns the decrypted key of an active credential.
func (r *Repository) GetKey(ctx context.Context, service string) (string, error) {
	if err := r.requireCipher(); err != nil {
		return "", err
	}

	var row models.APICredential
	err := r.db.WithContext(ctx).
		Where("service_name = ? AND is_active = ?", normaliseService(service), true).
		Take(&row).Error
	if err != nil {
		return "", notFound(err)
	}

	plaintext, err := r.cipher.DecryptString(row.Ciphertext)
	if err != nil || plaintext == "" {
		return "", ErrCredentialUnusable
	}
	return plaintext, nil
}

// ListServices reports every stored credential, active or not.
func (r *Repository) ListServices(ctx context.Context) ([]ServiceStatus, error) {
	var rows []models.APICredential
	if err := r.db.WithContext(ctx).Order("service_name ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("repository: list api keys: %w", err)
	}

	out := make([]ServiceStatus, 0, len(rows))
	for _, row := range rows {
		out = append(out, ServiceStatus{
			ServiceName: row.ServiceName,
			HasKey:      row.Ciphertext != "",
			IsActive:    row.IsActive,
			UpdatedAt:   row.UpdatedAt,
		})
	}
	return out, nil
}

// DeleteKey removes the credential for service. Missing rows are not an error.
func (r *Repository) DeleteKey(ctx context.Context, service string) error {
	err := r.db.WithContext(ctx).
		Where("service_name = ?", normaliseService(service)).
		Delete(&models.APICredential{}).Error
	if err != nil {
		return fmt.Errorf("repository: delete api key: %w", err)
	}
	return nil
}

// SetActive enables or disables the credential for service.
func (r *Repository) SetActive(ctx context.Context, service string, active bool) error {
	res := r.db.WithContext(ctx).Model(&models.APICredential{}).
		Where("service_name = ?", normaliseService(service)).
		UpdateColumns(map[string]any{
			"is_active":  active,
			"updated_at": r.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("repository: set api key active: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
