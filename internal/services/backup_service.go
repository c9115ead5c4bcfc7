package services

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sentinelsoc/sentinel/internal/database"
	apperrors "github.com/sentinelsoc/sentinel/pkg/errors"
	"github.com/sentinelsoc/sentinel/pkg/logger"
)

// Snapshotter writes and rotates database backups.
type Snapshotter interface {
	Create(ctx context.Context) (string, error)
	Prune(ctx context.Context) (int, error)
}

// BackupService lets administrators snapshot the configuration database on demand.
type BackupService struct {
	backups Snapshotter
	log     *zap.Logger
}

// NewBackupService constructs the service.
func NewBackupService(backups Snapshotter) (*BackupService, error) {
	if backups == nil {
		return nil, errors.New("backup service: snapshotter is required")
	}
	return &BackupService{backups: backups, log: logger.WithModule("backups")}, nil
}

// Create writes a new snapshot and returns its file name.
func (s *BackupService) Create(ctx context.Context) (string, error) {
	ctx = ensureContext(ctx)

	name, err := s.backups.Create(ctx)
	if errors.Is(err, database.ErrBackupUnsupported) {
		return "", apperrors.New(apperrors.KindConfig, "BACKUP_UNSUPPORTED",
			"Backups are only available with the sqlite driver", http.StatusBadRequest)
	}
	if err != nil {
		return "", apperrors.NewPersistence(err)
	}
	s.log.Info("database backup created", withActor(ctx, zap.String("file", name))...)
	return name, nil
}

// Cleanup removes old snapshots, keeping the newest ones.
func (s *BackupService) Cleanup(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)

	removed, err := s.backups.Prune(ctx)
	if err != nil {
		return removed, apperrors.NewPersistence(err)
	}
	s.log.Info("database backups pruned", withActor(ctx, zap.Int("removed", removed))...)
	return removed, nil
}
