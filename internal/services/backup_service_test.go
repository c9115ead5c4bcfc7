package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentinelsoc/sentinel/internal/database"
	apperrors "github.com/sentinelsoc/sentinel/pkg/errors"
)

type stubSnapshotter struct {
	name      string
	removed   int
	createErr error
	pruneErr  error
}

func (s *stubSnapshotter) Create(context.Context) (string, error) {
	return s.name, s.createErr
}

func (s *stubSnapshotter) Prune(context.Context) (int, error) {
	return s.removed, s.pruneErr
}

func TestBackupServiceCreate(t *testing.T) {
	svc, err := NewBackupService(&stubSnapshotter{name: "siem_config_2024-05-20_09-30-15.db"})
	require.NoError(t, err)

	name, err := svc.Create(context.Background())
	require.NoError(t, err)
	require.Equal(t, "siem_config_2024-05-20_09-30-15.db", name)
}

func TestBackupServiceMapsUnsupportedDriver(t *testing.T) {
	svc, err := NewBackupService(&stubSnapshotter{createErr: database.ErrBackupUnsupported})
	require.NoError(t, err)

	_, err = svc.Create(context.Background())
	require.Equal(t, apperrors.KindConfig, apperrors.KindOf(err))

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "BACKUP_UNSUPPORTED", appErr.Code)
	require.Equal(t, 400, appErr.StatusCode)
}

func TestBackupServiceHidesStorageFailures(t *testing.T) {
	svc, err := NewBackupService(&stubSnapshotter{
		createErr: errors.New("disk full"),
		removed:   2,
		pruneErr:  fmt.Errorf("remove siem_config_old.db: %w", errors.New("permission denied")),
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background())
	require.Equal(t, apperrors.KindPersistence, apperrors.KindOf(err))
	require.NotContains(t, apperrors.FromError(err).Message, "disk full")

	removed, err := svc.Cleanup(context.Background())
	require.Equal(t, apperrors.KindPersistence, apperrors.KindOf(err))
	require.Equal(t, 2, removed)
}

func TestNewBackupServiceRequiresSnapshotter(t *testing.T) {
	_, err := NewBackupService(nil)
	require.Error(t, err)
}
