// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sentinelsoc/sentinel/internal/database"
)

type schemaLevel int

const (
	schemaNone schemaLevel = iota
	schemaMigrated
	schemaSeeded
)

// TestDBOption raises how far MustOpenTestDB prepares the schema.
type TestDBOption func(*schemaLevel)

// WithAutoMigrate creates every table.
func WithAutoMigrate() TestDBOption {
	return func(l *schemaLevel) { *l = max(*l, schemaMigrated) }
}

// WithSeedData creates every table and inserts the default settings.
func WithSeedData() TestDBOption {
	return func(l *schemaLevel) { *l = max(*l, schemaSeeded) }
}

// MustOpenTestDB returns a private in-memory SQLite database closed at test
// cleanup. The pool is pinned to one connection so concurrent writers in a
// test queue up rather than hit shared-cache table locks.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	level := schemaNone
	for _, opt := range opts {
		opt(&level)
	}

	db, err := database.Open(database.Config{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1",
	})
	require.NoError(t, err)

	pool, err := db.DB()
	require.NoError(t, err)
	pool.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = pool.Close() })

	switch level {
	case schemaSeeded:
		require.NoError(t, database.AutoMigrateAndSeed(db))
	case schemaMigrated:
		require.NoError(t, database.AutoMigrate(db))
	}
	return db
}
