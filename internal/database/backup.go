package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	backupPrefix = "siem_config_"
	backupSuffix = ".db"
	backupStamp  = "2006-01-02_15-04-05"

	// DefaultBackupKeep is how many snapshots Prune leaves behind.
	DefaultBackupKeep = 10
)

// ErrBackupUnsupported is returned for drivers whose snapshots belong to the
// database server's own tooling.
var ErrBackupUnsupported = errors.New("database: backups are only supported on sqlite")

// BackupConfig locates snapshot files and bounds how many are retained.
type BackupConfig struct {
	Dir  string
	Keep int
	Now  func() time.Time
}

// Backups writes and rotates SQLite snapshots of the configuration database.
type Backups struct {
	db   *gorm.DB
	dir  string
	keep int
	now  func() time.Time
}

// NewBackups returns a snapshot helper. Keep defaults to DefaultBackupKeep.
func NewBackups(db *gorm.DB, cfg BackupConfig) (*Backups, error) {
	if db == nil {
		return nil, errors.New("backups: database is required")
	}
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, errors.New("backups: directory is required")
	}
	keep := cfg.Keep
	if keep <= 0 {
		keep = DefaultBackupKeep
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Backups{db: db, dir: dir, keep: keep, now: now}, nil
}

// BackupDirFor places snapshots in a backups/ folder beside the sqlite file.
func BackupDirFor(sqlitePath string) string {
	return filepath.Join(filepath.Dir(sqlitePath), "backups")
}

// Supported reports whether the open driver can be snapshotted.
func (b *Backups) Supported() bool {
	return isSQLite(b.db)
}

// Create writes a consistent copy of the live database with VACUUM INTO and
// returns the snapshot's file name.
func (b *Backups) Create(ctx context.Context) (string, error) {
	if !b.Supported() {
		return "", ErrBackupUnsupported
	}
	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	path, err := b.nextPath()
	if err != nil {
		return "", err
	}
	if err := b.db.WithContext(ctx).Exec("VACUUM INTO ?", path).Error; err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return filepath.Base(path), nil
}

// nextPath stamps the name with the current time; snapshots taken within the
// same second get a numeric suffix because VACUUM INTO refuses to overwrite.
func (b *Backups) nextPath() (string, error) {
	stem := backupPrefix + b.now().Format(backupStamp)
	for i := 0; i < 100; i++ {
		name := stem
		if i > 0 {
			name += "_" + strconv.Itoa(i)
		}
		path := filepath.Join(b.dir, name+backupSuffix)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return path, nil
		} else if err != nil {
			return "", fmt.Errorf("stat backup: %w", err)
		}
	}
	return "", fmt.Errorf("backup %s: too many snapshots this second", stem)
}

// List returns snapshot file names, newest first.
func (b *Backups) List() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	type snapshot struct {
		name    string
		modTime time.Time
	}
	var found []snapshot
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, snapshot{name: name, modTime: info.ModTime()})
	}

	sort.Slice(found, func(i, j int) bool {
		if !found[i].modTime.Equal(found[j].modTime) {
			return found[i].modTime.After(found[j].modTime)
		}
		return found[i].name > found[j].name
	})

	names := make([]string, len(found))
	for i := range found {
		names[i] = found[i].name
	}
	return names, nil
}

// Prune deletes every snapshot past the newest Keep and reports how many went.
func (b *Backups) Prune(ctx context.Context) (int, error) {
	names, err := b.List()
	if err != nil {
		return 0, err
	}
	if len(names) <= b.keep {
		return 0, nil
	}

	var (
		removed int
		errs    error
	)
	for _, name := range names[b.keep:] {
		if err := ctx.Err(); err != nil {
			return removed, multierr.Append(errs, err)
		}
		if err := os.Remove(filepath.Join(b.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = multierr.Append(errs, fmt.Errorf("remove %s: %w", name, err))
			continue
		}
		removed++
	}
	return removed, errs
}

// Size reports the on-disk footprint of the database in bytes.
func Size(ctx context.Context, db *gorm.DB) (int64, error) {
	if db == nil {
		return 0, errors.New("database size: nil handle")
	}
	tx := db.WithContext(ctx)

	var size int64
	var err error
	switch db.Dialector.Name() {
	case "sqlite":
		err = tx.Raw("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()").Scan(&size).Error
	case "postgres":
		err = tx.Raw("SELECT pg_database_size(current_database())").Scan(&size).Error
	case "mysql":
		err = tx.Raw("SELECT COALESCE(SUM(data_length + index_length), 0) FROM information_schema.tables WHERE table_schema = DATABASE()").Scan(&size).Error
	default:
		return 0, fmt.Errorf("database size: unsupported driver %q", db.Dialector.Name())
	}
	if err != nil {
		return 0, fmt.Errorf("database size: %w", err)
	}
	return size, nil
}

func isSQLite(db *gorm.DB) bool {
	return db != nil && db.Dialector != nil && db.Dialector.Name() == "sqlite"
}
