package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const sqliteMemoryDSN = "file::memory:?cache=shared&_foreign_keys=1"

// networkDefaults are the fallbacks applied to a host based backend.
type networkDefaults struct {
	label   string
	host    string
	port    int
	options map[string]string
}

var (
	postgresDefaults = networkDefaults{
		label:   "postgres",
		host:    "localhost",
		port:    5432,
		options: map[string]string{"sslmode": "disable", "TimeZone": "UTC"},
	}
	mysqlDefaults = networkDefaults{
		label:   "mysql",
		host:    "127.0.0.1",
		port:    3306,
		options: map[string]string{"charset": "utf8mb4", "parseTime": "True", "loc": "UTC"},
	}
)

// resolve fills host, port and options from d. Caller supplied options win.
func (d networkDefaults) resolve(cfg Config) (host string, port int, opts []string, err error) {
	if cfg.User == "" || cfg.Name == "" {
		return "", 0, nil, fmt.Errorf("%s configuration requires user and database name", d.label)
	}

	host, port = cfg.Host, cfg.Port
	if host == "" {
		host = d.host
	}
	if port == 0 {
		port = d.port
	}

	merged := make(map[string]string, len(d.options)+len(cfg.Options))
	for k, v := range d.options {
		merged[k] = v
	}
	for k, v := range cfg.Options {
		merged[k] = v
	}
	return host, port, sortedPairs(merged), nil
}

func sortedPairs(values map[string]string) []string {
	pairs := make([]string, 0, len(values))
	for k, v := range values {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}

func postgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	host, port, opts, err := postgresDefaults.resolve(cfg)
	if err != nil {
		return "", err
	}

	parts := []string{
		"host=" + host,
		fmt.Sprintf("port=%d", port),
		"user=" + cfg.User,
		"dbname=" + cfg.Name,
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+cfg.Password)
	}
	return strings.Join(append(parts, opts...), " "), nil
}

func mysqlDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	host, port, opts, err := mysqlDefaults.resolve(cfg)
	if err != nil {
		return "", err
	}

	account := cfg.User
	if cfg.Password != "" {
		account += ":" + cfg.Password
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?%s", account, host, port, cfg.Name, strings.Join(opts, "&")), nil
}

// sqliteDSN returns the connection string for a file or in-memory database.
// The parent directory of a file database is created owner-only since it
// also holds sealed credentials.
func sqliteDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" || strings.EqualFold(path, ":memory:") {
		return sqliteMemoryDSN, nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	return "file:" + filepath.ToSlash(path) + "?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000", nil
}

func dialectorFor(driver string, cfg Config) (gorm.Dialector, error) {
	switch driver {
	case "sqlite", "sqlite3":
		dsn, err := sqliteDSN(cfg)
		if err != nil {
			return nil, err
		}
		return sqlite.Open(dsn), nil
	case "postgres", "postgresql", "pg":
		dsn, err := postgresDSN(cfg)
		if err != nil {
			return nil, err
		}
		return postgres.Open(dsn), nil
	case "mysql", "mariadb":
		dsn, err := mysqlDSN(cfg)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// afterOpen applies per-backend session settings once the pool exists.
func afterOpen(driver string, db *gorm.DB) error {
	if driver != "sqlite" && driver != "sqlite3" {
		return nil
	}
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return errors.Join(errors.New("enable sqlite foreign keys"), err)
	}
	return nil
}
