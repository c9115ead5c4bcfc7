package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sentinelsoc/sentinel/internal/api"
	"github.com/sentinelsoc/sentinel/internal/app"
	"github.com/sentinelsoc/sentinel/internal/app/maintenance"
	iauth "github.com/sentinelsoc/sentinel/internal/auth"
	"github.com/sentinelsoc/sentinel/internal/database"
	"github.com/sentinelsoc/sentinel/internal/lookup"
	"github.com/sentinelsoc/sentinel/internal/monitoring"
	"github.com/sentinelsoc/sentinel/internal/monitoring/checks"
	"github.com/sentinelsoc/sentinel/internal/repository"
	"github.com/sentinelsoc/sentinel/internal/services"
	"github.com/sentinelsoc/sentinel/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Repo     *repository.Repository
	Users    *services.UserService
	Settings *services.SettingsService
	Backups  *database.Backups
	Broker   *lookup.Broker
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// store is the persistence layer shared by the server and the CLI subcommands.
type store struct {
	DB          *gorm.DB
	Repo        *repository.Repository
	Fingerprint string
}

// openStore opens the database and the credential vault and returns the repository over both.
func openStore(ctx context.Context, cfg *app.Config, log *zap.Logger) (*store, error) {
	db, err := initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	cipher, created, err := app.OpenVault(cfg.Vault)
	if err != nil {
		closeDatabase(db, log)
		return nil, fmt.Errorf("open credential vault: %w", err)
	}
	if created {
		log.Warn("generated new master key; back it up", zap.String("path", cfg.Vault.KeyFile))
	}

	mismatch, err := database.EnsureKeyFingerprint(ctx, db, cipher.Fingerprint())
	if err != nil {
		closeDatabase(db, log)
		return nil, fmt.Errorf("record key fingerprint: %w", err)
	}
	if mismatch {
		log.Warn("master key differs from the one that sealed existing API keys; they will read as not configured until re-saved")
	}

	repo, err := repository.New(db, cipher, cfg.Auth.RepositoryConfig())
	if err != nil {
		closeDatabase(db, log)
		return nil, fmt.Errorf("initialise repository: %w", err)
	}
	return &store{DB: db, Repo: repo, Fingerprint: cipher.Fingerprint()}, nil
}

// bootstrapRuntime initialises the database, services, background jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	stack.DB, stack.Repo = st.DB, st.Repo

	authSvc, err := iauth.NewService(stack.Repo)
	if err != nil {
		return nil, fmt.Errorf("initialise auth service: %w", err)
	}
	stack.Users, err = services.NewUserService(stack.Repo)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}
	db := stack.DB
	keySvc, err := services.NewAPIKeyService(stack.Repo, lookup.ServiceNames(),
		services.WithDatabaseSize(func(ctx context.Context) (int64, error) {
			return database.Size(ctx, db)
		}))
	if err != nil {
		return nil, fmt.Errorf("initialise api key service: %w", err)
	}
	stack.Settings, err = services.NewSettingsService(stack.Repo)
	if err != nil {
		return nil, fmt.Errorf("initialise settings service: %w", err)
	}

	stack.Backups, err = database.NewBackups(stack.DB, database.BackupConfig{
		Dir:  backupDirectory(cfg),
		Keep: cfg.Maintenance.BackupKeep,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise backups: %w", err)
	}
	backupSvc, err := services.NewBackupService(stack.Backups)
	if err != nil {
		return nil, fmt.Errorf("initialise backup service: %w", err)
	}

	stack.Broker, err = lookup.NewBroker(stack.Repo, cfg.Lookup.BrokerConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise lookup broker: %w", err)
	}
	stack.Settings.OnChange(func(s services.Settings) {
		stack.Broker.SetMinInterval(s.OSINTInterval())
	})
	if err := stack.Settings.Apply(ctx); err != nil {
		return nil, fmt.Errorf("apply settings: %w", err)
	}

	result, err := stack.Users.EnsureBootstrapAdmin(ctx, cfg.Auth.BootstrapAdmin())
	if err != nil {
		return nil, err
	}
	if result.Created {
		log.Info("bootstrap administrator created", zap.String("username", result.Username))
		if result.Password != "" {
			// Printed once to the console only; it is never logged.
			fmt.Fprintf(os.Stdout, "\nInitial administrator %q password: %s\nChange it after first login.\n\n", result.Username, result.Password)
		}
	}

	if cfg.Maintenance.Enabled {
		opts := []maintenance.Option{
			maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
			maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
			maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		}
		if stack.Backups.Supported() {
			opts = append(opts,
				maintenance.WithBackupPruner(stack.Backups),
				maintenance.WithBackupSchedule(cfg.Maintenance.BackupSchedule),
			)
		}
		stack.Cleaner = maintenance.NewCleaner(stack.Repo, opts...)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(api.Deps{
		DB:         stack.DB,
		Config:     cfg,
		Auth:       authSvc,
		Users:      stack.Users,
		Keys:       keySvc,
		Settings:   stack.Settings,
		Backups:    backupSvc,
		Broker:     stack.Broker,
		SessionTTL: stack.Repo.SessionTTL(),
		Checks:     []monitoring.Check{checks.KeyFingerprint(st.DB, st.Fingerprint)},
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	var auth app.DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite", "sqlite3":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		auth = cfg.Database.Postgres
	case "mysql", "mariadb":
		dbCfg.Driver = "mysql"
		auth = cfg.Database.MySQL
	default:
		// Unsupported drivers surface as an error from database.Open.
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = auth.Password
	return dbCfg
}

// backupDirectory resolves where snapshots are written. Network drivers have
// no local file, so the fallback sits under ./data.
func backupDirectory(cfg *app.Config) string {
	if dir := strings.TrimSpace(cfg.Maintenance.BackupDir); dir != "" {
		return dir
	}
	path := strings.TrimSpace(cfg.Database.Path)
	if path == "" || path == ":memory:" {
		path = "./data/sentinel.sqlite"
	}
	return database.BackupDirFor(path)
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
