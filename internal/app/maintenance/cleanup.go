package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sentinelsoc/sentinel/pkg/logger"
	"github.com/sentinelsoc/sentinel/pkg/metrics"
)

const (
	defaultAuditRetentionDays = 90
	defaultSessionSpec        = "@hourly"
	defaultAuditSpec          = "@daily"
	defaultBackupSpec         = "@daily"

	jobSessions = "sessions"
	jobAuthLogs = "auth_logs"
	jobBackups  = "backups"
)

// Store is the subset of the repository the cleaner needs.
type Store interface {
	SweepExpiredSessions(ctx context.Context) (int64, error)
	PruneAuthLogs(ctx context.Context, cutoff time.Time) (int64, error)
}

// BackupPruner rotates database snapshots down to a fixed count.
type BackupPruner interface {
	Prune(ctx context.Context) (int, error)
}

// Cleaner coordinates background maintenance: purging expired sessions,
// pruning auth logs past their retention window and rotating backups.
type Cleaner struct {
	store     Store
	backups   BackupPruner
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int

	sessionSchedule string
	auditSchedule   string
	backupSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for retention cutoffs.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long auth logs are kept. Zero or less keeps them forever.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		cleaner.retention = days
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for auth log retention.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithBackupPruner enables scheduled rotation of database snapshots.
func WithBackupPruner(p BackupPruner) Option {
	return func(cleaner *Cleaner) {
		cleaner.backups = p
	}
}

// WithBackupSchedule overrides the cron specification for backup rotation.
func WithBackupSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.backupSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil store disables every job.
func NewCleaner(store Store, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		store:           store,
		now:             time.Now,
		retention:       defaultAuditRetentionDays,
		sessionSchedule: defaultSessionSpec,
		auditSchedule:   defaultAuditSpec,
		backupSchedule:  defaultBackupSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.store == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
		if err := c.sweepSessions(context.Background()); err != nil {
			c.log.Warn("session cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if err := c.pruneAuthLogs(context.Background()); err != nil {
				c.log.Warn("auth log cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.backups != nil {
		if _, err := c.cron.AddFunc(c.backupSchedule, func() {
			if err := c.pruneBackups(context.Background()); err != nil {
				c.log.Warn("backup rotation failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler; the returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return c.cron.Stop()
}

// RunOnce executes all cleanup routines sequentially and returns every failure.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.store == nil {
		return nil
	}

	var errs error
	errs = multierr.Append(errs, c.sweepSessions(ctx))
	if c.retention > 0 {
		errs = multierr.Append(errs, c.pruneAuthLogs(ctx))
	}
	if c.backups != nil {
		errs = multierr.Append(errs, c.pruneBackups(ctx))
	}
	return errs
}

func (c *Cleaner) sweepSessions(ctx context.Context) error {
	removed, err := c.store.SweepExpiredSessions(ctx)
	record(jobSessions, err)
	if err != nil {
		return err
	}
	if removed > 0 {
		metrics.SessionsSwept.Add(float64(removed))
		c.log.Debug("expired sessions removed", zap.Int64("count", removed))
	}
	return nil
}

func (c *Cleaner) pruneAuthLogs(ctx context.Context) error {
	cutoff := c.now().UTC().AddDate(0, 0, -c.retention)
	removed, err := c.store.PruneAuthLogs(ctx, cutoff)
	record(jobAuthLogs, err)
	if err != nil {
		return err
	}
	if removed > 0 {
		c.log.Info("auth logs pruned", zap.Int64("count", removed), zap.Time("cutoff", cutoff))
	}
	return nil
}

func (c *Cleaner) pruneBackups(ctx context.Context) error {
	removed, err := c.backups.Prune(ctx)
	record(jobBackups, err)
	if err != nil {
		return err
	}
	if removed > 0 {
		c.log.Info("old backups removed", zap.Int("count", removed))
	}
	return nil
}

func record(job string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.MaintenanceRuns.WithLabelValues(job, result).Inc()
}
