package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/clubhouse/internal/monitoring"
	"github.com/charlesng35/clubhouse/internal/ratelimit"
	"github.com/charlesng35/clubhouse/internal/services"
	"github.com/charlesng35/clubhouse/pkg/logger"
	"github.com/charlesng35/clubhouse/pkg/metrics"
)

const (
	defaultAuditRetentionDays = 90
	defaultSessionSpec        = "@hourly"
	defaultOTPSpec            = "@every 15m"
	defaultAuditSpec          = "@daily"
	defaultRateLimitSpec      = "@every 5m"
)

// ExpiredSweeper deletes rows whose deadline has passed.
type ExpiredSweeper interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Cleaner coordinates background maintenance: purging expired sessions and one-time codes,
// pruning stale audit logs and dropping refilled rate-limit buckets. Every job only removes
// entries past their deadline, so it may run alongside live traffic.
type Cleaner struct {
	sessions  ExpiredSweeper
	otps      ExpiredSweeper
	audit     *services.AuditService
	limiters  *ratelimit.Registry
	tracker   *monitoring.JobTracker
	cron      *cron.Cron
	log       *zap.Logger
	retention int

	sessionSchedule   string
	otpSchedule       string
	auditSchedule     string
	rateLimitSchedule string
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) (int64, error)
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

// WithTracker records every run so the maintenance health probe can report on it.
func WithTracker(tracker *monitoring.JobTracker) Option {
	return func(cleaner *Cleaner) {
		cleaner.tracker = tracker
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(cleaner *Cleaner) {
		if log != nil {
			cleaner.log = log
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSessionSchedule overrides the cron expression for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithOTPSchedule overrides the cron expression for one-time code cleanup.
func WithOTPSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.otpSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron expression for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithRateLimitSchedule overrides the cron expression for limiter bucket cleanup.
func WithRateLimitSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.rateLimitSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding cleanup job being skipped.
func NewCleaner(sessions, otps ExpiredSweeper, audit *services.AuditService, limiters *ratelimit.Registry, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:          sessions,
		otps:              otps,
		audit:             audit,
		limiters:          limiters,
		retention:         defaultAuditRetentionDays,
		sessionSchedule:   defaultSessionSpec,
		otpSchedule:       defaultOTPSpec,
		auditSchedule:     defaultAuditSpec,
		rateLimitSchedule: defaultRateLimitSpec,
		log:               logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.sessions != nil {
		jobs = append(jobs, job{name: "sessions", schedule: c.sessionSchedule, run: c.sessions.CleanupExpired})
	}
	if c.otps != nil {
		jobs = append(jobs, job{name: "otps", schedule: c.otpSchedule, run: c.otps.CleanupExpired})
	}
	if c.audit != nil && c.retention > 0 {
		jobs = append(jobs, job{name: "audit", schedule: c.auditSchedule, run: func(ctx context.Context) (int64, error) {
			return c.audit.CleanupOlderThan(ctx, c.retention)
		}})
	}
	if c.limiters != nil {
		jobs = append(jobs, job{name: "rate_limits", schedule: c.rateLimitSchedule, run: func(context.Context) (int64, error) {
			return int64(c.limiters.Cleanup()), nil
		}})
	}
	return jobs
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		j := j
		c.tracker.Register(j.name)
		if _, err := c.cron.AddFunc(j.schedule, func() {
			_ = c.execute(context.Background(), j)
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s cleanup: %w", j.name, err)
		}
	}

	c.cron.Start()
	c.log.Info("maintenance scheduler started", zap.Int("jobs", len(jobs)))
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially, continuing past failures.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		errs = multierr.Append(errs, c.execute(ctx, j))
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	started := time.Now()
	removed, err := j.run(ctx)
	c.tracker.Record(j.name, err, time.Now())
	if err != nil {
		c.log.Error("cleanup failed", zap.String("job", j.name), zap.Error(err))
		return fmt.Errorf("maintenance: %s: %w", j.name, err)
	}

	if removed > 0 {
		metrics.MaintenanceRemoved.WithLabelValues(j.name).Add(float64(removed))
	}
	c.log.Debug("cleanup finished",
		zap.String("job", j.name),
		zap.Int64("removed", removed),
		zap.Duration("took", time.Since(started)),
	)
	return nil
}
