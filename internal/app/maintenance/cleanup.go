package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/taskboard/internal/services"
	"github.com/charlesng35/taskboard/pkg/logger"
	"github.com/charlesng35/taskboard/pkg/metrics"
)

const (
	defaultScanSpec              = "@every 15m"
	defaultPurgeSpec             = "@daily"
	defaultDueSoonWindow         = 24 * time.Hour
	defaultNotificationRetention = 90
	defaultActivityRetention     = 90

	jobDueScan = "due_scan"
	jobPurge   = "purge"
)

// ReminderSender scans tasks for due-soon and overdue reminders.
type ReminderSender interface {
	SendDueReminders(ctx context.Context, window time.Duration) (services.ReminderResult, error)
}

// NotificationPurger deletes read notifications created before cutoff.
type NotificationPurger interface {
	PurgeRead(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionCleaner removes expired and revoked refresh sessions.
type SessionCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// ActivityPruner removes activity log entries older than a number of days.
type ActivityPruner interface {
	CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// CachePurger drops expired cache rows.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Dependencies lists the components the maintenance jobs act on. Nil members are skipped.
type Dependencies struct {
	Reminders     ReminderSender
	Notifications NotificationPurger
	Sessions      SessionCleaner
	Activity      ActivityPruner
	Cache         CachePurger
}

// Cleaner runs the due-date scan and the retention purge on cron schedules.
type Cleaner struct {
	deps Dependencies
	cron *cron.Cron
	now  func() time.Time
	log  *zap.Logger

	scanSchedule          string
	purgeSchedule         string
	dueSoonWindow         time.Duration
	notificationRetention int
	activityRetention     int
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

// WithScanSchedule overrides the cron expression for the due-date scan.
func WithScanSchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.scanSchedule = expr
		}
	}
}

// WithPurgeSchedule overrides the cron expression for the retention purge.
func WithPurgeSchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.purgeSchedule = expr
		}
	}
}

// WithDueSoonWindow sets how far ahead the scan looks for upcoming due dates.
func WithDueSoonWindow(window time.Duration) Option {
	return func(cleaner *Cleaner) {
		if window > 0 {
			cleaner.dueSoonWindow = window
		}
	}
}

// WithNotificationRetentionDays sets how long read notifications are kept.
func WithNotificationRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.notificationRetention = days
		}
	}
}

// WithActivityRetentionDays sets how long activity log entries are kept.
func WithActivityRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.activityRetention = days
		}
	}
}

// NewCleaner constructs a Cleaner with default schedules and retention.
func NewCleaner(deps Dependencies, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		deps:                  deps,
		now:                   func() time.Time { return time.Now().UTC() },
		log:                   logger.WithModule("maintenance"),
		scanSchedule:          defaultScanSpec,
		purgeSchedule:         defaultPurgeSpec,
		dueSoonWindow:         defaultDueSoonWindow,
		notificationRetention: defaultNotificationRetention,
		activityRetention:     defaultActivityRetention,
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	}
	return cleaner
}

// Start registers both jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.deps.Reminders != nil {
		if _, err := c.cron.AddFunc(c.scanSchedule, func() {
			_ = c.track(jobDueScan, c.ScanDue(context.Background()))
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", jobDueScan, err)
		}
	}

	if _, err := c.cron.AddFunc(c.purgeSchedule, func() {
		_ = c.track(jobPurge, c.Purge(context.Background()))
	}); err != nil {
		return fmt.Errorf("maintenance: schedule %s: %w", jobPurge, err)
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// ScanDue sends due-soon and overdue reminders.
func (c *Cleaner) ScanDue(ctx context.Context) error {
	if c.deps.Reminders == nil {
		return nil
	}
	result, err := c.deps.Reminders.SendDueReminders(ctx, c.dueSoonWindow)
	if result.DueSoon > 0 || result.Overdue > 0 {
		c.log.Debug("due scan finished", zap.Int("due_soon", result.DueSoon), zap.Int("overdue", result.Overdue))
	}
	return err
}

// Purge enforces retention on notifications, sessions, the activity log and the cache.
// Every step runs even when an earlier one fails.
func (c *Cleaner) Purge(ctx context.Context) error {
	var errs error

	if c.deps.Notifications != nil {
		cutoff := c.now().AddDate(0, 0, -c.notificationRetention)
		removed, err := c.deps.Notifications.PurgeRead(ctx, cutoff)
		errs = multierr.Append(errs, c.wrap("purge notifications", removed, err))
	}
	if c.deps.Sessions != nil {
		removed, err := c.deps.Sessions.CleanupExpired(ctx)
		errs = multierr.Append(errs, c.wrap("cleanup sessions", removed, err))
	}
	if c.deps.Activity != nil {
		removed, err := c.deps.Activity.CleanupOlderThan(ctx, c.activityRetention)
		errs = multierr.Append(errs, c.wrap("prune activity", removed, err))
	}
	if c.deps.Cache != nil {
		removed, err := c.deps.Cache.PurgeExpired(ctx)
		errs = multierr.Append(errs, c.wrap("purge cache", removed, err))
	}

	return errs
}

// RunOnce executes both jobs sequentially. Used on shutdown and in tests.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return multierr.Combine(
		c.track(jobDueScan, c.ScanDue(ctx)),
		c.track(jobPurge, c.Purge(ctx)),
	)
}

func (c *Cleaner) wrap(step string, removed int64, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	if removed > 0 {
		c.log.Info(step, zap.Int64("removed", removed))
	}
	return nil
}

func (c *Cleaner) track(job string, err error) error {
	result := "success"
	if err != nil {
		result = "failure"
		c.log.Warn("maintenance job failed", zap.String("job", job), zap.Error(err))
	}
	metrics.MaintenanceRuns.WithLabelValues(job, result).Inc()
	return err
}
