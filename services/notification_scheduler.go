package services

import (
	"context"
	"time"

	"prepxiq_go/models"
	"prepxiq_go/services/notifications"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	notificationRunTimeout = 30 * time.Minute
	cleanupRunTimeout      = 10 * time.Minute
)

// NotificationRunner is the engine entry point used by the scheduler.
type NotificationRunner interface {
	RunAllNotifications(ctx context.Context, trigger models.TriggerSource) (notifications.BatchNotificationResult, error)
}

// LogCleaner is the retention job used by the scheduler.
type LogCleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (CleanupReport, error)
}

// SchedulerConfig holds the cron specs and retention window.
type SchedulerConfig struct {
	NotificationSpec string
	CleanupSpec      string
	RetentionDays    int
	Location         *time.Location
}

// NotificationScheduler triggers the daily notification run and log retention.
type NotificationScheduler struct {
	cron    *cron.Cron
	runner  NotificationRunner
	cleaner LogCleaner
	cfg     SchedulerConfig
}

func NewNotificationScheduler(runner NotificationRunner, cleaner LogCleaner, cfg SchedulerConfig) *NotificationScheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &NotificationScheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		runner:  runner,
		cleaner: cleaner,
		cfg:     cfg,
	}
}

// Start registers the jobs and starts the cron loop.
func (ns *NotificationScheduler) Start() error {
	if ns.runner != nil && ns.cfg.NotificationSpec != "" {
		if _, err := ns.cron.AddFunc(ns.cfg.NotificationSpec, ns.RunNotifications); err != nil {
			return err
		}
	}
	if ns.cleaner != nil && ns.cfg.CleanupSpec != "" {
		if _, err := ns.cron.AddFunc(ns.cfg.CleanupSpec, ns.RunCleanup); err != nil {
			return err
		}
	}
	ns.cron.Start()
	logrus.WithFields(logrus.Fields{
		"notification_schedule": ns.cfg.NotificationSpec,
		"cleanup_schedule":      ns.cfg.CleanupSpec,
		"retention_days":        ns.cfg.RetentionDays,
	}).Info("Notification scheduler started")
	return nil
}

// Stop waits for running jobs to finish or ctx to expire.
func (ns *NotificationScheduler) Stop(ctx context.Context) {
	done := ns.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logrus.Warn("Notification scheduler stop timed out")
	}
}

// RunNotifications is the daily automatic run.
func (ns *NotificationScheduler) RunNotifications() {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("scheduled notification run panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), notificationRunTimeout)
	defer cancel()

	result, err := ns.runner.RunAllNotifications(ctx, models.TriggerAutomatic)
	if err != nil {
		logrus.WithError(err).Error("scheduled notification run failed")
		return
	}
	logrus.WithFields(logrus.Fields{
		"total_sent":   result.TotalSent,
		"total_failed": result.TotalFailed,
		"note":         result.Note,
	}).Info("scheduled notification run finished")
}

// RunCleanup is the daily retention pass.
func (ns *NotificationScheduler) RunCleanup() {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("scheduled log cleanup panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), cleanupRunTimeout)
	defer cancel()

	if _, err := ns.cleaner.Cleanup(ctx, ns.cfg.RetentionDays); err != nil {
		logrus.WithError(err).Error("scheduled log cleanup failed")
	}
}

// Entries reports the next run time of each job.
func (ns *NotificationScheduler) Entries() []time.Time {
	entries := ns.cron.Entries()
	out := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Next)
	}
	return out
}
