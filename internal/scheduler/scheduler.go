// Package scheduler runs the periodic maintenance of the planning server:
// the nightly backup with retention cleanup, the expired session sweep and
// the log retention purge. It wraps gocron; jobs run in singleton mode so a
// slow run is never overlapped by the next tick.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/planhub-io/planhub/internal/auth"
	"github.com/planhub-io/planhub/internal/backup"
	"github.com/planhub-io/planhub/internal/repository"
)

// Config tunes the scheduled jobs.
type Config struct {
	// BackupHour is the local hour (0-23) of the daily backup. Default 2.
	BackupHour int

	// RetentionDays is how long backups are kept. Default 30.
	RetentionDays int

	// SweepInterval is how often expired sessions are swept. Default 5m.
	SweepInterval time.Duration

	// LogRetentionDays is how long audit and request log entries are kept.
	// Default 90.
	LogRetentionDays int
}

// Scheduler owns the background jobs. The zero value is not usable; create
// instances with New and call Start once.
type Scheduler struct {
	cron     gocron.Scheduler
	backups  *backup.Service
	auth     *auth.Service
	activity *repository.ActivityRepository
	requests *repository.RequestLogRepository
	cfg      Config
	log      *zap.Logger
}

// New creates a Scheduler. Call Start to begin processing.
func New(
	backups *backup.Service,
	authSvc *auth.Service,
	activity *repository.ActivityRepository,
	requests *repository.RequestLogRepository,
	cfg Config,
	log *zap.Logger,
) (*Scheduler, error) {
	if cfg.BackupHour < 0 || cfg.BackupHour > 23 {
		return nil, fmt.Errorf("scheduler: backup hour %d out of range", cfg.BackupHour)
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.LogRetentionDays <= 0 {
		cfg.LogRetentionDays = 90
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: creating gocron scheduler: %w", err)
	}

	return &Scheduler{
		cron:     cron,
		backups:  backups,
		auth:     authSvc,
		activity: activity,
		requests: requests,
		cfg:      cfg,
		log:      log.Named("scheduler"),
	}, nil
}

// Start registers the jobs and starts the underlying scheduler. Call once
// at server startup, after the database is ready.
func (s *Scheduler) Start() error {
	_, err := s.cron.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(
			gocron.NewAtTime(uint(s.cfg.BackupHour), 0, 0),
		)),
		gocron.NewTask(s.runDailyBackup),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("daily-backup"),
	)
	if err != nil {
		return fmt.Errorf("scheduler: registering daily backup: %w", err)
	}

	_, err = s.cron.NewJob(
		gocron.DurationJob(s.cfg.SweepInterval),
		gocron.NewTask(s.runSessionSweep),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("session-sweep"),
	)
	if err != nil {
		return fmt.Errorf("scheduler: registering session sweep: %w", err)
	}

	// Purges run an hour after the backup so the nightly snapshot still
	// holds the entries about to be dropped.
	_, err = s.cron.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(
			gocron.NewAtTime(uint((s.cfg.BackupHour+1)%24), 0, 0),
		)),
		gocron.NewTask(s.runLogRetention),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("log-retention"),
	)
	if err != nil {
		return fmt.Errorf("scheduler: registering log retention: %w", err)
	}

	s.cron.Start()
	s.log.Info("scheduler started",
		zap.Int("backup_hour", s.cfg.BackupHour),
		zap.Int("retention_days", s.cfg.RetentionDays),
		zap.Duration("sweep_interval", s.cfg.SweepInterval),
		zap.Int("log_retention_days", s.cfg.LogRetentionDays))
	return nil
}

// Shutdown stops the scheduler, waiting for any running job to finish.
func (s *Scheduler) Shutdown() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown: %w", err)
	}
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) runDailyBackup() {
	info, err := s.backups.Create("Sauvegarde automatique")
	if err != nil {
		s.log.Error("automatic backup failed", zap.Error(err))
		return
	}
	s.log.Info("automatic backup done", zap.String("file", info.Filename))

	if _, err := s.backups.Cleanup(s.cfg.RetentionDays); err != nil {
		s.log.Error("backup cleanup failed", zap.Error(err))
	}
}

// runLogRetention drops audit and request log entries older than the
// configured retention.
func (s *Scheduler) runLogRetention() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.LogRetentionDays)

	purgedActivity, err := s.activity.PurgeBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("activity log purge failed", zap.Error(err))
	}
	purgedRequests, err := s.requests.PurgeBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("request log purge failed", zap.Error(err))
	}
	if purgedActivity > 0 || purgedRequests > 0 {
		s.log.Info("log retention purge done",
			zap.Int64("activity_entries", purgedActivity),
			zap.Int64("request_entries", purgedRequests),
			zap.Time("cutoff", cutoff))
	}
}

func (s *Scheduler) runSessionSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.auth.SweepExpiredSessions(ctx); err != nil {
		s.log.Error("session sweep failed", zap.Error(err))
	}
}
