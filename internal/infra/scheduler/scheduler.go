package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"lesson_planner_bot/internal/infra/metrics"
)

// SessionJobs is the maintenance work run on a schedule.
type SessionJobs interface {
	RefreshExpiringSessions(ctx context.Context, window time.Duration) (refreshed, failed int, err error)
	PurgeStaleSessions(ctx context.Context, retention time.Duration) (int64, error)
}

// Config holds the cron specs and job parameters.
type Config struct {
	CronSpecRefresh string        // e.g. "*/5 * * * *" (every 5 minutes)
	CronSpecPurge   string        // e.g. "0 3 * * *" (3 AM daily)
	RefreshWindow   time.Duration // Refresh tokens expiring within this window
	Retention       time.Duration // Purge sessions idle for longer than this
}

type SessionScheduler struct {
	cronEngine *cron.Cron
	jobs       SessionJobs
	logger     *logrus.Entry
	cfg        Config
}

func NewSessionScheduler(jobs SessionJobs, cfg Config, logger *logrus.Entry) *SessionScheduler {
	return &SessionScheduler{
		cronEngine: cron.New(cron.WithLocation(time.Local)), // Use server's local time for cron
		jobs:       jobs,
		logger:     logger.WithField("component", "scheduler"),
		cfg:        cfg,
	}
}

// Start registers the jobs and starts the cron engine.
func (s *SessionScheduler) Start() error {
	s.logger.Info("Starting session scheduler...")

	if _, err := s.cronEngine.AddFunc(s.cfg.CronSpecRefresh, s.refreshSessions); err != nil {
		return fmt.Errorf("could not add session refresh cron job: %w", err)
	}
	if _, err := s.cronEngine.AddFunc(s.cfg.CronSpecPurge, s.purgeSessions); err != nil {
		return fmt.Errorf("could not add session purge cron job: %w", err)
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"refresh_spec": s.cfg.CronSpecRefresh,
		"purge_spec":   s.cfg.CronSpecPurge,
	}).Info("Session scheduler started with jobs.")
	return nil
}

func (s *SessionScheduler) refreshSessions() {
	log := s.logger.WithField("job", "session_refresh")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	refreshed, failed, err := s.jobs.RefreshExpiringSessions(ctx, s.cfg.RefreshWindow)
	if err != nil {
		metrics.ScheduledJobRuns.WithLabelValues("session_refresh", "error").Inc()
		log.WithError(err).Error("Error during proactive session refresh")
		return
	}
	metrics.ScheduledJobRuns.WithLabelValues("session_refresh", "success").Inc()
	if refreshed+failed > 0 {
		log.WithFields(logrus.Fields{"refreshed": refreshed, "failed": failed}).Info("Proactive session refresh finished")
	}
}

func (s *SessionScheduler) purgeSessions() {
	log := s.logger.WithField("job", "session_purge")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := s.jobs.PurgeStaleSessions(ctx, s.cfg.Retention)
	if err != nil {
		metrics.ScheduledJobRuns.WithLabelValues("session_purge", "error").Inc()
		log.WithError(err).Error("Error during stale session purge")
		return
	}
	metrics.ScheduledJobRuns.WithLabelValues("session_purge", "success").Inc()
	log.WithField("deleted", n).Info("Stale sessions purged")
}

func (s *SessionScheduler) Stop() {
	s.logger.Info("Stopping session scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Session scheduler gracefully stopped.")
}
