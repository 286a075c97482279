// Package jobs runs periodic maintenance in the background.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/pkg/logger"
)

const jobTimeout = 30 * time.Second

// SessionReaper drops expired sessions.
type SessionReaper interface {
	ReapExpired(ctx context.Context) (int, error)
}

// UsageRefresher republishes usage gauges.
type UsageRefresher interface {
	RefreshMetrics(ctx context.Context)
}

// Scheduler runs the session reaper and the usage gauge refresh on cron
// schedules.
type Scheduler struct {
	cron     *cron.Cron
	sessions SessionReaper
	usage    UsageRefresher
	log      *logger.Logger
}

// NewScheduler creates a scheduler. A panicking job is logged and recovered.
func NewScheduler(sessions SessionReaper, usage UsageRefresher, log *logger.Logger) *Scheduler {
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		sessions: sessions,
		usage:    usage,
		log:      log,
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Start registers both jobs and starts the cron loop. Specs use the standard
// five-field syntax or descriptors such as "@every 5m".
func (s *Scheduler) Start(reapSpec, usageSpec string) error {
	if _, err := s.cron.AddFunc(reapSpec, s.reapSessions); err != nil {
		return fmt.Errorf("schedule session reaper: %w", err)
	}
	if _, err := s.cron.AddFunc(usageSpec, s.refreshUsage); err != nil {
		return fmt.Errorf("schedule usage metrics: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) reapSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	removed, err := s.sessions.ReapExpired(ctx)
	if err != nil {
		s.log.Error("session reaper failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.log.Info("expired sessions removed", zap.Int("count", removed))
	}
}

func (s *Scheduler) refreshUsage() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	s.usage.RefreshMetrics(ctx)
}
