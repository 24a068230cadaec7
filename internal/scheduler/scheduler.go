// Package scheduler triggers refresh runs on the configured interval.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/release-tracker/internal/refresh"
	"github.com/JakeFAU/release-tracker/internal/tracker"
)

// Runner executes one refresh cycle.
type Runner interface {
	Run(ctx context.Context) refresh.Result
}

// SettingsReader supplies the stored refresh interval.
type SettingsReader interface {
	Settings(ctx context.Context) (tracker.Settings, error)
}

// Config controls scheduling.
type Config struct {
	// DefaultIntervalHours is used when settings cannot be read.
	DefaultIntervalHours int
	OnStartup            bool
}

// Scheduler runs refreshes until its context ends.
type Scheduler struct {
	runner   Runner
	settings SettingsReader
	cfg      Config
	unit     time.Duration
	logger   *zap.Logger
}

// New creates a Scheduler.
func New(runner Runner, settings SettingsReader, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.DefaultIntervalHours <= 0 {
		cfg.DefaultIntervalHours = 24
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		runner:   runner,
		settings: settings,
		cfg:      cfg,
		unit:     time.Hour,
		logger:   logger,
	}
}

// Run blocks until ctx finishes. The interval is re-read from settings
// before every wait so admin changes apply on the next cycle.
func (s *Scheduler) Run(ctx context.Context) {
	if s.cfg.OnStartup {
		s.runOnce(ctx)
	}
	for {
		wait := s.interval(ctx)
		s.logger.Debug("next refresh scheduled", zap.Duration("in", wait))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res := s.runner.Run(ctx)
	s.logger.Info("scheduled refresh completed",
		zap.String("run_id", res.RunID),
		zap.String("status", res.Status()),
	)
}

func (s *Scheduler) interval(ctx context.Context) time.Duration {
	hours := s.cfg.DefaultIntervalHours
	if s.settings != nil {
		settings, err := s.settings.Settings(ctx)
		switch {
		case err != nil:
			s.logger.Warn("read refresh interval failed, using default", zap.Error(err))
		case settings.RefreshInterval > 0:
			hours = settings.RefreshInterval
		}
	}
	return time.Duration(hours) * s.unit
}
