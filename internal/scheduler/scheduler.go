package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Sweeper drops entries idle for longer than maxIdle and returns how many were dropped.
type Sweeper interface {
	Sweep(maxIdle time.Duration) int
}

// Target is a named sweeper with its own idle limit.
type Target struct {
	Name    string
	Sweeper Sweeper
	MaxIdle time.Duration
}

// Scheduler periodically evicts idle sessions and rate limiter visitors.
type Scheduler struct {
	scheduler *gocron.Scheduler
	targets   []Target
	interval  time.Duration
	logger    *zap.Logger
}

// New creates a new Scheduler.
func New(interval time.Duration, logger *zap.Logger, targets ...Target) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		targets:   targets,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.targets) == 0 {
		s.logger.Info("scheduler: nothing to sweep")
		return nil
	}

	interval := s.interval
	if interval <= 0 {
		interval = time.Minute
	}

	_, err := s.scheduler.Every(interval).Do(s.RunOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce sweeps every target once.
func (s *Scheduler) RunOnce() {
	for _, t := range s.targets {
		if n := t.Sweeper.Sweep(t.MaxIdle); n > 0 {
			s.logger.Info("scheduler: swept idle entries", zap.String("target", t.Name), zap.Int("removed", n))
		}
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
