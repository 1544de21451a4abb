// Package scheduler runs background jobs on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

type Config struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run. Zero means the interval.
	Timeout time.Duration
	// RunOnStart triggers a run immediately instead of waiting one interval.
	RunOnStart bool
}

// Interval runs a job every Interval until stopped. Runs never overlap.
type Interval struct {
	cfg    Config
	job    Job
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewInterval(cfg Config, job Job, log *zap.Logger) *Interval {
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Interval{cfg: cfg, job: job, logger: log.With(zap.String("job", cfg.Name))}
}

func (s *Interval) Start(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Scheduler started", zap.Duration("interval", s.cfg.Interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight run, up to ctx.
func (s *Interval) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *Interval) loop(ctx context.Context) {
	defer s.wg.Done()

	if s.cfg.RunOnStart {
		s.run(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *Interval) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	if err := s.job(runCtx); err != nil {
		s.logger.Error("Scheduled job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	s.logger.Debug("Scheduled job finished", zap.Duration("duration", time.Since(start)))
}
