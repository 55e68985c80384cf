// Package sweeper drives the time-based booking transitions on a fixed interval.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Engine runs the two sweep passes.
type Engine interface {
	RunActivationSweep(ctx context.Context) (int, error)
	RunCompletionSweep(ctx context.Context) (int, error)
}

// Result reports how many bookings one run moved.
type Result struct {
	Activated int `json:"activated"`
	Completed int `json:"completed"`
}

// Sweeper runs activation then completion every interval.
type Sweeper struct {
	engine   Engine
	interval time.Duration
	logger   *zap.Logger
	mu       sync.Mutex
}

// New builds a sweeper. A non-positive interval defaults to one minute.
func New(engine Engine, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{engine: engine, interval: interval, logger: logger}
}

// Start runs one pass immediately and then one per tick until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("booking sweeper started", zap.Duration("interval", s.interval))
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("booking sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("sweep pass failed, retrying next tick", zap.Error(err))
	}
}

// RunOnce runs activation then completion. A failed activation pass does not skip completion.
// Concurrent calls are serialized.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res Result
	activated, actErr := s.engine.RunActivationSweep(ctx)
	res.Activated = activated
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	completed, compErr := s.engine.RunCompletionSweep(ctx)
	res.Completed = completed
	return res, errors.Join(actErr, compErr)
}
