package gateway

import (
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically evicts sessions idle beyond the configured timeout.
// It runs for the lifetime of the process; only Stop ends the ticking, and a
// failing sweep iteration never does.
type Sweeper struct {
	registry *Registry
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewSweeper creates a sweeper; interval is the tick period and timeout the
// idle threshold.
func NewSweeper(registry *Registry, interval, timeout time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		timeout:  timeout,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (s *Sweeper) Start() {
	go s.loop()
	s.logger.Info("Session sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("timeout", s.timeout))
}

// Stop ends the loop and waits for the current iteration to finish.
func (s *Sweeper) Stop() {
	close(s.stopChan)
	<-s.doneChan
	s.logger.Info("Session sweeper stopped")
}

func (s *Sweeper) loop() {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep runs one eviction pass. Panics are contained here so one bad
// iteration cannot kill the ticker.
func (s *Sweeper) sweep() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Sweep iteration panicked", zap.Any("panic", r))
		}
	}()

	if n := s.registry.SweepStale(s.timeout); n > 0 {
		s.logger.Info("Swept stale sessions", zap.Int("count", n))
	}
}
