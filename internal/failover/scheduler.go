package failover

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// DefaultResyncInterval is how often the scheduler runs a resync pass.
const DefaultResyncInterval = 20 * time.Second

// Scheduler runs Client.Resync on a fixed interval, independent of request
// traffic, until stopped.
type Scheduler struct {
	client   *Client
	interval time.Duration
	clock    clock.Clock
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler for client. A nil clock uses real time.
func NewScheduler(client *Client, interval time.Duration, clk clock.Clock) *Scheduler {
	if interval <= 0 {
		interval = DefaultResyncInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		client:   client,
		interval: interval,
		clock:    clk,
		logger:   client.logger.With(zap.String("component", "resync")),
	}
}

// Start launches the resync loop. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	ticker := s.clock.Ticker(s.interval)

	s.logger.Info("Starting resync scheduler", zap.Duration("interval", s.interval))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.client.Resync(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-progress pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("Stopped resync scheduler")
}
