/*
scheduler.go - Periodic catch-up sweep

PURPOSE:
  Runs RunCatchUpSweep in the background so a long-running server charges
  missed prayer days even when no client comes to the foreground.

DESIGN:
  - Background goroutine with a configurable interval
  - Sweeps immediately on start, then on every tick
  - The sweep is idempotent per day, so overlapping with a client-triggered
    POST /api/sweep only costs a no-op transaction
  - OnSwept is called after every sweep that charged at least one day

USAGE:
  s := NewSweepScheduler(ledger, time.Hour)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - handlers.go: RunSweep endpoint (manual sweep)
  - debt/ledger.go: RunCatchUpSweep
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/kaza-tracker/obligation-engine/debt"
	"github.com/kaza-tracker/obligation-engine/logger"
)

// SweepScheduler runs the catch-up sweep on a ticker.
type SweepScheduler struct {
	Ledger   *debt.Ledger
	Interval time.Duration
	OnSwept  func(debt.SweepResult)

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweepScheduler creates a scheduler. An interval <= 0 disables it.
func NewSweepScheduler(ledger *debt.Ledger, interval time.Duration) *SweepScheduler {
	return &SweepScheduler{
		Ledger:   ledger,
		Interval: interval,
	}
}

// Start begins the scheduler. Calling Start on a running scheduler is a no-op.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Interval <= 0 {
		logger.Info("sweep scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	logger.Info("sweep scheduler started", "interval", s.Interval)
}

// Stop stops the scheduler and waits for an in-flight sweep.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	logger.Info("sweep scheduler stopped")
}

func (s *SweepScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow performs one sweep synchronously.
func (s *SweepScheduler) RunNow(ctx context.Context) (debt.SweepResult, error) {
	res, err := s.Ledger.RunCatchUpSweep(ctx)
	if err != nil {
		logger.Error("scheduled sweep failed", "error", err)
		return res, err
	}
	if res.Skipped {
		logger.Debug("scheduled sweep skipped, no profile")
		return res, nil
	}
	if res.Days > 0 {
		logger.Info("scheduled sweep charged missed days", "from", res.From, "to", res.To, "days", res.Days)
		if s.OnSwept != nil {
			s.OnSwept(res)
		}
	}
	return res, nil
}
