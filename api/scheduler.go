/*
scheduler.go - Periodic dispatch reload

PURPOSE:
  Keeps workers, vehicles, devices, locations and dispatch data in the
  state store close to the backend. Other clients assign resources
  without going through this process, so the availability resolver would
  otherwise answer from stale data until the next confirm-day.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Reloads once immediately on start
  - A failed reload is logged and retried on the next tick

USAGE:
  scheduler := NewReloadScheduler(dispatch, interval, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - planning/dispatch.go: DispatchService.Load
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Reloader refreshes state from the backend.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ReloadScheduler periodically reloads dispatch data.
type ReloadScheduler struct {
	Reloader Reloader
	Interval time.Duration
	Enabled  bool
	Timeout  time.Duration
	Logger   zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReloadScheduler creates a scheduler. It does nothing until Start.
func NewReloadScheduler(r Reloader, interval time.Duration, log zerolog.Logger) *ReloadScheduler {
	return &ReloadScheduler{
		Reloader: r,
		Interval: interval,
		Enabled:  true,
		Timeout:  30 * time.Second,
		Logger:   log,
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (rs *ReloadScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info().Msg("reload scheduler disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker, rs.stop)

	rs.Logger.Info().Dur("interval", rs.Interval).Msg("reload scheduler started")
}

// Stop stops the scheduler and waits for a running reload to finish.
func (rs *ReloadScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker = nil
	rs.Logger.Info().Msg("reload scheduler stopped")
}

func (rs *ReloadScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunNow()

	for {
		select {
		case <-ticker.C:
			rs.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow performs one reload synchronously.
func (rs *ReloadScheduler) RunNow() error {
	ctx, cancel := context.WithTimeout(context.Background(), rs.Timeout)
	defer cancel()

	start := time.Now()
	if err := rs.Reloader.Reload(ctx); err != nil {
		rs.Logger.Warn().Err(err).Msg("dispatch reload failed")
		return err
	}
	rs.Logger.Debug().Dur("took", time.Since(start)).Msg("dispatch reloaded")
	return nil
}
