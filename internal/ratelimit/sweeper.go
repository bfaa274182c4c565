package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often expired windows are reclaimed when no
// interval is configured.
const DefaultSweepInterval = time.Minute

// Sweeper periodically removes expired entries from a WindowStore. It runs
// off the request path and is owned by the process lifecycle: Start it once
// at boot and Stop it during shutdown.
type Sweeper struct {
	store    *WindowStore
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
	exited  chan struct{}
}

// NewSweeper creates a sweeper for store. A non-positive interval uses
// DefaultSweepInterval and a nil logger uses slog.Default().
func NewSweeper(store *WindowStore, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Start launches the background loop. It returns immediately; the loop runs
// until Stop is called or ctx is cancelled. Calling Start more than once,
// or after Stop, has no effect.
func (sw *Sweeper) Start(ctx context.Context) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.started || sw.closed {
		return
	}
	sw.started = true
	go sw.run(ctx)
}

// Stop ends the background loop and waits for it to exit. It is safe to
// call more than once.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	if sw.closed {
		sw.mu.Unlock()
		return
	}
	sw.closed = true
	started := sw.started
	close(sw.done)
	sw.mu.Unlock()

	if started {
		<-sw.exited
	}
}

func (sw *Sweeper) run(ctx context.Context) {
	defer close(sw.exited)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.done:
			return
		case <-ticker.C:
			sw.SweepOnce()
		}
	}
}

// SweepOnce removes expired entries immediately and returns the number
// removed.
func (sw *Sweeper) SweepOnce() int {
	removed := sw.store.Sweep(sw.store.Now())
	sw.logger.Debug("Rate limit sweep completed", "removed_keys", removed)
	return removed
}
