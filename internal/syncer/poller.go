// ABOUTME: Poller runs one repeating fetch cadence with a single-flight guard.
// ABOUTME: Tick errors are swallowed; only non-connectivity failures are logged.

package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/parley/internal/api"
)

// Poller fires a tick function on a fixed cadence. At most one tick is in
// flight at a time: if a fetch from the previous tick is still pending, the
// new tick is skipped rather than piled on top. Stopping is idempotent and
// only clears the timer; an in-flight tick runs to completion and relies on
// the caller's liveness guard.
type Poller struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context) error
	logger   *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	inFlight atomic.Bool
}

// NewPoller creates a poller; call Start to begin ticking.
func NewPoller(name string, interval time.Duration, tick func(ctx context.Context) error, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		name:     name,
		interval: interval,
		tick:     tick,
		logger:   logger.With("component", "poller", "cadence", name),
		stop:     make(chan struct{}),
	}
}

// Start launches the cadence loop. The loop ends when ctx is cancelled or
// Stop is called.
func (p *Poller) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop clears the cadence timer. Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			if !p.inFlight.CompareAndSwap(false, true) {
				// Previous tick's fetch is still pending. Skipping keeps a
				// slow network from stacking requests.
				continue
			}
			go func() {
				defer p.inFlight.Store(false)
				if err := p.tick(ctx); err != nil {
					if cat, _ := api.Classify(err); cat != api.CategoryConnectivity {
						p.logger.Warn("poll tick failed", "error", err)
					}
				}
			}()
		}
	}
}
