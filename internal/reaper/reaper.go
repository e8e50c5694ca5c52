// Package reaper bounds token table growth. Expiry itself is enforced at
// read time by the TTL check; the sweep only reclaims storage, so its
// interval can be far longer than the TTL.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"rollcall/internal/clock"
	"rollcall/internal/metrics"
)

// Store is the token persistence the reaper sweeps.
type Store interface {
	DeleteStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// Reaper periodically deletes used and TTL-expired tokens. It only ever
// removes rows in a terminal or provably-expired state, so it never races
// destructively with issuance or redemption.
type Reaper struct {
	store    Store
	clk      clock.Clock
	ttl      time.Duration
	interval time.Duration
}

// New creates a reaper sweeping tokens older than ttl every interval.
func New(store Store, clk clock.Clock, ttl, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{store: store, clk: clk, ttl: ttl, interval: interval}
}

// Sweep deletes stale tokens once and returns how many went.
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	n, err := r.store.DeleteStale(ctx, r.clk.Now().Add(-r.ttl))
	if err != nil {
		return 0, err
	}
	metrics.TokensReaped.Add(float64(n))
	return n, nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				slog.Error("token sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("token sweep", "deleted", n)
			}
		}
	}
}
