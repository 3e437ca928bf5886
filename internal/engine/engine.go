// Package engine drives the fixed-cadence snapshot poll into the fleet store.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"fleet-ops-dashboard/internal/logging"
	"fleet-ops-dashboard/internal/source"
	"fleet-ops-dashboard/internal/store"
)

// Health summarises the poll loop
type Health struct {
	Polls               int       `json:"polls"`
	Failures            int       `json:"failures"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastSuccess         time.Time `json:"last_success"`
	Stale               bool      `json:"stale"`
}

// Engine polls a source on a fixed interval and ingests every successful
// snapshot. A failed poll keeps the previous snapshot in the store.
type Engine struct {
	src      source.Source
	store    *store.Store
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	health  Health
	running bool
}

// New creates an engine
func New(src source.Source, st *store.Store, interval, timeout time.Duration) *Engine {
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &Engine{src: src, store: st, interval: interval, timeout: timeout}
}

// PollOnce runs a single poll. The store is not touched while the poll is in
// flight, and not at all when it fails.
func (e *Engine) PollOnce(ctx context.Context) error {
	pollCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	snap, err := e.src.Poll(pollCtx)

	e.mu.Lock()
	e.health.Polls++
	if err != nil {
		e.health.Failures++
		e.health.ConsecutiveFailures++
		e.health.LastError = err.Error()
		e.health.Stale = true
		e.mu.Unlock()
		return err
	}
	e.health.ConsecutiveFailures = 0
	e.health.LastError = ""
	e.health.LastSuccess = time.Now()
	e.health.Stale = false
	e.mu.Unlock()

	st := e.store.Ingest(snap)
	logging.Debugf("ingested %d vehicles, version %d, %d new anomalies",
		st.Snapshot.Len(), st.Version, len(st.NewAnomalies))
	return nil
}

// Run polls immediately and then on every tick until ctx is cancelled
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	log.Printf("🚀 Polling fleet every %s", e.interval)
	for {
		if err := e.PollOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("⚠️  poll failed, keeping last snapshot: %v", err)
		}
		select {
		case <-ctx.Done():
			log.Printf("🛑 Poll loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// Health returns a copy of the loop statistics
func (e *Engine) Health() Health {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.health
}
