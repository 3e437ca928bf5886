// Package chart keeps the rolling per-vehicle CO2 window shown by the trend chart.
package chart

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"fleet-ops-dashboard/internal/source"

	"github.com/shopspring/decimal"
)

const (
	DefaultCapacity = 20
	DefaultInterval = 2 * time.Second

	timeLayout = "15:04:05"
)

// Sample is one chart point: a time label and the CO2 of every vehicle present
type Sample struct {
	Time   string
	At     time.Time
	IDs    []string // arrival order of the snapshot
	Values map[string]float64
}

// MarshalJSON flattens the sample to {"time": ..., "<vehicle_id>": value}
func (s Sample) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Values)+1)
	for id, v := range s.Values {
		out[id] = v
	}
	out["time"] = s.Time
	return json.Marshal(out)
}

// Buffer is a bounded window of samples fed by its own tick
type Buffer struct {
	src      source.Source
	capacity int
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	samples []Sample
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewBuffer creates a buffer reading src every interval
func NewBuffer(src source.Source, capacity int, interval time.Duration) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Buffer{
		src:      src,
		capacity: capacity,
		interval: interval,
		timeout:  interval,
		now:      time.Now,
	}
}

// Tick polls once and appends a sample. It reports whether a sample was
// appended; an empty fleet or a failed poll leaves the window as it was.
func (b *Buffer) Tick(ctx context.Context) (bool, error) {
	pollCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	snap, err := b.src.Poll(pollCtx)
	if err != nil {
		return false, err
	}
	if snap.Len() == 0 {
		return false, nil
	}

	at := b.now()
	sample := Sample{
		Time:   at.Format(timeLayout),
		At:     at,
		Values: make(map[string]float64, snap.Len()),
	}
	for _, r := range snap.Records() {
		sample.IDs = append(sample.IDs, r.VehicleID)
		sample.Values[r.VehicleID] = Round(r.CO2Kg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped || ctx.Err() != nil {
		return false, nil
	}
	b.samples = append(b.samples, sample)
	if over := len(b.samples) - b.capacity; over > 0 {
		b.samples = append(b.samples[:0:0], b.samples[over:]...)
	}
	return true, nil
}

// Round rounds a chart value to 3 decimals
func Round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(3).InexactFloat64()
}

// Run ticks immediately and then every interval until ctx is done
func (b *Buffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		if _, err := b.Tick(ctx); err != nil && ctx.Err() == nil {
			log.Printf("⚠️  chart tick: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Start runs the tick in the background until Stop or ctx cancellation
func (b *Buffer) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil || b.stopped {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.cancel, b.done = cancel, done
	go func() {
		defer close(done)
		b.Run(ctx)
	}()
}

// Stop cancels the tick and waits for it to exit. Nothing is appended after
// Stop returns.
func (b *Buffer) Stop() {
	b.mu.Lock()
	b.stopped = true
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Samples returns a copy of the window, oldest first
func (b *Buffer) Samples() []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Sample, len(b.samples))
	copy(out, b.samples)
	return out
}

// Len returns the number of samples held
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Capacity returns the maximum number of samples held
func (b *Buffer) Capacity() int {
	return b.capacity
}
