package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"fleet-ops-dashboard/internal/models"
	"fleet-ops-dashboard/internal/store"
)

// Publisher delivers one message under a routing key
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Forwarder publishes every anomaly the store raises. The store listener
// only queues events; publishing happens on the forwarder's own goroutine.
type Forwarder struct {
	pub     Publisher
	queue   chan models.AnomalyEvent
	timeout time.Duration

	mu        sync.Mutex
	published int
	dropped   int
}

// NewForwarder creates a forwarder with room for size pending events
func NewForwarder(pub Publisher, size int) *Forwarder {
	if size <= 0 {
		size = 128
	}
	return &Forwarder{pub: pub, queue: make(chan models.AnomalyEvent, size), timeout: 5 * time.Second}
}

// Listen is a store listener
func (f *Forwarder) Listen(st store.State) {
	for _, ev := range st.NewAnomalies {
		select {
		case f.queue <- ev:
		default:
			f.mu.Lock()
			f.dropped++
			f.mu.Unlock()
			log.Printf("⚠️  anomaly queue full, dropping %s for %s", ev.Type, ev.VehicleID)
		}
	}
}

// Run publishes queued events until ctx is cancelled. Events are keyed by
// anomaly type.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-f.queue:
			f.publish(ctx, ev)
		}
	}
}

func (f *Forwarder) publish(ctx context.Context, ev models.AnomalyEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("❌ Failed to encode anomaly %s: %v", ev.ID, err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	if err := f.pub.Publish(pubCtx, string(ev.Type), body); err != nil {
		f.mu.Lock()
		f.dropped++
		f.mu.Unlock()
		log.Printf("❌ Failed to publish anomaly %s: %v", ev.ID, err)
		return
	}

	f.mu.Lock()
	f.published++
	f.mu.Unlock()
}

// Counts returns how many events were published and dropped
func (f *Forwarder) Counts() (published, dropped int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published, f.dropped
}
