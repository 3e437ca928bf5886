// Package store owns the authoritative fleet state. Every mutation goes
// through Ingest; everything else reads copies.
package store

import (
	"sync"
	"time"

	"fleet-ops-dashboard/internal/anomaly"
	"fleet-ops-dashboard/internal/models"
	"fleet-ops-dashboard/internal/stats"
)

// Reason tells a listener what triggered the notification
type Reason string

const (
	ReasonIngest    Reason = "ingest"
	ReasonSelection Reason = "selection"
)

// State is a consistent copy of the store contents
type State struct {
	Snapshot     *models.FleetSnapshot `json:"vehicles"`
	Stats        models.AggregateStats `json:"stats"`
	Anomalies    []models.AnomalyEvent `json:"anomalies"`     // oldest first
	NewAnomalies []models.AnomalyEvent `json:"new_anomalies"` // raised by this ingest, empty otherwise
	SelectedID   string                `json:"selected_vehicle_id,omitempty"`
	Version      uint64                `json:"version"`
	UpdatedAt    time.Time             `json:"updated_at"`
	Reason       Reason                `json:"reason"`
}

// Listener receives the combined state after each change. It runs while the
// store holds its writer lock and must not call Ingest or Select itself.
type Listener func(State)

type subscription struct {
	fn     Listener
	active bool
}

// Store is the single source of truth for current fleet state
type Store struct {
	// writeMu serializes writers through notification so listeners observe
	// changes one at a time and in order.
	writeMu sync.Mutex

	mu        sync.RWMutex
	snapshot  *models.FleetSnapshot
	stats     models.AggregateStats
	anomalies []models.AnomalyEvent
	seen      map[string]bool
	seenOrder []string // ids in raise order, bounded by seenLimit
	seenLimit int
	selected  string
	version   uint64
	updatedAt time.Time

	lmu       sync.Mutex
	listeners []*subscription

	interval  time.Duration
	retention int
	now       func() time.Time
}

// New creates an empty store. interval is the sampling interval used for
// efficiency; retention bounds the anomaly list.
func New(interval time.Duration, retention int) *Store {
	if retention <= 0 {
		retention = 50
	}
	return &Store{
		snapshot:  models.NewSnapshot(nil),
		seen:      make(map[string]bool),
		seenLimit: max(8*retention, 512),
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

// Ingest replaces the current snapshot, classifies every record against the
// record it supersedes, recomputes aggregates and notifies subscribers once.
func (s *Store) Ingest(snapshot *models.FleetSnapshot) State {
	if snapshot == nil {
		snapshot = models.NewSnapshot(nil)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	previous := s.snapshot
	var fresh []models.AnomalyEvent
	for _, rec := range snapshot.Records() {
		var prev *models.VehicleRecord
		if p, ok := previous.Get(rec.VehicleID); ok {
			prev = &p
		}
		ev := anomaly.Classify(prev, rec)
		if ev == nil || s.seen[ev.ID] {
			continue
		}
		// a record served again unchanged was classified when it first arrived
		if prev != nil && prev.Timestamp == rec.Timestamp &&
			ev.Type == models.AnomalyRouteDeviation && anomaly.Deviated(*prev) {
			continue
		}
		fresh = append(fresh, *ev)
		s.appendAnomaly(*ev)
	}

	s.snapshot = snapshot
	s.stats = stats.Compute(snapshot, s.interval)
	s.version++
	s.updatedAt = s.now()
	state := s.stateLocked(ReasonIngest)
	state.NewAnomalies = fresh
	s.mu.Unlock()

	s.notify(state)
	return state
}

// appendAnomaly adds an event, evicting the oldest beyond retention. Raised
// ids are remembered well past retention so an evicted event is not raised
// again while its record is still being served.
func (s *Store) appendAnomaly(ev models.AnomalyEvent) {
	s.anomalies = append(s.anomalies, ev)
	if len(s.anomalies) > s.retention {
		s.anomalies = append(s.anomalies[:0:0], s.anomalies[len(s.anomalies)-s.retention:]...)
	}

	s.seen[ev.ID] = true
	s.seenOrder = append(s.seenOrder, ev.ID)
	if over := len(s.seenOrder) - s.seenLimit; over > 0 {
		for _, id := range s.seenOrder[:over] {
			delete(s.seen, id)
		}
		s.seenOrder = append(s.seenOrder[:0:0], s.seenOrder[over:]...)
	}
}

// Select marks a vehicle as selected. It never touches fleet data.
func (s *Store) Select(vehicleID string) {
	s.setSelection(vehicleID)
}

// ClearSelection removes the current selection
func (s *Store) ClearSelection() {
	s.setSelection("")
}

func (s *Store) setSelection(id string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.selected == id {
		s.mu.Unlock()
		return
	}
	s.selected = id
	state := s.stateLocked(ReasonSelection)
	s.mu.Unlock()

	s.notify(state)
}

// State returns a consistent copy of the current contents
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked("")
}

// Selected returns the selected vehicle id, or "" when nothing is selected
func (s *Store) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// stateLocked copies the store contents. NewAnomalies is left empty; only an
// ingest notification carries the events it raised.
func (s *Store) stateLocked(reason Reason) State {
	anomalies := make([]models.AnomalyEvent, len(s.anomalies))
	copy(anomalies, s.anomalies)
	return State{
		Snapshot:   s.snapshot,
		Stats:      s.stats,
		Anomalies:  anomalies,
		SelectedID: s.selected,
		Version:    s.version,
		UpdatedAt:  s.updatedAt,
		Reason:     reason,
	}
}

// Subscribe registers a listener and returns its unsubscribe function.
// Unsubscribing is idempotent and may happen during a notification.
func (s *Store) Subscribe(fn Listener) func() {
	sub := &subscription{fn: fn, active: true}

	s.lmu.Lock()
	s.listeners = append(s.listeners, sub)
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			defer s.lmu.Unlock()
			sub.active = false
			for i, l := range s.listeners {
				if l == sub {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// notify calls listeners in registration order. The list is copied first so
// listeners added meanwhile wait for the next change.
func (s *Store) notify(state State) {
	s.lmu.Lock()
	subs := make([]*subscription, len(s.listeners))
	copy(subs, s.listeners)
	s.lmu.Unlock()

	for _, sub := range subs {
		s.lmu.Lock()
		active := sub.active
		s.lmu.Unlock()
		if active {
			sub.fn(state)
		}
	}
}
