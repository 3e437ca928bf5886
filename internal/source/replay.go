package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fleet-ops-dashboard/internal/models"
)

// FrameStore is the read side of the replay database
type FrameStore interface {
	Frames() ([]int64, error)
	SnapshotAt(frame int64) (*models.FleetSnapshot, error)
}

// ReplaySource serves recorded frames one per poll and wraps around at the end
type ReplaySource struct {
	store FrameStore

	mu     sync.Mutex
	frames []int64
	next   int
}

// NewReplaySource creates a replay source over a frame store
func NewReplaySource(store FrameStore) *ReplaySource {
	return &ReplaySource{store: store}
}

// Poll returns the next recorded frame
func (s *ReplaySource) Poll(ctx context.Context) (*models.FleetSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, &models.TransientFetchError{Source: "replay", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.frames) {
		frames, err := s.store.Frames()
		if err != nil {
			return nil, &models.TransientFetchError{Source: "replay", Err: err}
		}
		if len(frames) == 0 {
			return nil, &models.TransientFetchError{Source: "replay", Err: errors.New("no recorded frames")}
		}
		s.frames, s.next = frames, 0
	}

	frame := s.frames[s.next]
	snap, err := s.store.SnapshotAt(frame)
	if err != nil {
		return nil, &models.TransientFetchError{Source: "replay", Err: fmt.Errorf("frame %d: %w", frame, err)}
	}
	s.next++
	return snap, nil
}
