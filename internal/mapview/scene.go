package mapview

import (
	"errors"
	"sync"
)

// Viewport is the visible area of a map surface
type Viewport struct {
	Bounds  *Bounds `json:"bounds,omitempty"` // nil until the first fit
	Padding int     `json:"padding"`
	Fits    int     `json:"fits"`
}

// SceneView is a copy of what a scene currently shows
type SceneView struct {
	Container string     `json:"container"`
	Routes    []Polyline `json:"routes"`
	Markers   []Marker   `json:"markers"`
	Order     []string   `json:"order"`
	Viewport  Viewport   `json:"viewport"`
}

// Scene is an in-memory surface. It keeps the overlay group and viewport as a
// browser map would, so the dashboard can serve them as JSON.
type Scene struct {
	mu        sync.RWMutex
	container string
	routes    []Polyline
	markers   []Marker
	order     []string
	viewport  Viewport
	closed    bool
}

// NewScene creates an empty scene for a container
func NewScene(container string) *Scene {
	return &Scene{container: container}
}

// SceneFactory creates scenes and remembers them by container
type SceneFactory struct {
	mu     sync.Mutex
	scenes map[string]*Scene
}

// NewSceneFactory creates an empty factory
func NewSceneFactory() *SceneFactory {
	return &SceneFactory{scenes: make(map[string]*Scene)}
}

// Create implements Factory
func (f *SceneFactory) Create(container string) (Surface, error) {
	if container == "" {
		return nil, errors.New("empty container id")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := NewScene(container)
	f.scenes[container] = s
	return s, nil
}

// Scene returns the scene bound to a container
func (f *SceneFactory) Scene(container string) (*Scene, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.scenes[container]
	return s, ok
}

func (s *Scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = s.routes[:0]
	s.markers = s.markers[:0]
	s.order = s.order[:0]
}

func (s *Scene) AddRoute(p Polyline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, p)
	s.order = append(s.order, p.ID)
}

func (s *Scene) AddMarker(m Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append(s.markers, m)
	s.order = append(s.order, m.ID)
}

func (s *Scene) FitBounds(b Bounds, padding int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport.Bounds = &b
	s.viewport.Padding = padding
	s.viewport.Fits++
}

// Close marks the scene released
func (s *Scene) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.routes, s.markers, s.order = nil, nil, nil
	return nil
}

// Closed reports whether the scene was released
func (s *Scene) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// View returns a copy of the scene
func (s *Scene) View() SceneView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := SceneView{
		Container: s.container,
		Routes:    append([]Polyline{}, s.routes...),
		Markers:   append([]Marker{}, s.markers...),
		Order:     append([]string{}, s.order...),
		Viewport:  s.viewport,
	}
	if s.viewport.Bounds != nil {
		b := *s.viewport.Bounds
		v.Viewport.Bounds = &b
	}
	return v
}
