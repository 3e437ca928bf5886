package mapview

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"fleet-ops-dashboard/internal/models"
	"fleet-ops-dashboard/internal/routes"
	"fleet-ops-dashboard/internal/store"
)

var (
	ErrContainerInUse = errors.New("container already bound to another map layer")
	ErrDisposed       = errors.New("map layer disposed")
	ErrNotMounted     = errors.New("map layer not mounted")
	ErrUnknownRoute   = errors.New("unknown route filter")
	ErrUnknownMarker  = errors.New("vehicle is not on the map")
)

// Surface is the imperative map the layer draws on
type Surface interface {
	Clear()
	AddRoute(Polyline)
	AddMarker(Marker)
	FitBounds(b Bounds, padding int)
	Close() error
}

// Factory creates the surface bound to a container
type Factory func(container string) (Surface, error)

// StateSource is the part of the fleet store the layer reads
type StateSource interface {
	State() store.State
	Subscribe(store.Listener) func()
}

// Apply performs one full layer replace on a surface
func Apply(s Surface, plan Plan) {
	s.Clear()
	for _, step := range plan.Steps {
		switch {
		case step.Route != nil:
			s.AddRoute(*step.Route)
		case step.Marker != nil:
			s.AddMarker(*step.Marker)
		}
	}
	if plan.Fit != nil {
		s.FitBounds(*plan.Fit, FitPadding)
	}
}

// Registry makes sure no two layers share a container
type Registry struct {
	mu      sync.Mutex
	claimed map[string]*Layer
}

// NewRegistry creates an empty container registry
func NewRegistry() *Registry {
	return &Registry{claimed: make(map[string]*Layer)}
}

func (r *Registry) claim(container string, l *Layer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.claimed[container]; ok && owner != l {
		return ErrContainerInUse
	}
	r.claimed[container] = l
	return nil
}

func (r *Registry) release(container string, l *Layer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimed[container] == l {
		delete(r.claimed, container)
	}
}

// LayerState is the lifecycle state of a map layer
type LayerState int

const (
	Uninitialized LayerState = iota
	Mounted
	Disposed
)

func (s LayerState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Mounted:
		return "mounted"
	default:
		return "disposed"
	}
}

// Frame describes one completed redraw
type Frame struct {
	Container string    `json:"container"`
	Version   uint64    `json:"version"`
	Filter    string    `json:"filter"`
	Selected  string    `json:"selected_vehicle_id,omitempty"`
	Plan      Plan      `json:"plan"`
	DrawnAt   time.Time `json:"drawn_at"`
}

// Layer owns one map surface and redraws it whenever the fleet state,
// the route filter or the selection changes.
type Layer struct {
	registry *Registry
	factory  Factory
	source   StateSource
	onSelect func(vehicleID string)

	mu          sync.Mutex
	state       LayerState
	container   string
	surface     Surface
	unsubscribe func()
	filter      string
	current     store.State
	last        Plan
	frame       Frame
	drawn       uint64
	observers   []func(Frame)
}

// NewLayer creates an unmounted layer. onSelect receives marker activations
// and is expected to forward them to the store.
func NewLayer(registry *Registry, factory Factory, source StateSource, onSelect func(string)) *Layer {
	return &Layer{
		registry: registry,
		factory:  factory,
		source:   source,
		onSelect: onSelect,
		filter:   routes.AllRoutes,
	}
}

// OnRedraw registers fn to receive every completed redraw. fn runs with the
// layer locked and must not call back into it.
func (l *Layer) OnRedraw(fn func(Frame)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

// Mount binds the layer to a container and draws the current state. Mounting
// a mounted layer again does nothing.
func (l *Layer) Mount(container string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case Mounted:
		return nil
	case Disposed:
		return &models.RenderMountError{Container: container, Err: ErrDisposed}
	}

	if err := l.registry.claim(container, l); err != nil {
		return &models.RenderMountError{Container: container, Err: err}
	}
	surface, err := l.factory(container)
	if err != nil {
		l.registry.release(container, l)
		return &models.RenderMountError{Container: container, Err: err}
	}

	l.container = container
	l.surface = surface
	l.state = Mounted
	l.unsubscribe = l.source.Subscribe(l.onState)
	l.current = l.source.State()
	l.redrawLocked()
	return nil
}

func (l *Layer) onState(st store.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Mounted || st.Version < l.current.Version {
		return
	}
	l.current = st
	l.redrawLocked()
}

// SetFilter changes the visible route set and redraws
func (l *Layer) SetFilter(filter string) error {
	if filter == "" {
		filter = routes.AllRoutes
	}
	if filter != routes.AllRoutes {
		if _, ok := routes.Lookup(filter); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownRoute, filter)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.filter == filter {
		return nil
	}
	l.filter = filter
	if l.state == Mounted {
		l.redrawLocked()
	}
	return nil
}

// Filter returns the active route filter
func (l *Layer) Filter() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filter
}

// Activate handles a pointer activation of a vehicle marker
func (l *Layer) Activate(vehicleID string) error {
	l.mu.Lock()
	if l.state != Mounted {
		l.mu.Unlock()
		return ErrNotMounted
	}
	found := false
	for _, m := range l.last.Markers(KindVehicle) {
		if m.VehicleID == vehicleID {
			found = true
			break
		}
	}
	l.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownMarker, vehicleID)
	}
	if l.onSelect != nil {
		l.onSelect(vehicleID)
	}
	return nil
}

// Plan returns the last drawn plan
func (l *Layer) Plan() Plan {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// LastFrame returns the most recent redraw while the layer is mounted
func (l *Layer) LastFrame() (Frame, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frame, l.state == Mounted && l.drawn > 0
}

// State returns the lifecycle state
func (l *Layer) State() LayerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Redraws returns how many redraws have completed
func (l *Layer) Redraws() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.drawn
}

func (l *Layer) redrawLocked() {
	plan := Build(l.current.Snapshot, l.filter, l.current.SelectedID)
	Apply(l.surface, plan)
	l.last = plan
	l.drawn++

	frame := Frame{
		Container: l.container,
		Version:   l.current.Version,
		Filter:    l.filter,
		Selected:  l.current.SelectedID,
		Plan:      plan,
		DrawnAt:   time.Now(),
	}
	l.frame = frame
	for _, fn := range l.observers {
		fn(frame)
	}
}

// Dispose releases the surface and the container. It is safe to call on a
// layer that was never mounted and to call more than once.
func (l *Layer) Dispose() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Mounted {
		l.state = Disposed
		return nil
	}

	l.state = Disposed
	if l.unsubscribe != nil {
		l.unsubscribe()
		l.unsubscribe = nil
	}
	err := l.surface.Close()
	l.surface = nil
	l.registry.release(l.container, l)
	return err
}
