package queue

import (
	"context"
	"sort"
	"sync"

	"github.com/banshee-data/queue.report/internal/occupancy"
)

// Registry owns one Monitor per location. Monitors share the store and
// thresholds but no detector state.
type Registry struct {
	th       Thresholds
	store    EventStore
	onStatus func(StatusChange)

	mu       sync.Mutex
	monitors map[string]*Monitor
}

// NewRegistry creates an empty registry. onStatus may be nil.
func NewRegistry(th Thresholds, store EventStore, onStatus func(StatusChange)) *Registry {
	return &Registry{th: th, store: store, onStatus: onStatus, monitors: make(map[string]*Monitor)}
}

// Monitor returns the monitor for locationID, creating it on first use.
func (r *Registry) Monitor(locationID string) *Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.monitors[locationID]
	if !ok {
		m = NewMonitor(locationID, r.th, r.store)
		if r.onStatus != nil {
			m.SetStatusHook(r.onStatus)
		}
		r.monitors[locationID] = m
	}
	return m
}

// Observe routes s to its location's monitor.
func (r *Registry) Observe(ctx context.Context, s occupancy.Sample) (Outcome, error) {
	if s.LocationID == "" {
		return Outcome{Rejected: true, Reason: occupancy.ErrNoLocation}, nil
	}
	return r.Monitor(s.LocationID).Observe(ctx, s)
}

// Check reports whether s would be accepted by its location's monitor.
func (r *Registry) Check(s occupancy.Sample) error {
	if s.LocationID == "" {
		return occupancy.ErrNoLocation
	}
	return r.Monitor(s.LocationID).Check(s)
}

// Locations lists the locations with a monitor, sorted.
func (r *Registry) Locations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.monitors))
	for id := range r.monitors {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
