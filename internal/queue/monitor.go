package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/banshee-data/queue.report/internal/monitoring"
	"github.com/banshee-data/queue.report/internal/occupancy"
)

// Outcome describes what a single Observe call did.
type Outcome struct {
	// Rejected is set when the validator dropped the sample.
	Rejected bool
	Reason   error

	Status  occupancy.Status
	Effects []Effect
	// EventID is the open episode after the sample, or zero.
	EventID int64
}

// Monitor runs the detector for one location and applies its effects to an
// EventStore. Observe calls are serialized; state only advances once every
// store write for the sample has succeeded.
type Monitor struct {
	mu         sync.Mutex
	locationID string
	th         Thresholds
	store      EventStore
	onStatus   func(StatusChange)
	quiet      bool

	state     State
	validator occupancy.Validator
}

// NewMonitor creates a monitor in the Idle state.
func NewMonitor(locationID string, th Thresholds, store EventStore) *Monitor {
	return &Monitor{locationID: locationID, th: th, store: store}
}

// SetStatusHook registers f to be called after a committed status change.
func (m *Monitor) SetStatusHook(f func(StatusChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatus = f
}

// Prime seeds the validator and last status from the most recent persisted
// sample so a restart neither re-accepts it nor reports a spurious change.
// The monitor stays Idle.
func (m *Monitor) Prime(last occupancy.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validator.Accept(last)
	m.state.LastStatus = occupancy.Classify(last.Count)
	m.state.LastSample = last.Time
}

// State returns a snapshot of the detector state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LocationID returns the location this monitor tracks.
func (m *Monitor) LocationID() string { return m.locationID }

// Check reports whether Observe would accept s right now, without changing
// any state.
func (m *Monitor) Check(s occupancy.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.LocationID == "" {
		s.LocationID = m.locationID
	}
	if s.LocationID != m.locationID {
		return fmt.Errorf("monitor for %q given sample for %q", m.locationID, s.LocationID)
	}
	return m.validator.Check(s)
}

// Observe validates s, advances the detector and persists its effects.
// Malformed samples are dropped and reported through Outcome with a nil
// error. Store failures are returned and leave the state untouched so the
// same sample can be retried.
func (m *Monitor) Observe(ctx context.Context, s occupancy.Sample) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.LocationID == "" {
		s.LocationID = m.locationID
	}
	if s.LocationID != m.locationID {
		return Outcome{}, fmt.Errorf("monitor for %q given sample for %q", m.locationID, s.LocationID)
	}
	if err := m.validator.Check(s); err != nil {
		m.logf("queue: dropping sample for %s at %s: %v", s.LocationID, s.Time.Format("15:04:05"), err)
		return Outcome{Rejected: true, Reason: err, Status: m.state.LastStatus, EventID: m.state.EventID}, nil
	}

	next, effects := Step(m.th, m.state, s)

	id := m.state.EventID
	var changes []StatusChange
	for _, eff := range effects {
		switch e := eff.(type) {
		case Open:
			newID, err := m.store.CreateEvent(ctx, m.locationID, e.Start, e.Peak, e.Turnover, e.Estimate)
			if err != nil {
				return Outcome{}, fmt.Errorf("create queue event: %w", err)
			}
			id = newID
			m.logf("queue: event %d opened for %s at count %d", id, m.locationID, e.Peak)
		case Update:
			if err := m.store.UpdateEvent(ctx, id, e.EventUpdate); err != nil {
				return Outcome{}, fmt.Errorf("update queue event %d: %w", id, err)
			}
		case Close:
			if err := m.store.CloseEvent(ctx, id, e.End, e.Reason); err != nil {
				return Outcome{}, fmt.Errorf("close queue event %d: %w", id, err)
			}
			m.logf("queue: event %d closed for %s (%s)", id, m.locationID, e.Reason)
			id = 0
		case StatusChange:
			changes = append(changes, e)
		}
	}
	if next.Active {
		next.EventID = id
	}

	m.state = next
	m.validator.Accept(s)

	if m.onStatus != nil {
		for _, c := range changes {
			m.onStatus(c)
		}
	}
	return Outcome{Status: next.LastStatus, Effects: effects, EventID: next.EventID}, nil
}

func (m *Monitor) logf(format string, v ...interface{}) {
	if !m.quiet {
		monitoring.Logf(format, v...)
	}
}
