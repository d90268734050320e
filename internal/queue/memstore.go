package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory EventStore. Rebuild replays history into one
// before committing the result to the persistent store.
type MemStore struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]*Event
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{nextID: 1, events: make(map[int64]*Event)}
}

func (m *MemStore) CreateEvent(_ context.Context, locationID string, start time.Time, peak, turnover, estimate int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.events[id] = &Event{
		ID:                   id,
		LocationID:           locationID,
		Start:                start,
		PeakCount:            peak,
		TurnoverCount:        turnover,
		EstimatedQueueLength: estimate,
	}
	return id, nil
}

func (m *MemStore) UpdateEvent(_ context.Context, id int64, u EventUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return fmt.Errorf("event %d not found", id)
	}
	e.TurnoverCount = u.TurnoverCount
	e.PeakCount = u.PeakCount
	e.EstimatedQueueLength = u.EstimatedQueueLength
	return nil
}

func (m *MemStore) CloseEvent(_ context.Context, id int64, end time.Time, reason CloseReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return fmt.Errorf("event %d not found", id)
	}
	e.End = &end
	e.CloseReason = reason
	return nil
}

func (m *MemStore) ActiveEvent(_ context.Context, locationID string) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active *Event
	for _, e := range m.sorted() {
		if e.LocationID == locationID && e.End == nil {
			c := e
			active = &c
		}
	}
	return active, nil
}

func (m *MemStore) ClosedEventsSince(_ context.Context, locationID string, since time.Time) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.sorted() {
		if e.LocationID == locationID && e.End != nil && !e.Start.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemStore) OpenEvents(_ context.Context, locationID string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.sorted() {
		if e.LocationID == locationID && e.End == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemStore) DeleteEvent(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
	return nil
}

// Events returns a copy of every stored event ordered by start time.
func (m *MemStore) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted()
}

// sorted copies the events ordered by start then id. Callers hold mu.
func (m *MemStore) sorted() []Event {
	out := make([]Event, 0, len(m.events))
	for _, e := range m.events {
		c := *e
		if e.End != nil {
			end := *e.End
			c.End = &end
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
