package queue

import (
	"context"
	"time"
)

// CloseReason records why an episode ended.
type CloseReason string

const (
	ReasonDrained CloseReason = "drained"
	ReasonTimeout CloseReason = "timeout"
	ReasonOrphan  CloseReason = "orphan"
	ReasonRebuilt CloseReason = "rebuilt"
)

// Event is one queue episode. End is nil while the episode is open.
type Event struct {
	ID                   int64       `json:"id"`
	LocationID           string      `json:"location_id"`
	Start                time.Time   `json:"start_time"`
	End                  *time.Time  `json:"end_time"`
	PeakCount            int         `json:"peak_count"`
	TurnoverCount        int         `json:"turnover_count"`
	EstimatedQueueLength int         `json:"estimated_queue"`
	CloseReason          CloseReason `json:"close_reason,omitempty"`
}

// Closed reports whether the episode has ended.
func (e Event) Closed() bool { return e.End != nil }

// Duration is End-Start for closed events and zero otherwise.
func (e Event) Duration() time.Duration {
	if e.End == nil {
		return 0
	}
	return e.End.Sub(e.Start)
}

// Refills is the number of refills after the first fill.
func (e Event) Refills() int {
	if e.TurnoverCount < 1 {
		return 0
	}
	return e.TurnoverCount - 1
}

// EventUpdate carries the mutable fields of an open event.
type EventUpdate struct {
	TurnoverCount        int
	PeakCount            int
	EstimatedQueueLength int
}

// EventStore persists queue events. ActiveEvent returns (nil, nil) when no
// episode is open for the location.
type EventStore interface {
	CreateEvent(ctx context.Context, locationID string, start time.Time, peak, turnover, estimate int) (int64, error)
	UpdateEvent(ctx context.Context, id int64, u EventUpdate) error
	CloseEvent(ctx context.Context, id int64, end time.Time, reason CloseReason) error
	ActiveEvent(ctx context.Context, locationID string) (*Event, error)
	ClosedEventsSince(ctx context.Context, locationID string, since time.Time) ([]Event, error)
	OpenEvents(ctx context.Context, locationID string) ([]Event, error)
	DeleteEvent(ctx context.Context, id int64) error
}
