package queue

import (
	"context"
	"fmt"

	"github.com/banshee-data/queue.report/internal/monitoring"
	"github.com/banshee-data/queue.report/internal/occupancy"
)

// SampleSource yields a location's recorded samples in ascending time order.
type SampleSource interface {
	AllSamples(ctx context.Context, locationID string) ([]occupancy.Sample, error)
}

// RebuildStore atomically swaps a location's events for a new set.
type RebuildStore interface {
	ReplaceEvents(ctx context.Context, locationID string, events []Event) error
}

// RebuildResult summarises a replay.
type RebuildResult struct {
	Samples  int
	Rejected int
	Events   int
	// Open is the trailing unfinished episode, if any. It is not persisted.
	Open *Event
}

// Rebuild replays the recorded sample history of locationID through the
// detector and replaces the location's stored events with the closed
// episodes it produced. Replaying the same history twice yields the same
// events.
func Rebuild(ctx context.Context, src SampleSource, dst RebuildStore, locationID string, th Thresholds) (RebuildResult, error) {
	var res RebuildResult
	if err := th.Validate(); err != nil {
		return res, err
	}
	samples, err := src.AllSamples(ctx, locationID)
	if err != nil {
		return res, fmt.Errorf("load samples: %w", err)
	}
	res.Samples = len(samples)

	mem := NewMemStore()
	m := NewMonitor(locationID, th, mem)
	m.quiet = true
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, err := m.Observe(ctx, s)
		if err != nil {
			return res, fmt.Errorf("replay sample at %s: %w", s.Time, err)
		}
		if out.Rejected {
			res.Rejected++
		}
	}

	var closed []Event
	for _, e := range mem.Events() {
		if e.End == nil {
			open := e
			open.ID = 0
			res.Open = &open
			continue
		}
		if e.CloseReason == ReasonDrained {
			e.CloseReason = ReasonRebuilt
		}
		e.ID = 0
		closed = append(closed, e)
	}
	if err := dst.ReplaceEvents(ctx, locationID, closed); err != nil {
		return res, fmt.Errorf("replace events: %w", err)
	}
	res.Events = len(closed)
	monitoring.Logf("queue: rebuilt %d event(s) for %s from %d sample(s), %d rejected",
		res.Events, locationID, res.Samples, res.Rejected)
	return res, nil
}
