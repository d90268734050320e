package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/queue.report/internal/monitoring"
)

// OrphanPolicy decides what happens to episodes left open by a previous
// process. Their detector state is gone, so they are never resumed.
type OrphanPolicy string

const (
	// OrphanDelete removes open episodes.
	OrphanDelete OrphanPolicy = "delete"
	// OrphanClose ends open episodes at the last recorded sample.
	OrphanClose OrphanPolicy = "close"
)

// LastSampleFunc returns the newest recorded sample time for a location and
// whether one exists.
type LastSampleFunc func(ctx context.Context, locationID string) (time.Time, bool, error)

// RecoverResult counts the episodes Recover handled.
type RecoverResult struct {
	Deleted int
	Closed  int
}

// Recover applies policy to every open episode of locationID. It must run
// before the location's monitor sees its first sample.
func Recover(ctx context.Context, store EventStore, locationID string, policy OrphanPolicy, lastSample LastSampleFunc) (RecoverResult, error) {
	var res RecoverResult
	open, err := store.OpenEvents(ctx, locationID)
	if err != nil {
		return res, fmt.Errorf("list open events: %w", err)
	}
	if len(open) == 0 {
		return res, nil
	}

	switch policy {
	case OrphanDelete, "":
		for _, e := range open {
			if err := store.DeleteEvent(ctx, e.ID); err != nil {
				return res, fmt.Errorf("delete orphan event %d: %w", e.ID, err)
			}
			res.Deleted++
		}
	case OrphanClose:
		var last time.Time
		var haveLast bool
		if lastSample != nil {
			last, haveLast, err = lastSample(ctx, locationID)
			if err != nil {
				return res, fmt.Errorf("last sample for %s: %w", locationID, err)
			}
		}
		for _, e := range open {
			end := e.Start
			if haveLast && last.After(e.Start) {
				end = last
			}
			if err := store.CloseEvent(ctx, e.ID, end, ReasonOrphan); err != nil {
				return res, fmt.Errorf("close orphan event %d: %w", e.ID, err)
			}
			res.Closed++
		}
	default:
		return res, fmt.Errorf("unknown orphan policy %q", policy)
	}

	monitoring.Logf("queue: recovered %d orphan event(s) for %s with policy %s (deleted=%d closed=%d)",
		len(open), locationID, policy, res.Deleted, res.Closed)
	return res, nil
}
