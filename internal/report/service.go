// Package report builds the historical and live views served by the API
// from stored samples and queue events.
package report

import (
	"context"
	"time"

	"github.com/banshee-data/queue.report/internal/occupancy"
	"github.com/banshee-data/queue.report/internal/queue"
	"github.com/banshee-data/queue.report/internal/timeutil"
)

// Store is the read side of the database used by reports.
type Store interface {
	LatestSample(ctx context.Context, locationID string) (*occupancy.Sample, error)
	SamplesBetween(ctx context.Context, locationID string, from, to time.Time) ([]occupancy.Sample, error)
	RecentSamples(ctx context.Context, locationID string, limit int) ([]occupancy.Sample, error)
	SampleCount(ctx context.Context, locationID string) (int64, error)
	StatusChanges(ctx context.Context, locationID string, limit int) ([]occupancy.Sample, error)
	ActiveEvent(ctx context.Context, locationID string) (*queue.Event, error)
	ClosedEventsSince(ctx context.Context, locationID string, since time.Time) ([]queue.Event, error)
	RecentClosedEvents(ctx context.Context, locationID string, limit int) ([]queue.Event, error)
}

// Service computes reports for one location. It is read-only and safe for
// concurrent use.
type Service struct {
	Store      Store
	LocationID string
	Location   *time.Location
	Thresholds queue.Thresholds
	Clock      timeutil.Clock
}

// Now is the service clock, or wall time when none is set.
func (s *Service) Now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Service) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// window is [now-days, now].
func (s *Service) window(days int) (time.Time, time.Time) {
	now := s.Now()
	return now.AddDate(0, 0, -days), now.Add(time.Second)
}

func (s *Service) closedEvents(ctx context.Context, days int) ([]queue.Event, error) {
	since, _ := s.window(days)
	return s.Store.ClosedEventsSince(ctx, s.LocationID, since)
}
