package buckets

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/queue.report/internal/monitoring"
	"github.com/banshee-data/queue.report/internal/queue"
)

var ErrInvalidInterval = errors.New("event ends before it starts")

// Contribution is the part of one event that falls inside one bucket. The
// carried counts describe the whole event, not the bucket.
type Contribution struct {
	EventID       int64         `json:"event_id"`
	Key           BucketKey     `json:"key"`
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	Duration      time.Duration `json:"-"`
	Minutes       float64       `json:"minutes"`
	IsStart       bool          `json:"is_start"`
	IsEnd         bool          `json:"is_end"`
	SpansMidnight bool          `json:"spans_midnight"`

	PeakCount            int `json:"peak_count"`
	TurnoverCount        int `json:"turnover_count"`
	EstimatedQueueLength int `json:"estimated_queue"`
}

// Decompose splits every closed event into per-bucket contributions on the
// wall clock of loc. Open events are skipped. Events crossing local midnight
// are split at midnight and flagged. For each event the contribution
// durations sum exactly to End-Start.
func Decompose(events []queue.Event, g Granularity, loc *time.Location) ([]Contribution, error) {
	if g.Width() == 0 {
		return nil, fmt.Errorf("unknown granularity %v", g)
	}
	if loc == nil {
		loc = time.UTC
	}
	var out []Contribution
	for _, e := range events {
		if e.End == nil {
			continue
		}
		parts, err := decomposeEvent(e, g, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, parts...)
	}
	return out, nil
}

func decomposeEvent(e queue.Event, g Granularity, loc *time.Location) ([]Contribution, error) {
	start, end := e.Start, *e.End
	if end.Before(start) {
		return nil, fmt.Errorf("%w: event %d %s..%s", ErrInvalidInterval, e.ID,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	base := Contribution{
		EventID:              e.ID,
		PeakCount:            e.PeakCount,
		TurnoverCount:        e.TurnoverCount,
		EstimatedQueueLength: e.EstimatedQueueLength,
	}

	if end.Equal(start) {
		_, key := g.floor(start, loc)
		c := base
		c.Key = key
		c.Start, c.End = start, end
		c.IsStart, c.IsEnd = true, true
		return []Contribution{c}, nil
	}

	var parts []Contribution
	for cursor := start; cursor.Before(end); {
		bucketStart, key := g.floor(cursor, loc)
		bucketEnd := bucketStart.Add(g.Width())
		if m := nextMidnight(cursor, loc); m.Before(bucketEnd) {
			bucketEnd = m
		}
		pieceEnd := bucketEnd
		if end.Before(pieceEnd) {
			pieceEnd = end
		}

		c := base
		c.Key = key
		c.Start, c.End = cursor, pieceEnd
		c.Duration = pieceEnd.Sub(cursor)
		c.Minutes = c.Duration.Minutes()
		parts = append(parts, c)
		cursor = pieceEnd
	}

	parts[0].IsStart = true
	parts[len(parts)-1].IsEnd = true
	if parts[0].Key.Date != parts[len(parts)-1].Key.Date {
		for i := range parts {
			parts[i].SpansMidnight = true
		}
		monitoring.Logf("buckets: event %d spans midnight (%s to %s), split per day",
			e.ID, parts[0].Key.Date, parts[len(parts)-1].Key.Date)
	}
	return parts, nil
}
