package report

import (
	"context"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/queue.report/internal/occupancy"
	"github.com/banshee-data/queue.report/internal/timeutil"
)

// Latest is the newest recorded sample.
type Latest struct {
	Recorded  bool             `json:"recorded"`
	Status    occupancy.Status `json:"status"`
	Count     int              `json:"count"`
	Timestamp *time.Time       `json:"timestamp"`
}

// Latest returns the newest sample, with Recorded false when there is none.
func (s *Service) Latest(ctx context.Context) (Latest, error) {
	sm, err := s.Store.LatestSample(ctx, s.LocationID)
	if err != nil || sm == nil {
		return Latest{Status: occupancy.Unknown}, err
	}
	ts := sm.Time.In(s.loc())
	return Latest{Recorded: true, Status: sm.Status(), Count: sm.Count, Timestamp: &ts}, nil
}

// StatusEntry is one status transition.
type StatusEntry struct {
	Timestamp time.Time        `json:"timestamp"`
	Status    occupancy.Status `json:"status"`
	Count     int              `json:"count"`
}

// StatusHistory lists up to limit status transitions newest first.
func (s *Service) StatusHistory(ctx context.Context, limit int) ([]StatusEntry, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	changes, err := s.Store.StatusChanges(ctx, s.LocationID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]StatusEntry, 0, len(changes))
	for _, c := range changes {
		out = append(out, StatusEntry{Timestamp: c.Time.In(s.loc()), Status: c.Status(), Count: c.Count})
	}
	return out, nil
}

// RecordCount reports how many samples are stored.
type RecordCount struct {
	Records int64 `json:"records"`
}

func (s *Service) Count(ctx context.Context) (RecordCount, error) {
	n, err := s.Store.SampleCount(ctx, s.LocationID)
	return RecordCount{Records: n}, err
}

// SampleStats summarises raw counts in one bucket.
type SampleStats struct {
	Date        string  `json:"date,omitempty"`
	Hour        *int    `json:"hour,omitempty"`
	AvgCount    float64 `json:"avg_count"`
	MaxCount    int     `json:"max_count"`
	MinCount    int     `json:"min_count"`
	RecordCount int     `json:"record_count"`
}

func summarise(samples []occupancy.Sample) SampleStats {
	counts := make([]float64, len(samples))
	st := SampleStats{RecordCount: len(samples), MinCount: samples[0].Count}
	for i, sm := range samples {
		counts[i] = float64(sm.Count)
		if sm.Count > st.MaxCount {
			st.MaxCount = sm.Count
		}
		if sm.Count < st.MinCount {
			st.MinCount = sm.Count
		}
	}
	st.AvgCount = stat.Mean(counts, nil)
	return st
}

// DailySamples summarises raw samples per local date over the last days,
// newest date first.
func (s *Service) DailySamples(ctx context.Context, days int) ([]SampleStats, error) {
	if err := checkDays(days); err != nil {
		return nil, err
	}
	from, to := s.window(days)
	samples, err := s.Store.SamplesBetween(ctx, s.LocationID, from, to)
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]occupancy.Sample)
	for _, sm := range samples {
		d := timeutil.DateKey(sm.Time, s.loc())
		groups[d] = append(groups[d], sm)
	}
	out := make([]SampleStats, 0, len(groups))
	for d, g := range groups {
		st := summarise(g)
		st.Date = d
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// HourlySamples summarises raw samples per local hour of the given day.
func (s *Service) HourlySamples(ctx context.Context, day time.Time) ([]SampleStats, error) {
	start := timeutil.StartOfDay(day, s.loc())
	end := start.AddDate(0, 0, 1)
	samples, err := s.Store.SamplesBetween(ctx, s.LocationID, start, end)
	if err != nil {
		return nil, err
	}
	groups := make(map[int][]occupancy.Sample)
	for _, sm := range samples {
		h := sm.Time.In(s.loc()).Hour()
		groups[h] = append(groups[h], sm)
	}
	out := make([]SampleStats, 0, len(groups))
	for h := 0; h < 24; h++ {
		g, ok := groups[h]
		if !ok {
			continue
		}
		st := summarise(g)
		hour := h
		st.Hour = &hour
		out = append(out, st)
	}
	return out, nil
}
