package buckets

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/queue.report/internal/queue"
)

// Summary aggregates the contributions of one bucket. Averages are taken
// over distinct events; an event split across several pieces in the same
// bucket counts once.
type Summary struct {
	Key               BucketKey `json:"key"`
	EventCount        int       `json:"event_count"`
	TotalMinutes      float64   `json:"total_minutes"`
	AvgMinutes        float64   `json:"avg_minutes"`
	AvgPeak           float64   `json:"avg_peak"`
	MaxPeak           int       `json:"max_peak"`
	AvgTurnover       float64   `json:"avg_turnover"`
	MaxTurnover       int       `json:"max_turnover"`
	AvgEstimatedQueue float64   `json:"avg_estimated_queue"`
}

type perEvent struct {
	minutes  float64
	peak     int
	turnover int
	estimate int
}

// Aggregate groups contributions by hour of day (across dates) for
// HourOfDay and by date and slot for TenMinuteSlotAcrossDays. Summaries are
// ordered by key.
func Aggregate(contribs []Contribution, g Granularity) []Summary {
	groups := make(map[BucketKey]map[int64]*perEvent)
	var keys []BucketKey
	for _, c := range contribs {
		k := c.Key
		if g == HourOfDay {
			k = BucketKey{Hour: c.Key.Hour}
		}
		evs, ok := groups[k]
		if !ok {
			evs = make(map[int64]*perEvent)
			groups[k] = evs
			keys = append(keys, k)
		}
		pe, ok := evs[c.EventID]
		if !ok {
			pe = &perEvent{peak: c.PeakCount, turnover: c.TurnoverCount, estimate: c.EstimatedQueueLength}
			evs[c.EventID] = pe
		}
		pe.minutes += c.Minutes
	}

	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })

	out := make([]Summary, 0, len(keys))
	for _, k := range keys {
		evs := groups[k]
		n := len(evs)
		minutes := make([]float64, 0, n)
		peaks := make([]float64, 0, n)
		turnovers := make([]float64, 0, n)
		estimates := make([]float64, 0, n)
		s := Summary{Key: k, EventCount: n}
		for _, pe := range evs {
			minutes = append(minutes, pe.minutes)
			peaks = append(peaks, float64(pe.peak))
			turnovers = append(turnovers, float64(pe.turnover))
			estimates = append(estimates, float64(pe.estimate))
			if pe.peak > s.MaxPeak {
				s.MaxPeak = pe.peak
			}
			if pe.turnover > s.MaxTurnover {
				s.MaxTurnover = pe.turnover
			}
		}
		s.TotalMinutes = floats.Sum(minutes)
		s.AvgMinutes = stat.Mean(minutes, nil)
		s.AvgPeak = stat.Mean(peaks, nil)
		s.AvgTurnover = stat.Mean(turnovers, nil)
		s.AvgEstimatedQueue = stat.Mean(estimates, nil)
		out = append(out, s)
	}
	return out
}

func keyLess(a, b BucketKey) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	if a.Hour != b.Hour {
		return a.Hour < b.Hour
	}
	return a.Slot < b.Slot
}

// Stats are per-event figures over a set of closed events.
type Stats struct {
	Count              int     `json:"queue_count"`
	AvgTurnover        float64 `json:"avg_turnover"`
	MaxTurnover        int     `json:"max_turnover"`
	AvgEstimatedQueue  float64 `json:"avg_estimated_queue"`
	MaxEstimatedQueue  int     `json:"max_estimated_queue"`
	AvgPeak            float64 `json:"avg_peak"`
	MaxPeak            int     `json:"max_peak"`
	AvgDurationMinutes float64 `json:"avg_duration_minutes"`
}

// EventStats summarises closed events once each. Open events are ignored.
func EventStats(events []queue.Event) Stats {
	var turnovers, estimates, peaks, durations []float64
	var s Stats
	for _, e := range events {
		if !e.Closed() {
			continue
		}
		s.Count++
		turnovers = append(turnovers, float64(e.TurnoverCount))
		estimates = append(estimates, float64(e.EstimatedQueueLength))
		peaks = append(peaks, float64(e.PeakCount))
		durations = append(durations, e.Duration().Minutes())
		if e.TurnoverCount > s.MaxTurnover {
			s.MaxTurnover = e.TurnoverCount
		}
		if e.EstimatedQueueLength > s.MaxEstimatedQueue {
			s.MaxEstimatedQueue = e.EstimatedQueueLength
		}
		if e.PeakCount > s.MaxPeak {
			s.MaxPeak = e.PeakCount
		}
	}
	if s.Count == 0 {
		return s
	}
	s.AvgTurnover = stat.Mean(turnovers, nil)
	s.AvgEstimatedQueue = stat.Mean(estimates, nil)
	s.AvgPeak = stat.Mean(peaks, nil)
	s.AvgDurationMinutes = stat.Mean(durations, nil)
	return s
}
