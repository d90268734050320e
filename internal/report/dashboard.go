package report

import (
	"context"
	"math"
	"time"

	"github.com/banshee-data/queue.report/internal/buckets"
	"github.com/banshee-data/queue.report/internal/occupancy"
	"github.com/banshee-data/queue.report/internal/queue"
	"github.com/banshee-data/queue.report/internal/timeutil"
)

type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

const (
	maxPercentage       = 200
	fallbackWaitPerHead = 2.0
	trendStep           = 2
)

// Dashboard is the combined live view shown on the landing page.
type Dashboard struct {
	Count     int              `json:"count"`
	Status    occupancy.Status `json:"status"`
	Timestamp *time.Time       `json:"timestamp"`
	Hour      int              `json:"hour"`
	Days      int              `json:"days"`

	HourAvgCount float64 `json:"hour_avg_count"`
	HourMaxCount int     `json:"hour_max_count"`
	HourMinCount int     `json:"hour_min_count"`
	HourRecords  int     `json:"hour_record_count"`
	// Percentage is the current count against HourAvgCount, capped at 200.
	Percentage int   `json:"percentage"`
	Trend      Trend `json:"trend"`

	HourAvgQueue    float64 `json:"hour_avg_queue"`
	HourAvgDuration float64 `json:"hour_avg_duration_minutes"`

	HasQueue       bool    `json:"has_queue"`
	Processed      int     `json:"processed"`
	Remaining      int     `json:"remaining"`
	Total          int     `json:"total"`
	PredictedWait  float64 `json:"predicted_wait_minutes"`
	ElapsedMinutes float64 `json:"elapsed_minutes"`
	EstimateNote   string  `json:"estimate_note"`
}

// Dashboard combines the current sample, the active episode and the same
// hour of day across the last days.
func (s *Service) Dashboard(ctx context.Context, days int) (Dashboard, error) {
	out := Dashboard{Status: occupancy.Unknown, Trend: TrendStable, Days: days, EstimateNote: queue.EstimateNote}
	if err := checkDays(days); err != nil {
		return out, err
	}
	now := s.Now().In(s.loc())
	out.Hour = now.Hour()

	cur, err := s.Current(ctx)
	if err != nil {
		return out, err
	}
	out.Count, out.Status, out.Timestamp = cur.Count, cur.Status, cur.Timestamp

	if err := s.hourSamples(ctx, &out, now, days); err != nil {
		return out, err
	}
	if out.HourAvgCount > 0 {
		pct := math.Round(float64(out.Count) / out.HourAvgCount * 100)
		out.Percentage = int(math.Min(pct, maxPercentage))
	}

	recent, err := s.Store.RecentSamples(ctx, s.LocationID, 2)
	if err != nil {
		return out, err
	}
	out.Trend = trendOf(recent)

	if err := s.hourQueue(ctx, &out, now, days); err != nil {
		return out, err
	}

	if cur.HasQueue {
		out.HasQueue = true
		out.Processed = cur.Event.Refills()
		out.Remaining = s.remaining(cur)
		out.Total = out.Processed + out.Remaining
		out.ElapsedMinutes = cur.ElapsedMinutes
		perHead := fallbackWaitPerHead
		if out.HourAvgQueue > 0 && out.HourAvgDuration > 0 {
			perHead = out.HourAvgDuration / out.HourAvgQueue
		}
		out.PredictedWait = float64(out.Remaining) * perHead
	}
	return out, nil
}

// hourSamples fills the raw count figures for now's hour on each of the
// previous days.
func (s *Service) hourSamples(ctx context.Context, out *Dashboard, now time.Time, days int) error {
	var all []occupancy.Sample
	today := timeutil.StartOfDay(now, s.loc())
	for d := 1; d <= days; d++ {
		day := today.AddDate(0, 0, -d)
		from := time.Date(day.Year(), day.Month(), day.Day(), now.Hour(), 0, 0, 0, s.loc())
		samples, err := s.Store.SamplesBetween(ctx, s.LocationID, from, from.Add(time.Hour))
		if err != nil {
			return err
		}
		all = append(all, samples...)
	}
	if len(all) == 0 {
		return nil
	}
	st := summarise(all)
	out.HourAvgCount, out.HourMaxCount, out.HourMinCount, out.HourRecords = st.AvgCount, st.MaxCount, st.MinCount, st.RecordCount
	return nil
}

// hourQueue fills the per-event queue figures for closed events touching
// now's hour of day.
func (s *Service) hourQueue(ctx context.Context, out *Dashboard, now time.Time, days int) error {
	events, err := s.closedEvents(ctx, days)
	if err != nil {
		return err
	}
	contribs, err := buckets.Decompose(events, buckets.HourOfDay, s.loc())
	if err != nil {
		return err
	}
	touching := make(map[int64]bool)
	for _, c := range contribs {
		if c.Key.Hour == now.Hour() {
			touching[c.EventID] = true
		}
	}
	var inHour []queue.Event
	for _, e := range events {
		if touching[e.ID] {
			inHour = append(inHour, e)
		}
	}
	st := buckets.EventStats(inHour)
	out.HourAvgQueue = st.AvgEstimatedQueue
	out.HourAvgDuration = st.AvgDurationMinutes
	return nil
}

// remaining is the part of the episode still waiting. The turnover estimate
// already counts the refills reported as processed, so only the fill in
// progress remains; the gap estimate is the waiting count itself.
func (s *Service) remaining(cur CurrentQueue) int {
	if s.Thresholds.Estimator == queue.EstimateGap {
		return cur.EstimatedQueue
	}
	return cur.Turnover - cur.Event.Refills()
}

// trendOf compares the two newest samples, newest first. A change of one
// person either way is noise.
func trendOf(recent []occupancy.Sample) Trend {
	if len(recent) < 2 {
		return TrendStable
	}
	switch d := recent[0].Count - recent[1].Count; {
	case d >= trendStep:
		return TrendRising
	case d <= -trendStep:
		return TrendFalling
	}
	return TrendStable
}
