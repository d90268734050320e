package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/banshee-data/queue.report/internal/buckets"
	"github.com/banshee-data/queue.report/internal/occupancy"
	"github.com/banshee-data/queue.report/internal/queue"
	"github.com/banshee-data/queue.report/internal/timeutil"
)

// DailyQueue holds per-event figures for one local date.
type DailyQueue struct {
	Date string `json:"date"`
	buckets.Stats
}

// QueueDaily summarises closed events per local start date, newest first.
func (s *Service) QueueDaily(ctx context.Context, days int) ([]DailyQueue, error) {
	if err := checkDays(days); err != nil {
		return nil, err
	}
	events, err := s.closedEvents(ctx, days)
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]queue.Event)
	for _, e := range events {
		d := timeutil.DateKey(e.Start, s.loc())
		groups[d] = append(groups[d], e)
	}
	out := make([]DailyQueue, 0, len(groups))
	for d, g := range groups {
		out = append(out, DailyQueue{Date: d, Stats: buckets.EventStats(g)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// HistoryEntry is one closed event as listed in the history view.
type HistoryEntry struct {
	queue.Event
	DurationMinutes float64 `json:"duration_minutes"`
	RefillCount     int     `json:"refills"`
}

// QueueHistory lists up to limit closed events newest first.
func (s *Service) QueueHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	events, err := s.Store.RecentClosedEvents(ctx, s.LocationID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(events))
	for _, e := range events {
		e.Start = e.Start.In(s.loc())
		if e.End != nil {
			end := e.End.In(s.loc())
			e.End = &end
		}
		out = append(out, HistoryEntry{Event: e, DurationMinutes: e.Duration().Minutes(), RefillCount: e.Refills()})
	}
	return out, nil
}

// StackDay is the hour-by-hour breakdown of one local date.
type StackDay struct {
	Date  string                 `json:"date"`
	Hours []buckets.Contribution `json:"hours"`
}

// QueueStacks returns hour-of-day contributions grouped by local date,
// newest date first, for the stacked hourly view.
func (s *Service) QueueStacks(ctx context.Context, days int) ([]StackDay, error) {
	if err := checkDays(days); err != nil {
		return nil, err
	}
	events, err := s.closedEvents(ctx, days)
	if err != nil {
		return nil, err
	}
	contribs, err := buckets.Decompose(events, buckets.HourOfDay, s.loc())
	if err != nil {
		return nil, err
	}
	byDate := make(map[string][]buckets.Contribution)
	for _, c := range contribs {
		byDate[c.Key.Date] = append(byDate[c.Key.Date], c)
	}
	out := make([]StackDay, 0, len(byDate))
	for d, cs := range byDate {
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].Start.Before(cs[j].Start) })
		out = append(out, StackDay{Date: d, Hours: cs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// HeatmapCell is one event's presence in a ten-minute slot.
type HeatmapCell struct {
	EventID int64  `json:"event_id"`
	Date    string `json:"date"`
	Slot    int    `json:"slot"`
	Label   string `json:"label"`
	IsStart bool   `json:"is_start"`
	// Turnover is only set on the cell where the event starts so that a
	// continued event is not counted again.
	Turnover        *int    `json:"turnover,omitempty"`
	EstimatedQueue  *int    `json:"estimated_queue,omitempty"`
	DurationMinutes float64 `json:"duration_minutes"`
	SpansMidnight   bool    `json:"spans_midnight,omitempty"`
}

// Heatmap returns ten-minute cells over the last days ordered by date and
// slot.
func (s *Service) Heatmap(ctx context.Context, days int) ([]HeatmapCell, error) {
	if err := checkDays(days); err != nil {
		return nil, err
	}
	events, err := s.closedEvents(ctx, days)
	if err != nil {
		return nil, err
	}
	contribs, err := buckets.Decompose(events, buckets.TenMinuteSlotAcrossDays, s.loc())
	if err != nil {
		return nil, err
	}
	out := make([]HeatmapCell, 0, len(contribs))
	for _, c := range contribs {
		cell := HeatmapCell{
			EventID:         c.EventID,
			Date:            c.Key.Date,
			Slot:            c.Key.Slot,
			Label:           c.Key.Label(),
			IsStart:         c.IsStart,
			DurationMinutes: c.Minutes,
			SpansMidnight:   c.SpansMidnight,
		}
		if c.IsStart {
			turnover, estimate := c.TurnoverCount, c.EstimatedQueueLength
			cell.Turnover = &turnover
			cell.EstimatedQueue = &estimate
		}
		out = append(out, cell)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Slot < out[j].Slot
	})
	return out, nil
}

// WeeklyHourly aggregates closed events by hour of day across the last days.
func (s *Service) WeeklyHourly(ctx context.Context, days int) ([]buckets.Summary, error) {
	if err := checkDays(days); err != nil {
		return nil, err
	}
	events, err := s.closedEvents(ctx, days)
	if err != nil {
		return nil, err
	}
	contribs, err := buckets.Decompose(events, buckets.HourOfDay, s.loc())
	if err != nil {
		return nil, err
	}
	return buckets.Aggregate(contribs, buckets.HourOfDay), nil
}

// CurrentQueue is the live queue view.
type CurrentQueue struct {
	HasQueue       bool             `json:"has_queue"`
	Count          int              `json:"count"`
	Status         occupancy.Status `json:"status"`
	Timestamp      *time.Time       `json:"timestamp"`
	Event          *queue.Event     `json:"event,omitempty"`
	Turnover       int              `json:"turnover_count"`
	EstimatedQueue int              `json:"estimated_queue"`
	ElapsedMinutes float64          `json:"elapsed_minutes"`
	EstimateNote   string           `json:"estimate_note"`
}

// Current reports the active episode. HasQueue is false whenever the latest
// count is at or below the empty threshold, even if an episode is still
// open in the store.
func (s *Service) Current(ctx context.Context) (CurrentQueue, error) {
	out := CurrentQueue{Status: occupancy.Unknown, EstimateNote: queue.EstimateNote}
	latest, err := s.Store.LatestSample(ctx, s.LocationID)
	if err != nil {
		return out, err
	}
	if latest == nil {
		return out, nil
	}
	ts := latest.Time.In(s.loc())
	out.Count, out.Status, out.Timestamp = latest.Count, latest.Status(), &ts
	if latest.Count <= s.Thresholds.Empty {
		return out, nil
	}
	ev, err := s.Store.ActiveEvent(ctx, s.LocationID)
	if err != nil {
		return out, fmt.Errorf("active event: %w", err)
	}
	if ev == nil {
		return out, nil
	}
	ev.Start = ev.Start.In(s.loc())
	out.HasQueue = true
	out.Event = ev
	out.Turnover = ev.TurnoverCount
	out.EstimatedQueue = ev.EstimatedQueueLength
	out.ElapsedMinutes = latest.Time.Sub(ev.Start).Minutes()
	return out, nil
}
