package queue

import (
	"time"

	"github.com/banshee-data/queue.report/internal/occupancy"
)

// State is the detector's per-location memory. The zero value is Idle with
// no status observed.
type State struct {
	Active        bool
	WasAtCapacity bool
	EventID       int64
	Start         time.Time
	PeakCount     int
	TurnoverCount int
	Estimate      int
	// GapMin is the lowest count since the last drop below capacity.
	GapMin int
	// GapWaiting accumulates the gap estimator's total.
	GapWaiting int
	LastStatus occupancy.Status
	LastSample time.Time
}

// Effect is an instruction produced by Step for the event store or the
// status hook. Effects must be applied in the order returned.
type Effect interface{ effect() }

// Open starts a new episode.
type Open struct {
	Start    time.Time
	Peak     int
	Turnover int
	Estimate int
}

// Update rewrites the mutable fields of the open episode.
type Update struct {
	EventUpdate
}

// Close ends the open episode.
type Close struct {
	End    time.Time
	Reason CloseReason
}

// StatusChange reports a change of classified status between samples.
type StatusChange struct {
	LocationID string           `json:"location_id"`
	From       occupancy.Status `json:"from"`
	To         occupancy.Status `json:"to"`
	Count      int              `json:"count"`
	Time       time.Time        `json:"timestamp"`
}

func (Open) effect()         {}
func (Update) effect()       {}
func (Close) effect()        {}
func (StatusChange) effect() {}

// Step advances the detector by one sample. It has no side effects; the
// caller applies the returned effects and keeps the returned state.
func Step(th Thresholds, st State, s occupancy.Sample) (State, []Effect) {
	var effects []Effect

	if st.Active && th.MaxEpisode > 0 && s.Time.Sub(st.Start) >= th.MaxEpisode {
		effects = append(effects, Close{End: s.Time, Reason: ReasonTimeout})
		st = idle(st)
	}

	count := s.Count
	if count < 0 {
		count = 0
	}

	switch {
	case !st.Active && count >= th.Capacity:
		st.Active = true
		st.WasAtCapacity = true
		st.EventID = 0
		st.Start = s.Time
		st.PeakCount = count
		st.TurnoverCount = 1
		st.GapMin = 0
		st.GapWaiting = 0
		st.Estimate = estimate(th, st)
		effects = append(effects, Open{Start: s.Time, Peak: count, Turnover: st.TurnoverCount, Estimate: st.Estimate})

	case st.Active && count >= th.Capacity:
		changed := false
		if !st.WasAtCapacity {
			st.TurnoverCount++
			st.GapWaiting += count - st.GapMin
			changed = true
		}
		if count > st.PeakCount {
			st.PeakCount = count
			changed = true
		}
		st.WasAtCapacity = true
		if changed {
			st.Estimate = estimate(th, st)
			effects = append(effects, Update{EventUpdate{
				TurnoverCount:        st.TurnoverCount,
				PeakCount:            st.PeakCount,
				EstimatedQueueLength: st.Estimate,
			}})
		}

	case st.Active:
		if st.WasAtCapacity || count < st.GapMin {
			st.GapMin = count
		}
		st.WasAtCapacity = false
		if count <= th.Empty {
			effects = append(effects, Close{End: s.Time, Reason: ReasonDrained})
			st = idle(st)
		}
	}

	status := occupancy.Classify(count)
	if status != st.LastStatus {
		effects = append(effects, StatusChange{
			LocationID: s.LocationID,
			From:       st.LastStatus,
			To:         status,
			Count:      s.Count,
			Time:       s.Time,
		})
	}
	st.LastStatus = status
	st.LastSample = s.Time
	return st, effects
}

// idle clears the episode fields and keeps status tracking.
func idle(st State) State {
	return State{LastStatus: st.LastStatus, LastSample: st.LastSample}
}

func estimate(th Thresholds, st State) int {
	if th.Estimator == EstimateGap {
		return st.GapWaiting
	}
	return st.TurnoverCount
}
