package queue

import (
	"errors"
	"fmt"
	"time"
)

// Estimator selects how EstimatedQueueLength is derived during an episode.
type Estimator string

const (
	// EstimateTurnover uses the turnover count itself.
	EstimateTurnover Estimator = "turnover"
	// EstimateGap sums, over every refill, the rise from the lowest count seen
	// while below capacity back up to the refilling count.
	EstimateGap Estimator = "gap"
)

// EstimateNote accompanies every estimate surfaced to users.
const EstimateNote = "estimated_queue is inferred from refill counting and is an approximation, not a measured queue length"

var ErrInvalidThresholds = errors.New("invalid queue thresholds")

// Thresholds parameterise the detector.
type Thresholds struct {
	// Capacity is the count at or above which the location is full.
	Capacity int
	// Empty is the count at or below which an open episode closes.
	Empty int
	// MaxEpisode force-closes episodes older than this. Zero disables it.
	MaxEpisode time.Duration
	Estimator  Estimator
}

// DefaultThresholds returns the thresholds used when nothing is configured.
func DefaultThresholds() Thresholds {
	return Thresholds{Capacity: 6, Empty: 2, Estimator: EstimateTurnover}
}

// Validate reports whether the thresholds can drive the detector.
func (th Thresholds) Validate() error {
	if th.Capacity < 1 {
		return fmt.Errorf("%w: capacity %d must be at least 1", ErrInvalidThresholds, th.Capacity)
	}
	if th.Empty < 0 {
		return fmt.Errorf("%w: empty %d must not be negative", ErrInvalidThresholds, th.Empty)
	}
	if th.Empty >= th.Capacity {
		return fmt.Errorf("%w: empty %d must be below capacity %d", ErrInvalidThresholds, th.Empty, th.Capacity)
	}
	if th.MaxEpisode < 0 {
		return fmt.Errorf("%w: max episode %s must not be negative", ErrInvalidThresholds, th.MaxEpisode)
	}
	switch th.Estimator {
	case EstimateTurnover, EstimateGap, "":
	default:
		return fmt.Errorf("%w: unknown estimator %q", ErrInvalidThresholds, th.Estimator)
	}
	return nil
}
