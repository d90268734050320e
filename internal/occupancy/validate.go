package occupancy

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNegativeCount = errors.New("negative occupancy count")
	ErrOutOfOrder    = errors.New("sample older than last accepted sample")
	ErrDuplicate     = errors.New("duplicate sample timestamp")
	ErrNoLocation    = errors.New("sample has no location id")
)

// Validator rejects malformed samples before they reach the detector. It
// tracks the last accepted timestamp of a single location and is not safe for
// concurrent use; the owning monitor serializes access.
type Validator struct {
	last time.Time
}

// Seed sets the last accepted timestamp, e.g. from persisted history.
func (v *Validator) Seed(t time.Time) { v.last = t }

// Last returns the last accepted timestamp.
func (v *Validator) Last() time.Time { return v.last }

// Check validates s against the previous accepted sample without recording it.
func (v *Validator) Check(s Sample) error {
	if s.LocationID == "" {
		return ErrNoLocation
	}
	if s.Count < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeCount, s.Count)
	}
	if !v.last.IsZero() {
		if s.Time.Equal(v.last) {
			return fmt.Errorf("%w: %s", ErrDuplicate, s.Time.Format(time.RFC3339Nano))
		}
		if s.Time.Before(v.last) {
			return fmt.Errorf("%w: %s before %s", ErrOutOfOrder,
				s.Time.Format(time.RFC3339Nano), v.last.Format(time.RFC3339Nano))
		}
	}
	return nil
}

// Accept records s as the latest accepted sample.
func (v *Validator) Accept(s Sample) { v.last = s.Time }
