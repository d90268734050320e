// Package buckets splits closed queue events into wall-clock time buckets
// and aggregates the pieces per bucket.
package buckets

import (
	"fmt"
	"time"

	"github.com/banshee-data/queue.report/internal/timeutil"
)

// Granularity selects the bucket grid.
type Granularity int

const (
	// HourOfDay buckets are one local hour wide and keyed by hour 0..23.
	HourOfDay Granularity = iota + 1
	// TenMinuteSlotAcrossDays buckets are ten minutes wide and keyed by
	// date and slot 0..143.
	TenMinuteSlotAcrossDays
)

// SlotsPerDay is the number of ten-minute slots in a day.
const SlotsPerDay = 24 * 6

// Width is the nominal bucket width.
func (g Granularity) Width() time.Duration {
	switch g {
	case HourOfDay:
		return time.Hour
	case TenMinuteSlotAcrossDays:
		return 10 * time.Minute
	}
	return 0
}

func (g Granularity) String() string {
	switch g {
	case HourOfDay:
		return "hour_of_day"
	case TenMinuteSlotAcrossDays:
		return "ten_minute_slot"
	}
	return fmt.Sprintf("granularity(%d)", int(g))
}

// BucketKey identifies a bucket. Slot and SlotMinutes are only set for
// TenMinuteSlotAcrossDays.
type BucketKey struct {
	Date        string `json:"date,omitempty"`
	Hour        int    `json:"hour"`
	Slot        int    `json:"slot,omitempty"`
	SlotMinutes int    `json:"slot_minutes,omitempty"`
}

// Label renders the bucket's local start time as HH:MM.
func (k BucketKey) Label() string {
	if k.SlotMinutes > 0 {
		m := k.Slot * k.SlotMinutes
		return fmt.Sprintf("%02d:%02d", m/60, m%60)
	}
	return fmt.Sprintf("%02d:00", k.Hour)
}

// floor returns the start of the bucket containing t on the local wall
// clock and the key of that bucket.
func (g Granularity) floor(t time.Time, loc *time.Location) (time.Time, BucketKey) {
	local := t.In(loc)
	widthMin := int(g.Width() / time.Minute)
	minuteOfHour := local.Minute()
	if widthMin < 60 {
		minuteOfHour %= widthMin
	}
	off := time.Duration(minuteOfHour)*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	start := t.Add(-off)

	local = start.In(loc)
	key := BucketKey{Date: timeutil.DateKey(start, loc), Hour: local.Hour()}
	if g == TenMinuteSlotAcrossDays {
		key.SlotMinutes = widthMin
		key.Slot = (local.Hour()*60 + local.Minute()) / widthMin
	}
	return start, key
}

func nextMidnight(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day()+1, 0, 0, 0, 0, loc)
}
