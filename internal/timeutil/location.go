package timeutil

import (
	"fmt"
	"strings"
	"time"

	// embedded so bucketing works on hosts without a tz database
	_ "time/tzdata"
)

// DefaultLocation is the zone the monitored site reports in when no timezone
// is configured.
const DefaultLocation = "Asia/Tokyo"

// LoadLocation resolves a tz database name for calendar bucketing. "Local"
// and "UTC" are accepted as-is; an empty name falls back to DefaultLocation.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	switch name {
	case "":
		name = DefaultLocation
	case "UTC":
		return time.UTC, nil
	case "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", name, err)
	}
	return loc, nil
}

// StartOfDay returns local midnight of the calendar day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// DateKey formats t as a YYYY-MM-DD civil date in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

// ParseDate parses a YYYY-MM-DD civil date as local midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}
