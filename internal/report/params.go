package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/queue.report/internal/timeutil"
)

// ErrBadRequest marks invalid report parameters.
var ErrBadRequest = errors.New("bad request")

const (
	DefaultDays         = 7
	MaxDays             = 90
	DefaultStatusLimit  = 100
	DefaultHistoryLimit = 50
	MaxLimit            = 1000
)

func badRequest(format string, v ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, v...))
}

func checkDays(days int) error {
	if days < 1 || days > MaxDays {
		return badRequest("days must be between 1 and %d, got %d", MaxDays, days)
	}
	return nil
}

func checkLimit(limit int) error {
	if limit < 1 || limit > MaxLimit {
		return badRequest("limit must be between 1 and %d, got %d", MaxLimit, limit)
	}
	return nil
}

// ParseDays parses a days query value. Empty yields DefaultDays.
func ParseDays(raw string) (int, error) {
	return parseBounded(raw, "days", DefaultDays, checkDays)
}

// ParseLimit parses a limit query value. Empty yields def.
func ParseLimit(raw string, def int) (int, error) {
	return parseBounded(raw, "limit", def, checkLimit)
}

func parseBounded(raw, name string, def int, check func(int) error) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer, got %q", name, raw)
	}
	if err := check(n); err != nil {
		return 0, err
	}
	return n, nil
}

// ParseDate parses a YYYY-MM-DD value in loc. Empty yields today.
func ParseDate(raw string, loc *time.Location, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return timeutil.StartOfDay(now, loc), nil
	}
	t, err := timeutil.ParseDate(raw, loc)
	if err != nil {
		return time.Time{}, badRequest("date must be YYYY-MM-DD, got %q", raw)
	}
	return t, nil
}
