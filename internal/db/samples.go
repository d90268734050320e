package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/queue.report/internal/occupancy"
)

// InsertSample records an accepted occupancy sample. A sample already stored
// for the same location and timestamp is left as it is.
func (db *DB) InsertSample(ctx context.Context, s occupancy.Sample) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO occupancy_samples (location_id, ts_unix_ms, count, status) VALUES (?, ?, ?, ?)
		 ON CONFLICT (location_id, ts_unix_ms) DO NOTHING`,
		s.LocationID, s.Time.UnixMilli(), s.Count, occupancy.Classify(s.Count).String())
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// LatestSample returns the newest sample for locationID, or nil when none
// has been recorded.
func (db *DB) LatestSample(ctx context.Context, locationID string) (*occupancy.Sample, error) {
	var ts int64
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT ts_unix_ms, count FROM occupancy_samples
		  WHERE location_id = ? ORDER BY ts_unix_ms DESC LIMIT 1`, locationID).Scan(&ts, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest sample: %w", err)
	}
	return &occupancy.Sample{LocationID: locationID, Time: time.UnixMilli(ts), Count: count}, nil
}

// LastSampleAt reports the time of the newest sample. It satisfies
// queue.LastSampleFunc.
func (db *DB) LastSampleAt(ctx context.Context, locationID string) (time.Time, bool, error) {
	s, err := db.LatestSample(ctx, locationID)
	if err != nil || s == nil {
		return time.Time{}, false, err
	}
	return s.Time, true, nil
}

// SamplesBetween returns samples in [from, to) oldest first.
func (db *DB) SamplesBetween(ctx context.Context, locationID string, from, to time.Time) ([]occupancy.Sample, error) {
	return db.querySamples(ctx,
		`SELECT ts_unix_ms, count FROM occupancy_samples
		  WHERE location_id = ? AND ts_unix_ms >= ? AND ts_unix_ms < ?
		  ORDER BY ts_unix_ms ASC`,
		locationID, locationID, from.UnixMilli(), to.UnixMilli())
}

// AllSamples returns the full history of locationID oldest first.
func (db *DB) AllSamples(ctx context.Context, locationID string) ([]occupancy.Sample, error) {
	return db.querySamples(ctx,
		`SELECT ts_unix_ms, count FROM occupancy_samples
		  WHERE location_id = ? ORDER BY ts_unix_ms ASC`,
		locationID, locationID)
}

// RecentSamples returns up to limit samples newest first.
func (db *DB) RecentSamples(ctx context.Context, locationID string, limit int) ([]occupancy.Sample, error) {
	return db.querySamples(ctx,
		`SELECT ts_unix_ms, count FROM occupancy_samples
		  WHERE location_id = ? ORDER BY ts_unix_ms DESC LIMIT ?`,
		locationID, locationID, limit)
}

// SampleCount returns the number of stored samples for locationID.
func (db *DB) SampleCount(ctx context.Context, locationID string) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM occupancy_samples WHERE location_id = ?`, locationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return n, nil
}

// StatusChanges returns up to limit samples at which the classified status
// changed, newest first. Consecutive samples with the same status collapse
// into the first one.
func (db *DB) StatusChanges(ctx context.Context, locationID string, limit int) ([]occupancy.Sample, error) {
	return db.querySamples(ctx, `
		SELECT ts_unix_ms, count FROM (
			SELECT ts_unix_ms, count, status,
			       LAG(status) OVER (ORDER BY ts_unix_ms) AS prev_status
			  FROM occupancy_samples
			 WHERE location_id = ?
		)
		 WHERE prev_status IS NULL OR prev_status != status
		 ORDER BY ts_unix_ms DESC
		 LIMIT ?`,
		locationID, locationID, limit)
}

func (db *DB) querySamples(ctx context.Context, query, locationID string, args ...interface{}) ([]occupancy.Sample, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []occupancy.Sample
	for rows.Next() {
		var ts int64
		var count int
		if err := rows.Scan(&ts, &count); err != nil {
			return nil, err
		}
		out = append(out, occupancy.Sample{LocationID: locationID, Time: time.UnixMilli(ts), Count: count})
	}
	return out, rows.Err()
}
