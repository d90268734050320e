package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/queue.report/internal/queue"
)

var _ queue.EventStore = (*DB)(nil)

const eventColumns = `event_id, location_id, start_unix_ms, end_unix_ms,
	peak_count, turnover_count, estimated_queue, close_reason`

func (db *DB) CreateEvent(ctx context.Context, locationID string, start time.Time, peak, turnover, estimate int) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO queue_events (location_id, start_unix_ms, peak_count, turnover_count, estimated_queue)
		 VALUES (?, ?, ?, ?, ?)`,
		locationID, start.UnixMilli(), peak, turnover, estimate)
	if err != nil {
		return 0, fmt.Errorf("insert queue event: %w", err)
	}
	return res.LastInsertId()
}

func (db *DB) UpdateEvent(ctx context.Context, id int64, u queue.EventUpdate) error {
	return db.execOne(ctx,
		`UPDATE queue_events
		    SET turnover_count = ?, peak_count = ?, estimated_queue = ?,
		        updated_at = CAST(strftime('%s', 'now') AS INTEGER)
		  WHERE event_id = ?`,
		id, u.TurnoverCount, u.PeakCount, u.EstimatedQueueLength, id)
}

func (db *DB) CloseEvent(ctx context.Context, id int64, end time.Time, reason queue.CloseReason) error {
	return db.execOne(ctx,
		`UPDATE queue_events
		    SET end_unix_ms = ?, close_reason = ?,
		        updated_at = CAST(strftime('%s', 'now') AS INTEGER)
		  WHERE event_id = ?`,
		id, end.UnixMilli(), string(reason), id)
}

func (db *DB) DeleteEvent(ctx context.Context, id int64) error {
	return db.execOne(ctx, `DELETE FROM queue_events WHERE event_id = ?`, id, id)
}

// ActiveEvent returns the newest open event for locationID, or nil.
func (db *DB) ActiveEvent(ctx context.Context, locationID string) (*queue.Event, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM queue_events
		  WHERE location_id = ? AND end_unix_ms IS NULL
		  ORDER BY start_unix_ms DESC LIMIT 1`, locationID)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active event: %w", err)
	}
	return &e, nil
}

// ClosedEventsSince returns closed events starting at or after since,
// oldest first.
func (db *DB) ClosedEventsSince(ctx context.Context, locationID string, since time.Time) ([]queue.Event, error) {
	return db.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM queue_events
		  WHERE location_id = ? AND end_unix_ms IS NOT NULL AND start_unix_ms >= ?
		  ORDER BY start_unix_ms ASC`, locationID, since.UnixMilli())
}

// RecentClosedEvents returns up to limit closed events newest first.
func (db *DB) RecentClosedEvents(ctx context.Context, locationID string, limit int) ([]queue.Event, error) {
	return db.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM queue_events
		  WHERE location_id = ? AND end_unix_ms IS NOT NULL
		  ORDER BY start_unix_ms DESC LIMIT ?`, locationID, limit)
}

func (db *DB) OpenEvents(ctx context.Context, locationID string) ([]queue.Event, error) {
	return db.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM queue_events
		  WHERE location_id = ? AND end_unix_ms IS NULL
		  ORDER BY start_unix_ms ASC`, locationID)
}

// ReplaceEvents deletes every event of locationID and inserts events in a
// single transaction.
func (db *DB) ReplaceEvents(ctx context.Context, locationID string, events []queue.Event) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_events WHERE location_id = ?`, locationID); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO queue_events
		   (location_id, start_unix_ms, end_unix_ms, peak_count, turnover_count, estimated_queue, close_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		var end sql.NullInt64
		if e.End != nil {
			end = sql.NullInt64{Int64: e.End.UnixMilli(), Valid: true}
		}
		var reason sql.NullString
		if e.CloseReason != "" {
			reason = sql.NullString{String: string(e.CloseReason), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, locationID, e.Start.UnixMilli(), end,
			e.PeakCount, e.TurnoverCount, e.EstimatedQueueLength, reason); err != nil {
			return fmt.Errorf("insert rebuilt event: %w", err)
		}
	}
	return tx.Commit()
}

// execOne runs a statement that must affect exactly the event id.
func (db *DB) execOne(ctx context.Context, query string, id int64, args ...interface{}) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("queue event %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("queue event %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(r rowScanner) (queue.Event, error) {
	var e queue.Event
	var start int64
	var end sql.NullInt64
	var reason sql.NullString
	if err := r.Scan(&e.ID, &e.LocationID, &start, &end,
		&e.PeakCount, &e.TurnoverCount, &e.EstimatedQueueLength, &reason); err != nil {
		return e, err
	}
	e.Start = time.UnixMilli(start)
	if end.Valid {
		t := time.UnixMilli(end.Int64)
		e.End = &t
	}
	e.CloseReason = queue.CloseReason(reason.String)
	return e, nil
}

func (db *DB) queryEvents(ctx context.Context, query string, args ...interface{}) ([]queue.Event, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []queue.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
