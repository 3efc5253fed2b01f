package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bloomin8/eink-canvas-addon/internal/model"
)

var ErrNotFound = errors.New("not found")

// SaveSnapshot persists the latest device snapshot. The cache holds exactly
// one row; every save replaces it.
func (r *Repository) SaveSnapshot(ctx context.Context, snap model.DeviceSnapshot, capturedAt time.Time) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO snapshot_cache (id, snapshot_json, captured_at, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			snapshot_json=excluded.snapshot_json,
			captured_at=excluded.captured_at,
			updated_at=excluded.updated_at`,
		string(payload),
		formatTime(capturedAt),
		formatTime(time.Now()),
	)
	return err
}

// LoadSnapshot returns the persisted snapshot and its capture time, or
// ErrNotFound when nothing has ever been cached.
func (r *Repository) LoadSnapshot(ctx context.Context) (model.DeviceSnapshot, time.Time, error) {
	var (
		payload    string
		capturedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT snapshot_json, captured_at FROM snapshot_cache WHERE id = 1`).
		Scan(&payload, &capturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DeviceSnapshot{}, time.Time{}, ErrNotFound
	}
	if err != nil {
		return model.DeviceSnapshot{}, time.Time{}, err
	}

	var snap model.DeviceSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return model.DeviceSnapshot{}, time.Time{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, parseTime(capturedAt), nil
}

func (r *Repository) AppendEvent(ctx context.Context, entry model.EventLogEntry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("event: id required")
	}
	when := entry.Time
	if when.IsZero() {
		when = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO event_log (id, time, level, action, message)
		VALUES (?, ?, ?, ?, ?)`,
		entry.ID,
		formatTime(when),
		entry.Level,
		entry.Action,
		entry.Message,
	)
	return err
}

// RecentEvents returns the newest entries first.
func (r *Repository) RecentEvents(ctx context.Context, limit int) ([]model.EventLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, time, level, action, message
		FROM event_log
		ORDER BY time DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.EventLogEntry
	for rows.Next() {
		var (
			entry  model.EventLogEntry
			when   string
			action sql.NullString
		)
		if err := rows.Scan(&entry.ID, &when, &entry.Level, &action, &entry.Message); err != nil {
			return nil, err
		}
		entry.Time = parseTime(when)
		if action.Valid {
			entry.Action = action.String
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// PruneEvents drops entries older than cutoff and anything past the newest
// keep rows. It returns how many rows were removed.
func (r *Repository) PruneEvents(ctx context.Context, cutoff time.Time, keep int) (int64, error) {
	if keep <= 0 {
		keep = 500
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var removed int64
	res, err := tx.ExecContext(ctx, `DELETE FROM event_log WHERE time < ?`, formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	if rows, err := res.RowsAffected(); err == nil {
		removed += rows
	}

	res, err = tx.ExecContext(ctx, `
		DELETE FROM event_log WHERE id NOT IN (
			SELECT id FROM event_log ORDER BY time DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, err
	}
	if rows, err := res.RowsAffected(); err == nil {
		removed += rows
	}

	return removed, tx.Commit()
}
