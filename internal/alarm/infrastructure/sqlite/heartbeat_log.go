package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"stopalarm/internal/diag"
)

// HeartbeatLog is the sqlite-backed bounded diagnostic ring.
type HeartbeatLog struct {
	db  *sql.DB
	cap int
}

const defaultHeartbeatCap = 500

// NewHeartbeatLog constructs a log. cap bounds retained entries.
func NewHeartbeatLog(db *sql.DB, cap int) *HeartbeatLog {
	if cap <= 0 {
		cap = defaultHeartbeatCap
	}
	return &HeartbeatLog{db: db, cap: cap}
}

// Append records an entry and trims the ring to its cap.
func (l *HeartbeatLog) Append(ctx context.Context, entry diag.HeartbeatEntry) error {
	if l == nil || l.db == nil {
		return errors.New("heartbeat log: nil db")
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	var accuracy sql.NullFloat64
	if entry.AccuracyM > 0 {
		accuracy = sql.NullFloat64{Float64: entry.AccuracyM, Valid: true}
	}
	if _, err := l.db.ExecContext(ctx, `
INSERT INTO heartbeats (session_id, recorded_at, distance_m, accuracy_m, fired)
VALUES (?, ?, ?, ?, ?)`,
		entry.SessionID, entry.RecordedAt, entry.DistanceM, accuracy, entry.Fired); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx, `
DELETE FROM heartbeats
WHERE seq NOT IN (SELECT seq FROM heartbeats ORDER BY seq DESC LIMIT ?)`, l.cap)
	return err
}

// List returns the most recent entries, newest first.
func (l *HeartbeatLog) List(ctx context.Context, limit int) ([]diag.HeartbeatEntry, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("heartbeat log: nil db")
	}
	if limit <= 0 || limit > l.cap {
		limit = l.cap
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT session_id, recorded_at, distance_m, accuracy_m, fired
FROM heartbeats
ORDER BY seq DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []diag.HeartbeatEntry
	for rows.Next() {
		var entry diag.HeartbeatEntry
		var accuracy sql.NullFloat64
		var fired int
		if err := rows.Scan(&entry.SessionID, &entry.RecordedAt, &entry.DistanceM, &accuracy, &fired); err != nil {
			return nil, err
		}
		entry.RecordedAt = entry.RecordedAt.UTC()
		if accuracy.Valid {
			entry.AccuracyM = accuracy.Float64
		}
		entry.Fired = fired != 0
		result = append(result, entry)
	}
	return result, rows.Err()
}
