package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"stopalarm/internal/eventing"
)

// QueueStore is the sqlite-backed pending-sync log. It is a capped ring: the
// oldest entries fall off rather than growing without bound during long
// offline periods.
type QueueStore struct {
	db  *sql.DB
	cap int
}

const defaultQueueCap = 200

// NewQueueStore constructs a store. cap bounds retained events.
func NewQueueStore(db *sql.DB, cap int) *QueueStore {
	if cap <= 0 {
		cap = defaultQueueCap
	}
	return &QueueStore{db: db, cap: cap}
}

// Append stores an event and trims the ring to its cap.
func (s *QueueStore) Append(ctx context.Context, event eventing.PendingSyncEvent) error {
	if s == nil || s.db == nil {
		return errors.New("sync queue: nil db")
	}
	if err := event.Validate(); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = eventing.NewEventID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO sync_events (id, session_id, event_type, payload, appended_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`,
		event.ID, event.SessionID, event.Type, string(payload), event.OccurredAt); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
DELETE FROM sync_events
WHERE seq NOT IN (SELECT seq FROM sync_events ORDER BY seq DESC LIMIT ?)`, s.cap)
	return err
}

// LastAppendedAt returns the most recent append time for (session, type).
func (s *QueueStore) LastAppendedAt(ctx context.Context, sessionID, eventType string) (time.Time, error) {
	if s == nil || s.db == nil {
		return time.Time{}, errors.New("sync queue: nil db")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT appended_at FROM sync_events
WHERE session_id = ? AND event_type = ?
ORDER BY seq DESC
LIMIT 1`, sessionID, eventType)
	var at time.Time
	if err := row.Scan(&at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return at.UTC(), nil
}

// ListPending returns queued events in append order. Corrupt payloads are
// skipped.
func (s *QueueStore) ListPending(ctx context.Context, limit int) ([]eventing.PendingSyncEvent, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sync queue: nil db")
	}
	if limit <= 0 || limit > s.cap {
		limit = s.cap
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT payload FROM sync_events ORDER BY seq ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []eventing.PendingSyncEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var event eventing.PendingSyncEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			continue
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

// Remove deletes events by identity.
func (s *QueueStore) Remove(ctx context.Context, ids ...string) error {
	if s == nil || s.db == nil {
		return errors.New("sync queue: nil db")
	}
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_events WHERE id IN (`+placeholders+`)`, args...)
	return err
}

// RewriteSession repoints queued events from oldID to newID after a surrogate
// session adopts its remote identity.
func (s *QueueStore) RewriteSession(ctx context.Context, oldID, newID string) error {
	if s == nil || s.db == nil {
		return errors.New("sync queue: nil db")
	}
	if oldID == "" || newID == "" {
		return errors.New("sync queue: empty id")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM sync_events WHERE session_id = ?`, oldID)
	if err != nil {
		return err
	}
	defer rows.Close()

	type update struct {
		id      string
		payload string
	}
	var updates []update
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return err
		}
		var event eventing.PendingSyncEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			continue
		}
		event.SessionID = newID
		rewritten, err := json.Marshal(event)
		if err != nil {
			return err
		}
		updates = append(updates, update{id: id, payload: string(rewritten)})
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, u := range updates {
		if _, err := s.db.ExecContext(ctx, `
UPDATE sync_events SET session_id = ?, payload = ? WHERE id = ?`, newID, u.payload, u.id); err != nil {
			return err
		}
	}
	return nil
}

// Depth returns the current queue length.
func (s *QueueStore) Depth(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("sync queue: nil db")
	}
	var depth int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_events`).Scan(&depth); err != nil {
		return 0, err
	}
	return depth, nil
}
