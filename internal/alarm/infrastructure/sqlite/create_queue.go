package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	alarm "stopalarm/internal/alarm/domain"
)

// CreateQueue stores pending offline session-create requests.
type CreateQueue struct {
	db  *sql.DB
	cap int
}

const defaultCreateQueueCap = 32

// NewCreateQueue constructs a queue. cap bounds the number of retained
// entries; zero or negative selects the default.
func NewCreateQueue(db *sql.DB, cap int) *CreateQueue {
	if cap <= 0 {
		cap = defaultCreateQueueCap
	}
	return &CreateQueue{db: db, cap: cap}
}

// Append queues a create request. Re-queueing the same surrogate replaces the
// previous payload.
func (q *CreateQueue) Append(ctx context.Context, create alarm.PendingSessionCreate) error {
	if q == nil || q.db == nil {
		return errors.New("create queue: nil db")
	}
	if create.SurrogateID == "" {
		return errors.New("create queue: empty surrogate id")
	}
	if create.RequestedAt.IsZero() {
		create.RequestedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(create)
	if err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx, `
INSERT INTO pending_creates (surrogate_id, payload, requested_at)
VALUES (?, ?, ?)
ON CONFLICT (surrogate_id)
DO UPDATE SET payload = excluded.payload, requested_at = excluded.requested_at`,
		create.SurrogateID, string(payload), create.RequestedAt); err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
DELETE FROM pending_creates
WHERE seq NOT IN (SELECT seq FROM pending_creates ORDER BY seq DESC LIMIT ?)`, q.cap)
	return err
}

// List returns queued creates in request order. Corrupt payloads are skipped.
func (q *CreateQueue) List(ctx context.Context, limit int) ([]alarm.PendingSessionCreate, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("create queue: nil db")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.QueryContext(ctx, `
SELECT payload FROM pending_creates ORDER BY seq ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarm.PendingSessionCreate
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var create alarm.PendingSessionCreate
		if err := json.Unmarshal(payload, &create); err != nil {
			continue
		}
		result = append(result, create)
	}
	return result, rows.Err()
}

// Remove deletes the entry for the surrogate.
func (q *CreateQueue) Remove(ctx context.Context, surrogateID string) error {
	if q == nil || q.db == nil {
		return errors.New("create queue: nil db")
	}
	_, err := q.db.ExecContext(ctx, `DELETE FROM pending_creates WHERE surrogate_id = ?`, surrogateID)
	return err
}
