package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	alarm "stopalarm/internal/alarm/domain"
)

// SessionRepository stores the single active-session slot.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository constructs a repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Get returns the live session, or nil when the slot is empty. A corrupt
// payload reads as an empty slot: the background path must treat unusable
// state as absent rather than fail.
func (r *SessionRepository) Get(ctx context.Context) (*alarm.Session, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("session repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `SELECT payload FROM alarm_session WHERE slot = 1`)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var session alarm.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, nil
	}
	if session.ID == "" {
		return nil, nil
	}
	return &session, nil
}

// Put writes the session into the slot, replacing any previous occupant.
func (r *SessionRepository) Put(ctx context.Context, session *alarm.Session) error {
	if r == nil || r.db == nil {
		return errors.New("session repo: nil db")
	}
	if session == nil {
		return errors.New("session repo: nil session")
	}
	if err := session.Validate(); err != nil {
		return err
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO alarm_session (slot, payload, updated_at)
VALUES (1, ?, ?)
ON CONFLICT (slot)
DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		string(payload), session.UpdatedAt)
	return err
}

// Clear empties the slot.
func (r *SessionRepository) Clear(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("session repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM alarm_session WHERE slot = 1`)
	return err
}
