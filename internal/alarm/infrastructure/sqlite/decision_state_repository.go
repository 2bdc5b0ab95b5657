package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"stopalarm/internal/decision"
)

// DecisionStateRepository stores per-session engine state across process
// restarts.
type DecisionStateRepository struct {
	db *sql.DB
}

// NewDecisionStateRepository constructs a repository.
func NewDecisionStateRepository(db *sql.DB) *DecisionStateRepository {
	return &DecisionStateRepository{db: db}
}

// Get returns the persisted state for the session, or nil when none exists.
// A corrupt payload reads as missing state.
func (r *DecisionStateRepository) Get(ctx context.Context, sessionID string) (*decision.State, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("decision state repo: nil db")
	}
	if sessionID == "" {
		return nil, errors.New("decision state repo: empty session id")
	}
	row := r.db.QueryRowContext(ctx, `SELECT payload FROM decision_states WHERE session_id = ?`, sessionID)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var state decision.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, nil
	}
	return &state, nil
}

// Upsert writes the state for the session.
func (r *DecisionStateRepository) Upsert(ctx context.Context, sessionID string, state decision.State) error {
	if r == nil || r.db == nil {
		return errors.New("decision state repo: nil db")
	}
	if sessionID == "" {
		return errors.New("decision state repo: empty session id")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO decision_states (session_id, payload, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (session_id)
DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		sessionID, string(payload), time.Now().UTC())
	return err
}

// Delete removes the state for the session.
func (r *DecisionStateRepository) Delete(ctx context.Context, sessionID string) error {
	if r == nil || r.db == nil {
		return errors.New("decision state repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM decision_states WHERE session_id = ?`, sessionID)
	return err
}

// Rekey moves the state from oldID to newID, used when a surrogate session
// adopts its remote-issued identity.
func (r *DecisionStateRepository) Rekey(ctx context.Context, oldID, newID string) error {
	if r == nil || r.db == nil {
		return errors.New("decision state repo: nil db")
	}
	if oldID == "" || newID == "" {
		return errors.New("decision state repo: empty id")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE decision_states SET session_id = ?
WHERE session_id = ?`, newID, oldID)
	return err
}
