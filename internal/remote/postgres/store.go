// Package postgres implements the remote store against a Postgres table, for
// self-hosted deployments where the system of record is a database reachable
// from the foreground context.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alarm "stopalarm/internal/alarm/domain"
	"stopalarm/internal/remote"

	"github.com/google/uuid"
)

const defaultSessionsTable = "alarm_sessions"

// Store is a Postgres implementation of remote.Store.
type Store struct {
	db    *sql.DB
	table string
}

// Option configures the store.
type Option func(*Store)

// WithTable overrides the table name.
func WithTable(table string) Option {
	return func(s *Store) {
		if table != "" {
			s.table = table
		}
	}
}

// NewStore constructs a store.
func NewStore(db *sql.DB, opts ...Option) *Store {
	store := &Store{db: db, table: defaultSessionsTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// CreateSession inserts a record with a server-issued identity.
func (s *Store) CreateSession(ctx context.Context, req remote.CreateRequest) (remote.SessionRecord, error) {
	if s == nil || s.db == nil {
		return remote.SessionRecord{}, errors.New("remote postgres: nil db")
	}
	if req.OwnerID == "" {
		return remote.SessionRecord{}, errors.New("remote postgres: empty owner id")
	}
	if req.RadiusM <= 0 {
		return remote.SessionRecord{}, errors.New("remote postgres: radius must be positive")
	}
	now := time.Now().UTC()
	record := remote.SessionRecord{
		ID:        "session-" + uuid.NewString(),
		OwnerID:   req.OwnerID,
		Target:    req.Target,
		RadiusM:   req.RadiusM,
		Status:    alarm.StatusActive,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO `+s.table+` (
	id, owner_id, target_name, target_lat, target_lon,
	radius_m, status, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5,
	$6, $7, $8, $9
)`,
		record.ID, record.OwnerID, req.Target.Name, req.Target.Latitude, req.Target.Longitude,
		record.RadiusM, record.Status, now, now)
	if err != nil {
		return remote.SessionRecord{}, err
	}
	return record, nil
}

// GetSession reads a record by identity.
func (s *Store) GetSession(ctx context.Context, id string) (remote.SessionRecord, error) {
	if s == nil || s.db == nil {
		return remote.SessionRecord{}, errors.New("remote postgres: nil db")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, owner_id, target_name, target_lat, target_lon, radius_m, status, last_known_m, triggered_at, updated_at
FROM `+s.table+`
WHERE id = $1`, id)

	var record remote.SessionRecord
	var lastKnown sql.NullFloat64
	var triggeredAt sql.NullTime
	if err := row.Scan(
		&record.ID,
		&record.OwnerID,
		&record.Target.Name,
		&record.Target.Latitude,
		&record.Target.Longitude,
		&record.RadiusM,
		&record.Status,
		&lastKnown,
		&triggeredAt,
		&record.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return remote.SessionRecord{}, remote.ErrNotFound
		}
		return remote.SessionRecord{}, err
	}
	if lastKnown.Valid {
		record.LastKnownM = lastKnown.Float64
	}
	if triggeredAt.Valid {
		record.TriggeredAt = triggeredAt.Time.UTC()
	}
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

// MarkTriggered conditionally flips an active record to triggered.
func (s *Store) MarkTriggered(ctx context.Context, id string, triggeredAt time.Time, lastKnownM float64) error {
	if s == nil || s.db == nil {
		return errors.New("remote postgres: nil db")
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE `+s.table+`
SET status = $1, triggered_at = $2, last_known_m = $3, updated_at = $4
WHERE id = $5 AND status = $6`,
		alarm.StatusTriggered, triggeredAt.UTC(), lastKnownM, time.Now().UTC(), id, alarm.StatusActive)
	return err
}

// UpdateDistance writes the last known distance on an active record.
func (s *Store) UpdateDistance(ctx context.Context, id string, lastKnownM float64) error {
	if s == nil || s.db == nil {
		return errors.New("remote postgres: nil db")
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE `+s.table+`
SET last_known_m = $1, updated_at = $2
WHERE id = $3 AND status = $4`,
		lastKnownM, time.Now().UTC(), id, alarm.StatusActive)
	return err
}

// CancelSession flips a non-terminal record to cancelled.
func (s *Store) CancelSession(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("remote postgres: nil db")
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE `+s.table+`
SET status = $1, updated_at = $2
WHERE id = $3 AND status = $4`,
		alarm.StatusCancelled, time.Now().UTC(), id, alarm.StatusActive)
	return err
}
