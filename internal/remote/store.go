// Package remote defines the system-of-record contract. Only the foreground
// execution context may hold a Store; the background evaluator has no path to
// one by construction.
package remote

import (
	"context"
	"errors"
	"time"

	alarm "stopalarm/internal/alarm/domain"
)

// ErrNotFound indicates the remote record does not exist.
var ErrNotFound = errors.New("remote: session not found")

// SessionRecord is the remote document for one alarm session, limited to the
// fields this subsystem reads and writes.
type SessionRecord struct {
	ID          string       `json:"id"`
	OwnerID     string       `json:"owner_id"`
	Target      alarm.Target `json:"target"`
	RadiusM     float64      `json:"radius_m"`
	Status      string       `json:"status"`
	LastKnownM  float64      `json:"last_known_m,omitempty"`
	TriggeredAt time.Time    `json:"triggered_at,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Terminal reports whether the remote record reached a sticky terminal state.
func (r SessionRecord) Terminal() bool {
	return r.Status == alarm.StatusTriggered || r.Status == alarm.StatusCancelled
}

// CreateRequest is the payload for creating a session remotely.
type CreateRequest struct {
	OwnerID string       `json:"owner_id"`
	Target  alarm.Target `json:"target"`
	RadiusM float64      `json:"radius_m"`
}

// Store is the remote system of record.
type Store interface {
	// CreateSession creates a record and returns the remote-issued identity.
	CreateSession(ctx context.Context, req CreateRequest) (SessionRecord, error)
	// GetSession reads a record; ErrNotFound when absent.
	GetSession(ctx context.Context, id string) (SessionRecord, error)
	// MarkTriggered writes status, triggered-at and last known distance.
	MarkTriggered(ctx context.Context, id string, triggeredAt time.Time, lastKnownM float64) error
	// UpdateDistance writes the last known distance.
	UpdateDistance(ctx context.Context, id string, lastKnownM float64) error
	// CancelSession writes the cancelled status.
	CancelSession(ctx context.Context, id string) error
}
