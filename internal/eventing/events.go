// Package eventing defines the durable pending-sync log: everything that
// happened on the background path and still has to reach the remote store.
package eventing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Pending sync event types.
const (
	TypeTriggered      = "triggered"
	TypeDistanceUpdate = "distance_update"
)

// PendingSyncEvent is one queued background outcome. Appended by the
// background evaluator, consumed and removed by the foreground reconciler.
type PendingSyncEvent struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	// TriggeredAt is set for triggered events.
	TriggeredAt time.Time `json:"triggered_at,omitempty"`
	// DistanceM is the last known distance for distance updates, and the
	// distance at fire time for triggered events.
	DistanceM float64 `json:"distance_m"`
}

// Validate checks event invariants.
func (e PendingSyncEvent) Validate() error {
	if e.SessionID == "" {
		return errors.New("sync event: empty session id")
	}
	switch e.Type {
	case TypeTriggered, TypeDistanceUpdate:
	default:
		return errors.New("sync event: invalid type")
	}
	return nil
}

// Queue is the durable, bounded, ordered pending-sync log.
type Queue interface {
	// Append stores the event. Implementations enforce the ring cap.
	Append(ctx context.Context, event PendingSyncEvent) error
	// LastAppendedAt returns the append time of the most recent event with
	// the same (session, type), or the zero time when none exists.
	LastAppendedAt(ctx context.Context, sessionID, eventType string) (time.Time, error)
	// ListPending returns queued events in append order.
	ListPending(ctx context.Context, limit int) ([]PendingSyncEvent, error)
	// Remove deletes events by identity.
	Remove(ctx context.Context, ids ...string) error
	// RewriteSession replaces every queued reference to oldID with newID.
	RewriteSession(ctx context.Context, oldID, newID string) error
	// Depth returns the current queue length.
	Depth(ctx context.Context) (int, error)
}

// AppendDeduped appends the event unless one of the same (session, type) was
// appended within the recency window. The background path may evaluate many
// times per minute; only the net effect needs to reach the remote store.
// Returns true when the event was actually appended.
func AppendDeduped(ctx context.Context, queue Queue, event PendingSyncEvent, window time.Duration, now time.Time) (bool, error) {
	if queue == nil {
		return false, errors.New("sync queue: nil queue")
	}
	if err := event.Validate(); err != nil {
		return false, err
	}
	if window > 0 {
		last, err := queue.LastAppendedAt(ctx, event.SessionID, event.Type)
		if err != nil {
			return false, err
		}
		if !last.IsZero() && now.Sub(last) < window {
			return false, nil
		}
	}
	if event.ID == "" {
		event.ID = NewEventID()
	}
	if err := queue.Append(ctx, event); err != nil {
		return false, err
	}
	return true, nil
}

// NewEventID generates a random event identifier.
func NewEventID() string {
	return uuid.NewString()
}
