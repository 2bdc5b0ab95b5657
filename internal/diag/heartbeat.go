package diag

import (
	"context"
	"time"
)

// HeartbeatEntry is one diagnostic sample of the background path. The ring is
// not required for correctness; it exists so support can reconstruct what the
// evaluator saw.
type HeartbeatEntry struct {
	SessionID  string    `json:"session_id"`
	RecordedAt time.Time `json:"recorded_at"`
	DistanceM  float64   `json:"distance_m"`
	AccuracyM  float64   `json:"accuracy_m,omitempty"`
	Fired      bool      `json:"fired"`
}

// HeartbeatLog is the bounded diagnostic ring.
type HeartbeatLog interface {
	Append(ctx context.Context, entry HeartbeatEntry) error
	List(ctx context.Context, limit int) ([]HeartbeatEntry, error)
}
