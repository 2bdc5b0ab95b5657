package alarm

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session statuses. Triggered and cancelled are sticky terminal states: once
// set, every further evaluation of the session is an unconditional no-op.
const (
	StatusActive    = "active"
	StatusTriggered = "triggered"
	StatusCancelled = "cancelled"
)

// SurrogatePrefix is the reserved namespace for locally minted session
// identifiers issued before the remote store has accepted the create.
const SurrogatePrefix = "local-"

// Target is the destination the alarm watches.
type Target struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Session is the active alarm record. At most one live instance exists at a
// time; it is mutated only by the background evaluator (distance, status to
// triggered) or by explicit user cancellation.
type Session struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Status      string    `json:"status"`
	Target      Target    `json:"target"`
	RadiusM     float64   `json:"radius_m"`
	LastKnownM  float64   `json:"last_known_m,omitempty"`
	LastSyncedM float64   `json:"last_synced_m,omitempty"`
	TriggeredAt time.Time `json:"triggered_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Terminal reports whether the session reached a sticky terminal state.
func (s Session) Terminal() bool {
	return s.Status == StatusTriggered || s.Status == StatusCancelled
}

// Validate checks session invariants.
func (s Session) Validate() error {
	if s.ID == "" {
		return errors.New("session: empty id")
	}
	if s.OwnerID == "" {
		return errors.New("session: empty owner id")
	}
	switch s.Status {
	case StatusActive, StatusTriggered, StatusCancelled:
	default:
		return errors.New("session: invalid status")
	}
	if s.RadiusM <= 0 {
		return errors.New("session: radius must be positive")
	}
	return nil
}

// PendingSessionCreate is a queued "create this alarm remotely" request,
// recorded when a session was started without connectivity.
type PendingSessionCreate struct {
	SurrogateID string    `json:"surrogate_id"`
	OwnerID     string    `json:"owner_id"`
	Target      Target    `json:"target"`
	RadiusM     float64   `json:"radius_m"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewSurrogateID mints a locally scoped session identifier.
func NewSurrogateID() string {
	return SurrogatePrefix + uuid.NewString()
}

// IsSurrogateID reports whether id belongs to the reserved local namespace.
func IsSurrogateID(id string) bool {
	return strings.HasPrefix(id, SurrogatePrefix)
}
