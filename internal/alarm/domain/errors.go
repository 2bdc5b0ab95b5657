package alarm

import "errors"

// ErrNoActiveSession indicates the single session slot is empty.
var ErrNoActiveSession = errors.New("alarm: no active session")

// ErrSessionExists indicates a live session already occupies the slot.
var ErrSessionExists = errors.New("alarm: session already active")
