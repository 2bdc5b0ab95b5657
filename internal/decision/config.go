package decision

import (
	"errors"
	"time"
)

// Config tunes the decision engine. All fields must be positive; use
// DefaultConfig as a baseline and override selectively.
type Config struct {
	// MaxFixAge rejects samples older than this ceiling. Unknown age passes.
	MaxFixAge time.Duration
	// MaxAccuracyM rejects samples whose reported accuracy radius exceeds
	// this ceiling. Unknown accuracy passes (fail-open).
	MaxAccuracyM float64
	// BucketM rounds accepted distances to this granularity before smoothing.
	BucketM float64
	// RingSize bounds the smoothing window.
	RingSize int
	// ExitMultiplier and ExitBufferM define the hysteresis exit threshold
	// max(radius*ExitMultiplier, radius+ExitBufferM).
	ExitMultiplier float64
	ExitBufferM    float64
	// ConfirmCount consecutive inside samples within ConfirmWindow are
	// required before firing.
	ConfirmCount  int
	ConfirmWindow time.Duration
	// Cooldown suppresses any fire within this interval of the last trigger.
	Cooldown time.Duration
	// MinSyncDeltaM is the smoothed-distance movement required before a
	// distance update is worth queueing for the remote store.
	MinSyncDeltaM float64
}

// DefaultConfig returns the tuning used when no override is configured.
func DefaultConfig() Config {
	return Config{
		MaxFixAge:      2 * time.Minute,
		MaxAccuracyM:   150,
		BucketM:        10,
		RingSize:       5,
		ExitMultiplier: 1.25,
		ExitBufferM:    75,
		ConfirmCount:   2,
		ConfirmWindow:  25 * time.Second,
		Cooldown:       60 * time.Second,
		MinSyncDeltaM:  50,
	}
}

// Validate checks config invariants.
func (c Config) Validate() error {
	if c.MaxFixAge <= 0 {
		return errors.New("decision config: max fix age must be positive")
	}
	if c.MaxAccuracyM <= 0 {
		return errors.New("decision config: max accuracy must be positive")
	}
	if c.BucketM <= 0 {
		return errors.New("decision config: bucket must be positive")
	}
	if c.RingSize <= 0 {
		return errors.New("decision config: ring size must be positive")
	}
	if c.ExitMultiplier < 1 {
		return errors.New("decision config: exit multiplier below 1")
	}
	if c.ExitBufferM < 0 {
		return errors.New("decision config: negative exit buffer")
	}
	if c.ConfirmCount <= 0 {
		return errors.New("decision config: confirm count must be positive")
	}
	if c.ConfirmWindow <= 0 {
		return errors.New("decision config: confirm window must be positive")
	}
	if c.Cooldown < 0 {
		return errors.New("decision config: negative cooldown")
	}
	if c.MinSyncDeltaM < 0 {
		return errors.New("decision config: negative sync delta")
	}
	return nil
}
