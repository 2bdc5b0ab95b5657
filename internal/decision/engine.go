// Package decision turns noisy, intermittent distance samples into a single
// trustworthy "fire the alarm now" outcome. Evaluate is a pure function over
// (sample, persisted state, config); replaying a sample against a reloaded
// state reproduces the same decision, which is what makes background-process
// restarts safe.
package decision

import (
	"math"
	"sort"
	"time"
)

// Decision reasons reported alongside each evaluation.
const (
	ReasonInvalidDistance = "invalid_distance"
	ReasonStaleLocation   = "stale_location"
	ReasonBadAccuracy     = "bad_accuracy"
	ReasonOutside         = "outside"
	ReasonExitBand        = "exit_band"
	ReasonConfirming      = "confirming"
	ReasonCooldown        = "cooldown"
	ReasonTriggered       = "triggered"
)

// Input is one evaluation request.
type Input struct {
	Now     time.Time
	RadiusM float64
	// DistanceM is the raw straight-line distance to the target.
	DistanceM float64
	// FixAge is the sample age; negative means unknown (treated as fresh).
	FixAge time.Duration
	// AccuracyM is the fix accuracy radius; zero or negative means unknown
	// (treated as acceptable).
	AccuracyM float64
}

// State is the per-session engine state persisted between evaluations.
type State struct {
	Samples       []float64 `json:"samples"`
	Streak        int       `json:"streak"`
	FirstInsideAt time.Time `json:"first_inside_at,omitempty"`
	LastInsideAt  time.Time `json:"last_inside_at,omitempty"`
	LastTriggerAt time.Time `json:"last_trigger_at,omitempty"`
	LastReason    string    `json:"last_reason,omitempty"`
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Accepted  bool
	Reason    string
	SmoothedM float64
	Inside    bool
	Fire      bool
}

// Evaluate runs the gate -> smooth -> hysteresis -> confirm -> cooldown
// pipeline for one sample and returns the decision plus the next state.
// Rejected samples pass the state through unchanged.
func Evaluate(in Input, state State, cfg Config) (Decision, State) {
	if math.IsNaN(in.DistanceM) || math.IsInf(in.DistanceM, 0) || in.DistanceM <= 0 {
		return rejected(ReasonInvalidDistance), state
	}
	if in.FixAge >= 0 && in.FixAge > cfg.MaxFixAge {
		return rejected(ReasonStaleLocation), state
	}
	if in.AccuracyM > 0 && in.AccuracyM > cfg.MaxAccuracyM {
		return rejected(ReasonBadAccuracy), state
	}

	next := state.clone()
	bucketed := math.Round(in.DistanceM/cfg.BucketM) * cfg.BucketM
	next.Samples = append(next.Samples, bucketed)
	if len(next.Samples) > cfg.RingSize {
		next.Samples = next.Samples[len(next.Samples)-cfg.RingSize:]
	}
	smoothed := median(next.Samples)

	inside := smoothed <= in.RadiusM
	exitThreshold := math.Max(in.RadiusM*cfg.ExitMultiplier, in.RadiusM+cfg.ExitBufferM)

	decision := Decision{Accepted: true, SmoothedM: smoothed, Inside: inside}

	if !inside {
		if smoothed <= exitThreshold && next.Streak > 0 {
			// Boundary flicker: hold the streak, do not advance it.
			decision.Reason = ReasonExitBand
		} else {
			next.Streak = 0
			next.FirstInsideAt = time.Time{}
			decision.Reason = ReasonOutside
		}
		next.LastReason = decision.Reason
		return decision, next
	}

	if next.Streak == 0 || next.FirstInsideAt.IsZero() {
		next.FirstInsideAt = in.Now
		next.Streak = 1
	} else if in.Now.Sub(next.FirstInsideAt) > cfg.ConfirmWindow {
		// Stale confirmation attempt: restart at the current sample.
		next.FirstInsideAt = in.Now
		next.Streak = 1
	} else {
		next.Streak++
	}
	next.LastInsideAt = in.Now

	if !next.LastTriggerAt.IsZero() && in.Now.Sub(next.LastTriggerAt) < cfg.Cooldown {
		decision.Reason = ReasonCooldown
		next.LastReason = decision.Reason
		return decision, next
	}

	if next.Streak >= cfg.ConfirmCount {
		decision.Fire = true
		decision.Reason = ReasonTriggered
		next.LastTriggerAt = in.Now
		next.Streak = 0
		next.FirstInsideAt = time.Time{}
		next.LastReason = decision.Reason
		return decision, next
	}

	decision.Reason = ReasonConfirming
	next.LastReason = decision.Reason
	return decision, next
}

func rejected(reason string) Decision {
	return Decision{Accepted: false, Reason: reason}
}

func (s State) clone() State {
	next := s
	next.Samples = append([]float64(nil), s.Samples...)
	return next
}

func median(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	// Lower median for even counts: while the ring is still filling, the
	// most recent samples should dominate over a stale far-away outlier.
	return sorted[(len(sorted)-1)/2]
}
