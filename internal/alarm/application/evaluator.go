package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	alarm "stopalarm/internal/alarm/domain"
	"stopalarm/internal/decision"
	"stopalarm/internal/diag"
	"stopalarm/internal/eventing"
	"stopalarm/internal/location"
	"stopalarm/internal/notify"
	"stopalarm/internal/observability/metrics"
)

// SessionRepository is the durable single-slot session store.
type SessionRepository interface {
	Get(ctx context.Context) (*alarm.Session, error)
	Put(ctx context.Context, session *alarm.Session) error
	Clear(ctx context.Context) error
}

// DecisionStateRepository persists engine state per session.
type DecisionStateRepository interface {
	Get(ctx context.Context, sessionID string) (*decision.State, error)
	Upsert(ctx context.Context, sessionID string, state decision.State) error
	Delete(ctx context.Context, sessionID string) error
	Rekey(ctx context.Context, oldID, newID string) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Settings is the per-invocation evaluator input sourced by the supervisor.
// Passing it explicitly keeps the background path free of global mutable
// configuration.
type Settings struct {
	Decision    decision.Config
	DedupWindow time.Duration
	AlertTitle  string
	AlertBody   string
}

// Outcome summarizes one background evaluation.
type Outcome struct {
	Triggered bool
	Reason    string
	DistanceM float64
}

// BackgroundEvaluator runs the decision pipeline for one location sample.
// It holds no network-capable collaborator: the host background context may
// have only seconds of runtime and no connectivity, so everything it produces
// lands in durable local storage for the foreground reconciler. Every
// internal failure is reported to the diagnostics sink and swallowed;
// HandleFix never panics an uncaught error into the host process.
type BackgroundEvaluator struct {
	sessions   SessionRepository
	states     DecisionStateRepository
	queue      eventing.Queue
	heartbeats diag.HeartbeatLog
	notifier   notify.Notifier
	sink       diag.Sink
	clock      Clock
}

// EvaluatorOption customizes the evaluator.
type EvaluatorOption func(*BackgroundEvaluator)

// WithEvaluatorClock assigns a clock.
func WithEvaluatorClock(clock Clock) EvaluatorOption {
	return func(e *BackgroundEvaluator) {
		e.clock = clock
	}
}

// NewBackgroundEvaluator constructs an evaluator.
func NewBackgroundEvaluator(sessions SessionRepository, states DecisionStateRepository, queue eventing.Queue, heartbeats diag.HeartbeatLog, notifier notify.Notifier, sink diag.Sink, opts ...EvaluatorOption) (*BackgroundEvaluator, error) {
	if sessions == nil || states == nil {
		return nil, errors.New("evaluator: nil repository")
	}
	if queue == nil {
		return nil, errors.New("evaluator: nil sync queue")
	}
	if sink == nil {
		sink = diag.NopSink{}
	}
	evaluator := &BackgroundEvaluator{
		sessions:   sessions,
		states:     states,
		queue:      queue,
		heartbeats: heartbeats,
		notifier:   notifier,
		sink:       sink,
		clock:      systemClock{},
	}
	for _, opt := range opts {
		opt(evaluator)
	}
	return evaluator, nil
}

// HandleFix evaluates one location sample against the active session. All
// failures are absorbed here: the worst outcome for the host is a "not
// triggered" no-op.
func (e *BackgroundEvaluator) HandleFix(ctx context.Context, fix location.Fix, settings Settings) Outcome {
	if e == nil {
		return Outcome{}
	}
	outcome, err := e.evaluate(ctx, fix, settings)
	if err != nil {
		e.sink.Report(ctx, "background_evaluate", err)
		return Outcome{}
	}
	return outcome
}

func (e *BackgroundEvaluator) evaluate(ctx context.Context, fix location.Fix, settings Settings) (Outcome, error) {
	session, err := e.sessions.Get(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("load session: %w", err)
	}
	// Absent or terminal session: unconditional no-op. This guard is the
	// primary duplicate-fire defense, independent of the engine cooldown.
	if session == nil || session.Terminal() {
		return Outcome{}, nil
	}
	if !fix.Valid() {
		return Outcome{Reason: decision.ReasonInvalidDistance}, nil
	}

	now := e.clock.Now().UTC()
	distance := location.DistanceM(fix.Latitude, fix.Longitude, session.Target.Latitude, session.Target.Longitude)

	state := decision.State{}
	if persisted, err := e.states.Get(ctx, session.ID); err != nil {
		return Outcome{}, fmt.Errorf("load decision state: %w", err)
	} else if persisted != nil {
		state = *persisted
	}

	result, next := decision.Evaluate(decision.Input{
		Now:       now,
		RadiusM:   session.RadiusM,
		DistanceM: distance,
		FixAge:    fix.Age(now),
		AccuracyM: fix.AccuracyM,
	}, state, settings.Decision)
	metrics.IncEvaluation(result.Reason)

	if err := e.states.Upsert(ctx, session.ID, next); err != nil {
		return Outcome{}, fmt.Errorf("persist decision state: %w", err)
	}
	if !result.Accepted {
		return Outcome{Reason: result.Reason, DistanceM: session.LastKnownM}, nil
	}

	if result.Fire {
		return e.fire(ctx, session, fix, result, now, settings)
	}

	// Queue a distance update only when the smoothed distance moved
	// materially since the last queued value; the remote store needs the net
	// effect, not every sample.
	if abs(result.SmoothedM-session.LastSyncedM) >= settings.Decision.MinSyncDeltaM {
		appended, err := eventing.AppendDeduped(ctx, e.queue, eventing.PendingSyncEvent{
			SessionID:  session.ID,
			Type:       eventing.TypeDistanceUpdate,
			OccurredAt: now,
			DistanceM:  result.SmoothedM,
		}, settings.DedupWindow, now)
		if err != nil {
			e.sink.Report(ctx, "queue_distance_update", err)
		} else if appended {
			session.LastSyncedM = result.SmoothedM
			metrics.IncSyncEvent(eventing.TypeDistanceUpdate, "appended")
		} else {
			metrics.IncSyncEvent(eventing.TypeDistanceUpdate, "deduped")
		}
	}

	session.LastKnownM = result.SmoothedM
	session.UpdatedAt = now
	if err := e.sessions.Put(ctx, session); err != nil {
		return Outcome{}, fmt.Errorf("persist session: %w", err)
	}
	e.heartbeat(ctx, session.ID, now, result.SmoothedM, fix.AccuracyM, false)
	return Outcome{Reason: result.Reason, DistanceM: result.SmoothedM}, nil
}

func (e *BackgroundEvaluator) fire(ctx context.Context, session *alarm.Session, fix location.Fix, result decision.Decision, now time.Time, settings Settings) (Outcome, error) {
	if e.notifier != nil {
		if err := e.notifier.Present(ctx, settings.AlertTitle, settings.AlertBody); err != nil {
			e.sink.Report(ctx, "present_alert", err)
		}
	}

	session.Status = alarm.StatusTriggered
	session.TriggeredAt = now
	session.LastKnownM = result.SmoothedM
	session.UpdatedAt = now
	if err := e.sessions.Put(ctx, session); err != nil {
		return Outcome{}, fmt.Errorf("persist triggered session: %w", err)
	}
	metrics.IncTrigger()

	appended, err := eventing.AppendDeduped(ctx, e.queue, eventing.PendingSyncEvent{
		SessionID:   session.ID,
		Type:        eventing.TypeTriggered,
		OccurredAt:  now,
		TriggeredAt: now,
		DistanceM:   result.SmoothedM,
	}, settings.DedupWindow, now)
	if err != nil {
		e.sink.Report(ctx, "queue_triggered", err)
	} else if appended {
		metrics.IncSyncEvent(eventing.TypeTriggered, "appended")
	}

	e.heartbeat(ctx, session.ID, now, result.SmoothedM, fix.AccuracyM, true)
	return Outcome{Triggered: true, Reason: result.Reason, DistanceM: result.SmoothedM}, nil
}

func (e *BackgroundEvaluator) heartbeat(ctx context.Context, sessionID string, at time.Time, distance, accuracy float64, fired bool) {
	if e.heartbeats == nil {
		return
	}
	if err := e.heartbeats.Append(ctx, diag.HeartbeatEntry{
		SessionID:  sessionID,
		RecordedAt: at,
		DistanceM:  distance,
		AccuracyM:  accuracy,
		Fired:      fired,
	}); err != nil {
		e.sink.Report(ctx, "heartbeat", err)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
