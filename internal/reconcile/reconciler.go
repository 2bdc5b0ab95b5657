// Package reconcile drains the pending sync queue against the remote store.
// It runs only from the foreground execution context, opportunistically: app
// brought forward, connectivity regained, or explicit user action.
package reconcile

import (
	"context"
	"errors"
	"log"

	alarm "stopalarm/internal/alarm/domain"
	"stopalarm/internal/diag"
	"stopalarm/internal/eventing"
	"stopalarm/internal/observability/metrics"
	"stopalarm/internal/remote"
)

// Reconciler reconciles queued background outcomes with the remote store.
// Safe under concurrent invocation: every per-event remote operation is a
// conditional read-then-write that tolerates redundant execution.
type Reconciler struct {
	queue  eventing.Queue
	store  remote.Store
	sink   diag.Sink
	logger *log.Logger
}

// NewReconciler constructs a reconciler.
func NewReconciler(queue eventing.Queue, store remote.Store, sink diag.Sink, logger *log.Logger) (*Reconciler, error) {
	if queue == nil {
		return nil, errors.New("reconciler: nil queue")
	}
	if store == nil {
		return nil, errors.New("reconciler: nil remote store")
	}
	if sink == nil {
		sink = diag.NopSink{}
	}
	return &Reconciler{queue: queue, store: store, sink: sink, logger: logger}, nil
}

// Result summarizes one drain pass.
type Result struct {
	Written   int
	Discarded int
	Failed    int
}

// Drain processes every queued event in order. Failures are caught per event
// so one bad event never blocks the rest of the batch. Processed events are
// removed from the queue; an event whose remote call failed is currently also
// removed rather than retained for retry, matching the don't-block-the-queue
// tradeoff the subsystem has always made.
func (r *Reconciler) Drain(ctx context.Context) (Result, error) {
	if r == nil {
		return Result{}, errors.New("reconciler: nil reconciler")
	}
	events, err := r.queue.ListPending(ctx, 0)
	if err != nil {
		return Result{}, err
	}

	var result Result
	processed := make([]string, 0, len(events))
	for _, event := range events {
		outcome := r.apply(ctx, event)
		switch outcome {
		case metrics.ResultSuccess:
			result.Written++
		case metrics.ResultDiscarded:
			result.Discarded++
		default:
			result.Failed++
		}
		metrics.IncReconcile(event.Type, outcome)
		processed = append(processed, event.ID)
	}
	if len(processed) > 0 {
		if err := r.queue.Remove(ctx, processed...); err != nil {
			return result, err
		}
	}
	if depth, err := r.queue.Depth(ctx); err == nil {
		metrics.SetSyncQueueDepth(depth)
	}
	if r.logger != nil && len(events) > 0 {
		r.logger.Printf("reconcile: written=%d discarded=%d failed=%d", result.Written, result.Discarded, result.Failed)
	}
	return result, nil
}

func (r *Reconciler) apply(ctx context.Context, event eventing.PendingSyncEvent) string {
	// Surrogate sessions have no remote counterpart yet; nothing to
	// reconcile until the offline create flush rewrites the identity.
	if alarm.IsSurrogateID(event.SessionID) {
		return metrics.ResultDiscarded
	}

	record, err := r.store.GetSession(ctx, event.SessionID)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return metrics.ResultDiscarded
		}
		r.sink.Report(ctx, "reconcile_read", err)
		return metrics.ResultError
	}

	switch event.Type {
	case eventing.TypeTriggered:
		if record.Terminal() {
			// The alarm already reached its terminal remote state.
			return metrics.ResultDiscarded
		}
		if err := r.store.MarkTriggered(ctx, event.SessionID, event.TriggeredAt, event.DistanceM); err != nil {
			r.sink.Report(ctx, "reconcile_triggered", err)
			return metrics.ResultError
		}
		return metrics.ResultSuccess
	case eventing.TypeDistanceUpdate:
		if record.Status != alarm.StatusActive {
			return metrics.ResultDiscarded
		}
		if err := r.store.UpdateDistance(ctx, event.SessionID, event.DistanceM); err != nil {
			r.sink.Report(ctx, "reconcile_distance", err)
			return metrics.ResultError
		}
		return metrics.ResultSuccess
	default:
		return metrics.ResultDiscarded
	}
}
