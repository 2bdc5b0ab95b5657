// Package application holds the two entry points into the alarm session
// lifecycle: the foreground Service (start, cancel, offline-create flush) and
// the BackgroundEvaluator driven by location callbacks.
package application

import (
	"context"
	"errors"
	"fmt"

	alarm "stopalarm/internal/alarm/domain"
	"stopalarm/internal/diag"
	"stopalarm/internal/eventing"
	"stopalarm/internal/observability/metrics"
	"stopalarm/internal/remote"
)

// CreateQueue is the durable offline session-create log.
type CreateQueue interface {
	Append(ctx context.Context, create alarm.PendingSessionCreate) error
	List(ctx context.Context, limit int) ([]alarm.PendingSessionCreate, error)
	Remove(ctx context.Context, surrogateID string) error
}

// Service drives the foreground session lifecycle. It is the only component
// besides the reconciler allowed to reach the remote store.
type Service struct {
	sessions SessionRepository
	states   DecisionStateRepository
	creates  CreateQueue
	queue    eventing.Queue
	store    remote.Store
	sink     diag.Sink
	clock    Clock
}

// ServiceOption customizes the service.
type ServiceOption func(*Service)

// WithServiceClock assigns a clock.
func WithServiceClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService constructs a session service.
func NewService(sessions SessionRepository, states DecisionStateRepository, creates CreateQueue, queue eventing.Queue, store remote.Store, sink diag.Sink, opts ...ServiceOption) (*Service, error) {
	if sessions == nil || states == nil {
		return nil, errors.New("session service: nil repository")
	}
	if creates == nil {
		return nil, errors.New("session service: nil create queue")
	}
	if queue == nil {
		return nil, errors.New("session service: nil sync queue")
	}
	if store == nil {
		return nil, errors.New("session service: nil remote store")
	}
	if sink == nil {
		sink = diag.NopSink{}
	}
	service := &Service{
		sessions: sessions,
		states:   states,
		creates:  creates,
		queue:    queue,
		store:    store,
		sink:     sink,
		clock:    systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Start begins a new alarm session for the owner. The remote create is
// attempted first; when it fails (offline, server down) the session starts
// immediately against a surrogate identity and the create request is queued
// for a later flush. The evaluator treats both identically.
func (s *Service) Start(ctx context.Context, ownerID string, target alarm.Target, radiusM float64) (*alarm.Session, error) {
	if s == nil {
		return nil, errors.New("session service: nil service")
	}
	if ownerID == "" {
		return nil, errors.New("session service: empty owner id")
	}
	if radiusM <= 0 {
		return nil, errors.New("session service: radius must be positive")
	}
	existing, err := s.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Terminal() {
		return nil, alarm.ErrSessionExists
	}

	now := s.clock.Now().UTC()
	session := &alarm.Session{
		OwnerID:   ownerID,
		Status:    alarm.StatusActive,
		Target:    target,
		RadiusM:   radiusM,
		CreatedAt: now,
		UpdatedAt: now,
	}

	record, err := s.store.CreateSession(ctx, remote.CreateRequest{OwnerID: ownerID, Target: target, RadiusM: radiusM})
	if err == nil {
		session.ID = record.ID
	} else {
		s.sink.Report(ctx, "remote_create", err)
		session.ID = alarm.NewSurrogateID()
		if err := s.creates.Append(ctx, alarm.PendingSessionCreate{
			SurrogateID: session.ID,
			OwnerID:     ownerID,
			Target:      target,
			RadiusM:     radiusM,
			RequestedAt: now,
		}); err != nil {
			return nil, fmt.Errorf("queue offline create: %w", err)
		}
	}

	if err := s.sessions.Put(ctx, session); err != nil {
		return nil, err
	}
	// A fresh session must not inherit a predecessor's streak, and the
	// replaced terminal session's state row must not linger.
	if existing != nil && existing.ID != session.ID {
		if err := s.states.Delete(ctx, existing.ID); err != nil {
			s.sink.Report(ctx, "reset_decision_state", err)
		}
	}
	if err := s.states.Delete(ctx, session.ID); err != nil {
		s.sink.Report(ctx, "reset_decision_state", err)
	}
	return session, nil
}

// Active returns the current session, or ErrNoActiveSession.
func (s *Service) Active(ctx context.Context) (*alarm.Session, error) {
	if s == nil {
		return nil, errors.New("session service: nil service")
	}
	session, err := s.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, alarm.ErrNoActiveSession
	}
	return session, nil
}

// Cancel ends the current session. The cancelled status is written locally
// first; the remote write is best-effort and its failure is only reported.
func (s *Service) Cancel(ctx context.Context) error {
	if s == nil {
		return errors.New("session service: nil service")
	}
	session, err := s.sessions.Get(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return alarm.ErrNoActiveSession
	}

	if !alarm.IsSurrogateID(session.ID) {
		if err := s.store.CancelSession(ctx, session.ID); err != nil {
			s.sink.Report(ctx, "remote_cancel", err)
		}
	} else {
		// Never created remotely: drop the queued create as well.
		if err := s.creates.Remove(ctx, session.ID); err != nil {
			s.sink.Report(ctx, "remove_pending_create", err)
		}
	}

	if err := s.states.Delete(ctx, session.ID); err != nil {
		s.sink.Report(ctx, "delete_decision_state", err)
	}
	return s.sessions.Clear(ctx)
}

// FlushPendingCreates submits queued offline creates to the remote store.
// On success the surrogate identity is replaced with the remote-issued one
// everywhere it is referenced; on failure the entry stays queued for a later
// attempt. Returns the number of creates flushed.
func (s *Service) FlushPendingCreates(ctx context.Context) (int, error) {
	if s == nil {
		return 0, errors.New("session service: nil service")
	}
	pending, err := s.creates.List(ctx, 0)
	if err != nil {
		return 0, err
	}
	flushed := 0
	for _, create := range pending {
		record, err := s.store.CreateSession(ctx, remote.CreateRequest{
			OwnerID: create.OwnerID,
			Target:  create.Target,
			RadiusM: create.RadiusM,
		})
		if err != nil {
			metrics.IncCreateFlush(metrics.ResultError)
			s.sink.Report(ctx, "flush_create", err)
			continue
		}
		if err := s.adoptIdentity(ctx, create.SurrogateID, record.ID); err != nil {
			metrics.IncCreateFlush(metrics.ResultError)
			s.sink.Report(ctx, "adopt_identity", err)
			continue
		}
		if err := s.creates.Remove(ctx, create.SurrogateID); err != nil {
			s.sink.Report(ctx, "remove_flushed_create", err)
		}
		metrics.IncCreateFlush(metrics.ResultSuccess)
		flushed++
	}
	return flushed, nil
}

// adoptIdentity rewrites every local reference from the surrogate to the
// remote-issued identity: the active-session slot, the persisted decision
// state, and any queued sync events.
func (s *Service) adoptIdentity(ctx context.Context, surrogateID, remoteID string) error {
	session, err := s.sessions.Get(ctx)
	if err != nil {
		return err
	}
	if session != nil && session.ID == surrogateID {
		session.ID = remoteID
		session.UpdatedAt = s.clock.Now().UTC()
		if err := s.sessions.Put(ctx, session); err != nil {
			return err
		}
	}
	if err := s.states.Rekey(ctx, surrogateID, remoteID); err != nil {
		return err
	}
	return s.queue.RewriteSession(ctx, surrogateID, remoteID)
}
