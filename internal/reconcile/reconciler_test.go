package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	alarm "stopalarm/internal/alarm/domain"
	"stopalarm/internal/eventing"
	"stopalarm/internal/remote"
)

type memoryQueue struct {
	events []eventing.PendingSyncEvent
}

func (q *memoryQueue) Append(_ context.Context, event eventing.PendingSyncEvent) error {
	q.events = append(q.events, event)
	return nil
}

func (q *memoryQueue) LastAppendedAt(_ context.Context, _, _ string) (time.Time, error) {
	return time.Time{}, nil
}

func (q *memoryQueue) ListPending(_ context.Context, _ int) ([]eventing.PendingSyncEvent, error) {
	return append([]eventing.PendingSyncEvent(nil), q.events...), nil
}

func (q *memoryQueue) Remove(_ context.Context, ids ...string) error {
	kept := q.events[:0]
	for _, event := range q.events {
		removed := false
		for _, id := range ids {
			if event.ID == id {
				removed = true
			}
		}
		if !removed {
			kept = append(kept, event)
		}
	}
	q.events = kept
	return nil
}

func (q *memoryQueue) RewriteSession(_ context.Context, oldID, newID string) error {
	for i := range q.events {
		if q.events[i].SessionID == oldID {
			q.events[i].SessionID = newID
		}
	}
	return nil
}

func (q *memoryQueue) Depth(_ context.Context) (int, error) {
	return len(q.events), nil
}

type fakeStore struct {
	records      map[string]remote.SessionRecord
	triggerErr   error
	distanceErr  error
	triggered    []string
	distanceSets map[string]float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]remote.SessionRecord{}, distanceSets: map[string]float64{}}
}

func (s *fakeStore) CreateSession(_ context.Context, req remote.CreateRequest) (remote.SessionRecord, error) {
	return remote.SessionRecord{}, errors.New("not used")
}

func (s *fakeStore) GetSession(_ context.Context, id string) (remote.SessionRecord, error) {
	record, ok := s.records[id]
	if !ok {
		return remote.SessionRecord{}, remote.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) MarkTriggered(_ context.Context, id string, _ time.Time, _ float64) error {
	if s.triggerErr != nil {
		return s.triggerErr
	}
	s.triggered = append(s.triggered, id)
	return nil
}

func (s *fakeStore) UpdateDistance(_ context.Context, id string, distance float64) error {
	if s.distanceErr != nil {
		return s.distanceErr
	}
	s.distanceSets[id] = distance
	return nil
}

func (s *fakeStore) CancelSession(_ context.Context, _ string) error {
	return nil
}

var reconcileMoment = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

func triggeredEvent(id, sessionID string) eventing.PendingSyncEvent {
	return eventing.PendingSyncEvent{
		ID: id, SessionID: sessionID, Type: eventing.TypeTriggered,
		OccurredAt: reconcileMoment, TriggeredAt: reconcileMoment, DistanceM: 320,
	}
}

func distanceEvent(id, sessionID string) eventing.PendingSyncEvent {
	return eventing.PendingSyncEvent{
		ID: id, SessionID: sessionID, Type: eventing.TypeDistanceUpdate,
		OccurredAt: reconcileMoment, DistanceM: 750,
	}
}

func TestDrainWritesAndEmptiesQueue(t *testing.T) {
	queue := &memoryQueue{events: []eventing.PendingSyncEvent{
		distanceEvent("event-1", "session-1"),
		triggeredEvent("event-2", "session-1"),
	}}
	store := newFakeStore()
	store.records["session-1"] = remote.SessionRecord{ID: "session-1", Status: alarm.StatusActive}

	reconciler, err := NewReconciler(queue, store, nil, nil)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	result, err := reconciler.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if result.Written != 2 || result.Discarded != 0 || result.Failed != 0 {
		t.Fatalf("want 2 written, got %+v", result)
	}
	if len(queue.events) != 0 {
		t.Fatalf("queue not emptied: %d events left", len(queue.events))
	}
	if store.distanceSets["session-1"] != 750 || len(store.triggered) != 1 {
		t.Fatalf("remote writes missing: %+v %+v", store.distanceSets, store.triggered)
	}
}

func TestDrainDiscardsIrrelevantEvents(t *testing.T) {
	queue := &memoryQueue{events: []eventing.PendingSyncEvent{
		// Surrogate identity: no remote counterpart yet.
		triggeredEvent("event-1", alarm.SurrogatePrefix+"abc"),
		// Unknown remote session.
		distanceEvent("event-2", "session-gone"),
		// Remote record already terminal.
		triggeredEvent("event-3", "session-done"),
		// Distance update for a non-active record.
		distanceEvent("event-4", "session-done"),
	}}
	store := newFakeStore()
	store.records["session-done"] = remote.SessionRecord{ID: "session-done", Status: alarm.StatusTriggered}

	reconciler, err := NewReconciler(queue, store, nil, nil)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	result, err := reconciler.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if result.Discarded != 4 || result.Written != 0 {
		t.Fatalf("want 4 discarded, got %+v", result)
	}
	if len(queue.events) != 0 {
		t.Fatal("discarded events must still be removed")
	}
	if len(store.triggered) != 0 || len(store.distanceSets) != 0 {
		t.Fatal("discarded events must not write remotely")
	}
}

func TestDrainIsolatesPerEventFailures(t *testing.T) {
	queue := &memoryQueue{events: []eventing.PendingSyncEvent{
		triggeredEvent("event-1", "session-1"),
		distanceEvent("event-2", "session-2"),
	}}
	store := newFakeStore()
	store.records["session-1"] = remote.SessionRecord{ID: "session-1", Status: alarm.StatusActive}
	store.records["session-2"] = remote.SessionRecord{ID: "session-2", Status: alarm.StatusActive}
	store.triggerErr = errors.New("server error")

	reconciler, err := NewReconciler(queue, store, nil, nil)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	result, err := reconciler.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if result.Failed != 1 || result.Written != 1 {
		t.Fatalf("want one failure one write, got %+v", result)
	}
	if store.distanceSets["session-2"] != 750 {
		t.Fatal("failure of one event blocked another")
	}
	if len(queue.events) != 0 {
		t.Fatal("processed events must be removed even on failure")
	}
}

func TestDrainIsIdempotent(t *testing.T) {
	queue := &memoryQueue{events: []eventing.PendingSyncEvent{triggeredEvent("event-1", "session-1")}}
	store := newFakeStore()
	store.records["session-1"] = remote.SessionRecord{ID: "session-1", Status: alarm.StatusActive}

	reconciler, err := NewReconciler(queue, store, nil, nil)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	if _, err := reconciler.Drain(context.Background()); err != nil {
		t.Fatalf("first drain: %v", err)
	}
	// The remote record is now terminal; replaying the same event discards.
	store.records["session-1"] = remote.SessionRecord{ID: "session-1", Status: alarm.StatusTriggered}
	queue.events = []eventing.PendingSyncEvent{triggeredEvent("event-1", "session-1")}

	result, err := reconciler.Drain(context.Background())
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if result.Written != 0 || result.Discarded != 1 {
		t.Fatalf("replay must discard, got %+v", result)
	}
	if len(store.triggered) != 1 {
		t.Fatalf("want exactly one remote trigger write, got %d", len(store.triggered))
	}
}
