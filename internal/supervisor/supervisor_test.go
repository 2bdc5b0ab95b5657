package supervisor

import (
	"context"
	"testing"
	"time"

	"stopalarm/internal/alarm/application"
	alarm "stopalarm/internal/alarm/domain"
	"stopalarm/internal/decision"
	"stopalarm/internal/diag"
	"stopalarm/internal/eventing"
	"stopalarm/internal/location"
)

func TestCadenceForBands(t *testing.T) {
	bands := DefaultBands()
	cases := []struct {
		distance float64
		interval time.Duration
		delta    float64
	}{
		{500, 15 * time.Second, 25},
		{1000, 15 * time.Second, 25},
		{1001, 30 * time.Second, 100},
		{3000, 30 * time.Second, 100},
		{9999, 60 * time.Second, 250},
		{25000, 3 * time.Minute, 500},
	}
	for _, tc := range cases {
		got := CadenceFor(bands, tc.distance)
		if got.Interval != tc.interval || got.MinDeltaM != tc.delta {
			t.Fatalf("distance %.0f: want (%v, %.0f), got (%v, %.0f)", tc.distance, tc.interval, tc.delta, got.Interval, got.MinDeltaM)
		}
	}
}

func TestCadenceForUnknownDistanceSelectsFarBand(t *testing.T) {
	got := CadenceFor(DefaultBands(), 0)
	if got.Interval != 3*time.Minute || got.MinDeltaM != 500 {
		t.Fatalf("unknown distance must select the far band, got %+v", got)
	}
	if got := CadenceFor(DefaultBands(), -1); got.Interval != 3*time.Minute {
		t.Fatalf("negative distance must select the far band, got %+v", got)
	}
}

func TestCadenceForWithoutFarBandFallsBack(t *testing.T) {
	bands := []Band{{MaxDistanceM: 1000, Interval: 15 * time.Second, MinDeltaM: 25}}
	got := CadenceFor(bands, 5000)
	if got.Interval != 3*time.Minute || got.MinDeltaM != 500 {
		t.Fatalf("missing far band must fall back to the default, got %+v", got)
	}
}

type memSessions struct {
	session *alarm.Session
}

func (m *memSessions) Get(_ context.Context) (*alarm.Session, error) { return m.session, nil }
func (m *memSessions) Put(_ context.Context, s *alarm.Session) error { m.session = s; return nil }
func (m *memSessions) Clear(_ context.Context) error                 { m.session = nil; return nil }

type memStates struct{}

func (memStates) Get(_ context.Context, _ string) (*decision.State, error)   { return nil, nil }
func (memStates) Upsert(_ context.Context, _ string, _ decision.State) error { return nil }
func (memStates) Delete(_ context.Context, _ string) error                   { return nil }
func (memStates) Rekey(_ context.Context, _ string, _ string) error          { return nil }

type memQueue struct{}

func (memQueue) Append(_ context.Context, _ eventing.PendingSyncEvent) error { return nil }
func (memQueue) LastAppendedAt(_ context.Context, _ string, _ string) (time.Time, error) {
	return time.Time{}, nil
}
func (memQueue) ListPending(_ context.Context, _ int) ([]eventing.PendingSyncEvent, error) {
	return nil, nil
}
func (memQueue) Remove(_ context.Context, _ ...string) error                { return nil }
func (memQueue) RewriteSession(_ context.Context, _ string, _ string) error { return nil }
func (memQueue) Depth(_ context.Context) (int, error)                       { return 0, nil }

type memHeartbeats struct{}

func (memHeartbeats) Append(_ context.Context, _ diag.HeartbeatEntry) error { return nil }
func (memHeartbeats) List(_ context.Context, _ int) ([]diag.HeartbeatEntry, error) {
	return nil, nil
}

type noopNotifier struct{}

func (noopNotifier) Present(_ context.Context, _ string, _ string) error { return nil }

type recordingScheduler struct {
	cadences []Cadence
	fences   []float64
}

func (s *recordingScheduler) StartPeriodic(_ context.Context, _ func(ctx context.Context)) error {
	return nil
}
func (s *recordingScheduler) UpdateCadence(c Cadence) { s.cadences = append(s.cadences, c) }
func (s *recordingScheduler) RegisterGeofence(_, _, radiusM float64, _ func(ctx context.Context)) error {
	s.fences = append(s.fences, radiusM)
	return nil
}
func (s *recordingScheduler) Stop() {}

func TestTickArmsGeofenceForLateSession(t *testing.T) {
	sessions := &memSessions{}
	scheduler := &recordingScheduler{}
	evaluator, err := application.NewBackgroundEvaluator(sessions, memStates{}, memQueue{}, memHeartbeats{}, noopNotifier{}, nil)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	provider := &fixedProvider{err: location.ErrNoFix}
	settings := func() application.Settings { return application.Settings{} }
	super, err := New(provider, evaluator, sessions, scheduler, settings, nil, nil, nil)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}

	super.tick(context.Background())
	if len(scheduler.fences) != 0 {
		t.Fatalf("no session yet, geofence must stay unarmed: %v", scheduler.fences)
	}

	// A session started after the daemon came up still gets its fence.
	sessions.session = &alarm.Session{
		ID:         "session-1",
		OwnerID:    "owner-1",
		Status:     alarm.StatusActive,
		Target:     alarm.Target{Name: "Hauptbahnhof", Latitude: 52.5200, Longitude: 13.4050},
		RadiusM:    400,
		LastKnownM: 900,
	}
	super.tick(context.Background())
	super.tick(context.Background())
	if len(scheduler.fences) != 1 || scheduler.fences[0] != 400 {
		t.Fatalf("want one geofence for the late session, got %v", scheduler.fences)
	}
	if len(scheduler.cadences) != 1 || scheduler.cadences[0].Interval != 15*time.Second {
		t.Fatalf("cadence not seeded from last known distance: %+v", scheduler.cadences)
	}

	// Replacing the session re-arms for the new target.
	sessions.session = &alarm.Session{
		ID:      "session-2",
		OwnerID: "owner-1",
		Status:  alarm.StatusActive,
		Target:  alarm.Target{Name: "Ostbahnhof", Latitude: 52.5103, Longitude: 13.4349},
		RadiusM: 300,
	}
	super.tick(context.Background())
	if len(scheduler.fences) != 2 || scheduler.fences[1] != 300 {
		t.Fatalf("replacement session not re-armed: %v", scheduler.fences)
	}
}
