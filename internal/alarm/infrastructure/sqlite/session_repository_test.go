package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	alarm "stopalarm/internal/alarm/domain"
	"stopalarm/internal/decision"
	"stopalarm/internal/diag"
	storage "stopalarm/internal/storage/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testSession() *alarm.Session {
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	return &alarm.Session{
		ID:        "session-1",
		OwnerID:   "owner-1",
		Status:    alarm.StatusActive,
		Target:    alarm.Target{Name: "Hauptbahnhof", Latitude: 52.52, Longitude: 13.405},
		RadiusM:   400,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSessionRepositoryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	got, err := repo.Get(ctx)
	if err != nil || got != nil {
		t.Fatalf("empty slot: want nil, got %+v err=%v", got, err)
	}

	session := testSession()
	if err := repo.Put(ctx, session); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err = repo.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != session.ID || got.Target.Name != "Hauptbahnhof" || got.RadiusM != 400 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// The slot holds at most one session: a second put replaces it.
	session.Status = alarm.StatusTriggered
	session.TriggeredAt = session.UpdatedAt.Add(time.Minute)
	if err := repo.Put(ctx, session); err != nil {
		t.Fatalf("put update: %v", err)
	}
	got, err = repo.Get(ctx)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Status != alarm.StatusTriggered || got.TriggeredAt.IsZero() {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err = repo.Get(ctx)
	if err != nil || got != nil {
		t.Fatalf("cleared slot: want nil, got %+v err=%v", got, err)
	}
}

func TestSessionRepositoryRejectsInvalidSession(t *testing.T) {
	repo := NewSessionRepository(openTestDB(t))
	session := testSession()
	session.RadiusM = 0
	if err := repo.Put(context.Background(), session); err == nil {
		t.Fatal("want validation error for zero radius")
	}
}

func TestDecisionStateRepository(t *testing.T) {
	db := openTestDB(t)
	repo := NewDecisionStateRepository(db)
	ctx := context.Background()

	got, err := repo.Get(ctx, "session-1")
	if err != nil || got != nil {
		t.Fatalf("missing state: want nil, got %+v err=%v", got, err)
	}

	state := decision.State{
		Samples:       []float64{390, 380},
		Streak:        2,
		FirstInsideAt: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
	}
	if err := repo.Upsert(ctx, "session-1", state); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err = repo.Get(ctx, "session-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Streak != 2 || len(got.Samples) != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if err := repo.Rekey(ctx, "session-1", "session-remote-1"); err != nil {
		t.Fatalf("rekey: %v", err)
	}
	if got, _ := repo.Get(ctx, "session-1"); got != nil {
		t.Fatal("old key still present after rekey")
	}
	got, err = repo.Get(ctx, "session-remote-1")
	if err != nil || got == nil || got.Streak != 2 {
		t.Fatalf("rekeyed state missing: %+v err=%v", got, err)
	}

	if err := repo.Delete(ctx, "session-remote-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := repo.Get(ctx, "session-remote-1"); got != nil {
		t.Fatal("state survived delete")
	}
}

func TestCreateQueueCapAndReplace(t *testing.T) {
	db := openTestDB(t)
	queue := NewCreateQueue(db, 2)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	for i, surrogate := range []string{"local-a", "local-b", "local-c"} {
		err := queue.Append(ctx, alarm.PendingSessionCreate{
			SurrogateID: surrogate,
			OwnerID:     "owner-1",
			RadiusM:     400,
			RequestedAt: now.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append %s: %v", surrogate, err)
		}
	}

	creates, err := queue.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(creates) != 2 {
		t.Fatalf("cap not enforced: want 2, got %d", len(creates))
	}
	if creates[0].SurrogateID != "local-b" || creates[1].SurrogateID != "local-c" {
		t.Fatalf("oldest entry should fall off: %+v", creates)
	}

	// Re-queueing a surrogate replaces its payload instead of duplicating.
	if err := queue.Append(ctx, alarm.PendingSessionCreate{SurrogateID: "local-c", OwnerID: "owner-1", RadiusM: 500, RequestedAt: now}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	creates, _ = queue.List(ctx, 0)
	if len(creates) != 2 {
		t.Fatalf("replace duplicated entry: %d", len(creates))
	}

	if err := queue.Remove(ctx, "local-b"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	creates, _ = queue.List(ctx, 0)
	if len(creates) != 1 || creates[0].SurrogateID != "local-c" {
		t.Fatalf("remove failed: %+v", creates)
	}
}

func TestHeartbeatLogRingAndOrder(t *testing.T) {
	db := openTestDB(t)
	log := NewHeartbeatLog(db, 3)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := log.Append(ctx, diag.HeartbeatEntry{
			SessionID:  "session-1",
			RecordedAt: now.Add(time.Duration(i) * time.Minute),
			DistanceM:  float64(1000 - i*100),
			AccuracyM:  15,
			Fired:      i == 4,
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	entries, err := log.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ring not trimmed: want 3, got %d", len(entries))
	}
	// Newest first.
	if !entries[0].Fired || entries[0].DistanceM != 600 {
		t.Fatalf("want newest entry first, got %+v", entries[0])
	}
	if entries[2].DistanceM != 800 {
		t.Fatalf("unexpected oldest retained entry: %+v", entries[2])
	}
}
