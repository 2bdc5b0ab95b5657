package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	alarm "stopalarm/internal/alarm/domain"
	"stopalarm/internal/remote"
)

func TestCreateSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("missing bearer token, got %q", got)
		}
		var req remote.CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(remote.SessionRecord{
			ID:      "session-remote-1",
			OwnerID: req.OwnerID,
			Target:  req.Target,
			RadiusM: req.RadiusM,
			Status:  alarm.StatusActive,
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "token-1")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	record, err := client.CreateSession(context.Background(), remote.CreateRequest{
		OwnerID: "owner-1",
		Target:  alarm.Target{Name: "Hauptbahnhof", Latitude: 52.52, Longitude: 13.405},
		RadiusM: 400,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if record.ID != "session-remote-1" || record.OwnerID != "owner-1" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.GetSession(context.Background(), "missing"); !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMarkTriggeredPayload(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/api/v1/sessions/session-1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	at := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	if err := client.MarkTriggered(context.Background(), "session-1", at, 320); err != nil {
		t.Fatalf("mark triggered: %v", err)
	}
	if payload["status"] != "triggered" || payload["last_known_m"] != float64(320) {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.UpdateDistance(context.Background(), "session-1", 750); err == nil {
		t.Fatal("want error for http 500")
	}
	if err := client.CancelSession(context.Background(), "session-1"); err == nil {
		t.Fatal("want error for http 500")
	}
}
