// Package http exposes the foreground API: session lifecycle, the manual
// sync trigger, and the heartbeat export for support.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"stopalarm/internal/alarm/application"
	alarm "stopalarm/internal/alarm/domain"
	"stopalarm/internal/auth"
	"stopalarm/internal/diag"
	"stopalarm/internal/location"
	"stopalarm/internal/reconcile"
)

// FixReporter accepts location fixes pushed by the host application.
type FixReporter interface {
	Report(fix location.Fix)
}

// Handler provides the alarm session APIs.
type Handler struct {
	service    *application.Service
	reconciler *reconcile.Reconciler
	heartbeats diag.HeartbeatLog
	reporter   FixReporter
	middleware *auth.Middleware
}

// NewHandler constructs a handler. The reporter may be nil when the host
// feeds location through another channel.
func NewHandler(service *application.Service, reconciler *reconcile.Reconciler, heartbeats diag.HeartbeatLog, reporter FixReporter, middleware *auth.Middleware) (*Handler, error) {
	if service == nil || reconciler == nil {
		return nil, errors.New("alarm handler: nil dependency")
	}
	if middleware == nil {
		return nil, errors.New("alarm handler: nil auth middleware")
	}
	return &Handler{service: service, reconciler: reconciler, heartbeats: heartbeats, reporter: reporter, middleware: middleware}, nil
}

// Routes returns the authenticated API router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)
	r.Use(h.middleware.Wrap)

	r.Post("/api/v1/session", h.handleStart)
	r.Get("/api/v1/session", h.handleActive)
	r.Delete("/api/v1/session", h.handleCancel)
	r.Post("/api/v1/sync", h.handleSync)
	r.Post("/api/v1/location", h.handleLocation)
	r.Get("/api/v1/heartbeats.xlsx", h.handleHeartbeatExport)

	return r
}

type startPayload struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RadiusM   float64 `json:"radius_m"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var p startPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		http.Error(w, "invalid target coordinates", http.StatusBadRequest)
		return
	}
	if p.RadiusM <= 0 {
		http.Error(w, "radius_m must be positive", http.StatusBadRequest)
		return
	}

	ownerID := auth.OwnerIDFromContext(r.Context())
	target := alarm.Target{Name: p.Name, Latitude: p.Latitude, Longitude: p.Longitude}
	session, err := h.service.Start(r.Context(), ownerID, target, p.RadiusM)
	if err != nil {
		if errors.Is(err, alarm.ErrSessionExists) {
			http.Error(w, "a session is already active", http.StatusConflict)
			return
		}
		http.Error(w, "could not start session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Active(r.Context())
	if err != nil {
		if errors.Is(err, alarm.ErrNoActiveSession) {
			http.Error(w, "no active session", http.StatusNotFound)
			return
		}
		http.Error(w, "could not read session", http.StatusInternalServerError)
		return
	}
	if session.OwnerID != auth.OwnerIDFromContext(r.Context()) {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Active(r.Context())
	if err != nil {
		if errors.Is(err, alarm.ErrNoActiveSession) {
			http.Error(w, "no active session", http.StatusNotFound)
			return
		}
		http.Error(w, "could not read session", http.StatusInternalServerError)
		return
	}
	if session.OwnerID != auth.OwnerIDFromContext(r.Context()) {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	if err := h.service.Cancel(r.Context()); err != nil {
		http.Error(w, "could not cancel session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSync runs one full reconcile pass: queued offline creates first so
// their events gain a real identity, then the pending sync queue.
func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	flushed, err := h.service.FlushPendingCreates(r.Context())
	if err != nil {
		http.Error(w, "could not flush pending creates", http.StatusInternalServerError)
		return
	}
	result, err := h.reconciler.Drain(r.Context())
	if err != nil {
		http.Error(w, "could not drain sync queue", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"creates_flushed": flushed,
		"written":         result.Written,
		"discarded":       result.Discarded,
		"failed":          result.Failed,
	})
}

type fixPayload struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	AccuracyM float64   `json:"accuracy_m"`
	FixedAt   time.Time `json:"fixed_at"`
}

// handleLocation accepts a pushed fix. Evaluation happens on the scheduler's
// cadence, not inline, so a burst of reports costs nothing.
func (h *Handler) handleLocation(w http.ResponseWriter, r *http.Request) {
	if h.reporter == nil {
		http.Error(w, "location reporting disabled", http.StatusNotFound)
		return
	}
	var p fixPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	fix := location.Fix{Latitude: p.Latitude, Longitude: p.Longitude, AccuracyM: p.AccuracyM, FixedAt: p.FixedAt}
	if fix.FixedAt.IsZero() {
		fix.FixedAt = time.Now().UTC()
	}
	if !fix.Valid() {
		http.Error(w, "invalid fix", http.StatusBadRequest)
		return
	}
	h.reporter.Report(fix)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleHeartbeatExport(w http.ResponseWriter, r *http.Request) {
	if h.heartbeats == nil {
		http.Error(w, "heartbeat log disabled", http.StatusNotFound)
		return
	}
	entries, err := h.heartbeats.List(r.Context(), 0)
	if err != nil {
		http.Error(w, "could not read heartbeats", http.StatusInternalServerError)
		return
	}
	data, err := diag.BuildHeartbeatXLSX(entries)
	if err != nil {
		http.Error(w, "could not build export", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="heartbeats.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
