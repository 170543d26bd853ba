// Package httpapi exposes health, roster and metrics endpoints for a running
// monitor.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crimson-sun/rollcall/internal/model"
	"github.com/crimson-sun/rollcall/internal/monitor"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// StatusSource reports the last completed cycle.
type StatusSource interface {
	Status() (monitor.Status, bool)
	Roster() []model.PresenceRecord
}

// EventSource serves recently emitted events, oldest first.
type EventSource interface {
	Recent(n int) []model.Event
}

// Handler serves the read-only API.
type Handler struct {
	status   StatusSource
	events   EventSource
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// New creates a Handler. events may be nil, in which case /events is not
// mounted.
func New(status StatusSource, events EventSource, gatherer prometheus.Gatherer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{status: status, events: events, gatherer: gatherer, logger: logger}
}

// Router returns the chi router with every endpoint mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)
	r.Get("/status", h.handleStatus)
	r.Get("/roster", h.handleRoster)
	if h.events != nil {
		r.Get("/events", h.handleEvents)
	}
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// NewServer builds an HTTP server with sane defaults.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

type attendee struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name,omitempty"`
	FirstSeenAt string `json:"first_seen_at"`
	LastSeenAt  string `json:"last_seen_at"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, _ *http.Request) {
	if _, ok := h.status.Status(); !ok {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "waiting for first cycle"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st, ok := h.status.Status()
	if !ok {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no cycle completed"})
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleRoster(w http.ResponseWriter, _ *http.Request) {
	records := h.status.Roster()
	out := make([]attendee, 0, len(records))
	for _, rec := range records {
		out = append(out, attendee{
			Identity:    rec.Identity,
			DisplayName: rec.DisplayName,
			FirstSeenAt: rec.FirstSeenAt.UTC().Format(model.TimestampLayout),
			LastSeenAt:  rec.LastSeenAt.UTC().Format(model.TimestampLayout),
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "attendees": out})
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxEventLimit)
	}
	events := h.events.Recent(limit)
	out := make([]model.Record, len(events))
	for i, e := range events {
		out[i] = e.ToRecord()
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response", "error", err)
	}
}
