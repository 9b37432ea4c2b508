// Package api exposes event ingestion, rule management and notification submission over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/sense/internal/classifier"
	"github.com/gyaneshwarpardhi/sense/internal/config"
	"github.com/gyaneshwarpardhi/sense/internal/engine"
	"github.com/gyaneshwarpardhi/sense/internal/event"
	"github.com/gyaneshwarpardhi/sense/internal/expectation"
	"github.com/gyaneshwarpardhi/sense/internal/metrics"
	"github.com/gyaneshwarpardhi/sense/internal/notifier"
	"github.com/gyaneshwarpardhi/sense/internal/ruleconf"
)

const maxBatchSize = 100

// Deps are the components served by the handler.
type Deps struct {
	Engine       *engine.Engine
	Registry     *classifier.Registry
	Compiler     *ruleconf.Compiler
	Expectations *expectation.Engine
	Loader       *config.Loader // nil disables POST /v1/rules/reload
	Hub          *notifier.Hub  // nil disables the notification stream
	AwaitTimeout time.Duration
	JWTSecret    string // empty disables authentication
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	Deps
	mux *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(deps Deps) http.Handler {
	if deps.AwaitTimeout <= 0 {
		deps.AwaitTimeout = 30 * time.Second
	}
	h := &Handler{Deps: deps, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/events", h.ingestEvent)
	h.mux.HandleFunc("POST /v1/events/batch", h.ingestBatch)
	h.mux.HandleFunc("GET /v1/stats", h.stats)
	h.mux.HandleFunc("GET /v1/rules", h.listRules)
	h.mux.HandleFunc("POST /v1/rules", h.registerRule)
	h.mux.HandleFunc("DELETE /v1/rules/{handle}", h.unregisterRule)
	h.mux.HandleFunc("POST /v1/rules/reload", h.reloadRules)
	h.mux.HandleFunc("POST /v1/notifications", h.submitNotification)
	h.mux.HandleFunc("GET /v1/notifications", h.listNotifications)
	h.mux.HandleFunc("GET /v1/notifications/{name}/await", h.awaitNotification)
	h.mux.HandleFunc("DELETE /v1/notifications/{name}", h.removeNotification)
	if deps.Hub != nil {
		h.mux.Handle("GET /v1/notifications/stream", deps.Hub)
	}
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = h.mux
	if deps.JWTSecret != "" {
		handler = authMiddleware([]byte(deps.JWTSecret), handler)
	}
	return loggingMiddleware(handler)
}

// POST /v1/events: synchronous single-event ingestion.
func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var ev event.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	res, err := h.Engine.ProcessSync(r.Context(), &ev, time.Now())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/events/batch: async batch ingestion (up to 100 events).
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var events []*event.Event
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	if len(events) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(events), maxBatchSize))
		return
	}

	for i, ev := range events {
		if ev == nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("event %d is null", i))
			return
		}
	}

	now := time.Now()
	queued := 0
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		if h.Engine.ProcessAsync(ev, now) {
			queued++
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   uuid.New().String(),
		"total":    len(events),
		"queued":   queued,
		"rejected": len(events) - queued,
	})
}

// GET /v1/stats: per-bucket counts of classified events.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.Engine.Stats(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"buckets": tiers})
}

// GET /v1/rules: rules in evaluation order.
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": h.Registry.Snapshot().Version,
		"rules":   h.Registry.List(),
	})
}

// POST /v1/rules: register a runtime rule written as a ruleconf definition.
func (h *Handler) registerRule(w http.ResponseWriter, r *http.Request) {
	var def ruleconf.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	rule, err := h.Compiler.Compile(def)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	handle, err := h.Registry.Register(rule)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"handle": handle, "name": rule.Name()})
}

// DELETE /v1/rules/{handle}
func (h *Handler) unregisterRule(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.Unregister(classifier.Handle(r.PathValue("handle"))); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/rules/reload: hot-reload rules from disk.
func (h *Handler) reloadRules(w http.ResponseWriter, r *http.Request) {
	if h.Loader == nil {
		writeError(w, http.StatusNotImplemented, "no config file to reload")
		return
	}
	cfg, err := h.Loader.Reload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.Compiler.Apply(h.Registry, cfg.Rules); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded":    true,
		"rules_count": len(cfg.Rules),
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if event queue >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.Engine.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"queue_utilization": util,
	})
}
