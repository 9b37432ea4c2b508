package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"time"

	"github.com/gorilla/schema"

	"github.com/gyaneshwarpardhi/sense/internal/event"
	"github.com/gyaneshwarpardhi/sense/internal/expectation"
)

type notificationRequest struct {
	Name           string                    `json:"name"`
	ExpectedEvents map[event.EventType]int64 `json:"expected_events"`
	Description    string                    `json:"description,omitempty"`
}

type awaitQuery struct {
	Timeout time.Duration `schema:"timeout"`
}

var queryDecoder = newQueryDecoder()

func newQueryDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	d.RegisterConverter(time.Duration(0), func(s string) reflect.Value {
		v, err := time.ParseDuration(s)
		if err != nil {
			return reflect.Value{}
		}
		return reflect.ValueOf(v)
	})
	return d
}

// POST /v1/notifications
func (h *Handler) submitNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	name, err := h.Expectations.Submit(expectation.Request{
		Name:        req.Name,
		Expected:    req.ExpectedEvents,
		Description: req.Description,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

// GET /v1/notifications: active expectations.
func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"active": h.Expectations.Active()})
}

// GET /v1/notifications/{name}/await?timeout=5s
func (h *Handler) awaitNotification(w http.ResponseWriter, r *http.Request) {
	var q awaitQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		slog.Debug("invalid await query", "err", err)
		writeError(w, http.StatusBadRequest, "invalid timeout")
		return
	}
	if q.Timeout < 0 {
		writeError(w, http.StatusBadRequest, "timeout must not be negative")
		return
	}
	if q.Timeout == 0 {
		q.Timeout = h.AwaitTimeout
	}

	name := r.PathValue("name")
	err := h.Expectations.AwaitTimeout(r.Context(), name, q.Timeout)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "satisfied": true})
	case errors.Is(err, expectation.ErrTimeout):
		writeErr(w, err)
	default:
		// client went away; nothing useful to write
		slog.Debug("await aborted", "name", name, "err", err)
	}
}

// DELETE /v1/notifications/{name}
func (h *Handler) removeNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.Expectations.Remove(r.PathValue("name")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
