package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gyaneshwarpardhi/sense/internal/classifier"
	"github.com/gyaneshwarpardhi/sense/internal/engine"
	"github.com/gyaneshwarpardhi/sense/internal/expectation"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, expectation.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, expectation.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, expectation.ErrUnknownName), errors.Is(err, classifier.ErrUnknownRule):
		return http.StatusNotFound
	case errors.Is(err, classifier.ErrStartupRule):
		return http.StatusConflict
	case errors.Is(err, expectation.ErrTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, engine.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, engine.ErrStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
