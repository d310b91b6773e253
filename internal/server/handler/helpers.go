package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUpstreamFetch):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err and answers with its mapped status. Server
// errors get a generic message; client errors echo the cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, action string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+action+" failed", slog.String("error", err.Error()))
		if status == http.StatusBadGateway {
			writeError(w, status, "upstream rate provider unavailable")
			return
		}
		writeError(w, status, action+" failed")
		return
	}
	logger.DebugContext(r.Context(), "handler: "+action+" rejected", slog.String("error", err.Error()))
	writeError(w, status, err.Error())
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrInvalidInput)
	}
	return nil
}

// disposalParams extracts {tenant} and {id} using Go 1.22+ routing.
func disposalParams(r *http.Request) (string, uuid.UUID, error) {
	tenant := r.PathValue("tenant")
	if tenant == "" {
		return "", uuid.Nil, fmt.Errorf("tenant is required: %w", domain.ErrInvalidInput)
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("invalid disposal id %q: %w", r.PathValue("id"), domain.ErrInvalidInput)
	}
	return tenant, id, nil
}

// queryInt reads a positive integer query parameter, falling back to def and
// capping at limit.
func queryInt(r *http.Request, name string, def, limit int) int {
	n := def
	if v := r.URL.Query().Get(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	return min(n, limit)
}
