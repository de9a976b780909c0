package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"leadtrack.io/internal/audit"
	"leadtrack.io/internal/auth"
	"leadtrack.io/internal/obs"
)

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		case errors.As(err, &tooLarge):
			return errors.New("request body too large")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleError maps a service error onto its HTTP status. Unavailable and
// internal failures are logged and answered with a generic message.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch auth.KindOf(err) {
	case auth.KindInvalidInput:
		writeError(w, r, http.StatusBadRequest, err.Error())
	case auth.KindUnauthenticated:
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case auth.KindForbidden:
		writeError(w, r, http.StatusForbidden, err.Error())
	case auth.KindNotFound:
		writeError(w, r, http.StatusNotFound, err.Error())
	case auth.KindConflict:
		writeError(w, r, http.StatusConflict, err.Error())
	case auth.KindUnavailable:
		logFailure(r, err)
		w.Header().Set("Retry-After", "5")
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
	default:
		logFailure(r, err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func logFailure(r *http.Request, err error) {
	log := obs.Logger()
	log.Error().
		Err(err).
		Str("request_id", audit.RequestIDFromContext(r.Context())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("request_failed")
}
