package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/archai/internal/extractor"
	"github.com/kalambet/archai/internal/session"
)

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": errorBody{Message: fmt.Sprintf(format, args...), Type: errType},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// classify maps a session error to an HTTP status and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrInputDisabled), errors.Is(err, session.ErrNotReady):
		return http.StatusConflict, "conflict_error"
	case errors.Is(err, session.ErrEmptyMessage), errors.Is(err, session.ErrInvalidImage), errors.Is(err, session.ErrInvalidEdit):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, extractor.ErrExtraction):
		return http.StatusBadGateway, "extraction_error"
	}
	return http.StatusInternalServerError, "api_error"
}

func sessionError(w http.ResponseWriter, err error) {
	code, typ := classify(err)
	httpError(w, code, typ, "%v", err)
}

// sessionErrorWithSnapshot reports err while still handing back the session
// state the failed call left behind.
func sessionErrorWithSnapshot(w http.ResponseWriter, err error, snap session.Snapshot) {
	code, typ := classify(err)
	body := map[string]any{"error": errorBody{Message: err.Error(), Type: typ}}
	if snap.ID != "" {
		body["session"] = snap
	}
	writeJSON(w, code, body)
}
