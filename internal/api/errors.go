package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/wrolpi/wrolpi/internal/apperr"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Summary string `json:"summary"`
	Code    int    `json:"code"`
	Cause   string `json:"cause,omitempty"`
}

// API error codes, stable across releases so clients can switch on them.
const (
	codeUnknown         = 1
	codeValidation      = 10
	codeNotFound        = 11
	codeConflict        = 12
	codeWROLModeDenied  = 13
	codeVersionMismatch = 14
	codeDownloadFailure = 20
)

func classify(err error) (status, code int, name string) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest, codeValidation, "validation"
	case apperr.KindNotFound:
		return http.StatusNotFound, codeNotFound, "not_found"
	case apperr.KindConflict:
		return http.StatusConflict, codeConflict, "conflict"
	case apperr.KindWROLModeDenied:
		return http.StatusForbidden, codeWROLModeDenied, "wrol_mode_denied"
	case apperr.KindVersionMismatch:
		return http.StatusConflict, codeVersionMismatch, "version_mismatch"
	case apperr.KindUnrecoverableDownload, apperr.KindTransientDownload:
		return http.StatusBadRequest, codeDownloadFailure, "download_failure"
	default:
		return http.StatusInternalServerError, codeUnknown, "internal"
	}
}

// respondError writes the error envelope for err.
func respondError(w http.ResponseWriter, err error) {
	status, code, name := classify(err)
	if status == http.StatusInternalServerError {
		log.Printf("api error: %+v", err)
	}
	body := errorBody{Error: name, Summary: err.Error(), Code: code}
	if cause := errors.UnwrapOnce(err); cause != nil {
		body.Cause = cause.Error()
	}
	respondJSON(w, status, body)
}

// respondJSON writes v as the response body.
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// decodeJSON reads the request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid request body: %s", err)
	}
	return nil
}
