package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/wrolpi/wrolpi/internal/apperr"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   int
		name   string
	}{
		{apperr.Validation("bad input"), http.StatusBadRequest, codeValidation, "validation"},
		{apperr.NotFound("no such row"), http.StatusNotFound, codeNotFound, "not_found"},
		{apperr.Conflict("duplicate"), http.StatusConflict, codeConflict, "conflict"},
		{apperr.WROLDenied("dump"), http.StatusForbidden, codeWROLModeDenied, "wrol_mode_denied"},
		{apperr.VersionMismatch("stale dump"), http.StatusConflict, codeVersionMismatch, "version_mismatch"},
		{apperr.Unrecoverable(errors.New("404")), http.StatusBadRequest, codeDownloadFailure, "download_failure"},
		{apperr.Transient(errors.New("timeout")), http.StatusBadRequest, codeDownloadFailure, "download_failure"},
		{errors.New("boom"), http.StatusInternalServerError, codeUnknown, "internal"},
	}
	for _, c := range cases {
		status, code, name := classify(c.err)
		if status != c.status || code != c.code || name != c.name {
			t.Errorf("classify(%v) = (%d, %d, %q), want (%d, %d, %q)",
				c.err, status, code, name, c.status, c.code, c.name)
		}
	}
}

func TestRespondError_envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	err := errors.Wrap(errors.New("disk full"), "save tag")
	respondError(rec, apperr.WithKind(err, apperr.KindConflict))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "conflict" || body.Code != codeConflict {
		t.Errorf("body = %+v", body)
	}
	if body.Summary != "save tag: disk full" {
		t.Errorf("summary = %q", body.Summary)
	}
	if body.Cause == "" {
		t.Error("wrapped error should surface a cause")
	}
}

func TestRespondError_unwrapped(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, apperr.NotFound("no tag %d", 7))

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Summary != "no tag 7" {
		t.Errorf("summary = %q", body.Summary)
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name": "automotive"}`))
	if err := decodeJSON(r, &v); err != nil {
		t.Fatal(err)
	}
	if v.Name != "automotive" {
		t.Errorf("name = %q", v.Name)
	}

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{broken`))
	if err := decodeJSON(r, &v); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("malformed body: got %v", err)
	}
}
