package api

import (
	"compress/gzip"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/archives"
)

// maxUploadBytes caps a decoded singlefile upload.
const maxUploadBytes = 512 << 20

// handleArchiveUpload accepts a SingleFile HTML snapshot produced in the
// browser and files it like a completed archive download. The body may be
// brotli or gzip compressed (Content-Encoding). The snapshot's banner
// supplies the source URL; any failed download for that URL is completed.
func (s *Server) handleArchiveUpload(w http.ResponseWriter, r *http.Request) {
	if s.Flags.WROLModeEnabled() {
		respondError(w, apperr.WROLDenied("uploading archives"))
		return
	}
	var body io.Reader = r.Body
	switch r.Header.Get("Content-Encoding") {
	case "br":
		body = brotli.NewReader(r.Body)
	case "gzip":
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			respondError(w, apperr.Validation("invalid gzip body: %s", err))
			return
		}
		defer gz.Close()
		body = gz
	case "", "identity":
	default:
		respondError(w, apperr.Validation("unsupported content encoding %q",
			r.Header.Get("Content-Encoding")))
		return
	}

	html, err := io.ReadAll(io.LimitReader(body, maxUploadBytes+1))
	if err != nil {
		respondError(w, apperr.Validation("read upload: %s", err))
		return
	}
	if len(html) > maxUploadBytes {
		respondError(w, apperr.Validation("upload exceeds %d bytes", maxUploadBytes))
		return
	}

	header := archives.ParseSingleFileHeader(html)
	if header == nil || header.URL == "" {
		respondError(w, apperr.Validation("upload has no SingleFile banner with a url"))
		return
	}

	location, err := s.Archiver.SaveSnapshot(r.Context(), header.URL, html, "", "")
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.Manager.CompleteForURL(r.Context(), header.URL, location); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"url":      header.URL,
		"location": location,
	})
}
