package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/configmirror"
	"github.com/wrolpi/wrolpi/internal/download"
)

// handleCreateDownload enqueues one download per URL. A frequency (seconds)
// makes them recurring. Creation is idempotent per URL.
func (s *Server) handleCreateDownload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URLs        []string               `json:"urls"`
		Downloader  string                 `json:"downloader"`
		Frequency   int64                  `json:"frequency"`
		Destination string                 `json:"destination"`
		TagNames    []string               `json:"tag_names"`
		Settings    map[string]interface{} `json:"settings"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if len(req.URLs) == 0 {
		respondError(w, apperr.Validation("urls is required"))
		return
	}
	var freq *time.Duration
	if req.Frequency > 0 {
		f := time.Duration(req.Frequency) * time.Second
		freq = &f
	}
	created := make([]*download.Download, 0, len(req.URLs))
	for _, u := range req.URLs {
		d, err := s.Manager.CreateDownload(r.Context(), download.CreateRequest{
			URL: u, Downloader: req.Downloader, Frequency: freq,
			Destination: req.Destination, TagNames: req.TagNames, Settings: req.Settings,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		created = append(created, d)
	}
	if freq != nil {
		s.Bus.Activate(configmirror.SwitchSaveDownloads, nil)
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"downloads": created})
}

func (s *Server) handleListDownloads(w http.ResponseWriter, r *http.Request) {
	all, err := s.Manager.Store.All(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	status := r.URL.Query().Get("status")
	if status != "" {
		filtered := all[:0]
		for _, d := range all {
			if d.Status == status {
				filtered = append(filtered, d)
			}
		}
		all = filtered
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 20)
	page := CreatePagination(offset, limit, len(all))
	lo := offset
	if lo > len(all) {
		lo = len(all)
	}
	hi := lo + limit
	if hi > len(all) {
		hi = len(all)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"downloads":  all[lo:hi],
		"pagination": page,
	})
}

func (s *Server) handleKillDownload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.Manager.Kill(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRestartDownload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.Manager.Restart(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := s.Manager.RetryFailed(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"retried": n})
}

func (s *Server) handleDeleteDownload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	d, err := s.Manager.Store.ByID(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if d.Status == download.StatusPending {
		respondError(w, apperr.Conflict("download %d is running; kill it first", id))
		return
	}
	if err := s.Manager.Store.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleEnableDownloads(w http.ResponseWriter, r *http.Request) {
	if s.Flags.WROLModeEnabled() {
		respondError(w, apperr.WROLDenied("enabling downloads"))
		return
	}
	s.Flags.EnableDownloads()
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleDisableDownloads(w http.ResponseWriter, r *http.Request) {
	s.Flags.DisableDownloads()
	respondJSON(w, http.StatusNoContent, nil)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
