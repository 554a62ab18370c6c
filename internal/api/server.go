// Package api exposes the appliance over HTTP: downloads, collections,
// tags, channels, inventories, the event feed, config import/dump, the
// archive upload endpoint and Prometheus metrics.
package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/archives"
	"github.com/wrolpi/wrolpi/internal/collections"
	"github.com/wrolpi/wrolpi/internal/config"
	"github.com/wrolpi/wrolpi/internal/configmirror"
	"github.com/wrolpi/wrolpi/internal/download"
	"github.com/wrolpi/wrolpi/internal/events"
	"github.com/wrolpi/wrolpi/internal/flags"
	"github.com/wrolpi/wrolpi/internal/inventories"
	"github.com/wrolpi/wrolpi/internal/refresh"
	"github.com/wrolpi/wrolpi/internal/switches"
	"github.com/wrolpi/wrolpi/internal/tags"
	"github.com/wrolpi/wrolpi/internal/videos"
)

// Server holds the handler dependencies.
type Server struct {
	MediaPath    string
	SettingsPath string

	Flags       *flags.Flags
	Bus         *switches.Bus
	Events      *events.Log
	Tags        *tags.Store
	Collections *collections.Service
	Manager     *download.Manager
	Refresher   *refresh.Refresher
	Mirror      *configmirror.Mirror
	Archiver    *archives.Downloader
	Archives    *archives.Store
	Videos      *videos.Store
	Inventories *inventories.Store
	Registry    *prometheus.Registry
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}).ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/events/feed", s.handleEventsFeed)

		r.Route("/download", func(r chi.Router) {
			r.Post("/", s.handleCreateDownload)
			r.Get("/", s.handleListDownloads)
			r.Post("/retry_failed", s.handleRetryFailed)
			r.Post("/{id}/kill", s.handleKillDownload)
			r.Post("/{id}/restart", s.handleRestartDownload)
			r.Delete("/{id}", s.handleDeleteDownload)
		})
		r.Post("/downloads/enable", s.handleEnableDownloads)
		r.Post("/downloads/disable", s.handleDisableDownloads)

		r.Route("/collections", func(r chi.Router) {
			r.Get("/", s.handleListCollections)
			r.Put("/{id}", s.handleUpdateCollection)
			r.Post("/{id}/tag", s.handleTagCollection)
		})

		r.Route("/tags", func(r chi.Router) {
			r.Get("/", s.handleListTags)
			r.Post("/", s.handleCreateTag)
			r.Delete("/{name}", s.handleDeleteTag)
		})

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", s.handleListChannels)
			r.Post("/", s.handleCreateChannel)
			r.Delete("/{id}", s.handleDeleteChannel)
		})

		r.Route("/inventories", func(r chi.Router) {
			r.Get("/", s.handleListInventories)
			r.Post("/", s.handleCreateInventory)
			r.Delete("/{id}", s.handleDeleteInventory)
			r.Post("/{id}/items", s.handleAddInventoryItem)
		})

		r.Post("/refresh", s.handleRefresh)
		r.Post("/archive/upload", s.handleArchiveUpload)

		r.Get("/settings", s.handleGetSettings)
		r.Patch("/settings", s.handlePatchSettings)
		r.Post("/config/import", s.handleImportConfigs)
		r.Post("/config/dump", s.handleDumpConfigs)
	})
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"refreshing":         s.Flags.Refreshing(),
		"downloads_disabled": s.Flags.DownloadsDisabled(),
		"downloads_stopped":  s.Flags.DownloadsStopped(),
		"wrol_mode":          s.Flags.WROLModeEnabled(),
	})
}

func (s *Server) handleEventsFeed(w http.ResponseWriter, r *http.Request) {
	var after time.Time
	if raw := r.URL.Query().Get("after"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, apperr.Validation("invalid after timestamp %q", raw))
			return
		}
		after = t
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"events": s.Events.Feed(after)})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths []string `json:"paths"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, err)
			return
		}
	}
	if s.Flags.Refreshing() {
		respondError(w, apperr.Conflict("a refresh is already running"))
		return
	}
	go func() {
		if err := s.Refresher.Refresh(context.Background(), req.Paths...); err != nil {
			log.Printf("refresh failed: %v", err)
		}
	}()
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	all, err := s.Tags.All(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tags": all})
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	t, err := s.Tags.Create(r.Context(), req.Name, req.Color)
	if err != nil {
		respondError(w, err)
		return
	}
	s.Bus.Activate(configmirror.SwitchSaveTags, nil)
	respondJSON(w, http.StatusCreated, t)
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := s.Tags.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		respondError(w, err)
		return
	}
	s.Bus.Activate(configmirror.SwitchSaveTags, nil)
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = collections.KindDomain
	}
	colls, err := s.Collections.Store.ByKind(r.Context(), kind)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"collections": colls})
}

func (s *Server) handleUpdateCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var req struct {
		Directory   *string `json:"directory"`
		TagName     *string `json:"tag_name"`
		Description *string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	c, err := s.Collections.Update(r.Context(), id, collections.UpdateRequest{
		Directory: req.Directory, TagName: req.TagName, Description: req.Description,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleTagCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var req struct {
		TagName   string `json:"tag_name"`
		Directory string `json:"directory"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	c, err := s.Collections.Tag(r.Context(), id, req.TagName, req.Directory)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	chans, err := s.Videos.AllChannels(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"channels": chans})
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	ch, err := s.Videos.CreateChannel(r.Context(), req.Name, req.URL, s.MediaPath)
	if err != nil {
		respondError(w, err)
		return
	}
	s.Bus.Activate(collections.SwitchSaveChannels, nil)
	respondJSON(w, http.StatusCreated, ch)
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.Videos.DeleteChannel(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	s.Bus.Activate(collections.SwitchSaveChannels, nil)
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListInventories(w http.ResponseWriter, r *http.Request) {
	all, err := s.Inventories.All(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"inventories": all})
}

func (s *Server) handleCreateInventory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	inv, err := s.Inventories.Create(r.Context(), req.Name)
	if err != nil {
		respondError(w, err)
		return
	}
	s.Bus.Activate(configmirror.SwitchSaveInventories, nil)
	respondJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleDeleteInventory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.Inventories.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	s.Bus.Activate(configmirror.SwitchSaveInventories, nil)
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleAddInventoryItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var req struct {
		Brand       string  `json:"brand"`
		Name        string  `json:"name"`
		Count       float64 `json:"count"`
		ItemSize    float64 `json:"item_size"`
		Unit        string  `json:"unit"`
		Category    string  `json:"category"`
		Subcategory string  `json:"subcategory"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	item, err := s.Inventories.AddItem(r.Context(), &inventories.Item{
		InventoryID: id, Brand: req.Brand, Name: req.Name, Count: req.Count,
		ItemSize: req.ItemSize, Unit: req.Unit,
		Category: req.Category, Subcategory: req.Subcategory,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	s.Bus.Activate(configmirror.SwitchSaveInventories, nil)
	respondJSON(w, http.StatusCreated, item)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := config.ReadSettings(s.SettingsPath)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	if s.Flags.WROLModeEnabled() {
		respondError(w, apperr.WROLDenied("changing settings"))
		return
	}
	settings, err := config.ReadSettings(s.SettingsPath)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := decodeJSON(r, settings); err != nil {
		respondError(w, err)
		return
	}
	if err := config.WriteSettings(s.SettingsPath, settings); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (s *Server) handleImportConfigs(w http.ResponseWriter, r *http.Request) {
	results := s.Mirror.ImportAllConfigs(r.Context())
	respondJSON(w, http.StatusOK, map[string]interface{}{"imported": results})
}

func (s *Server) handleDumpConfigs(w http.ResponseWriter, r *http.Request) {
	if err := s.Mirror.DumpAll(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id %q", raw)
	}
	return id, nil
}
