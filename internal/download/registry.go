package download

import (
	"context"
	"sort"
	"sync"
)

// Result is a successful plugin outcome.
type Result struct {
	// Location points at the produced artifact: a file path under the
	// media root, or an entity reference like "/archive/123".
	Location string
}

// Downloader is a content acquirer plugin. Plugins must honor ctx
// cancellation at every expensive step: a killed download cancels its
// context and the partial artifact is discarded.
type Downloader interface {
	// Name identifies the plugin in Download rows and configs.
	Name() string
	// Priority orders claim attempts; lower integers claim first. The
	// archive downloader carries the highest integer so it is the
	// catch-all fallback.
	Priority() int
	// ValidURL reports whether the plugin claims url.
	ValidURL(url string) bool
	// AlreadyDownloaded reports which of urls already have a typed entity.
	AlreadyDownloaded(ctx context.Context, urls ...string) (map[string]bool, error)
	// Do performs the download. Failures are marked transient or
	// unrecoverable via apperr.
	Do(ctx context.Context, d *Download) (*Result, error)
}

// Registry holds plugins ordered by priority.
type Registry struct {
	mu      sync.RWMutex
	plugins []Downloader
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds a plugin, keeping priority order (ties by registration).
func (r *Registry) Register(d Downloader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = append(r.plugins, d)
	sort.SliceStable(r.plugins, func(i, j int) bool {
		return r.plugins[i].Priority() < r.plugins[j].Priority()
	})
}

// ByName returns the named plugin, or nil.
func (r *Registry) ByName(name string) Downloader {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.plugins {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// ForURL returns the first plugin (in priority order) that claims url.
func (r *Registry) ForURL(url string) Downloader {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.plugins {
		if d.ValidURL(url) {
			return d
		}
	}
	return nil
}

// All returns the plugins in priority order.
func (r *Registry) All() []Downloader {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Downloader, len(r.plugins))
	copy(out, r.plugins)
	return out
}
