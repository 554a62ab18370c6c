// Package modeler dispatches file groups to the functions that promote
// them into typed entities. Modelers register against a mimetype prefix;
// the refresh deep pass runs every modeler whose prefix matches the
// group's primary mimetype.
package modeler

import (
	"context"
	"strings"
	"sync"

	"github.com/wrolpi/wrolpi/internal/files"
)

// Func promotes a file group. It may open files, parse headers and
// attach/detach sibling entries; the caller persists the group and marks
// it deep-indexed afterwards.
type Func func(ctx context.Context, g *files.FileGroup) error

type entry struct {
	name   string
	prefix string
	fn     Func
}

// Registry holds modelers in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register appends a modeler for the given mimetype prefix.
// "text/html" matches both "text/html" and "text/".
func (r *Registry) Register(name, prefix string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{name: name, prefix: prefix, fn: fn})
}

// Match returns the names and functions of every modeler whose prefix
// matches mimetype, in registration order.
func (r *Registry) Match(mimetype string) (names []string, fns []Func) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if strings.HasPrefix(mimetype, e.prefix) {
			names = append(names, e.name)
			fns = append(fns, e.fn)
		}
	}
	return names, fns
}
