// Package switches runs debounced single-flight background jobs.
// DB mutations never write config files synchronously; they activate a
// switch and the single worker loop performs the write once the bus is
// quiescent for that switch. Repeated activations before the worker runs
// collapse to one invocation with the last context.
package switches

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"
)

// Handler runs when its switch fires. ctxVal is the last Activate context.
type Handler func(ctx context.Context, ctxVal interface{}) error

const pollInterval = 100 * time.Millisecond

// Bus is the switch worker and its pending-activation map.
type Bus struct {
	mu       sync.Mutex
	handlers map[string]Handler
	pending  map[string]interface{}
	order    []string

	group singleflight.Group
}

// NewBus returns a bus with no handlers registered.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string]Handler),
		pending:  make(map[string]interface{}),
	}
}

// Register binds name to handler. Registering twice replaces the handler.
func (b *Bus) Register(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = h
}

// Activate schedules the named switch. The last ctxVal wins when the switch
// is activated repeatedly before the worker processes it.
func (b *Bus) Activate(name string, ctxVal interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, queued := b.pending[name]; !queued {
		b.order = append(b.order, name)
	}
	b.pending[name] = ctxVal
}

// pop removes and returns the oldest pending activation.
func (b *Bus) pop() (string, interface{}, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.order) == 0 {
		return "", nil, false
	}
	name := b.order[0]
	b.order = b.order[1:]
	ctxVal := b.pending[name]
	delete(b.pending, name)
	return name, ctxVal, true
}

// runOne invokes the handler for name. singleflight keys on the switch name
// so a handler is never concurrent with itself even when RunPending is
// called while the worker loop is active.
func (b *Bus) runOne(ctx context.Context, name string, ctxVal interface{}) {
	b.mu.Lock()
	h, ok := b.handlers[name]
	b.mu.Unlock()
	if !ok {
		log.Printf("switch %q activated with no handler", name)
		return
	}
	_, err, _ := b.group.Do(name, func() (interface{}, error) {
		return nil, h(ctx, ctxVal)
	})
	if err != nil {
		// Error isolation: the next activation reruns the handler.
		log.Printf("switch %q handler failed: %v", name, err)
	}
}

// Run is the worker loop. It polls pending activations until ctx is done.
func (b *Bus) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for {
				name, ctxVal, ok := b.pop()
				if !ok {
					break
				}
				b.runOne(ctx, name, ctxVal)
			}
		}
	}
}

// RunPending drains all pending activations inline. Used by tests and at
// shutdown to flush queued config dumps.
func (b *Bus) RunPending(ctx context.Context) {
	for {
		name, ctxVal, ok := b.pop()
		if !ok {
			return
		}
		b.runOne(ctx, name, ctxVal)
	}
}

// AutoBackgroundTask wraps fn as a displacing background task keyed by name:
// each call enqueues the given args, replacing any pending call with the
// same name.
func (b *Bus) AutoBackgroundTask(name string, fn func(ctx context.Context, args interface{}) error) func(args interface{}) {
	b.Register(name, Handler(fn))
	return func(args interface{}) { b.Activate(name, args) }
}

// ErrNoHandler is returned by RunNow for unregistered switches.
var ErrNoHandler = errors.New("no handler registered")

// RunNow runs the named handler inline, removing any pending activation for
// it first so the queued call is displaced by this one.
func (b *Bus) RunNow(ctx context.Context, name string, ctxVal interface{}) error {
	b.mu.Lock()
	if _, queued := b.pending[name]; queued {
		delete(b.pending, name)
		for i, n := range b.order {
			if n == name {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
	h, ok := b.handlers[name]
	b.mu.Unlock()
	if !ok {
		return errors.Wrap(ErrNoHandler, name)
	}
	_, err, _ := b.group.Do(name, func() (interface{}, error) {
		return nil, h(ctx, ctxVal)
	})
	return err
}
