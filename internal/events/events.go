// Package events keeps the bounded in-memory feed of user-visible events.
// Events are not persisted; the ring holds the most recent maxEvents records.
package events

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const maxEvents = 100

// Record is one user-visible event.
type Record struct {
	Event   string    `json:"event"`
	Subject string    `json:"subject"`
	Action  string    `json:"action"`
	URL     string    `json:"url,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"dt"`
}

// Log is the bounded event ring.
type Log struct {
	mu      sync.Mutex
	records []Record
	counter *prometheus.CounterVec
	now     func() time.Time
}

// NewLog returns an empty log. Metrics are registered on reg when non-nil.
func NewLog(reg prometheus.Registerer) *Log {
	l := &Log{
		now: func() time.Time { return time.Now().UTC() },
		counter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wrolpi_events_total",
			Help: "Events emitted, by event name and subject.",
		}, []string{"event", "subject"}),
	}
	if reg != nil {
		reg.MustRegister(l.counter)
	}
	return l
}

// Emit appends a record, evicting the oldest when the ring is full.
func (l *Log) Emit(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r.At.IsZero() {
		r.At = l.now()
	}
	l.records = append(l.records, r)
	if len(l.records) > maxEvents {
		l.records = l.records[len(l.records)-maxEvents:]
	}
	l.counter.WithLabelValues(r.Event, r.Subject).Inc()
}

// Feed returns events strictly after the given time, newest first.
// A zero time returns the whole ring.
func (l *Log) Feed(after time.Time) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, 0, len(l.records))
	for i := len(l.records) - 1; i >= 0; i-- {
		if !after.IsZero() && !l.records[i].At.After(after) {
			continue
		}
		out = append(out, l.records[i])
	}
	return out
}
