package download

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/events"
	"github.com/wrolpi/wrolpi/internal/flags"
	"github.com/wrolpi/wrolpi/internal/safeurl"
)

const (
	defaultWorkers      = 4
	defaultPollInterval = time.Second
	defaultMaxAttempts  = 10
	// Per-domain pacing: one request per interval with a small burst, so
	// parallelism saturates across hosts without hammering any one host.
	domainInterval = 2 * time.Second
	domainBurst    = 1
)

// DefaultBackoff is the retry delay: exponential, capped at four hours.
func DefaultBackoff(attempts int) time.Duration {
	d := time.Minute
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= 4*time.Hour {
			return 4 * time.Hour
		}
	}
	return d
}

// Manager owns the worker pool and all queue transitions.
type Manager struct {
	Store    *Store
	Registry *Registry
	Flags    *flags.Flags
	Events   *events.Log

	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	Backoff      func(attempts int) time.Duration

	mu              sync.Mutex
	inflightDomains map[string]struct{}
	limiters        map[string]*rate.Limiter
	inflight        map[int64]context.CancelFunc
	killed          map[int64]struct{}

	now func() time.Time
}

// NewManager wires a manager with defaults.
func NewManager(store *Store, registry *Registry, f *flags.Flags, ev *events.Log) *Manager {
	return &Manager{
		Store:           store,
		Registry:        registry,
		Flags:           f,
		Events:          ev,
		Workers:         defaultWorkers,
		PollInterval:    defaultPollInterval,
		MaxAttempts:     defaultMaxAttempts,
		Backoff:         DefaultBackoff,
		inflightDomains: make(map[string]struct{}),
		limiters:        make(map[string]*rate.Limiter),
		inflight:        make(map[int64]context.CancelFunc),
		killed:          make(map[int64]struct{}),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest holds the inputs of CreateDownload.
type CreateRequest struct {
	URL           string
	Downloader    string
	SubDownloader string
	Frequency     *time.Duration
	Destination   string
	TagNames      []string
	Settings      map[string]interface{}
	CollectionID  *int64
}

// CreateDownload enqueues a one-shot or recurring download. Idempotent per
// URL: an existing non-terminal row is returned unchanged. Fails with a
// Validation error when no plugin accepts the URL.
func (m *Manager) CreateDownload(ctx context.Context, req CreateRequest) (*Download, error) {
	if m.Flags.WROLModeEnabled() {
		return nil, apperr.WROLDenied("creating downloads")
	}
	if !safeurl.IsHTTP(req.URL) {
		return nil, apperr.Validation("invalid download url %q", req.URL)
	}
	if existing, err := m.Store.ActiveByURL(ctx, req.URL); err == nil {
		return existing, nil
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}

	var plugin Downloader
	if req.Downloader != "" {
		plugin = m.Registry.ByName(req.Downloader)
		if plugin == nil {
			return nil, apperr.Validation("unknown downloader %q", req.Downloader)
		}
	} else {
		plugin = m.Registry.ForURL(req.URL)
		if plugin == nil {
			return nil, apperr.Validation("invalid download: no downloader accepts %q", req.URL)
		}
	}

	d := &Download{
		URL:           req.URL,
		Downloader:    plugin.Name(),
		SubDownloader: req.SubDownloader,
		Destination:   req.Destination,
		Frequency:     req.Frequency,
		Status:        StatusNew,
		Settings:      req.Settings,
		TagNames:      req.TagNames,
		CollectionID:  req.CollectionID,
	}
	d, err := m.Store.Insert(ctx, d)
	if err != nil {
		return nil, err
	}
	m.emit("download", "created", d.URL, "")
	return d, nil
}

// RecurringDownload enqueues a download that reschedules itself.
func (m *Manager) RecurringDownload(ctx context.Context, req CreateRequest) (*Download, error) {
	if req.Frequency == nil || *req.Frequency <= 0 {
		return nil, apperr.Validation("recurring download requires a frequency")
	}
	return m.CreateDownload(ctx, req)
}

// AlreadyDownloaded asks every plugin which urls already have entities.
func (m *Manager) AlreadyDownloaded(ctx context.Context, urls ...string) (map[string]bool, error) {
	out := make(map[string]bool, len(urls))
	for _, u := range urls {
		out[u] = false
	}
	for _, plugin := range m.Registry.All() {
		found, err := plugin.AlreadyDownloaded(ctx, urls...)
		if err != nil {
			return nil, err
		}
		for u, ok := range found {
			if ok {
				out[u] = true
			}
		}
	}
	return out, nil
}

// GetNewDownload claims the next eligible row, transitioning it to
// pending. Candidates whose hostname is already in flight, or whose
// domain limiter disallows a request now, are skipped. Returns nil when
// nothing is eligible.
func (m *Manager) GetNewDownload(ctx context.Context) (*Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	candidates, err := m.Store.nextCandidates(ctx, m.now(), 50)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		domain := safeurl.Hostname(c.URL)
		if _, busy := m.inflightDomains[domain]; busy {
			continue
		}
		if !m.limiterFor(domain).Allow() {
			continue
		}
		claimed, err := m.Store.claim(ctx, c)
		if err != nil {
			return nil, err
		}
		if claimed == nil {
			continue
		}
		m.inflightDomains[domain] = struct{}{}
		return claimed, nil
	}
	return nil, nil
}

func (m *Manager) limiterFor(domain string) *rate.Limiter {
	l, ok := m.limiters[domain]
	if !ok {
		l = rate.NewLimiter(rate.Every(domainInterval), domainBurst)
		m.limiters[domain] = l
	}
	return l
}

// Run starts the worker pool and blocks until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < m.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.worker(ctx)
		}()
	}
	wg.Wait()
}

// worker polls for eligible rows. disabled drains (no new dequeues);
// stopped exits.
func (m *Manager) worker(ctx context.Context) {
	ticker := time.NewTicker(m.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if m.Flags.DownloadsStopped() {
			return
		}
		if m.Flags.DownloadsDisabled() {
			continue
		}
		d, err := m.GetNewDownload(ctx)
		if err != nil {
			log.Printf("download dequeue failed: %v", err)
			continue
		}
		if d == nil {
			continue
		}
		m.Process(ctx, d)
	}
}

// Process runs one claimed download through its plugin and records the
// outcome. Exposed for tests and for synchronous CLI downloads.
func (m *Manager) Process(ctx context.Context, d *Download) {
	domain := safeurl.Hostname(d.URL)
	dctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.inflight[d.ID] = cancel
	m.mu.Unlock()

	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.inflight, d.ID)
		delete(m.inflightDomains, domain)
		m.mu.Unlock()
	}()

	plugin := m.Registry.ByName(d.Downloader)
	if plugin == nil {
		m.fail(ctx, d, apperr.Unrecoverable(apperr.Validation("unknown downloader %q", d.Downloader)))
		return
	}
	res, err := plugin.Do(dctx, d)

	if m.wasKilled(d.ID) {
		// The partial artifact is discarded; no file group is recorded.
		d.Status = StatusFailed
		d.Error = "killed"
		if saveErr := m.Store.Save(ctx, d); saveErr != nil {
			log.Printf("save killed download %d: %v", d.ID, saveErr)
		}
		m.clearKilled(d.ID)
		m.emit("download", "killed", d.URL, "")
		return
	}
	if err != nil {
		m.fail(ctx, d, err)
		return
	}
	m.complete(ctx, d, res)
}

// complete marks d successful. Recurring downloads are cloned forward with
// next_download = now + frequency.
func (m *Manager) complete(ctx context.Context, d *Download, res *Result) {
	now := m.now()
	d.Status = StatusComplete
	d.Error = ""
	d.LastSuccessful = &now
	if res != nil {
		d.Location = res.Location
	}
	if d.Recurring() {
		next := now.Add(*d.Frequency)
		d.NextDownload = &next
	} else {
		d.NextDownload = nil
	}
	if err := m.Store.Save(ctx, d); err != nil {
		log.Printf("save completed download %d: %v", d.ID, err)
		return
	}
	if d.Recurring() {
		next := now.Add(*d.Frequency)
		clone := &Download{
			URL: d.URL, Downloader: d.Downloader, SubDownloader: d.SubDownloader,
			Destination: d.Destination, Frequency: d.Frequency, Status: StatusDeferred,
			NextDownload: &next, Settings: d.Settings, TagNames: d.TagNames,
			CollectionID: d.CollectionID,
		}
		if _, err := m.Store.Insert(ctx, clone); err != nil {
			log.Printf("clone recurring download %s: %v", d.URL, err)
		}
	}
	m.emit("download", "completed", d.URL, "")
}

// fail applies the retry policy: transient failures defer with backoff,
// unrecoverable ones (or exhausted attempts) fail for good.
func (m *Manager) fail(ctx context.Context, d *Download, cause error) {
	d.Attempts++
	d.Error = cause.Error()
	if apperr.IsUnrecoverable(cause) || d.Attempts >= m.MaxAttempts {
		d.Status = StatusFailed
		d.NextDownload = nil
		m.emit("download_failed", "download", d.URL, cause.Error())
	} else {
		next := m.now().Add(m.Backoff(d.Attempts))
		d.Status = StatusDeferred
		d.NextDownload = &next
		m.emit("download_deferred", "download", d.URL, cause.Error())
	}
	if err := m.Store.Save(ctx, d); err != nil {
		log.Printf("save failed download %d: %v", d.ID, err)
	}
}

// Kill cancels a running download, or fails a queued one.
func (m *Manager) Kill(ctx context.Context, id int64) error {
	d, err := m.Store.ByID(ctx, id)
	if err != nil {
		return err
	}
	if d.Terminal() {
		return apperr.Validation("download %d already finished", id)
	}
	m.mu.Lock()
	m.killed[id] = struct{}{}
	cancel, running := m.inflight[id]
	m.mu.Unlock()
	if running {
		cancel()
		return nil
	}
	d.Status = StatusFailed
	d.Error = "killed"
	m.clearKilled(id)
	return m.Store.Save(ctx, d)
}

func (m *Manager) wasKilled(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.killed[id]
	return ok
}

func (m *Manager) clearKilled(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.killed, id)
}

// Restart re-queues a download from any state.
func (m *Manager) Restart(ctx context.Context, id int64) error {
	d, err := m.Store.ByID(ctx, id)
	if err != nil {
		return err
	}
	if active, err := m.Store.ActiveByURL(ctx, d.URL); err == nil && active.ID != d.ID {
		return apperr.Conflict("url %s already has an active download", d.URL)
	}
	d.Status = StatusNew
	d.Error = ""
	d.Attempts = 0
	d.NextDownload = nil
	return m.Store.Save(ctx, d)
}

// RetryFailed re-queues every failed download.
func (m *Manager) RetryFailed(ctx context.Context) (int, error) {
	failed, err := m.Store.ByStatus(ctx, StatusFailed)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range failed {
		if err := m.Restart(ctx, d.ID); err != nil {
			continue
		}
		n++
	}
	return n, nil
}

// CompleteForURL marks a failed or deferred download for url complete with
// the given location. Used when a SingleFile blob is uploaded for a URL
// that previously failed to archive.
func (m *Manager) CompleteForURL(ctx context.Context, url, location string) error {
	all, err := m.Store.All(ctx)
	if err != nil {
		return err
	}
	for _, d := range all {
		if d.URL != url || (d.Status != StatusFailed && d.Status != StatusDeferred) {
			continue
		}
		now := m.now()
		d.Status = StatusComplete
		d.Location = location
		d.Error = ""
		d.LastSuccessful = &now
		d.NextDownload = nil
		return m.Store.Save(ctx, d)
	}
	return nil
}

func (m *Manager) emit(event, subject, url, message string) {
	if m.Events == nil {
		return
	}
	m.Events.Emit(events.Record{Event: event, Subject: subject, Action: event, URL: url, Message: message})
}

