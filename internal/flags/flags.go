// Package flags holds the process-wide operational flags.
// One Flags value is created at startup and shared by every subsystem;
// all access goes through accessor methods, never bare fields.
package flags

import (
	"os"
	"sync"
)

// Flags is the shared flag set.
// DownloadsDisabled and DownloadsStopped start true so no download runs
// before the config import finishes; EnableDownloads flips both.
type Flags struct {
	mu sync.Mutex

	refreshing        bool
	downloadsDisabled bool
	downloadsStopped  bool

	// wrolFile is a flag file on the media drive; its presence enables WROL
	// Mode, which denies persistent configuration changes and new downloads.
	wrolFile string
}

// New returns flags in the startup state (downloads disabled and stopped).
func New(wrolFile string) *Flags {
	return &Flags{
		downloadsDisabled: true,
		downloadsStopped:  true,
		wrolFile:          wrolFile,
	}
}

// StartRefreshing sets the refresh-in-progress flag.
// Returns false when a refresh is already running.
func (f *Flags) StartRefreshing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshing {
		return false
	}
	f.refreshing = true
	return true
}

// StopRefreshing clears the refresh-in-progress flag.
func (f *Flags) StopRefreshing() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshing = false
}

// Refreshing reports whether a refresh is in progress.
func (f *Flags) Refreshing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshing
}

// EnableDownloads clears both download flags. Called after config import.
func (f *Flags) EnableDownloads() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadsDisabled = false
	f.downloadsStopped = false
}

// DisableDownloads prevents new work from being dequeued; in-flight
// downloads drain.
func (f *Flags) DisableDownloads() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadsDisabled = true
}

// StopDownloads signals workers to exit cleanly.
func (f *Flags) StopDownloads() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadsStopped = true
}

// DownloadsDisabled reports whether dequeuing is paused.
func (f *Flags) DownloadsDisabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloadsDisabled
}

// DownloadsStopped reports whether workers should exit.
func (f *Flags) DownloadsStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloadsStopped
}

// WROLModeEnabled reports whether the WROL flag file exists on disk.
// Checked on every call so flipping the file takes effect immediately.
func (f *Flags) WROLModeEnabled() bool {
	if f.wrolFile == "" {
		return false
	}
	_, err := os.Stat(f.wrolFile)
	return err == nil
}
