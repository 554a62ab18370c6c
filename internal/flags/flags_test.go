package flags

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStartRefreshing(t *testing.T) {
	f := New("")
	if !f.StartRefreshing() {
		t.Fatal("first StartRefreshing should succeed")
	}
	if f.StartRefreshing() {
		t.Error("second StartRefreshing should report a refresh in progress")
	}
	f.StopRefreshing()
	if !f.StartRefreshing() {
		t.Error("StartRefreshing after StopRefreshing should succeed")
	}
}

func TestDownloadFlagsStartDisabled(t *testing.T) {
	f := New("")
	if !f.DownloadsDisabled() || !f.DownloadsStopped() {
		t.Fatal("downloads must start disabled and stopped")
	}
	f.EnableDownloads()
	if f.DownloadsDisabled() || f.DownloadsStopped() {
		t.Error("EnableDownloads should clear both flags")
	}
	f.StopDownloads()
	if !f.DownloadsStopped() {
		t.Error("StopDownloads should set the stopped flag")
	}
}

func TestWROLModeEnabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrol_mode")
	f := New(path)
	if f.WROLModeEnabled() {
		t.Fatal("WROL Mode should be off while the flag file is absent")
	}
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if !f.WROLModeEnabled() {
		t.Error("WROL Mode should follow the flag file immediately")
	}
	os.Remove(path)
	if f.WROLModeEnabled() {
		t.Error("WROL Mode should turn off when the flag file is removed")
	}
}
