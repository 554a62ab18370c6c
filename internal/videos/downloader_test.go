package videos

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/download"
)

func TestValidURL(t *testing.T) {
	d := &Downloader{}
	valid := []string{
		"https://youtube.com/watch?v=abc",
		"https://www.youtube.com/watch?v=abc",
		"https://youtu.be/abc",
		"https://rumble.com/v123",
	}
	invalid := []string{
		"https://example.com/video.mp4",
		"ftp://youtube.com/x",
		"not a url",
	}
	for _, u := range valid {
		if !d.ValidURL(u) {
			t.Errorf("ValidURL(%q) = false", u)
		}
	}
	for _, u := range invalid {
		if d.ValidURL(u) {
			t.Errorf("ValidURL(%q) = true", u)
		}
	}
}

func TestDo(t *testing.T) {
	ctx := context.Background()
	f := newVideoFixture(t)
	d := &Downloader{
		MediaPath: f.media, Store: f.store, Collections: f.colls,
		Fetch: func(ctx context.Context, url, destDir string) ([]string, error) {
			for _, name := range []string{"v.mp4", "v.info.json"} {
				if err := os.WriteFile(filepath.Join(destDir, name), []byte("x"), 0644); err != nil {
					return nil, err
				}
			}
			return []string{"v.mp4", "v.info.json"}, nil
		},
	}
	res, err := d.Do(ctx, &download.Download{URL: "https://youtube.com/watch?v=abc"})
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(f.media, "videos", "v.mp4")
	if res.Location != want {
		t.Errorf("location = %q, want %q", res.Location, want)
	}
}

func TestDo_channelSettingRoutesToChannelDirectory(t *testing.T) {
	ctx := context.Background()
	f := newVideoFixture(t)
	ch, err := f.store.CreateChannel(ctx, "SomeChannel", "", f.media)
	if err != nil {
		t.Fatal(err)
	}
	var gotDir string
	d := &Downloader{
		MediaPath: f.media, Store: f.store, Collections: f.colls,
		Fetch: func(ctx context.Context, url, destDir string) ([]string, error) {
			gotDir = destDir
			return []string{"v.mp4"}, nil
		},
	}
	if _, err := d.Do(ctx, &download.Download{
		URL:      "https://youtube.com/watch?v=abc",
		Settings: map[string]interface{}{"channel": "SomeChannel"},
	}); err != nil {
		t.Fatal(err)
	}
	if gotDir != ch.Directory {
		t.Errorf("dest = %q, want channel directory %q", gotDir, ch.Directory)
	}
}

func TestDo_noFetcher(t *testing.T) {
	f := newVideoFixture(t)
	d := &Downloader{MediaPath: f.media, Store: f.store, Collections: f.colls}
	_, err := d.Do(context.Background(), &download.Download{URL: "https://youtube.com/watch?v=abc"})
	if !apperr.IsUnrecoverable(err) {
		t.Fatalf("want unrecoverable, got %v", err)
	}
}

func TestAlreadyDownloaded(t *testing.T) {
	ctx := context.Background()
	f := newVideoFixture(t)
	d := &Downloader{MediaPath: f.media, Store: f.store, Collections: f.colls}
	g := f.group(t, "v")
	if _, err := f.store.UpsertVideo(ctx, &Video{
		FileGroupID: g.ID, URL: "https://youtube.com/watch?v=abc",
	}); err != nil {
		t.Fatal(err)
	}
	got, err := d.AlreadyDownloaded(ctx, "https://youtube.com/watch?v=abc", "https://youtube.com/watch?v=xyz")
	if err != nil {
		t.Fatal(err)
	}
	if !got["https://youtube.com/watch?v=abc"] || got["https://youtube.com/watch?v=xyz"] {
		t.Errorf("AlreadyDownloaded = %v", got)
	}
}
