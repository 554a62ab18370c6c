package videos

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/collections"
	"github.com/wrolpi/wrolpi/internal/download"
	"github.com/wrolpi/wrolpi/internal/safeurl"
)

// videoHosts are the hostnames the video plugin claims automatically.
var videoHosts = map[string]bool{
	"youtube.com": true, "youtu.be": true, "vimeo.com": true,
	"rumble.com": true, "odysee.com": true,
}

// VideoFetchFunc acquires a video and its sidecars into destDir and returns
// the saved filenames. The production binding shells out to a downloader
// program; tests inject their own.
type VideoFetchFunc func(ctx context.Context, url, destDir string) ([]string, error)

// Downloader is the video acquirer plugin.
type Downloader struct {
	MediaPath   string
	Store       *Store
	Collections *collections.Store
	Fetch       VideoFetchFunc
}

// Name implements download.Downloader.
func (d *Downloader) Name() string { return "video" }

// Priority implements download.Downloader. Ahead of the file plugin so a
// video host URL with a file-like path still gets the video treatment.
func (d *Downloader) Priority() int { return 30 }

// ValidURL claims http(s) URLs on known video hosts.
func (d *Downloader) ValidURL(raw string) bool {
	if !safeurl.IsHTTP(raw) {
		return false
	}
	host := strings.TrimPrefix(safeurl.Hostname(raw), "www.")
	return videoHosts[host]
}

// AlreadyDownloaded reports which urls already have a Video.
func (d *Downloader) AlreadyDownloaded(ctx context.Context, urls ...string) (map[string]bool, error) {
	out := make(map[string]bool, len(urls))
	for _, u := range urls {
		_, err := d.Store.VideoByURL(ctx, u)
		if err == nil {
			out[u] = true
			continue
		}
		if apperr.KindOf(err) != apperr.KindNotFound {
			return nil, err
		}
	}
	return out, nil
}

// Do acquires the video into its destination directory. The refresh
// pipeline models the saved files into a Video.
func (d *Downloader) Do(ctx context.Context, dl *download.Download) (*download.Result, error) {
	if d.Fetch == nil {
		return nil, apperr.Unrecoverable(fmt.Errorf("no video fetcher configured"))
	}
	destDir := dl.Destination
	if destDir == "" {
		destDir = d.destinationFor(ctx, dl)
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, apperr.Unrecoverable(err)
	}
	saved, err := d.Fetch(ctx, dl.URL, destDir)
	if err != nil {
		return nil, err
	}
	if len(saved) == 0 {
		return nil, apperr.Transient(fmt.Errorf("video fetch of %s saved nothing", dl.URL))
	}
	return &download.Result{Location: filepath.Join(destDir, saved[0])}, nil
}

// destinationFor resolves the channel directory for a download carrying a
// channel setting, falling back to the shared videos directory.
func (d *Downloader) destinationFor(ctx context.Context, dl *download.Download) string {
	if name, ok := dl.Settings["channel"].(string); ok && name != "" {
		ch, err := d.Store.ChannelByName(ctx, name)
		if err == nil {
			if ch.CollectionID != nil {
				coll, err := d.Collections.ByID(ctx, *ch.CollectionID)
				if err == nil && coll.Directory != nil {
					return *coll.Directory
				}
			}
			return ch.Directory
		}
	}
	return filepath.Join(d.MediaPath, "videos")
}
