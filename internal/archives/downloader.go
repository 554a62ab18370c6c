package archives

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/collections"
	"github.com/wrolpi/wrolpi/internal/download"
	"github.com/wrolpi/wrolpi/internal/httpclient"
	"github.com/wrolpi/wrolpi/internal/safeurl"
)

// maxArchiveAttempts: archives refuse further retries past this count.
const maxArchiveAttempts = 3

// FetchResult is what the singlefile acquirer returns: a self-contained
// HTML snapshot (banner included) and the page title.
type FetchResult struct {
	HTML  []byte
	Title string
}

// FetchFunc acquires a singlefile snapshot of url. The real binding shells
// out to the single-file browser extension; the default implementation
// fetches the page and prepends the banner itself.
type FetchFunc func(ctx context.Context, url string) (*FetchResult, error)

// Downloader is the HTML-archive acquirer plugin. It carries the highest
// priority integer, making it the catch-all for any http(s) URL no other
// plugin claims.
type Downloader struct {
	MediaPath   string
	Collections *collections.Store
	Archives    *Store
	Client      *http.Client
	Fetch       FetchFunc

	now func() time.Time
}

// NewDownloader returns the archive plugin with the default fetcher.
func NewDownloader(mediaPath string, colls *collections.Store, archives *Store) *Downloader {
	d := &Downloader{
		MediaPath:   mediaPath,
		Collections: colls,
		Archives:    archives,
		now:         func() time.Time { return time.Now().UTC() },
	}
	d.Fetch = d.defaultFetch
	return d
}

// Name implements download.Downloader.
func (d *Downloader) Name() string { return "archive" }

// Priority implements download.Downloader.
func (d *Downloader) Priority() int { return 100 }

// ValidURL claims every http(s) URL.
func (d *Downloader) ValidURL(raw string) bool {
	return safeurl.IsHTTP(raw)
}

// AlreadyDownloaded reports which urls already have an Archive.
func (d *Downloader) AlreadyDownloaded(ctx context.Context, urls ...string) (map[string]bool, error) {
	out := make(map[string]bool, len(urls))
	for _, u := range urls {
		_, err := d.Archives.LatestByURL(ctx, u)
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

// Do acquires the snapshot and writes <timestamp>_<title>.html into the
// domain directory. The refresh pipeline models the file into an Archive.
func (d *Downloader) Do(ctx context.Context, dl *download.Download) (*download.Result, error) {
	if dl.Attempts >= maxArchiveAttempts {
		return nil, apperr.Unrecoverable(
			fmt.Errorf("archive of %s failed %d times", dl.URL, dl.Attempts))
	}
	// An already-archived URL resolves to the existing snapshot: no refetch
	// and no duplicate file. A stale row whose file vanished falls through
	// to a fresh fetch (the reap hook removes the row later).
	if loc, err := d.Archives.LocationByURL(ctx, dl.URL); err == nil {
		if _, statErr := os.Stat(loc); statErr == nil {
			return &download.Result{Location: loc}, nil
		}
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}
	res, err := d.Fetch(ctx, dl.URL)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		// Killed mid-flight: discard the snapshot, record nothing.
		return nil, apperr.Transient(ctx.Err())
	}

	dest, err := d.SaveSnapshot(ctx, dl.URL, res.HTML, res.Title, dl.Destination)
	if err != nil {
		return nil, err
	}
	return &download.Result{Location: dest}, nil
}

// SaveSnapshot writes a singlefile HTML snapshot into destDir (or the URL's
// domain directory when destDir is empty) and returns the final path. Used
// by Do and by the archive upload endpoint.
func (d *Downloader) SaveSnapshot(ctx context.Context, rawURL string, html []byte, title, destDir string) (string, error) {
	var err error
	if destDir == "" {
		destDir, err = d.destinationFor(ctx, rawURL)
		if err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", apperr.Unrecoverable(err)
	}

	if title == "" {
		title = HTMLTitle(html)
	}
	if title == "" {
		title = DomainOf(rawURL)
	}
	name := fmt.Sprintf("%s_%s.html", d.now().Format("2006-01-02-15-04-05"), SanitizeTitle(title))
	dest := filepath.Join(destDir, name)

	tmp, err := os.CreateTemp(destDir, ".archive-*.html.tmp")
	if err != nil {
		return "", apperr.Unrecoverable(err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(html)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		return "", apperr.Transient(errors.Join(writeErr, closeErr))
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", apperr.Unrecoverable(err)
	}
	return dest, nil
}

// destinationFor resolves the domain collection's directory, honoring a
// tagged collection's relocated directory.
func (d *Downloader) destinationFor(ctx context.Context, rawURL string) (string, error) {
	domain := DomainOf(rawURL)
	if domain == "" {
		return "", apperr.Unrecoverable(apperr.Validation("url %q has no hostname", rawURL))
	}
	coll, err := d.Collections.ByNameKind(ctx, domain, collections.KindDomain)
	if err == nil && coll.Directory != nil {
		return *coll.Directory, nil
	}
	if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		return "", err
	}
	return filepath.Join(d.MediaPath, "archive", domain), nil
}

// defaultFetch downloads the page and prepends the SingleFile banner so
// the modeler can recover the URL and capture time.
func (d *Downloader) defaultFetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperr.Unrecoverable(err)
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	client := d.Client
	if client == nil {
		client = httpclient.Default()
	}
	resp, err := httpclient.DoWithRetry(ctx, client, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return nil, apperr.Transient(err)
	}
	defer resp.Body.Close()
	if err := download.ClassifyStatus(resp.StatusCode, rawURL); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transient(err)
	}
	banner := fmt.Sprintf("<!--\n Page saved with SingleFile \n url: %s \n saved date: %s -->\n",
		rawURL, d.now().Format("Mon Jan 02 2006 15:04:05")+" GMT+0000 (Coordinated Universal Time)")
	return &FetchResult{HTML: append([]byte(banner), body...), Title: HTMLTitle(body)}, nil
}

// SanitizeTitle makes a page title safe for a filename. Same id-mangling
// strategy as on-disk cache keys: path separators and NULs become
// underscores and overlong titles are truncated.
func SanitizeTitle(title string) string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '\x00', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, title)
	s = strings.TrimSpace(s)
	if s == "" {
		s = "unknown"
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
