package archives

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/download"
	"github.com/wrolpi/wrolpi/internal/httpclient"
)

// ScrapeDownloader fetches a page and enqueues a file download for every
// link whose suffix the file plugin claims. It never auto-claims a URL;
// it runs only when a download names it explicitly.
type ScrapeDownloader struct {
	Manager *download.Manager
	Client  *http.Client
	// Suffixes limits which link targets are enqueued. Empty means the
	// file plugin's default set.
	Suffixes map[string]bool
}

// Name implements download.Downloader.
func (s *ScrapeDownloader) Name() string { return "scrape" }

// Priority implements download.Downloader. Between file and archive so an
// explicit scrape request still beats the catch-all.
func (s *ScrapeDownloader) Priority() int { return 75 }

// ValidURL always declines; scraping is opt-in by downloader name.
func (s *ScrapeDownloader) ValidURL(string) bool { return false }

// AlreadyDownloaded implements download.Downloader.
func (s *ScrapeDownloader) AlreadyDownloaded(ctx context.Context, urls ...string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

// Do fetches the page, extracts link targets and enqueues one file
// download per match. The result location records how many were queued.
func (s *ScrapeDownloader) Do(ctx context.Context, d *download.Download) (*download.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return nil, apperr.Unrecoverable(err)
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	client := s.Client
	if client == nil {
		client = httpclient.Default()
	}
	resp, err := httpclient.DoWithRetry(ctx, client, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return nil, apperr.Transient(err)
	}
	defer resp.Body.Close()
	if err := download.ClassifyStatus(resp.StatusCode, d.URL); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transient(err)
	}

	links := ExtractLinks(body, d.URL)
	queued := 0
	for _, link := range links {
		if !s.wantsSuffix(link) {
			continue
		}
		if ctx.Err() != nil {
			return nil, apperr.Transient(ctx.Err())
		}
		_, err := s.Manager.CreateDownload(ctx, download.CreateRequest{
			URL:          link,
			Downloader:   "file",
			Destination:  d.Destination,
			TagNames:     d.TagNames,
			CollectionID: d.CollectionID,
		})
		if err != nil {
			continue
		}
		queued++
	}
	return &download.Result{Location: fmt.Sprintf("queued %d of %d links", queued, len(links))}, nil
}

func (s *ScrapeDownloader) wantsSuffix(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if len(s.Suffixes) > 0 {
		return s.Suffixes[ext]
	}
	switch ext {
	case ".pdf", ".epub", ".mobi", ".zip", ".mp3", ".txt", ".csv", ".zim":
		return true
	}
	return false
}

// ExtractLinks returns the absolute form of every <a href> in page.
func ExtractLinks(page []byte, base string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, err := url.Parse(strings.TrimSpace(attr.Val))
				if err != nil {
					continue
				}
				abs := baseURL.ResolveReference(ref).String()
				if !seen[abs] {
					seen[abs] = true
					out = append(out, abs)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}
