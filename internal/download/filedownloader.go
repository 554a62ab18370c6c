package download

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/httpclient"
	"github.com/wrolpi/wrolpi/internal/safeurl"
)

// fileExtensions are the suffixes the plain file downloader claims.
var fileExtensions = map[string]bool{
	".pdf": true, ".epub": true, ".mobi": true, ".zip": true,
	".mp3": true, ".txt": true, ".csv": true, ".zim": true,
}

// FileDownloader saves a single file URL into its destination directory.
// The refresh pipeline models the result.
type FileDownloader struct {
	MediaPath string
	Client    *http.Client
}

// Name implements Downloader.
func (f *FileDownloader) Name() string { return "file" }

// Priority implements Downloader. Files claim before the archive catch-all.
func (f *FileDownloader) Priority() int { return 50 }

// ValidURL claims http(s) URLs whose path ends in a known file suffix.
func (f *FileDownloader) ValidURL(raw string) bool {
	if !safeurl.IsHTTP(raw) {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return fileExtensions[strings.ToLower(path.Ext(u.Path))]
}

// AlreadyDownloaded implements Downloader. Plain files have no typed
// entity; the file group's URL column is checked by the caller instead.
func (f *FileDownloader) AlreadyDownloaded(ctx context.Context, urls ...string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

// Do fetches the URL into the download's destination (or the media root's
// files directory).
func (f *FileDownloader) Do(ctx context.Context, d *Download) (*Result, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, apperr.Unrecoverable(err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return nil, apperr.Unrecoverable(apperr.Validation("url %s has no file name", d.URL))
	}
	destDir := d.Destination
	if destDir == "" {
		destDir = filepath.Join(f.MediaPath, "files")
	}
	dest := filepath.Join(destDir, name)
	client := f.Client
	if client == nil {
		client = httpclient.Default()
	}
	if err := FetchToFile(ctx, client, d.URL, dest); err != nil {
		return nil, err
	}
	return &Result{Location: dest}, nil
}
