package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/httpclient"
)

// FetchToFile downloads url to destPath with a temp-file-then-rename so a
// killed download never leaves a partial file at the destination. The
// plugin's context is cancelled on kill; the temp file is removed.
func FetchToFile(ctx context.Context, client *http.Client, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperr.Unrecoverable(err)
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	resp, err := httpclient.DoWithRetry(ctx, client, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return apperr.Transient(err)
	}
	defer resp.Body.Close()
	if err := ClassifyStatus(resp.StatusCode, url); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return apperr.Unrecoverable(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".download-*.tmp")
	if err != nil {
		return apperr.Unrecoverable(err)
	}
	tmpName := tmp.Name()
	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if copyErr != nil {
			return apperr.Transient(copyErr)
		}
		return apperr.Transient(closeErr)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return apperr.Unrecoverable(err)
	}
	return nil
}

// ClassifyStatus maps an HTTP status to the retry policy: 2xx succeeds,
// 4xx (except 429) permanently refuses, everything else is transient.
func ClassifyStatus(code int, url string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return apperr.Transient(fmt.Errorf("get %s: %d", redactURL(url), code))
	case code >= 400 && code < 500:
		return apperr.Unrecoverable(fmt.Errorf("get %s: %d", redactURL(url), code))
	default:
		return apperr.Transient(fmt.Errorf("get %s: %d", redactURL(url), code))
	}
}

func redactURL(s string) string {
	if i := strings.Index(s, "?"); i >= 0 {
		return s[:i] + "?[redacted]"
	}
	return s
}
