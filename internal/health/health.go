// Package health probes a running appliance over HTTP. Used by the
// healthcheck subcommand so containers and systemd can watch the service
// without shipping curl.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Check hits the status and metrics endpoints at baseURL and returns the
// first failure, or nil when both answer 200.
func Check(ctx context.Context, baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	for _, path := range []string{"/api/status", "/metrics"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
		}
	}
	return nil
}
