package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseRetryAfter(t *testing.T) {
	limit := 60 * time.Second
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Second},
		{"5", 5 * time.Second},
		{"0", 0},
		{"120", limit},
		{"  10  ", 10 * time.Second},
		{"garbage", time.Second},
	}
	for _, c := range cases {
		if got := parseRetryAfter(c.in, limit); got != c.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func retryServer(t *testing.T, first int) (*httptest.Server, *int) {
	t.Helper()
	attempts := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*attempts++
		if *attempts == 1 {
			if first == http.StatusTooManyRequests {
				w.Header().Set("Retry-After", "0")
			}
			w.WriteHeader(first)
			return
		}
		w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	return srv, attempts
}

func TestDoWithRetry_recovers(t *testing.T) {
	for _, first := range []int{http.StatusTooManyRequests, http.StatusBadGateway} {
		srv, attempts := retryServer(t, first)
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		policy := DefaultRetryPolicy
		policy.Backoff5xx = time.Millisecond
		resp, err := DoWithRetry(context.Background(), srv.Client(), req, policy)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("first=%d: status = %d, want 200", first, resp.StatusCode)
		}
		if *attempts != 2 {
			t.Errorf("first=%d: attempts = %d, want 2", first, *attempts)
		}
	}
}

func TestDoWithRetry_clientErrorNotRetried(t *testing.T) {
	srv, attempts := retryServer(t, http.StatusForbidden)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := DoWithRetry(context.Background(), nil, req, DefaultRetryPolicy)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	if *attempts != 1 {
		t.Errorf("attempts = %d, want 1", *attempts)
	}
}

func TestDoWithRetry_cancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	if _, err := DoWithRetry(ctx, srv.Client(), req, DefaultRetryPolicy); err == nil {
		t.Fatal("expected context error during backoff wait")
	}
}
