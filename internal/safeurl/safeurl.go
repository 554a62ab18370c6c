// Package safeurl validates URLs before a download plugin fetches them.
// Download rows arrive from the API and from imported config files, so a
// row must never be able to point a fetcher at file://, ftp:// or a
// schemeless path.
package safeurl

import (
	"net/url"
	"strings"
)

// IsHTTP reports whether raw is an absolute http or https URL with a host.
func IsHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Hostname returns the lowercased hostname of raw. Unparseable input is
// returned as-is so per-domain bookkeeping still gets a stable key.
func Hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return strings.ToLower(u.Hostname())
}
