package archives

import (
	"net/url"
	"path/filepath"
	"strings"
)

// DomainOf returns the hostname of rawURL with a leading "www." stripped.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// DomainDirectory resolves the domain collection's directory for a file at
// fileDir. The collection directory is always <media>/archive/[<tag>/]<domain>,
// never a year (or other file-format) subdirectory inside it: walk up from
// the file until a directory whose base name equals the domain, stopping at
// the archive root. When no ancestor matches, the untagged default
// <media>/archive/<domain> is returned.
func DomainDirectory(mediaPath, fileDir, domain string) string {
	archiveRoot := filepath.Join(mediaPath, "archive")
	dir := filepath.Clean(fileDir)
	for dir != archiveRoot && strings.HasPrefix(dir, archiveRoot+string(filepath.Separator)) {
		if filepath.Base(dir) == domain {
			return dir
		}
		dir = filepath.Dir(dir)
	}
	return filepath.Join(archiveRoot, domain)
}
