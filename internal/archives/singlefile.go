// Package archives models saved web pages: the singlefile snapshot, its
// readability variants, screenshot and info JSON all live in one file
// group; the Archive row carries the URL and capture time.
package archives

import (
	"bufio"
	"bytes"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// headerPeekSize bounds how much of the file the header scan reads.
// SingleFile writes its comment banner at the very top.
const headerPeekSize = 1024

var (
	singleFileMarker = []byte("Page saved with SingleFile")
	urlRe            = regexp.MustCompile(`^\s+?url:\s+?(http.*)`)
	savedDateRe      = regexp.MustCompile(`^\s+?saved date:\s+?(.*)`)
)

// SingleFileHeader is the metadata extracted from a singlefile banner.
type SingleFileHeader struct {
	URL       string
	SavedDate *time.Time
}

// ParseSingleFileHeader scans the first KiB of data for the SingleFile
// banner. Returns nil when the marker is absent.
func ParseSingleFileHeader(data []byte) *SingleFileHeader {
	if len(data) > headerPeekSize {
		data = data[:headerPeekSize]
	}
	if !bytes.Contains(data, singleFileMarker) {
		return nil
	}
	h := &SingleFileHeader{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if m := urlRe.FindStringSubmatch(line); m != nil {
			h.URL = strings.TrimSpace(m[1])
		}
		if m := savedDateRe.FindStringSubmatch(line); m != nil {
			if t, err := parseSavedDate(m[1]); err == nil {
				h.SavedDate = &t
			}
		}
	}
	return h
}

// ReadSingleFileHeader peeks at path on disk.
func ReadSingleFileHeader(path string) (*SingleFileHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open singlefile")
	}
	defer f.Close()
	buf := make([]byte, headerPeekSize)
	n, _ := f.Read(buf)
	return ParseSingleFileHeader(buf[:n]), nil
}

// parseSavedDate parses the five leading whitespace-separated tokens of a
// SingleFile saved date ("Tue Jan 01 2026 10:00:00 GMT+0000 (...)") as GMT.
func parseSavedDate(s string) (time.Time, error) {
	fields := strings.Fields(s)
	if len(fields) < 5 {
		return time.Time{}, errors.Newf("short saved date %q", s)
	}
	joined := strings.Join(fields[:5], " ")
	t, err := time.Parse("Mon Jan 02 2006 15:04:05", joined)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse saved date %q", s)
	}
	return t.UTC(), nil
}
