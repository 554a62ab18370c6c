package archives

import (
	"encoding/json"
	"os"
	"time"

	"github.com/cockroachdb/errors"
)

// ReadabilityJSON is the reader-mode extraction written next to a
// singlefile snapshot.
type ReadabilityJSON struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Byline      string `json:"byline"`
	Excerpt     string `json:"excerpt"`
	TextContent string `json:"textContent"`
	Date        string `json:"date"`
	Lang        string `json:"lang"`
}

// ReadReadabilityJSON loads a .readability.json file.
func ReadReadabilityJSON(path string) (*ReadabilityJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read readability json")
	}
	var r ReadabilityJSON
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "decode readability json")
	}
	return &r, nil
}

// PublishedDate parses the readability "date" field when present.
func (r *ReadabilityJSON) PublishedDate() *time.Time {
	if r.Date == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, r.Date); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
