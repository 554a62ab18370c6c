package modeler

import (
	"context"
	"testing"

	"github.com/wrolpi/wrolpi/internal/files"
)

func TestMatch(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, g *files.FileGroup) error { return nil }
	r.Register("archive", "text/html", noop)
	r.Register("video", "video/", noop)
	r.Register("text", "text/", noop)

	cases := []struct {
		mimetype string
		want     []string
	}{
		{"text/html", []string{"archive", "text"}},
		{"text/plain", []string{"text"}},
		{"video/mp4", []string{"video"}},
		{"video/webm", []string{"video"}},
		{"application/pdf", nil},
	}
	for _, c := range cases {
		names, fns := r.Match(c.mimetype)
		if len(names) != len(c.want) || len(fns) != len(names) {
			t.Errorf("Match(%q) = %v, want %v", c.mimetype, names, c.want)
			continue
		}
		for i := range c.want {
			if names[i] != c.want[i] {
				t.Errorf("Match(%q)[%d] = %q, want %q", c.mimetype, i, names[i], c.want[i])
			}
		}
	}
}
