package archives

import "testing"

func TestDomainOf(t *testing.T) {
	cases := []struct{ url, want string }{
		{"https://example.com/a/b", "example.com"},
		{"https://www.example.com/a", "example.com"},
		{"http://WWW.Example.COM", "example.com"},
		{"https://sub.example.com", "sub.example.com"},
		{"not a url", ""},
		{"/relative/path", ""},
	}
	for _, c := range cases {
		if got := DomainOf(c.url); got != c.want {
			t.Errorf("DomainOf(%q) = %q, want %q", c.url, got, c.want)
		}
	}
}

func TestDomainDirectory(t *testing.T) {
	cases := []struct {
		fileDir string
		want    string
	}{
		// Untagged: the domain directory itself.
		{"/media/archive/example.com", "/media/archive/example.com"},
		// Year subdirectory: walk up to the domain.
		{"/media/archive/example.com/2026", "/media/archive/example.com"},
		// Tagged layout keeps the tag segment.
		{"/media/archive/automotive/example.com", "/media/archive/automotive/example.com"},
		{"/media/archive/automotive/example.com/2026/01", "/media/archive/automotive/example.com"},
		// File outside any matching directory gets the untagged default.
		{"/media/archive/other.com", "/media/archive/example.com"},
		{"/media/downloads", "/media/archive/example.com"},
	}
	for _, c := range cases {
		got := DomainDirectory("/media", c.fileDir, "example.com")
		if got != c.want {
			t.Errorf("DomainDirectory(%q) = %q, want %q", c.fileDir, got, c.want)
		}
	}
}
