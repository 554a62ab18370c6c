package safeurl

import "testing"

func TestIsHTTP(t *testing.T) {
	valid := []string{
		"http://example.com/page",
		"https://example.com",
		"https://Example.COM:8080/a?b=c",
	}
	invalid := []string{
		"",
		"example.com/page",
		"file:///etc/passwd",
		"ftp://example.com/file",
		"javascript:alert(1)",
		"https://",
		"not a url",
	}
	for _, u := range valid {
		if !IsHTTP(u) {
			t.Errorf("IsHTTP(%q) = false", u)
		}
	}
	for _, u := range invalid {
		if IsHTTP(u) {
			t.Errorf("IsHTTP(%q) = true", u)
		}
	}
}

func TestHostname(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://Example.COM/page", "example.com"},
		{"https://example.com:8080/page", "example.com"},
		{"http://sub.example.com", "sub.example.com"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Hostname(c.in); got != c.want {
			t.Errorf("Hostname(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
