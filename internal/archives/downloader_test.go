package archives

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/collections"
	"github.com/wrolpi/wrolpi/internal/db"
	"github.com/wrolpi/wrolpi/internal/download"
)

func TestSanitizeTitle(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Plain Title", "Plain Title"},
		{"a/b\\c:d", "a_b_c_d"},
		{`what? "quotes" <and> |pipes|*`, "what_ _quotes_ _and_ _pipes__"},
		{"", "unknown"},
		{"   ", "unknown"},
		{strings.Repeat("x", 200), strings.Repeat("x", 120)},
	}
	for _, c := range cases {
		if got := SanitizeTitle(c.in); got != c.want {
			t.Errorf("SanitizeTitle(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestValidURL(t *testing.T) {
	d := &Downloader{}
	valid := []string{"https://example.com/a", "http://example.com"}
	invalid := []string{"ftp://example.com", "not a url", "/relative", "https://"}
	for _, u := range valid {
		if !d.ValidURL(u) {
			t.Errorf("ValidURL(%q) = false", u)
		}
	}
	for _, u := range invalid {
		if d.ValidURL(u) {
			t.Errorf("ValidURL(%q) = true", u)
		}
	}
}

func testDownloader(t *testing.T) *Downloader {
	t.Helper()
	dbh, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dbh.Close() })
	if err := dbh.Migrate(); err != nil {
		t.Fatal(err)
	}
	d := NewDownloader(t.TempDir(), collections.NewStore(dbh), NewStore(dbh))
	d.now = func() time.Time { return time.Date(2026, 1, 6, 10, 30, 0, 0, time.UTC) }
	return d
}

func TestDo(t *testing.T) {
	ctx := context.Background()
	d := testDownloader(t)
	d.Fetch = func(ctx context.Context, url string) (*FetchResult, error) {
		return &FetchResult{HTML: []byte(banner), Title: "An Article"}, nil
	}

	res, err := d.Do(ctx, &download.Download{URL: "https://example.com/article"})
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(d.MediaPath, "archive", "example.com", "2026-01-06-10-30-00_An Article.html")
	if res.Location != want {
		t.Errorf("location = %q, want %q", res.Location, want)
	}
	data, err := os.ReadFile(res.Location)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != banner {
		t.Error("snapshot contents changed")
	}
}

func TestDo_honorsDestination(t *testing.T) {
	ctx := context.Background()
	d := testDownloader(t)
	d.Fetch = func(ctx context.Context, url string) (*FetchResult, error) {
		return &FetchResult{HTML: []byte(banner), Title: "T"}, nil
	}
	dest := filepath.Join(d.MediaPath, "custom")
	res, err := d.Do(ctx, &download.Download{URL: "https://example.com/a", Destination: dest})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(res.Location) != dest {
		t.Errorf("location = %q, want under %q", res.Location, dest)
	}
}

func TestDo_usesTaggedCollectionDirectory(t *testing.T) {
	ctx := context.Background()
	d := testDownloader(t)
	tagged := filepath.Join(d.MediaPath, "archive", "automotive", "example.com")
	if _, err := d.Collections.Create(ctx, &collections.Collection{
		Name: "example.com", Kind: collections.KindDomain, Directory: &tagged,
	}); err != nil {
		t.Fatal(err)
	}
	d.Fetch = func(ctx context.Context, url string) (*FetchResult, error) {
		return &FetchResult{HTML: []byte(banner), Title: "T"}, nil
	}
	res, err := d.Do(ctx, &download.Download{URL: "https://example.com/a"})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(res.Location) != tagged {
		t.Errorf("location = %q, want under %q", res.Location, tagged)
	}
}

func TestDo_attemptsExhausted(t *testing.T) {
	d := testDownloader(t)
	d.Fetch = func(ctx context.Context, url string) (*FetchResult, error) {
		t.Fatal("fetch should not run")
		return nil, nil
	}
	_, err := d.Do(context.Background(), &download.Download{
		URL: "https://example.com/a", Attempts: maxArchiveAttempts,
	})
	if !apperr.IsUnrecoverable(err) {
		t.Fatalf("want unrecoverable, got %v", err)
	}
}

func TestDo_resolvesExistingArchive(t *testing.T) {
	ctx := context.Background()
	d := testDownloader(t)
	dir := filepath.Join(d.MediaPath, "archive", "example.com")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(dir, "2025-12-01-09-00-00_An Article.html")
	if err := os.WriteFile(existing, []byte(banner), 0644); err != nil {
		t.Fatal(err)
	}
	res, err := d.Archives.db.ExecContext(ctx,
		`INSERT INTO file_groups (directory, stem, primary_path) VALUES (?, ?, ?)`,
		dir, "2025-12-01-09-00-00_An Article", "2025-12-01-09-00-00_An Article.html")
	if err != nil {
		t.Fatal(err)
	}
	groupID, _ := res.LastInsertId()
	if _, err := d.Archives.Upsert(ctx, &Archive{
		FileGroupID: groupID, URL: "https://example.com/article",
	}); err != nil {
		t.Fatal(err)
	}
	d.Fetch = func(ctx context.Context, url string) (*FetchResult, error) {
		t.Fatal("an archived URL must not be fetched again")
		return nil, nil
	}

	got, err := d.Do(ctx, &download.Download{URL: "https://example.com/article"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Location != existing {
		t.Errorf("location = %q, want existing snapshot %q", got.Location, existing)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("duplicate snapshot written: %d files in %s", len(entries), dir)
	}
}

func TestDo_refetchesWhenSnapshotGone(t *testing.T) {
	ctx := context.Background()
	d := testDownloader(t)
	// An archive row whose singlefile is missing from disk must not satisfy
	// the download; the plugin fetches a fresh snapshot instead.
	res, err := d.Archives.db.ExecContext(ctx,
		`INSERT INTO file_groups (directory, stem, primary_path) VALUES (?, 'gone', 'gone.html')`,
		filepath.Join(d.MediaPath, "archive", "example.com"))
	if err != nil {
		t.Fatal(err)
	}
	groupID, _ := res.LastInsertId()
	if _, err := d.Archives.Upsert(ctx, &Archive{
		FileGroupID: groupID, URL: "https://example.com/article",
	}); err != nil {
		t.Fatal(err)
	}
	fetched := false
	d.Fetch = func(ctx context.Context, url string) (*FetchResult, error) {
		fetched = true
		return &FetchResult{HTML: []byte(banner), Title: "An Article"}, nil
	}

	got, err := d.Do(ctx, &download.Download{URL: "https://example.com/article"})
	if err != nil {
		t.Fatal(err)
	}
	if !fetched {
		t.Error("stale archive row suppressed the fetch")
	}
	if _, err := os.Stat(got.Location); err != nil {
		t.Errorf("fresh snapshot missing: %v", err)
	}
}

func TestAlreadyDownloaded(t *testing.T) {
	ctx := context.Background()
	d := testDownloader(t)
	d.Fetch = func(ctx context.Context, url string) (*FetchResult, error) {
		return &FetchResult{HTML: []byte(banner), Title: "T"}, nil
	}
	// No archive rows yet.
	got, err := d.AlreadyDownloaded(ctx, "https://example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	if got["https://example.com/a"] {
		t.Error("nothing downloaded yet")
	}

	g := struct{ ID int64 }{}
	res, execErr := d.Archives.db.ExecContext(ctx,
		`INSERT INTO file_groups (directory, stem, primary_path) VALUES ('/media/a', 'a', 'a.html')`)
	if execErr != nil {
		t.Fatal(execErr)
	}
	g.ID, _ = res.LastInsertId()
	if _, err := d.Archives.Upsert(ctx, &Archive{
		FileGroupID: g.ID, URL: "https://example.com/a",
	}); err != nil {
		t.Fatal(err)
	}
	got, err = d.AlreadyDownloaded(ctx, "https://example.com/a", "https://example.com/b")
	if err != nil {
		t.Fatal(err)
	}
	if !got["https://example.com/a"] || got["https://example.com/b"] {
		t.Errorf("AlreadyDownloaded = %v", got)
	}
}
