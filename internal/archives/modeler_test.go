package archives

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/collections"
	"github.com/wrolpi/wrolpi/internal/db"
	"github.com/wrolpi/wrolpi/internal/files"
)

type modelerFixture struct {
	modeler *Modeler
	files   *files.Store
	colls   *collections.Store
	media   string
}

func newModelerFixture(t *testing.T) *modelerFixture {
	t.Helper()
	d, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Migrate(); err != nil {
		t.Fatal(err)
	}
	f := &modelerFixture{
		files: files.NewStore(d),
		colls: collections.NewStore(d),
		media: t.TempDir(),
	}
	f.modeler = &Modeler{
		MediaPath:   f.media,
		Archives:    NewStore(d),
		Collections: f.colls,
		Files:       f.files,
	}
	return f
}

func (f *modelerFixture) writeGroup(t *testing.T, dir string, contents map[string]string) *files.FileGroup {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	var names []string
	for name, body := range contents {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		names = append(names, name)
	}
	g, err := f.files.Upsert(context.Background(), &files.FileGroup{
		Directory: dir, Stem: files.Stem(names[0]),
		PrimaryPath: files.PickPrimary(names), Mimetype: "text/html", Files: names,
	})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestModel(t *testing.T) {
	ctx := context.Background()
	f := newModelerFixture(t)
	dir := filepath.Join(f.media, "archive", "example.com")
	g := f.writeGroup(t, dir, map[string]string{
		"2026-01-06_Article.html": banner,
		"2026-01-06_Article.readability.json": `{
			"url": "https://example.com/article",
			"title": "An Article",
			"byline": "A. Writer",
			"excerpt": "Summary.",
			"textContent": "Full text.",
			"date": "2026-01-05"
		}`,
		"2026-01-06_Article.readability.txt": "Full text.",
		"2026-01-06_Article.png":             "img",
	})

	if err := f.modeler.Model(ctx, g); err != nil {
		t.Fatal(err)
	}

	a, err := f.modeler.Archives.ByFileGroup(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if a.URL != "https://example.com/article" {
		t.Errorf("archive url = %q", a.URL)
	}
	if a.ArchivedAt == nil {
		t.Error("archive datetime missing")
	}
	if a.CollectionID == nil {
		t.Fatal("no domain collection linked")
	}
	coll, err := f.colls.ByID(ctx, *a.CollectionID)
	if err != nil {
		t.Fatal(err)
	}
	if coll.Name != "example.com" || coll.Kind != collections.KindDomain {
		t.Errorf("collection = %+v", coll)
	}
	if coll.Directory == nil || *coll.Directory != dir {
		t.Errorf("collection directory = %v, want %s", coll.Directory, dir)
	}

	got, err := f.files.ByID(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "An Article" || got.Author != "A. Writer" {
		t.Errorf("title/author = %q/%q", got.Title, got.Author)
	}
	if got.DText != "Full text." {
		t.Errorf("d_text = %q", got.DText)
	}
	if got.PublishedAt == nil {
		t.Error("published date not taken from readability")
	}
	if got.Data[files.DataSingleFile] != "2026-01-06_Article.html" {
		t.Errorf("data bag = %v", got.Data)
	}
	if got.Data[files.DataScreenshot] != "2026-01-06_Article.png" {
		t.Errorf("screenshot missing from data bag: %v", got.Data)
	}
}

func TestModel_readabilityURLWins(t *testing.T) {
	ctx := context.Background()
	f := newModelerFixture(t)
	dir := filepath.Join(f.media, "archive", "example.com")
	g := f.writeGroup(t, dir, map[string]string{
		"a.html":             banner,
		"a.readability.json": `{"url": "https://example.com/canonical"}`,
	})
	if err := f.modeler.Model(ctx, g); err != nil {
		t.Fatal(err)
	}
	a, err := f.modeler.Archives.ByFileGroup(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if a.URL != "https://example.com/canonical" {
		t.Errorf("url = %q, want the readability url", a.URL)
	}
}

func TestModel_plainHTMLSkipped(t *testing.T) {
	ctx := context.Background()
	f := newModelerFixture(t)
	dir := filepath.Join(f.media, "archive", "example.com")
	g := f.writeGroup(t, dir, map[string]string{
		"a.html": "<html><body>no banner</body></html>",
	})
	if err := f.modeler.Model(ctx, g); err != nil {
		t.Fatal(err)
	}
	if _, err := f.modeler.Archives.ByFileGroup(ctx, g.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("plain html should not become an archive, got %v", err)
	}
}

func TestModel_orphanReadabilitySkipped(t *testing.T) {
	ctx := context.Background()
	f := newModelerFixture(t)
	dir := filepath.Join(f.media, "archive", "example.com")
	g := f.writeGroup(t, dir, map[string]string{
		"a.readability.json": `{"url": "https://example.com/a"}`,
	})
	if err := f.modeler.Model(ctx, g); err != nil {
		t.Fatal(err)
	}
	if _, err := f.modeler.Archives.ByFileGroup(ctx, g.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("orphan readability should not become an archive, got %v", err)
	}
}

func TestModel_existingCollectionKeepsDirectory(t *testing.T) {
	ctx := context.Background()
	f := newModelerFixture(t)
	taggedDir := filepath.Join(f.media, "archive", "automotive", "example.com")
	if _, err := f.colls.Create(ctx, &collections.Collection{
		Name: "example.com", Kind: collections.KindDomain, Directory: &taggedDir,
	}); err != nil {
		t.Fatal(err)
	}
	g := f.writeGroup(t, taggedDir, map[string]string{"a.html": banner})
	if err := f.modeler.Model(ctx, g); err != nil {
		t.Fatal(err)
	}
	coll, err := f.colls.ByNameKind(ctx, "example.com", collections.KindDomain)
	if err != nil {
		t.Fatal(err)
	}
	if *coll.Directory != taggedDir {
		t.Errorf("directory = %q, want unchanged %q", *coll.Directory, taggedDir)
	}
}

func TestReap(t *testing.T) {
	ctx := context.Background()
	f := newModelerFixture(t)
	dir := filepath.Join(f.media, "archive", "example.com")

	live := f.writeGroup(t, dir, map[string]string{"a.html": banner})
	if err := f.modeler.Model(ctx, live); err != nil {
		t.Fatal(err)
	}
	gone := f.writeGroup(t, dir, map[string]string{"b.html": banner})
	if err := f.modeler.Model(ctx, gone); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "b.html")); err != nil {
		t.Fatal(err)
	}

	n, err := f.modeler.Archives.Reap(ctx, SinglefileLocation)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
	if _, err := f.files.ByID(ctx, gone.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("reaped group should be gone, got %v", err)
	}
	if _, err := f.modeler.Archives.ByFileGroup(ctx, live.ID); err != nil {
		t.Errorf("live archive removed: %v", err)
	}

	// Idempotent.
	n, err = f.modeler.Archives.Reap(ctx, SinglefileLocation)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second reap removed %d, want 0", n)
	}
}
