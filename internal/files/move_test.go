package files

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestMoveDirectory(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	root := t.TempDir()
	oldDir := filepath.Join(root, "example.com")
	newDir := filepath.Join(root, "tagged", "example.com")
	if err := os.MkdirAll(filepath.Join(oldDir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.html", "a.png", filepath.Join("nested", "b.html")} {
		if err := os.WriteFile(filepath.Join(oldDir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Upsert(ctx, &FileGroup{
		Directory: oldDir, Stem: "a", PrimaryPath: "a.html",
		Files: []string{"a.html", "a.png"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upsert(ctx, &FileGroup{
		Directory: filepath.Join(oldDir, "nested"), Stem: "b", PrimaryPath: "b.html",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO downloads (url, destination) VALUES (?, ?)`,
		"https://example.com/a", oldDir); err != nil {
		t.Fatal(err)
	}

	if err := s.MoveDirectory(ctx, oldDir, newDir); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(newDir, "a.html")); err != nil {
		t.Errorf("file not moved: %v", err)
	}
	if _, err := os.Stat(filepath.Join(newDir, "nested", "b.html")); err != nil {
		t.Errorf("nested file not moved: %v", err)
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Errorf("old directory should be removed, stat err = %v", err)
	}

	g, err := s.ByStem(ctx, newDir, "a")
	if err != nil {
		t.Fatalf("group directory not rewritten: %v", err)
	}
	// Relative names are untouched by a move.
	if g.PrimaryPath != "a.html" || len(g.Files) != 2 {
		t.Errorf("relative paths changed: %+v", g)
	}
	if _, err := s.ByStem(ctx, filepath.Join(newDir, "nested"), "b"); err != nil {
		t.Errorf("nested group not rewritten: %v", err)
	}

	var dest string
	if err := s.db.QueryRowContext(ctx,
		`SELECT destination FROM downloads WHERE url = ?`, "https://example.com/a").Scan(&dest); err != nil {
		t.Fatal(err)
	}
	if dest != newDir {
		t.Errorf("download destination = %q, want %q", dest, newDir)
	}
}

func TestMoveDirectory_sameDirIsNoop(t *testing.T) {
	s := testStore(t)
	dir := t.TempDir()
	if err := s.MoveDirectory(context.Background(), dir, dir); err != nil {
		t.Fatal(err)
	}
}
