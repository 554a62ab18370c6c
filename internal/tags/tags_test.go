package tags

import (
	"context"
	"testing"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/db"
)

func testStore(t *testing.T) (*Store, *db.DB) {
	t.Helper()
	d, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Migrate(); err != nil {
		t.Fatal(err)
	}
	return NewStore(d), d
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	s, _ := testStore(t)
	tag, err := s.Create(ctx, "automotive", "#ff0000")
	if err != nil {
		t.Fatal(err)
	}
	if tag.ID == 0 || tag.Name != "automotive" {
		t.Fatalf("unexpected tag: %+v", tag)
	}
	if _, err := s.Create(ctx, "automotive", ""); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("duplicate name should conflict, got %v", err)
	}
	if _, err := s.Create(ctx, "", ""); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("empty name should be rejected, got %v", err)
	}
}

func TestFindOrCreate(t *testing.T) {
	ctx := context.Background()
	s, _ := testStore(t)
	a, err := s.FindOrCreate(ctx, "cooking")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.FindOrCreate(ctx, "cooking")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != b.ID {
		t.Errorf("FindOrCreate created a second row: %d != %d", a.ID, b.ID)
	}
}

func TestUpdateAndAll(t *testing.T) {
	ctx := context.Background()
	s, _ := testStore(t)
	for _, name := range []string{"beta", "alpha"} {
		if _, err := s.Create(ctx, name, ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Update(ctx, "alpha", "#00ff00"); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, "missing", "#000"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("update missing tag: got %v", err)
	}
	all, err := s.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Name != "alpha" || all[0].Color != "#00ff00" {
		t.Errorf("All = %+v", all)
	}
}

func TestDelete_refusedWhileReferenced(t *testing.T) {
	ctx := context.Background()
	s, d := testStore(t)
	tag, err := s.Create(ctx, "news", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.ExecContext(ctx,
		`INSERT INTO collections (name, kind, tag_id) VALUES ('example.com', 'domain', ?)`,
		tag.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "news"); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("referenced tag should conflict, got %v", err)
	}
	if _, err := d.ExecContext(ctx, `DELETE FROM collections`); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "news"); err != nil {
		t.Fatalf("delete after unlink: %v", err)
	}
	if _, err := s.ByName(ctx, "news"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("tag should be gone, got %v", err)
	}
}

func TestTagFile(t *testing.T) {
	ctx := context.Background()
	s, d := testStore(t)
	tag, err := s.Create(ctx, "keep", "")
	if err != nil {
		t.Fatal(err)
	}
	res, err := d.ExecContext(ctx,
		`INSERT INTO file_groups (directory, stem, primary_path) VALUES ('/media/a', 'a', 'a.html')`)
	if err != nil {
		t.Fatal(err)
	}
	gid, _ := res.LastInsertId()

	if err := s.TagFile(ctx, tag.ID, gid); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := s.TagFile(ctx, tag.ID, gid); err != nil {
		t.Fatal(err)
	}
	got, err := s.FileTags(ctx, gid)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "keep" {
		t.Fatalf("FileTags = %+v", got)
	}
	if err := s.UntagFile(ctx, tag.ID, gid); err != nil {
		t.Fatal(err)
	}
	got, err = s.FileTags(ctx, gid)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("tags remain after untag: %+v", got)
	}
}
