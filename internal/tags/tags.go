// Package tags stores the named labels referenced by collections and
// file groups.
package tags

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/db"
)

// Tag is a named label with a display color. Identity is the unique name.
type Tag struct {
	ID    int64
	Name  string
	Color string
}

// Store provides tag persistence.
type Store struct {
	db *db.DB
}

// NewStore returns a tag store over d.
func NewStore(d *db.DB) *Store { return &Store{db: d} }

// Create inserts a tag. Duplicate names conflict.
func (s *Store) Create(ctx context.Context, name, color string) (*Tag, error) {
	if name == "" {
		return nil, apperr.Validation("tag name is required")
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO tags (name, color) VALUES (?, ?)`, name, color)
	if err != nil {
		return nil, apperr.WithKind(errors.Wrapf(err, "create tag %q", name), apperr.KindConflict)
	}
	id, _ := res.LastInsertId()
	return &Tag{ID: id, Name: name, Color: color}, nil
}

// FindOrCreate returns the tag named name, creating it when absent.
func (s *Store) FindOrCreate(ctx context.Context, name string) (*Tag, error) {
	if t, err := s.ByName(ctx, name); err == nil {
		return t, nil
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}
	return s.Create(ctx, name, "")
}

// ByName returns the tag with the given name.
func (s *Store) ByName(ctx context.Context, name string) (*Tag, error) {
	t := &Tag{}
	err := s.db.QueryRowContext(ctx, `SELECT id, name, color FROM tags WHERE name = ?`, name).
		Scan(&t.ID, &t.Name, &t.Color)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no tag named %q", name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "tag by name")
	}
	return t, nil
}

// ByID returns the tag with the given id.
func (s *Store) ByID(ctx context.Context, id int64) (*Tag, error) {
	t := &Tag{}
	err := s.db.QueryRowContext(ctx, `SELECT id, name, color FROM tags WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.Color)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no tag with id %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "tag by id")
	}
	return t, nil
}

// All returns every tag ordered by name.
func (s *Store) All(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, color FROM tags ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "list tags")
	}
	defer rows.Close()
	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update sets the color of the named tag.
func (s *Store) Update(ctx context.Context, name, color string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tags SET color = ? WHERE name = ?`, color, name)
	if err != nil {
		return errors.Wrap(err, "update tag")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("no tag named %q", name)
	}
	return nil
}

// Delete removes the named tag. A tag still referenced by a collection
// cannot be deleted.
func (s *Store) Delete(ctx context.Context, name string) error {
	t, err := s.ByName(ctx, name)
	if err != nil {
		return err
	}
	var refs int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM collections WHERE tag_id = ?`, t.ID).Scan(&refs); err != nil {
		return errors.Wrap(err, "count tag references")
	}
	if refs > 0 {
		return apperr.Conflict("tag %q is used by %d collection(s)", name, refs)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, t.ID)
	return errors.Wrap(err, "delete tag")
}

// TagFile links a tag to a file group. Idempotent.
func (s *Store) TagFile(ctx context.Context, tagID, fileGroupID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tag_file (tag_id, file_group_id) VALUES (?, ?)`, tagID, fileGroupID)
	return errors.Wrap(err, "tag file")
}

// UntagFile removes a tag from a file group.
func (s *Store) UntagFile(ctx context.Context, tagID, fileGroupID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tag_file WHERE tag_id = ? AND file_group_id = ?`, tagID, fileGroupID)
	return errors.Wrap(err, "untag file")
}

// FileTags returns the tags attached to a file group, ordered by name.
func (s *Store) FileTags(ctx context.Context, fileGroupID int64) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.color FROM tags t
		JOIN tag_file tf ON tf.tag_id = t.id
		WHERE tf.file_group_id = ? ORDER BY t.name`, fileGroupID)
	if err != nil {
		return nil, errors.Wrap(err, "file tags")
	}
	defer rows.Close()
	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
