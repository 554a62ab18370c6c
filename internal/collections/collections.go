// Package collections stores the polymorphic grouping abstraction: a
// Collection groups file groups by (name, kind), may be restricted to a
// directory under the media root, and may carry a tag. Tagging a restricted
// collection relocates its directory.
package collections

import (
	"context"
	"database/sql"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/db"
)

// Collection kinds.
const (
	KindDomain  = "domain"
	KindChannel = "channel"
	KindManual  = "manual"
)

// Switch names activated by the collection lifecycle. The config mirror
// registers the matching handlers.
const (
	SwitchSaveDomains  = "save_domains_config"
	SwitchSaveChannels = "save_channels_config"
)

// Collection is one polymorphic group.
type Collection struct {
	ID          int64
	Name        string
	Kind        string
	Directory   *string // nil means unrestricted
	TagID       *int64
	Description string
	FileFormat  *string
}

// CanBeTagged reports whether the collection may carry a tag.
// Unrestricted collections cannot: there is no directory to relocate.
func (c *Collection) CanBeTagged() bool { return c.Directory != nil }

// kindRoot maps a kind to its directory under the media root. Manual
// collections live directly under the media root.
func kindRoot(kind string) string {
	switch kind {
	case KindDomain:
		return "archive"
	case KindChannel:
		return "videos"
	default:
		return ""
	}
}

// Store provides collection persistence.
type Store struct {
	db *db.DB
}

// NewStore returns a collection store over d.
func NewStore(d *db.DB) *Store { return &Store{db: d} }

func validKind(kind string) bool {
	return kind == KindDomain || kind == KindChannel || kind == KindManual
}

// Create inserts a collection. (name, kind) must be unique.
func (s *Store) Create(ctx context.Context, c *Collection) (*Collection, error) {
	if c.Name == "" {
		return nil, apperr.Validation("collection name is required")
	}
	if !validKind(c.Kind) {
		return nil, apperr.Validation("unknown collection kind %q", c.Kind)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (name, kind, directory, tag_id, description, file_format)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.Name, c.Kind, c.Directory, c.TagID, c.Description, c.FileFormat)
	if err != nil {
		return nil, apperr.WithKind(
			errors.Wrapf(err, "create collection (%s, %s)", c.Name, c.Kind), apperr.KindConflict)
	}
	c.ID, _ = res.LastInsertId()
	return c, nil
}

const collectionColumns = `id, name, kind, directory, tag_id, description, file_format`

func scanCollection(row interface{ Scan(...interface{}) error }) (*Collection, error) {
	c := &Collection{}
	var dir, format sql.NullString
	var tagID sql.NullInt64
	err := row.Scan(&c.ID, &c.Name, &c.Kind, &dir, &tagID, &c.Description, &format)
	if err != nil {
		return nil, err
	}
	if dir.Valid {
		c.Directory = &dir.String
	}
	if tagID.Valid {
		c.TagID = &tagID.Int64
	}
	if format.Valid {
		c.FileFormat = &format.String
	}
	return c, nil
}

// ByID returns the collection with the given id.
func (s *Store) ByID(ctx context.Context, id int64) (*Collection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id)
	c, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no collection with id %d", id)
	}
	return c, errors.Wrap(err, "collection by id")
}

// ByNameKind returns the collection keyed by (name, kind).
func (s *Store) ByNameKind(ctx context.Context, name, kind string) (*Collection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE name = ? AND kind = ?`, name, kind)
	c, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no %s collection named %q", kind, name)
	}
	return c, errors.Wrap(err, "collection by name/kind")
}

// ByKind returns all collections of kind, ordered by name.
func (s *Store) ByKind(ctx context.Context, kind string) ([]*Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE kind = ? ORDER BY name`, kind)
	if err != nil {
		return nil, errors.Wrap(err, "collections by kind")
	}
	defer rows.Close()
	var out []*Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Save writes every mutable field of c back to its row.
func (s *Store) Save(ctx context.Context, c *Collection) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE collections SET name = ?, directory = ?, tag_id = ?, description = ?, file_format = ?
		WHERE id = ?`,
		c.Name, c.Directory, c.TagID, c.Description, c.FileFormat, c.ID)
	return errors.Wrapf(err, "save collection %d", c.ID)
}

// Delete removes the collection row.
func (s *Store) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	return errors.Wrapf(err, "delete collection %d", id)
}

// FormatDirectory computes the canonical directory for c under mediaPath:
// <media>/<kindRoot>/<tag>/<name> when tagged, <media>/<kindRoot>/<name>
// untagged. Deterministic for a given (kind, tag, name).
func FormatDirectory(mediaPath string, c *Collection, tagName string) string {
	parts := []string{mediaPath}
	if root := kindRoot(c.Kind); root != "" {
		parts = append(parts, root)
	}
	if tagName != "" {
		parts = append(parts, tagName)
	}
	parts = append(parts, c.Name)
	return filepath.Join(parts...)
}

// DeleteEmpty removes domain and manual collections with no archives, no
// downloads and no channel binding. Safe to run repeatedly; used as an
// after-refresh hook.
func (s *Store) DeleteEmpty(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM collections WHERE kind IN ('domain','manual')
		AND id NOT IN (SELECT collection_id FROM archives WHERE collection_id IS NOT NULL)
		AND id NOT IN (SELECT collection_id FROM downloads WHERE collection_id IS NOT NULL)
		AND id NOT IN (SELECT collection_id FROM channels WHERE collection_id IS NOT NULL)`)
	if err != nil {
		return 0, errors.Wrap(err, "delete empty collections")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
