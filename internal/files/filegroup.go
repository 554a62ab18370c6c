// Package files stores FileGroups: sets of sibling files sharing a stem,
// treated as one logical artifact. A FileGroup exclusively owns its on-disk
// filenames; every name in Data and Files is relative to Directory so a
// move only rewrites Directory.
package files

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/db"
)

// Well-known Data keys attached by modelers.
const (
	DataSingleFile      = "singlefile_path"
	DataReadability     = "readability_path"
	DataReadabilityJSON = "readability_json_path"
	DataReadabilityTxt  = "readability_txt_path"
	DataScreenshot      = "screenshot_path"
	DataInfoJSON        = "info_json_path"
	DataPoster          = "poster_path"
	DataCaption         = "caption_path"
)

// FileGroup is the atomic unit of storage.
type FileGroup struct {
	ID          int64
	Directory   string // absolute
	Stem        string
	PrimaryPath string // relative to Directory
	Mimetype    string
	Size        int64
	Indexed     bool
	DeepIndexed bool
	Failure     string // modeler failure note; non-empty rows are not retried
	Title       string
	Author      string
	URL         string
	PublishedAt *time.Time
	ModifiedAt  *time.Time
	// Ranked text fields for weighted search: A = title ... D = body.
	AText, BText, CText, DText string
	Data                       map[string]string // purpose -> relative filename
	Files                      []string          // sibling relative filenames
}

// AbsolutePrimary returns the absolute path of the primary file.
func (g *FileGroup) AbsolutePrimary() string {
	return filepath.Join(g.Directory, g.PrimaryPath)
}

// AbsoluteData returns the absolute path for a Data key, or "" when unset.
func (g *FileGroup) AbsoluteData(key string) string {
	rel, ok := g.Data[key]
	if !ok || rel == "" {
		return ""
	}
	return filepath.Join(g.Directory, rel)
}

// Store provides FileGroup persistence.
type Store struct {
	db *db.DB
}

// NewStore returns a FileGroup store over d.
func NewStore(d *db.DB) *Store { return &Store{db: d} }

const fileGroupColumns = `id, directory, stem, primary_path, mimetype, size,
	indexed, deep_indexed, failure, title, author, url, published_at, modified_at,
	a_text, b_text, c_text, d_text, data, files`

func scanFileGroup(row interface{ Scan(...interface{}) error }) (*FileGroup, error) {
	g := &FileGroup{}
	var published, modified sql.NullInt64
	var data, fileList string
	err := row.Scan(&g.ID, &g.Directory, &g.Stem, &g.PrimaryPath, &g.Mimetype, &g.Size,
		&g.Indexed, &g.DeepIndexed, &g.Failure, &g.Title, &g.Author, &g.URL,
		&published, &modified, &g.AText, &g.BText, &g.CText, &g.DText, &data, &fileList)
	if err != nil {
		return nil, err
	}
	g.PublishedAt = db.NullTime(published)
	g.ModifiedAt = db.NullTime(modified)
	if err := json.Unmarshal([]byte(data), &g.Data); err != nil {
		return nil, errors.Wrap(err, "decode file group data")
	}
	if err := json.Unmarshal([]byte(fileList), &g.Files); err != nil {
		return nil, errors.Wrap(err, "decode file group files")
	}
	if g.Data == nil {
		g.Data = map[string]string{}
	}
	return g, nil
}

// Upsert creates or refreshes the group keyed by (directory, stem).
// The surface-index pass calls this: it sets primary path, mimetype, size,
// title and the sibling list, marks the group indexed and clears
// deep_indexed so the modeler sweep picks it up again.
func (s *Store) Upsert(ctx context.Context, g *FileGroup) (*FileGroup, error) {
	if !filepath.IsAbs(g.Directory) {
		return nil, apperr.Validation("file group directory must be absolute: %q", g.Directory)
	}
	data, err := json.Marshal(orEmptyMap(g.Data))
	if err != nil {
		return nil, errors.Wrap(err, "encode data")
	}
	fileList, err := json.Marshal(orEmptyList(g.Files))
	if err != nil {
		return nil, errors.Wrap(err, "encode files")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO file_groups
			(directory, stem, primary_path, mimetype, size, indexed, deep_indexed,
			 failure, title, data, files)
		VALUES (?, ?, ?, ?, ?, 1, 0, '', ?, ?, ?)
		ON CONFLICT (directory, stem) DO UPDATE SET
			primary_path = excluded.primary_path,
			mimetype     = excluded.mimetype,
			size         = excluded.size,
			indexed      = 1,
			deep_indexed = 0,
			failure      = '',
			title        = excluded.title,
			files        = excluded.files`,
		g.Directory, g.Stem, g.PrimaryPath, g.Mimetype, g.Size, g.Title, string(data), string(fileList))
	if err != nil {
		return nil, errors.Wrapf(err, "upsert file group %s/%s", g.Directory, g.Stem)
	}
	return s.ByStem(ctx, g.Directory, g.Stem)
}

// ByStem returns the group keyed by (directory, stem).
func (s *Store) ByStem(ctx context.Context, directory, stem string) (*FileGroup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileGroupColumns+` FROM file_groups WHERE directory = ? AND stem = ?`,
		directory, stem)
	g, err := scanFileGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no file group for %s/%s", directory, stem)
	}
	return g, errors.Wrap(err, "file group by stem")
}

// ByID returns the group with the given id.
func (s *Store) ByID(ctx context.Context, id int64) (*FileGroup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileGroupColumns+` FROM file_groups WHERE id = ?`, id)
	g, err := scanFileGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no file group with id %d", id)
	}
	return g, errors.Wrap(err, "file group by id")
}

// ByPrimaryURL returns the first group with the given source URL.
func (s *Store) ByPrimaryURL(ctx context.Context, url string) (*FileGroup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileGroupColumns+` FROM file_groups WHERE url = ? ORDER BY id LIMIT 1`, url)
	g, err := scanFileGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no file group for url %s", url)
	}
	return g, errors.Wrap(err, "file group by url")
}

// SelectForDeepModel returns up to limit groups awaiting the deep pass,
// oldest first.
func (s *Store) SelectForDeepModel(ctx context.Context, limit int) ([]*FileGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileGroupColumns+` FROM file_groups
		 WHERE indexed = 1 AND deep_indexed = 0 ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select for deep model")
	}
	defer rows.Close()
	var out []*FileGroup
	for rows.Next() {
		g, err := scanFileGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Save writes every mutable field of g back to its row.
func (s *Store) Save(ctx context.Context, g *FileGroup) error {
	data, err := json.Marshal(orEmptyMap(g.Data))
	if err != nil {
		return errors.Wrap(err, "encode data")
	}
	fileList, err := json.Marshal(orEmptyList(g.Files))
	if err != nil {
		return errors.Wrap(err, "encode files")
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE file_groups SET
			directory = ?, stem = ?, primary_path = ?, mimetype = ?, size = ?,
			indexed = ?, deep_indexed = ?, failure = ?, title = ?, author = ?, url = ?,
			published_at = ?, modified_at = ?,
			a_text = ?, b_text = ?, c_text = ?, d_text = ?, data = ?, files = ?
		WHERE id = ?`,
		g.Directory, g.Stem, g.PrimaryPath, g.Mimetype, g.Size,
		g.Indexed, g.DeepIndexed, g.Failure, g.Title, g.Author, g.URL,
		db.TimeValue(g.PublishedAt), db.TimeValue(g.ModifiedAt),
		g.AText, g.BText, g.CText, g.DText, string(data), string(fileList), g.ID)
	return errors.Wrapf(err, "save file group %d", g.ID)
}

// MarkDeepIndexed sets deep_indexed and an optional failure note so the
// modeler sweep does not reprocess the row.
func (s *Store) MarkDeepIndexed(ctx context.Context, id int64, failure string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE file_groups SET deep_indexed = 1, failure = ? WHERE id = ?`, failure, id)
	return errors.Wrapf(err, "mark deep indexed %d", id)
}

// UnderDirectory returns all groups whose directory is dir or descends
// from it.
func (s *Store) UnderDirectory(ctx context.Context, dir string) ([]*FileGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileGroupColumns+` FROM file_groups
		 WHERE directory = ? OR directory LIKE ? ORDER BY id`,
		dir, dir+string(filepath.Separator)+"%")
	if err != nil {
		return nil, errors.Wrap(err, "groups under directory")
	}
	defer rows.Close()
	var out []*FileGroup
	for rows.Next() {
		g, err := scanFileGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Delete removes groups by id. Typed entities cascade via foreign keys.
func (s *Store) Delete(ctx context.Context, ids ...int64) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM file_groups WHERE id = ?`, id); err != nil {
			return errors.Wrapf(err, "delete file group %d", id)
		}
	}
	return nil
}

// AllKeys returns (id, directory, stem, primary_path) for every group. The
// refresh delete phase uses this to find rows whose paths vanished.
func (s *Store) AllKeys(ctx context.Context) ([]GroupKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, directory, stem, primary_path FROM file_groups ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "list group keys")
	}
	defer rows.Close()
	var out []GroupKey
	for rows.Next() {
		var k GroupKey
		if err := rows.Scan(&k.ID, &k.Directory, &k.Stem, &k.PrimaryPath); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// GroupKey identifies a group and its primary path on disk.
type GroupKey struct {
	ID          int64
	Directory   string
	Stem        string
	PrimaryPath string
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptyList(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}
