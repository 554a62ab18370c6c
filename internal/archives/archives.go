package archives

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/db"
)

// Archive is a saved HTML page. The singlefile, readability variants,
// screenshot and info JSON are entries in the referenced file group.
type Archive struct {
	ID           int64
	FileGroupID  int64
	URL          string
	ArchivedAt   *time.Time
	CollectionID *int64
}

// Store provides archive persistence.
type Store struct {
	db *db.DB
}

// NewStore returns an archive store over d.
func NewStore(d *db.DB) *Store { return &Store{db: d} }

// Upsert creates or refreshes the archive for a file group.
func (s *Store) Upsert(ctx context.Context, a *Archive) (*Archive, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archives (file_group_id, url, archive_datetime, collection_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (file_group_id) DO UPDATE SET
			url = excluded.url,
			archive_datetime = excluded.archive_datetime,
			collection_id = excluded.collection_id`,
		a.FileGroupID, a.URL, db.TimeValue(a.ArchivedAt), a.CollectionID)
	if err != nil {
		return nil, errors.Wrapf(err, "upsert archive for group %d", a.FileGroupID)
	}
	return s.ByFileGroup(ctx, a.FileGroupID)
}

const archiveColumns = `id, file_group_id, url, archive_datetime, collection_id`

func scanArchive(row interface{ Scan(...interface{}) error }) (*Archive, error) {
	a := &Archive{}
	var at sql.NullInt64
	var coll sql.NullInt64
	if err := row.Scan(&a.ID, &a.FileGroupID, &a.URL, &at, &coll); err != nil {
		return nil, err
	}
	a.ArchivedAt = db.NullTime(at)
	if coll.Valid {
		a.CollectionID = &coll.Int64
	}
	return a, nil
}

// ByID returns the archive with the given id.
func (s *Store) ByID(ctx context.Context, id int64) (*Archive, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+archiveColumns+` FROM archives WHERE id = ?`, id)
	a, err := scanArchive(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no archive with id %d", id)
	}
	return a, errors.Wrap(err, "archive by id")
}

// ByFileGroup returns the archive owning the given file group.
func (s *Store) ByFileGroup(ctx context.Context, fileGroupID int64) (*Archive, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+archiveColumns+` FROM archives WHERE file_group_id = ?`, fileGroupID)
	a, err := scanArchive(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no archive for file group %d", fileGroupID)
	}
	return a, errors.Wrap(err, "archive by file group")
}

// LatestByURL returns the most recent archive of url, or NotFound.
func (s *Store) LatestByURL(ctx context.Context, url string) (*Archive, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+archiveColumns+` FROM archives WHERE url = ?
		 ORDER BY archive_datetime DESC, id DESC LIMIT 1`, url)
	a, err := scanArchive(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no archive for url %s", url)
	}
	return a, errors.Wrap(err, "archive by url")
}

// LocationByURL resolves the on-disk singlefile path of the most recent
// archive of url, or NotFound. Lets the archive plugin resolve an already
// archived URL without refetching it.
func (s *Store) LocationByURL(ctx context.Context, url string) (string, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT g.directory, g.primary_path, g.data
		FROM archives a JOIN file_groups g ON g.id = a.file_group_id
		WHERE a.url = ?
		ORDER BY a.archive_datetime DESC, a.id DESC LIMIT 1`, url)
	var directory, primary, data string
	if err := row.Scan(&directory, &primary, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperr.NotFound("no archive for url %s", url)
		}
		return "", errors.Wrap(err, "archive location by url")
	}
	return SinglefileLocation(directory, primary, data), nil
}

// Count returns the number of archives.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archives`).Scan(&n)
	return n, errors.Wrap(err, "count archives")
}

// reapRow pairs an archive with the disk location of its singlefile.
type reapRow struct {
	archiveID   int64
	fileGroupID int64
	url         string
	archivedAt  sql.NullInt64
	directory   string
	primary     string
	data        string
}

// Reap deletes invalid archives: those whose singlefile vanished from disk
// or that carry neither a URL nor a capture time. The owning file group is
// deleted too (the files are already gone or the group never held a valid
// page). Idempotent; used as an after-refresh hook. Returns the number of
// archives reaped.
func (s *Store) Reap(ctx context.Context, singlefilePath func(directory, primary, dataJSON string) string) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.file_group_id, a.url, a.archive_datetime,
		       g.directory, g.primary_path, g.data
		FROM archives a JOIN file_groups g ON g.id = a.file_group_id`)
	if err != nil {
		return 0, errors.Wrap(err, "select archives for reap")
	}
	var doomed []int64 // file group ids; archives cascade
	for rows.Next() {
		var r reapRow
		if err := rows.Scan(&r.archiveID, &r.fileGroupID, &r.url, &r.archivedAt,
			&r.directory, &r.primary, &r.data); err != nil {
			rows.Close()
			return 0, err
		}
		if r.url == "" && !r.archivedAt.Valid {
			doomed = append(doomed, r.fileGroupID)
			continue
		}
		path := singlefilePath(r.directory, r.primary, r.data)
		if _, err := os.Stat(path); err != nil {
			doomed = append(doomed, r.fileGroupID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	for _, id := range doomed {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM file_groups WHERE id = ?`, id); err != nil {
			return 0, errors.Wrapf(err, "reap file group %d", id)
		}
	}
	return len(doomed), nil
}
