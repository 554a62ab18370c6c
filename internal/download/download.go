// Package download implements the durable, in-database job queue that
// coordinates the content acquirer plugins: priority dispatch, per-URL
// deduplication, recurring schedules, retry policy, per-domain throttling
// and cooperative kill.
package download

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/db"
)

// Download statuses.
const (
	StatusNew      = "new"
	StatusPending  = "pending"
	StatusComplete = "complete"
	StatusFailed   = "failed"
	StatusDeferred = "deferred"
)

// Download is one row of the durable queue. A nil Frequency means
// one-shot; otherwise the download recurs.
type Download struct {
	ID             int64
	URL            string
	Downloader     string
	SubDownloader  string
	Destination    string
	Frequency      *time.Duration
	Status         string
	Location       string
	Error          string
	LastSuccessful *time.Time
	NextDownload   *time.Time
	Attempts       int
	Settings       map[string]interface{}
	TagNames       []string
	CollectionID   *int64
}

// Terminal reports whether the download has finished for good.
func (d *Download) Terminal() bool {
	return d.Status == StatusComplete || d.Status == StatusFailed
}

// Recurring reports whether the download reschedules itself.
func (d *Download) Recurring() bool { return d.Frequency != nil }

// Store provides download persistence.
type Store struct {
	db *db.DB
}

// NewStore returns a download store over d.
func NewStore(d *db.DB) *Store { return &Store{db: d} }

const downloadColumns = `id, url, downloader, sub_downloader, destination, frequency,
	status, location, error, last_successful_download, next_download, attempts,
	settings, tag_names, collection_id`

func scanDownload(row interface{ Scan(...interface{}) error }) (*Download, error) {
	d := &Download{}
	var freq, last, next, coll sql.NullInt64
	var settings, tagNames string
	err := row.Scan(&d.ID, &d.URL, &d.Downloader, &d.SubDownloader, &d.Destination, &freq,
		&d.Status, &d.Location, &d.Error, &last, &next, &d.Attempts,
		&settings, &tagNames, &coll)
	if err != nil {
		return nil, err
	}
	if freq.Valid {
		f := time.Duration(freq.Int64) * time.Second
		d.Frequency = &f
	}
	d.LastSuccessful = db.NullTime(last)
	d.NextDownload = db.NullTime(next)
	if coll.Valid {
		d.CollectionID = &coll.Int64
	}
	if err := json.Unmarshal([]byte(settings), &d.Settings); err != nil {
		return nil, errors.Wrap(err, "decode download settings")
	}
	if err := json.Unmarshal([]byte(tagNames), &d.TagNames); err != nil {
		return nil, errors.Wrap(err, "decode download tag names")
	}
	return d, nil
}

func freqSeconds(f *time.Duration) interface{} {
	if f == nil {
		return nil
	}
	return int64(f.Seconds())
}

// Insert creates a new queue row.
func (s *Store) Insert(ctx context.Context, d *Download) (*Download, error) {
	settings, err := json.Marshal(orEmptySettings(d.Settings))
	if err != nil {
		return nil, errors.Wrap(err, "encode settings")
	}
	tagNames, err := json.Marshal(orEmptyNames(d.TagNames))
	if err != nil {
		return nil, errors.Wrap(err, "encode tag names")
	}
	if d.Status == "" {
		d.Status = StatusNew
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads
			(url, downloader, sub_downloader, destination, frequency, status, location,
			 error, last_successful_download, next_download, attempts, settings,
			 tag_names, collection_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.URL, d.Downloader, d.SubDownloader, d.Destination, freqSeconds(d.Frequency),
		d.Status, d.Location, d.Error, db.TimeValue(d.LastSuccessful),
		db.TimeValue(d.NextDownload), d.Attempts, string(settings), string(tagNames),
		d.CollectionID)
	if err != nil {
		return nil, apperr.WithKind(errors.Wrapf(err, "insert download %s", d.URL), apperr.KindConflict)
	}
	d.ID, _ = res.LastInsertId()
	return d, nil
}

// Save writes every mutable field of d back to its row.
func (s *Store) Save(ctx context.Context, d *Download) error {
	settings, err := json.Marshal(orEmptySettings(d.Settings))
	if err != nil {
		return errors.Wrap(err, "encode settings")
	}
	tagNames, err := json.Marshal(orEmptyNames(d.TagNames))
	if err != nil {
		return errors.Wrap(err, "encode tag names")
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE downloads SET url = ?, downloader = ?, sub_downloader = ?, destination = ?,
			frequency = ?, status = ?, location = ?, error = ?,
			last_successful_download = ?, next_download = ?, attempts = ?,
			settings = ?, tag_names = ?, collection_id = ?
		WHERE id = ?`,
		d.URL, d.Downloader, d.SubDownloader, d.Destination, freqSeconds(d.Frequency),
		d.Status, d.Location, d.Error, db.TimeValue(d.LastSuccessful),
		db.TimeValue(d.NextDownload), d.Attempts, string(settings), string(tagNames),
		d.CollectionID, d.ID)
	return errors.Wrapf(err, "save download %d", d.ID)
}

// ByID returns the download with the given id.
func (s *Store) ByID(ctx context.Context, id int64) (*Download, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+downloadColumns+` FROM downloads WHERE id = ?`, id)
	d, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no download with id %d", id)
	}
	return d, errors.Wrap(err, "download by id")
}

// ActiveByURL returns the non-terminal download for url, or NotFound.
func (s *Store) ActiveByURL(ctx context.Context, url string) (*Download, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+downloadColumns+` FROM downloads
		 WHERE url = ? AND status IN ('new','pending','deferred') LIMIT 1`, url)
	d, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no active download for %s", url)
	}
	return d, errors.Wrap(err, "active download by url")
}

// ByStatus returns downloads with the given status, oldest first.
func (s *Store) ByStatus(ctx context.Context, status string) ([]*Download, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+downloadColumns+` FROM downloads WHERE status = ? ORDER BY id`, status)
	if err != nil {
		return nil, errors.Wrap(err, "downloads by status")
	}
	defer rows.Close()
	return collect(rows)
}

// All returns every download, oldest first.
func (s *Store) All(ctx context.Context) ([]*Download, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+downloadColumns+` FROM downloads ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "list downloads")
	}
	defer rows.Close()
	return collect(rows)
}

// Delete removes rows by id.
func (s *Store) Delete(ctx context.Context, ids ...int64) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM downloads WHERE id = ?`, id); err != nil {
			return errors.Wrapf(err, "delete download %d", id)
		}
	}
	return nil
}

// nextCandidates returns rows eligible to run at now, in eligibility order:
// status new first, then deferred rows that came due, then recurring
// complete rows whose frequency elapsed (crash recovery between success
// and clone-forward). Within each band, oldest id first.
func (s *Store) nextCandidates(ctx context.Context, now time.Time, limit int) ([]*Download, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+downloadColumns+` FROM downloads
		WHERE status = 'new'
		   OR (status = 'deferred' AND next_download IS NOT NULL AND next_download <= ?)
		   OR (status = 'complete' AND frequency IS NOT NULL
		       AND last_successful_download IS NOT NULL
		       AND last_successful_download + frequency <= ?
		       AND url NOT IN (SELECT url FROM downloads WHERE status IN ('new','pending','deferred')))
		ORDER BY CASE status WHEN 'new' THEN 0 WHEN 'deferred' THEN 1 ELSE 2 END, id
		LIMIT ?`,
		now.Unix(), now.Unix(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select next downloads")
	}
	defer rows.Close()
	return collect(rows)
}

// claim transitions a candidate to pending. For recurring complete rows it
// clones the row forward instead, so history is preserved. Returns the
// claimed row, or nil when another worker won the race.
func (s *Store) claim(ctx context.Context, d *Download) (*Download, error) {
	if d.Status == StatusComplete {
		clone := &Download{
			URL: d.URL, Downloader: d.Downloader, SubDownloader: d.SubDownloader,
			Destination: d.Destination, Frequency: d.Frequency, Status: StatusPending,
			Settings: d.Settings, TagNames: d.TagNames, CollectionID: d.CollectionID,
		}
		inserted, err := s.Insert(ctx, clone)
		if err != nil {
			// Unique active-URL index lost the race; skip.
			return nil, nil
		}
		return inserted, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE downloads SET status = 'pending' WHERE id = ? AND status IN ('new','deferred')`,
		d.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "claim download %d", d.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	d.Status = StatusPending
	return d, nil
}

func collect(rows *sql.Rows) ([]*Download, error) {
	var out []*Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func orEmptySettings(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func orEmptyNames(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}
