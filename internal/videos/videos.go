// Package videos models downloaded videos and their channels. A video's
// info JSON, poster and captions are entries in its file group; a Channel
// exclusively owns one Collection of kind channel.
package videos

import (
	"context"
	"database/sql"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/collections"
	"github.com/wrolpi/wrolpi/internal/db"
)

// Video is one downloaded video.
type Video struct {
	ID          int64
	FileGroupID int64
	ChannelID   *int64
	SourceID    string
	UploadDate  *time.Time
	Duration    int64 // seconds
	ViewCount   int64
	URL         string
}

// Channel is a video channel; its collection tracks the directory and tag.
type Channel struct {
	ID           int64
	Name         string
	URL          string
	Directory    string
	CollectionID *int64
}

// Store provides video and channel persistence.
type Store struct {
	db          *db.DB
	collections *collections.Store
}

// NewStore returns a video store over d.
func NewStore(d *db.DB, colls *collections.Store) *Store {
	return &Store{db: d, collections: colls}
}

// UpsertVideo creates or refreshes the video for a file group.
func (s *Store) UpsertVideo(ctx context.Context, v *Video) (*Video, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO videos (file_group_id, channel_id, source_id, upload_date, duration, view_count, url)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_group_id) DO UPDATE SET
			channel_id = excluded.channel_id,
			source_id  = excluded.source_id,
			upload_date = excluded.upload_date,
			duration   = excluded.duration,
			view_count = excluded.view_count,
			url        = excluded.url`,
		v.FileGroupID, v.ChannelID, v.SourceID, db.TimeValue(v.UploadDate),
		v.Duration, v.ViewCount, v.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "upsert video for group %d", v.FileGroupID)
	}
	return s.VideoByFileGroup(ctx, v.FileGroupID)
}

const videoColumns = `id, file_group_id, channel_id, source_id, upload_date, duration, view_count, url`

func scanVideo(row interface{ Scan(...interface{}) error }) (*Video, error) {
	v := &Video{}
	var channel, upload sql.NullInt64
	if err := row.Scan(&v.ID, &v.FileGroupID, &channel, &v.SourceID, &upload,
		&v.Duration, &v.ViewCount, &v.URL); err != nil {
		return nil, err
	}
	if channel.Valid {
		v.ChannelID = &channel.Int64
	}
	v.UploadDate = db.NullTime(upload)
	return v, nil
}

// VideoByFileGroup returns the video owning the given file group.
func (s *Store) VideoByFileGroup(ctx context.Context, fileGroupID int64) (*Video, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE file_group_id = ?`, fileGroupID)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no video for file group %d", fileGroupID)
	}
	return v, errors.Wrap(err, "video by file group")
}

// VideoByURL returns the video with the given source URL.
func (s *Store) VideoByURL(ctx context.Context, url string) (*Video, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE url = ? ORDER BY id DESC LIMIT 1`, url)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no video for url %s", url)
	}
	return v, errors.Wrap(err, "video by url")
}

// CountVideos returns the number of videos.
func (s *Store) CountVideos(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos`).Scan(&n)
	return n, errors.Wrap(err, "count videos")
}

// CreateChannel creates a channel and its owned collection. The channel
// and collection lifecycles are coupled: every channel has exactly one
// collection of kind channel.
func (s *Store) CreateChannel(ctx context.Context, name, url, mediaPath string) (*Channel, error) {
	if name == "" {
		return nil, apperr.Validation("channel name is required")
	}
	dir := filepath.Join(mediaPath, "videos", name)
	coll, err := s.collections.Create(ctx, &collections.Collection{
		Name:      name,
		Kind:      collections.KindChannel,
		Directory: &dir,
	})
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (name, url, directory, collection_id) VALUES (?, ?, ?, ?)`,
		name, url, dir, coll.ID)
	if err != nil {
		_ = s.collections.Delete(ctx, coll.ID)
		return nil, apperr.WithKind(errors.Wrapf(err, "create channel %q", name), apperr.KindConflict)
	}
	id, _ := res.LastInsertId()
	return &Channel{ID: id, Name: name, URL: url, Directory: dir, CollectionID: &coll.ID}, nil
}

const channelColumns = `id, name, url, directory, collection_id`

func scanChannel(row interface{ Scan(...interface{}) error }) (*Channel, error) {
	c := &Channel{}
	var coll sql.NullInt64
	if err := row.Scan(&c.ID, &c.Name, &c.URL, &c.Directory, &coll); err != nil {
		return nil, err
	}
	if coll.Valid {
		c.CollectionID = &coll.Int64
	}
	return c, nil
}

// ChannelByName returns the channel with the given name.
func (s *Store) ChannelByName(ctx context.Context, name string) (*Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE name = ?`, name)
	c, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no channel named %q", name)
	}
	return c, errors.Wrap(err, "channel by name")
}

// ChannelByID returns the channel with the given id.
func (s *Store) ChannelByID(ctx context.Context, id int64) (*Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)
	c, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no channel with id %d", id)
	}
	return c, errors.Wrap(err, "channel by id")
}

// AllChannels returns every channel ordered by name.
func (s *Store) AllChannels(ctx context.Context) ([]*Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+channelColumns+` FROM channels ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "list channels")
	}
	defer rows.Close()
	var out []*Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveChannel writes a channel's mutable fields back to its row.
func (s *Store) SaveChannel(ctx context.Context, c *Channel) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET name = ?, url = ?, directory = ? WHERE id = ?`,
		c.Name, c.URL, c.Directory, c.ID)
	return errors.Wrapf(err, "save channel %d", c.ID)
}

// DeleteChannel removes a channel and its owned collection. Videos keep
// their files; their channel reference is cleared.
func (s *Store) DeleteChannel(ctx context.Context, id int64) error {
	c, err := s.ChannelByID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id); err != nil {
		return errors.Wrapf(err, "delete channel %d", id)
	}
	if c.CollectionID != nil {
		return s.collections.Delete(ctx, *c.CollectionID)
	}
	return nil
}
