package files

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// MoveDirectory relocates every entry under oldDir to newDir and rewrites
// the rows that referenced the old location:
//   - file_groups.directory for groups at or below oldDir
//   - downloads.destination for downloads at or below oldDir
//
// Filenames inside a group are stored relative to its directory, so only
// the directory column changes. The old directory is removed when empty.
func (s *Store) MoveDirectory(ctx context.Context, oldDir, newDir string) error {
	oldDir = filepath.Clean(oldDir)
	newDir = filepath.Clean(newDir)
	if oldDir == newDir {
		return nil
	}
	if err := os.MkdirAll(newDir, 0755); err != nil {
		return errors.Wrapf(err, "create %s", newDir)
	}
	entries, err := os.ReadDir(oldDir)
	if err != nil {
		if os.IsNotExist(err) {
			entries = nil
		} else {
			return errors.Wrapf(err, "read %s", oldDir)
		}
	}
	// Move every entry, tracked or not. The collection owns its directory.
	for _, e := range entries {
		src := filepath.Join(oldDir, e.Name())
		dst := filepath.Join(newDir, e.Name())
		if err := os.Rename(src, dst); err != nil {
			return errors.Wrapf(err, "move %s", src)
		}
	}

	return s.rewriteRows(ctx, oldDir, newDir)
}

// rewriteRows updates directory columns after the filesystem move.
func (s *Store) rewriteRows(ctx context.Context, oldDir, newDir string) error {
	prefix := oldDir + string(filepath.Separator)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, directory FROM file_groups WHERE directory = ? OR directory LIKE ?`,
		oldDir, prefix+"%")
	if err != nil {
		return errors.Wrap(err, "select moved groups")
	}
	type pair struct {
		id  int64
		dir string
	}
	var moved []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.id, &p.dir); err != nil {
			rows.Close()
			return err
		}
		moved = append(moved, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, p := range moved {
		rewritten := newDir
		if p.dir != oldDir {
			rewritten = filepath.Join(newDir, strings.TrimPrefix(p.dir, prefix))
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE file_groups SET directory = ? WHERE id = ?`, rewritten, p.id); err != nil {
			return errors.Wrapf(err, "rewrite group %d", p.id)
		}
	}

	// Downloads point their destination at the moved tree too.
	drows, err := s.db.QueryContext(ctx,
		`SELECT id, destination FROM downloads WHERE destination = ? OR destination LIKE ?`,
		oldDir, prefix+"%")
	if err != nil {
		return errors.Wrap(err, "select moved downloads")
	}
	var movedDownloads []pair
	for drows.Next() {
		var p pair
		if err := drows.Scan(&p.id, &p.dir); err != nil {
			drows.Close()
			return err
		}
		movedDownloads = append(movedDownloads, p)
	}
	drows.Close()
	if err := drows.Err(); err != nil {
		return err
	}
	for _, p := range movedDownloads {
		rewritten := newDir
		if p.dir != oldDir {
			rewritten = filepath.Join(newDir, strings.TrimPrefix(p.dir, prefix))
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE downloads SET destination = ? WHERE id = ?`, rewritten, p.id); err != nil {
			return errors.Wrapf(err, "rewrite download %d", p.id)
		}
	}

	// Drop the old directory when the move emptied it.
	if entries, err := os.ReadDir(oldDir); err == nil && len(entries) == 0 {
		_ = os.Remove(oldDir)
	}
	return nil
}
