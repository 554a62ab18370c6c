package collections

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/files"
	"github.com/wrolpi/wrolpi/internal/switches"
	"github.com/wrolpi/wrolpi/internal/tags"
)

// Service wires the collection lifecycle: tagging computes a target
// directory, plans the move of all owned files, and triggers the config
// save switch for the collection's kind.
type Service struct {
	MediaPath string
	Store     *Store
	Tags      *tags.Store
	Files     *files.Store
	Bus       *switches.Bus
}

// UpdateRequest mutates a collection in place. Nil fields are untouched.
type UpdateRequest struct {
	Directory   *string // set to "" to clear
	TagName     *string
	Description *string
}

// Update applies req to the collection. Clearing the directory of a tagged
// collection fails; tagging an unrestricted collection fails.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*Collection, error) {
	c, err := s.Store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Directory != nil {
		if *req.Directory == "" {
			if c.TagID != nil {
				return nil, apperr.Validation("collection %q is tagged; clear the tag before the directory", c.Name)
			}
			c.Directory = nil
		} else {
			dir, err := s.normalizeDirectory(*req.Directory)
			if err != nil {
				return nil, err
			}
			c.Directory = &dir
		}
	}
	if req.TagName != nil && *req.TagName != "" {
		if !c.CanBeTagged() {
			return nil, apperr.Validation("collection %q has no directory", c.Name)
		}
		t, err := s.Tags.FindOrCreate(ctx, *req.TagName)
		if err != nil {
			return nil, err
		}
		c.TagID = &t.ID
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if err := s.Store.Save(ctx, c); err != nil {
		return nil, err
	}
	s.activateSaveSwitch(c)
	return c, nil
}

// Tag assigns (or with tagName=="" removes) a tag and optionally moves the
// collection directory:
//  1. an explicit directory wins; else a tagged restricted collection moves
//     to FormatDirectory; else the current directory is kept
//  2. the tag row is find-or-created
//  3. tag and directory are applied
//  4. a directory change enqueues the move on the switch bus
//  5. the kind's config save switch fires
func (s *Service) Tag(ctx context.Context, id int64, tagName, directory string) (*Collection, error) {
	c, err := s.Store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tagName != "" && !c.CanBeTagged() {
		return nil, apperr.Validation("collection %q has no directory", c.Name)
	}

	target := ""
	switch {
	case directory != "":
		target, err = s.normalizeDirectory(directory)
		if err != nil {
			return nil, err
		}
	case c.Directory != nil:
		target = FormatDirectory(s.MediaPath, c, tagName)
	}

	if tagName == "" {
		c.TagID = nil
	} else {
		t, err := s.Tags.FindOrCreate(ctx, tagName)
		if err != nil {
			return nil, err
		}
		c.TagID = &t.ID
	}

	oldDir := ""
	if c.Directory != nil {
		oldDir = *c.Directory
	}
	if target != "" {
		c.Directory = &target
	}
	if err := s.Store.Save(ctx, c); err != nil {
		return nil, err
	}

	if oldDir != "" && target != "" && oldDir != target {
		s.enqueueMove(c.ID, oldDir, target)
	}
	s.activateSaveSwitch(c)
	return c, nil
}

// enqueueMove registers a per-collection move switch so moves of different
// collections never collapse into one another, then activates it.
func (s *Service) enqueueMove(id int64, oldDir, newDir string) {
	name := fmt.Sprintf("collection_move:%d", id)
	s.Bus.Register(name, func(ctx context.Context, ctxVal interface{}) error {
		m := ctxVal.(moveRequest)
		return s.Files.MoveDirectory(ctx, m.oldDir, m.newDir)
	})
	s.Bus.Activate(name, moveRequest{oldDir: oldDir, newDir: newDir})
}

type moveRequest struct {
	oldDir, newDir string
}

func (s *Service) activateSaveSwitch(c *Collection) {
	switch c.Kind {
	case KindChannel:
		s.Bus.Activate(SwitchSaveChannels, nil)
	default:
		s.Bus.Activate(SwitchSaveDomains, nil)
	}
}

// normalizeDirectory resolves dir (absolute or media-relative) and
// validates it sits under the media root.
func (s *Service) normalizeDirectory(dir string) (string, error) {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.MediaPath, dir)
	}
	dir = filepath.Clean(dir)
	root := filepath.Clean(s.MediaPath)
	if dir != root && !strings.HasPrefix(dir, root+string(filepath.Separator)) {
		return "", apperr.Validation("directory %q is outside the media root", dir)
	}
	return dir, nil
}

// EnsureDirectory creates the collection's directory on disk when set.
func (s *Service) EnsureDirectory(c *Collection) error {
	if c.Directory == nil {
		return nil
	}
	return os.MkdirAll(*c.Directory, 0755)
}
