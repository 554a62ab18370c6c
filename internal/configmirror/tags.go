package configmirror

import (
	"context"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/tags"
)

// SwitchSaveTags schedules a tags.yaml dump.
const SwitchSaveTags = "save_tags_config"

type tagEntry struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color,omitempty"`
}

type tagsDocument struct {
	versioned `yaml:",inline"`
	Tags      []tagEntry `yaml:"tags"`
}

// TagsFile mirrors the tag table to tags.yaml.
type TagsFile struct {
	Mirror *Mirror
	Store  *tags.Store
}

func (f *TagsFile) FileName() string   { return "tags.yaml" }
func (f *TagsFile) SwitchName() string { return SwitchSaveTags }

// Dump writes every tag. An empty table never clobbers a populated file.
func (f *TagsFile) Dump(ctx context.Context) error {
	all, err := f.Store.All(ctx)
	if err != nil {
		return err
	}
	path := f.Mirror.path(f.FileName())
	var onDisk tagsDocument
	if _, err := readDocument(path, &onDisk); err != nil {
		return err
	}
	if len(all) == 0 && len(onDisk.Tags) > 0 {
		return nil
	}
	if err := f.Mirror.checkDumpVersion(f.FileName(), onDisk.Version); err != nil {
		return err
	}
	doc := tagsDocument{}
	doc.Version = f.Mirror.nextVersion(f.FileName(), onDisk.Version)
	for _, t := range all {
		doc.Tags = append(doc.Tags, tagEntry{Name: t.Name, Color: t.Color})
	}
	return writeDocument(path, &doc)
}

// Import makes the tag table match the file. Tags absent from the file are
// deleted unless a collection still references them. An empty list never
// deletes; a truncated or half-written file must not wipe the table.
func (f *TagsFile) Import(ctx context.Context) error {
	var doc tagsDocument
	found, err := readDocument(f.Mirror.path(f.FileName()), &doc)
	if err != nil || !found {
		return err
	}
	f.Mirror.setVersion(f.FileName(), doc.Version)
	if len(doc.Tags) == 0 {
		return nil
	}

	wanted := make(map[string]bool, len(doc.Tags))
	for _, entry := range doc.Tags {
		if entry.Name == "" {
			continue
		}
		wanted[entry.Name] = true
		t, err := f.Store.FindOrCreate(ctx, entry.Name)
		if err != nil {
			return err
		}
		if t.Color != entry.Color {
			if err := f.Store.Update(ctx, entry.Name, entry.Color); err != nil {
				return err
			}
		}
	}
	existing, err := f.Store.All(ctx)
	if err != nil {
		return err
	}
	for _, t := range existing {
		if wanted[t.Name] {
			continue
		}
		if err := f.Store.Delete(ctx, t.Name); err != nil {
			// A referenced tag stays; the next dump re-adds it to the file.
			if apperr.KindOf(err) == apperr.KindConflict {
				continue
			}
			return err
		}
	}
	return nil
}
