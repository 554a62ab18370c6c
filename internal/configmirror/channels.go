package configmirror

import (
	"context"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/collections"
	"github.com/wrolpi/wrolpi/internal/tags"
	"github.com/wrolpi/wrolpi/internal/videos"
)

type channelEntry struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url,omitempty"`
	Directory string `yaml:"directory,omitempty"`
	TagName   string `yaml:"tag_name,omitempty"`
}

type channelsDocument struct {
	versioned `yaml:",inline"`
	Channels  []channelEntry `yaml:"channels"`
}

// ChannelsFile mirrors channels (and their owned collections) to
// channels.yaml.
type ChannelsFile struct {
	Mirror      *Mirror
	Store       *videos.Store
	Collections *collections.Store
	Tags        *tags.Store
	MediaPath   string
}

func (f *ChannelsFile) FileName() string   { return "channels.yaml" }
func (f *ChannelsFile) SwitchName() string { return collections.SwitchSaveChannels }

func (f *ChannelsFile) Dump(ctx context.Context) error {
	all, err := f.Store.AllChannels(ctx)
	if err != nil {
		return err
	}
	path := f.Mirror.path(f.FileName())
	var onDisk channelsDocument
	if _, err := readDocument(path, &onDisk); err != nil {
		return err
	}
	if len(all) == 0 && len(onDisk.Channels) > 0 {
		return nil
	}
	if err := f.Mirror.checkDumpVersion(f.FileName(), onDisk.Version); err != nil {
		return err
	}
	doc := channelsDocument{}
	doc.Version = f.Mirror.nextVersion(f.FileName(), onDisk.Version)
	for _, ch := range all {
		entry := channelEntry{Name: ch.Name, URL: ch.URL, Directory: ch.Directory}
		if ch.CollectionID != nil {
			coll, err := f.Collections.ByID(ctx, *ch.CollectionID)
			if err == nil {
				if coll.Directory != nil {
					entry.Directory = *coll.Directory
				}
				if coll.TagID != nil {
					if t, err := f.Tags.ByID(ctx, *coll.TagID); err == nil {
						entry.TagName = t.Name
					}
				}
			}
		}
		doc.Channels = append(doc.Channels, entry)
	}
	return writeDocument(path, &doc)
}

// Import makes the channel table match the file. Channels absent from the
// file are removed along with their owned collections; their videos keep
// their files. An empty list never deletes.
func (f *ChannelsFile) Import(ctx context.Context) error {
	var doc channelsDocument
	found, err := readDocument(f.Mirror.path(f.FileName()), &doc)
	if err != nil || !found {
		return err
	}
	f.Mirror.setVersion(f.FileName(), doc.Version)
	if len(doc.Channels) == 0 {
		return nil
	}

	wanted := make(map[string]bool, len(doc.Channels))
	for _, entry := range doc.Channels {
		if entry.Name == "" {
			continue
		}
		wanted[entry.Name] = true
		if err := f.applyEntry(ctx, entry); err != nil {
			return err
		}
	}
	existing, err := f.Store.AllChannels(ctx)
	if err != nil {
		return err
	}
	for _, ch := range existing {
		if wanted[ch.Name] {
			continue
		}
		if err := f.Store.DeleteChannel(ctx, ch.ID); err != nil {
			return err
		}
	}
	return nil
}

func (f *ChannelsFile) applyEntry(ctx context.Context, entry channelEntry) error {
	ch, err := f.Store.ChannelByName(ctx, entry.Name)
	if apperr.KindOf(err) == apperr.KindNotFound {
		ch, err = f.Store.CreateChannel(ctx, entry.Name, entry.URL, f.MediaPath)
	}
	if err != nil {
		return err
	}
	if entry.URL != "" && entry.URL != ch.URL {
		ch.URL = entry.URL
		if err := f.Store.SaveChannel(ctx, ch); err != nil {
			return err
		}
	}
	if ch.CollectionID == nil {
		return nil
	}
	coll, err := f.Collections.ByID(ctx, *ch.CollectionID)
	if err != nil {
		return err
	}
	if entry.Directory != "" {
		coll.Directory = &entry.Directory
	}
	coll.TagID = nil
	if entry.TagName != "" {
		t, err := f.Tags.FindOrCreate(ctx, entry.TagName)
		if err != nil {
			return err
		}
		coll.TagID = &t.ID
	}
	return f.Collections.Save(ctx, coll)
}
