package configmirror

import (
	"context"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/collections"
	"github.com/wrolpi/wrolpi/internal/tags"
)

type collectionEntry struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind,omitempty"`
	Directory   string `yaml:"directory,omitempty"`
	TagName     string `yaml:"tag_name,omitempty"`
	Description string `yaml:"description,omitempty"`
	FileFormat  string `yaml:"file_format,omitempty"`
}

type domainsDocument struct {
	versioned `yaml:",inline"`
	Domains   []collectionEntry `yaml:"domains"`
}

// DomainsFile mirrors domain and manual collections to domains.yaml.
// Channel collections live with their channels in channels.yaml.
type DomainsFile struct {
	Mirror *Mirror
	Store  *collections.Store
	Tags   *tags.Store
}

func (f *DomainsFile) FileName() string   { return "domains.yaml" }
func (f *DomainsFile) SwitchName() string { return collections.SwitchSaveDomains }

func (f *DomainsFile) Dump(ctx context.Context) error {
	var all []*collections.Collection
	for _, kind := range []string{collections.KindDomain, collections.KindManual} {
		colls, err := f.Store.ByKind(ctx, kind)
		if err != nil {
			return err
		}
		all = append(all, colls...)
	}
	path := f.Mirror.path(f.FileName())
	var onDisk domainsDocument
	if _, err := readDocument(path, &onDisk); err != nil {
		return err
	}
	if len(all) == 0 && len(onDisk.Domains) > 0 {
		return nil
	}
	if err := f.Mirror.checkDumpVersion(f.FileName(), onDisk.Version); err != nil {
		return err
	}
	doc := domainsDocument{}
	doc.Version = f.Mirror.nextVersion(f.FileName(), onDisk.Version)
	for _, c := range all {
		entry := collectionEntry{Name: c.Name, Kind: c.Kind, Description: c.Description}
		if c.Directory != nil {
			entry.Directory = *c.Directory
		}
		if c.FileFormat != nil {
			entry.FileFormat = *c.FileFormat
		}
		if c.TagID != nil {
			t, err := f.Tags.ByID(ctx, *c.TagID)
			if err == nil {
				entry.TagName = t.Name
			}
		}
		doc.Domains = append(doc.Domains, entry)
	}
	return writeDocument(path, &doc)
}

// Import makes domain and manual collections match the file. Collections
// absent from the file are deleted; the empty-collection hook recreates
// domain rows on the next refresh if their archives still exist. An empty
// list never deletes.
func (f *DomainsFile) Import(ctx context.Context) error {
	var doc domainsDocument
	found, err := readDocument(f.Mirror.path(f.FileName()), &doc)
	if err != nil || !found {
		return err
	}
	f.Mirror.setVersion(f.FileName(), doc.Version)
	if len(doc.Domains) == 0 {
		return nil
	}

	type key struct{ name, kind string }
	wanted := make(map[key]bool, len(doc.Domains))
	for _, entry := range doc.Domains {
		if entry.Name == "" {
			continue
		}
		kind := entry.Kind
		if kind == "" {
			kind = collections.KindDomain
		}
		if kind == collections.KindChannel {
			continue
		}
		wanted[key{entry.Name, kind}] = true
		if err := f.applyEntry(ctx, entry, kind); err != nil {
			return err
		}
	}
	for _, kind := range []string{collections.KindDomain, collections.KindManual} {
		existing, err := f.Store.ByKind(ctx, kind)
		if err != nil {
			return err
		}
		for _, c := range existing {
			if wanted[key{c.Name, c.Kind}] {
				continue
			}
			if err := f.Store.Delete(ctx, c.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *DomainsFile) applyEntry(ctx context.Context, entry collectionEntry, kind string) error {
	c, err := f.Store.ByNameKind(ctx, entry.Name, kind)
	if apperr.KindOf(err) == apperr.KindNotFound {
		c, err = f.Store.Create(ctx, &collections.Collection{Name: entry.Name, Kind: kind})
	}
	if err != nil {
		return err
	}
	if entry.Directory != "" {
		c.Directory = &entry.Directory
	} else {
		c.Directory = nil
	}
	if entry.FileFormat != "" {
		c.FileFormat = &entry.FileFormat
	} else {
		c.FileFormat = nil
	}
	c.Description = entry.Description
	c.TagID = nil
	if entry.TagName != "" {
		t, err := f.Tags.FindOrCreate(ctx, entry.TagName)
		if err != nil {
			return err
		}
		c.TagID = &t.ID
	}
	return f.Store.Save(ctx, c)
}
