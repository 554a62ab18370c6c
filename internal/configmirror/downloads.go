package configmirror

import (
	"context"
	"time"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/download"
)

// SwitchSaveDownloads schedules a download_manager.yaml dump.
const SwitchSaveDownloads = "save_download_manager_config"

type downloadEntry struct {
	URL           string                 `yaml:"url"`
	Downloader    string                 `yaml:"downloader,omitempty"`
	SubDownloader string                 `yaml:"sub_downloader,omitempty"`
	Destination   string                 `yaml:"destination,omitempty"`
	Frequency     int64                  `yaml:"frequency"` // seconds
	Settings      map[string]interface{} `yaml:"settings,omitempty"`
	TagNames      []string               `yaml:"tag_names,omitempty"`
}

type downloadsDocument struct {
	versioned `yaml:",inline"`
	Downloads []downloadEntry `yaml:"downloads"`
}

// DownloadsFile mirrors recurring downloads to download_manager.yaml.
// One-shot downloads are transient and never mirrored.
type DownloadsFile struct {
	Mirror *Mirror
	Store  *download.Store
}

func (f *DownloadsFile) FileName() string   { return "download_manager.yaml" }
func (f *DownloadsFile) SwitchName() string { return SwitchSaveDownloads }

// recurring returns one download per recurring URL, preferring the active
// row over completed history.
func (f *DownloadsFile) recurring(ctx context.Context) ([]*download.Download, error) {
	all, err := f.Store.All(ctx)
	if err != nil {
		return nil, err
	}
	byURL := map[string]*download.Download{}
	var order []string
	for _, d := range all {
		if !d.Recurring() || d.Status == download.StatusFailed {
			continue
		}
		if _, seen := byURL[d.URL]; !seen {
			order = append(order, d.URL)
		}
		byURL[d.URL] = d
	}
	out := make([]*download.Download, 0, len(order))
	for _, url := range order {
		out = append(out, byURL[url])
	}
	return out, nil
}

func (f *DownloadsFile) Dump(ctx context.Context) error {
	recurring, err := f.recurring(ctx)
	if err != nil {
		return err
	}
	path := f.Mirror.path(f.FileName())
	var onDisk downloadsDocument
	if _, err := readDocument(path, &onDisk); err != nil {
		return err
	}
	if len(recurring) == 0 && len(onDisk.Downloads) > 0 {
		return nil
	}
	if err := f.Mirror.checkDumpVersion(f.FileName(), onDisk.Version); err != nil {
		return err
	}
	doc := downloadsDocument{}
	doc.Version = f.Mirror.nextVersion(f.FileName(), onDisk.Version)
	for _, d := range recurring {
		entry := downloadEntry{
			URL: d.URL, Downloader: d.Downloader, SubDownloader: d.SubDownloader,
			Destination: d.Destination, Settings: d.Settings, TagNames: d.TagNames,
		}
		if d.Frequency != nil {
			entry.Frequency = int64(d.Frequency.Seconds())
		}
		doc.Downloads = append(doc.Downloads, entry)
	}
	return writeDocument(path, &doc)
}

// Import makes the recurring schedule match the file. Recurring URLs absent
// from the file are removed from the queue; completed history rows stay. An
// empty list never deletes.
func (f *DownloadsFile) Import(ctx context.Context) error {
	var doc downloadsDocument
	found, err := readDocument(f.Mirror.path(f.FileName()), &doc)
	if err != nil || !found {
		return err
	}
	f.Mirror.setVersion(f.FileName(), doc.Version)
	if len(doc.Downloads) == 0 {
		return nil
	}

	wanted := make(map[string]bool, len(doc.Downloads))
	for _, entry := range doc.Downloads {
		if entry.URL == "" || entry.Frequency <= 0 {
			continue
		}
		wanted[entry.URL] = true
		if err := f.applyEntry(ctx, entry); err != nil {
			return err
		}
	}
	all, err := f.Store.All(ctx)
	if err != nil {
		return err
	}
	for _, d := range all {
		if !d.Recurring() || d.Terminal() || wanted[d.URL] {
			continue
		}
		if err := f.Store.Delete(ctx, d.ID); err != nil {
			return err
		}
	}
	return nil
}

func (f *DownloadsFile) applyEntry(ctx context.Context, entry downloadEntry) error {
	freq := time.Duration(entry.Frequency) * time.Second
	d, err := f.Store.ActiveByURL(ctx, entry.URL)
	if apperr.KindOf(err) == apperr.KindNotFound {
		_, err = f.Store.Insert(ctx, &download.Download{
			URL: entry.URL, Downloader: entry.Downloader, SubDownloader: entry.SubDownloader,
			Destination: entry.Destination, Frequency: &freq, Status: download.StatusNew,
			Settings: entry.Settings, TagNames: entry.TagNames,
		})
		return err
	}
	if err != nil {
		return err
	}
	d.Downloader = entry.Downloader
	d.SubDownloader = entry.SubDownloader
	d.Destination = entry.Destination
	d.Frequency = &freq
	d.Settings = entry.Settings
	d.TagNames = entry.TagNames
	return f.Store.Save(ctx, d)
}
