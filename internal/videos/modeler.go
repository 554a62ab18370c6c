package videos

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/files"
)

// InfoJSON is the slice of a video's metadata sidecar we care about.
// Unknown keys are ignored.
type InfoJSON struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	UploadDate  string  `json:"upload_date"` // 20060102
	Duration    float64 `json:"duration"`
	ViewCount   int64   `json:"view_count"`
	WebpageURL  string  `json:"webpage_url"`
	Channel     string  `json:"channel"`
	ChannelURL  string  `json:"channel_url"`
	Uploader    string  `json:"uploader"`
}

// ReadInfoJSON parses a video's .info.json sidecar.
func ReadInfoJSON(path string) (*InfoJSON, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read info json")
	}
	info := &InfoJSON{}
	if err := json.Unmarshal(raw, info); err != nil {
		return nil, errors.Wrapf(err, "parse %s", filepath.Base(path))
	}
	return info, nil
}

// Modeler turns a video-mimetype file group into a Video. It attaches the
// info json, poster and caption siblings, reads the metadata and links the
// channel when one with the info json's channel name exists.
type Modeler struct {
	Store *Store
	Files *files.Store
}

// Model implements modeler.Func for video/* file groups.
func (m *Modeler) Model(ctx context.Context, g *files.FileGroup) error {
	classifyVideoSiblings(g)

	v := &Video{FileGroupID: g.ID}
	if infoPath := g.Data[files.DataInfoJSON]; infoPath != "" {
		info, err := ReadInfoJSON(filepath.Join(g.Directory, infoPath))
		if err != nil {
			// A malformed sidecar fails this group only; the batch goes on.
			g.Failure = err.Error()
			return m.Files.Save(ctx, g)
		}
		m.applyInfo(ctx, g, v, info)
	}
	if v.URL == "" {
		v.URL = g.URL
	}

	if err := m.Files.Save(ctx, g); err != nil {
		return err
	}
	_, err := m.Store.UpsertVideo(ctx, v)
	return err
}

func (m *Modeler) applyInfo(ctx context.Context, g *files.FileGroup, v *Video, info *InfoJSON) {
	v.SourceID = info.ID
	v.Duration = int64(info.Duration)
	v.ViewCount = info.ViewCount
	v.URL = info.WebpageURL
	if info.UploadDate != "" {
		if t, err := time.ParseInLocation("20060102", info.UploadDate, time.UTC); err == nil {
			v.UploadDate = &t
			g.PublishedAt = &t
		}
	}
	if info.Title != "" {
		g.Title = info.Title
		g.AText = info.Title
	}
	if info.Description != "" {
		g.BText = info.Description
	}
	if info.WebpageURL != "" {
		g.URL = info.WebpageURL
	}
	author := info.Channel
	if author == "" {
		author = info.Uploader
	}
	g.Author = author

	if info.Channel != "" {
		ch, err := m.Store.ChannelByName(ctx, info.Channel)
		if err == nil {
			v.ChannelID = &ch.ID
		} else if apperr.KindOf(err) != apperr.KindNotFound {
			g.Failure = err.Error()
		}
	}
}

// classifyVideoSiblings records the sidecar roles in the group's data map.
func classifyVideoSiblings(g *files.FileGroup) {
	if g.Data == nil {
		g.Data = map[string]string{}
	}
	for _, name := range g.Files {
		chain := strings.ToLower(files.SuffixChain(name))
		switch {
		case strings.HasSuffix(chain, ".info.json"):
			g.Data[files.DataInfoJSON] = name
		case chain == ".jpg" || chain == ".jpeg" || chain == ".png" || chain == ".webp":
			g.Data[files.DataPoster] = name
		case strings.HasSuffix(chain, ".vtt") || strings.HasSuffix(chain, ".srt"):
			g.Data[files.DataCaption] = name
		}
	}
}
