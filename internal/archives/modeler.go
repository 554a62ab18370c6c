package archives

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/collections"
	"github.com/wrolpi/wrolpi/internal/files"
)

// Modeler promotes text/html file groups into Archives.
type Modeler struct {
	MediaPath   string
	Archives    *Store
	Collections *collections.Store
	Files       *files.Store
}

// Model inspects the group's siblings, parses the singlefile header and
// readability JSON, attaches the auxiliary entries to the group's data bag
// and upserts the Archive row. A stem whose singlefile is absent is an
// orphan readability variant and is left unmodeled.
//
// On conflicting URL fields the readability JSON wins over the singlefile
// header.
func (m *Modeler) Model(ctx context.Context, g *files.FileGroup) error {
	siblings := classifySiblings(g.Files)
	if siblings.singlefile == "" {
		// Orphan readability (or an unrelated html file): not an archive.
		return nil
	}

	sfPath := filepath.Join(g.Directory, siblings.singlefile)
	header, err := ReadSingleFileHeader(sfPath)
	if err != nil {
		return errors.Wrap(err, "read singlefile header")
	}
	if header == nil {
		// Plain html without the SingleFile banner: not an archive.
		return nil
	}

	url := header.URL
	archivedAt := header.SavedDate
	title := g.Title
	var readability *ReadabilityJSON
	if siblings.readabilityJSON != "" {
		readability, err = ReadReadabilityJSON(filepath.Join(g.Directory, siblings.readabilityJSON))
		if err == nil && readability != nil {
			if readability.URL != "" {
				url = readability.URL
			}
			if readability.Title != "" {
				title = readability.Title
			}
		}
	}
	if title == "" {
		if data, err := os.ReadFile(sfPath); err == nil {
			title = HTMLTitle(data)
		}
	}
	if url == "" && archivedAt == nil {
		// Invalid archive; the reap hook removes any stale row.
		return nil
	}

	g.Data[files.DataSingleFile] = siblings.singlefile
	setIfPresent(g.Data, files.DataReadability, siblings.readabilityHTML)
	setIfPresent(g.Data, files.DataReadabilityJSON, siblings.readabilityJSON)
	setIfPresent(g.Data, files.DataReadabilityTxt, siblings.readabilityTxt)
	setIfPresent(g.Data, files.DataScreenshot, siblings.screenshot)

	g.URL = url
	g.Title = title
	g.AText = title
	if readability != nil {
		g.Author = readability.Byline
		g.BText = readability.Excerpt
		g.DText = readability.TextContent
		if d := readability.PublishedDate(); d != nil {
			g.PublishedAt = d
		}
	}
	if archivedAt != nil {
		g.ModifiedAt = archivedAt
	}

	var collectionID *int64
	if domain := DomainOf(url); domain != "" {
		coll, err := m.domainCollection(ctx, domain, g.Directory)
		if err != nil {
			return err
		}
		collectionID = &coll.ID
	}

	if err := m.Files.Save(ctx, g); err != nil {
		return err
	}
	_, err = m.Archives.Upsert(ctx, &Archive{
		FileGroupID:  g.ID,
		URL:          url,
		ArchivedAt:   archivedAt,
		CollectionID: collectionID,
	})
	return err
}

// domainCollection finds or creates the domain collection. An existing row
// keeps its directory (it may be tagged); a new one gets the directory
// inferred by walking up from the file, which skips file-format
// subdirectories such as year folders.
func (m *Modeler) domainCollection(ctx context.Context, domain, fileDir string) (*collections.Collection, error) {
	coll, err := m.Collections.ByNameKind(ctx, domain, collections.KindDomain)
	if err == nil {
		return coll, nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}
	dir := DomainDirectory(m.MediaPath, fileDir, domain)
	return m.Collections.Create(ctx, &collections.Collection{
		Name:      domain,
		Kind:      collections.KindDomain,
		Directory: &dir,
	})
}

type siblingSet struct {
	singlefile      string
	readabilityHTML string
	readabilityJSON string
	readabilityTxt  string
	screenshot      string
}

// classifySiblings buckets a stem group's filenames by their suffix chain.
// The plain .html is the singlefile candidate; .readability.* are derived
// variants; an image is the screenshot.
func classifySiblings(names []string) siblingSet {
	var s siblingSet
	for _, n := range names {
		chain := strings.ToLower(files.SuffixChain(n))
		switch chain {
		case ".html", ".htm":
			if s.singlefile == "" || len(n) < len(s.singlefile) {
				s.singlefile = n
			}
		case ".readability.html":
			s.readabilityHTML = n
		case ".readability.json":
			s.readabilityJSON = n
		case ".readability.txt":
			s.readabilityTxt = n
		case ".png", ".jpg", ".jpeg", ".webp":
			s.screenshot = n
		}
	}
	return s
}

func setIfPresent(data map[string]string, key, value string) {
	if value != "" {
		data[key] = value
	}
}

// SinglefileLocation resolves the on-disk singlefile path for a file group
// row, preferring the data bag entry over the primary path. Used by the
// reap hook, which works from raw rows.
func SinglefileLocation(directory, primary, dataJSON string) string {
	var data map[string]string
	if err := json.Unmarshal([]byte(dataJSON), &data); err == nil {
		if rel, ok := data[files.DataSingleFile]; ok && rel != "" {
			return filepath.Join(directory, rel)
		}
	}
	return filepath.Join(directory, primary)
}
