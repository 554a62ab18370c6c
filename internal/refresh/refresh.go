// Package refresh walks the media directory and reconciles the database
// with what is on disk. The pipeline has three phases: a surface pass that
// upserts file groups from directory listings, a deep pass that runs the
// registered modelers in bounded batches, and a delete pass that removes
// rows whose primary file vanished. After-hooks run once the passes finish.
package refresh

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/events"
	"github.com/wrolpi/wrolpi/internal/files"
	"github.com/wrolpi/wrolpi/internal/flags"
	"github.com/wrolpi/wrolpi/internal/modeler"
)

// defaultDeepBatchSize bounds how many groups one deep-pass sweep loads.
const defaultDeepBatchSize = 100

// Hook runs after the refresh passes complete. Hooks must be idempotent;
// a failing hook is logged and does not fail the refresh.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Refresher drives the pipeline.
type Refresher struct {
	MediaPath string
	Files     *files.Store
	Modelers  *modeler.Registry
	Flags     *flags.Flags
	Events    *events.Log

	// DeepBatchSize bounds one deep-pass sweep. New sets the default.
	DeepBatchSize int

	hooks []Hook

	counted prometheus.Counter
	deleted prometheus.Counter
}

// New returns a refresher. Metrics are registered on reg when non-nil.
func New(mediaPath string, store *files.Store, reg prometheus.Registerer,
	modelers *modeler.Registry, fl *flags.Flags, evts *events.Log) *Refresher {
	r := &Refresher{
		MediaPath: mediaPath,
		Files:     store,
		Modelers:  modelers,
		Flags:     fl,
		Events:    evts,

		DeepBatchSize: defaultDeepBatchSize,
		counted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wrolpi_refresh_files_total",
			Help: "Files seen by refresh surface passes.",
		}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wrolpi_refresh_deleted_groups_total",
			Help: "File groups removed because their files vanished.",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.counted, r.deleted)
	}
	return r
}

// AddHook registers an after-refresh hook.
func (r *Refresher) AddHook(name string, fn func(ctx context.Context) error) {
	r.hooks = append(r.hooks, Hook{Name: name, Fn: fn})
}

// Refresh reconciles the given directories, or the whole media path when
// none are given. Only one refresh runs at a time.
func (r *Refresher) Refresh(ctx context.Context, paths ...string) error {
	if !r.Flags.StartRefreshing() {
		return apperr.Conflict("a refresh is already running")
	}
	defer r.Flags.StopRefreshing()

	whole := len(paths) == 0
	if whole {
		paths = []string{r.MediaPath}
	}
	r.emit("refresh_started", "")

	for _, root := range paths {
		if err := r.surfacePass(ctx, root); err != nil {
			r.emit("refresh_failed", err.Error())
			return err
		}
	}
	if err := r.deepPass(ctx); err != nil {
		r.emit("refresh_failed", err.Error())
		return err
	}
	if err := r.deletePass(ctx, whole, paths); err != nil {
		r.emit("refresh_failed", err.Error())
		return err
	}
	for _, h := range r.hooks {
		if err := h.Fn(ctx); err != nil {
			log.Printf("refresh hook %q failed: %v", h.Name, err)
		}
	}
	r.emit("refresh_completed", "")
	return nil
}

func (r *Refresher) emit(event, message string) {
	if r.Events == nil {
		return
	}
	r.Events.Emit(events.Record{Event: event, Subject: "refresh", Message: message})
}

// surfacePass walks root and upserts one group per (directory, stem).
func (r *Refresher) surfacePass(ctx context.Context, root string) error {
	byDir := map[string][]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			// Hidden directories and the config mirror are never indexed.
			if path != root && (strings.HasPrefix(name, ".") || name == "config") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
			return nil
		}
		byDir[filepath.Dir(path)] = append(byDir[filepath.Dir(path)], name)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "walk %s", root)
	}

	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		if err := r.indexDirectory(ctx, dir, byDir[dir]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Refresher) indexDirectory(ctx context.Context, dir string, names []string) error {
	for stem, siblings := range files.GroupByStem(names) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sort.Strings(siblings)
		primary := files.PickPrimary(siblings)
		g := &files.FileGroup{
			Directory:   dir,
			Stem:        stem,
			PrimaryPath: primary,
			Title:       stem,
			Files:       siblings,
		}
		abs := filepath.Join(dir, primary)
		if info, err := os.Stat(abs); err == nil {
			g.Size = info.Size()
		}
		if mt, err := mimetype.DetectFile(abs); err == nil {
			// Strip parameters so modeler prefixes match cleanly.
			g.Mimetype = strings.SplitN(mt.String(), ";", 2)[0]
		}
		if _, err := r.Files.Upsert(ctx, g); err != nil {
			return err
		}
		r.counted.Add(float64(len(siblings)))
	}
	return nil
}

// deepPass sweeps groups awaiting modeling in bounded batches. A batch
// smaller than the limit means the backlog is drained; an exactly-full
// batch continues to the next sweep.
func (r *Refresher) deepPass(ctx context.Context) error {
	limit := r.DeepBatchSize
	if limit <= 0 {
		limit = defaultDeepBatchSize
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		batch, err := r.Files.SelectForDeepModel(ctx, limit)
		if err != nil {
			return err
		}
		for _, g := range batch {
			r.modelGroup(ctx, g)
		}
		if len(batch) < limit {
			return nil
		}
	}
}

// modelGroup runs every matching modeler. A modeler failure is recorded on
// the group and never aborts the sweep.
func (r *Refresher) modelGroup(ctx context.Context, g *files.FileGroup) {
	names, fns := r.Modelers.Match(g.Mimetype)
	failure := ""
	for i, fn := range fns {
		if err := fn(ctx, g); err != nil {
			failure = names[i] + ": " + err.Error()
			log.Printf("modeler %s failed on %s: %v", names[i], g.AbsolutePrimary(), err)
			break
		}
	}
	if g.Failure != "" && failure == "" {
		failure = g.Failure
	}
	if err := r.Files.MarkDeepIndexed(ctx, g.ID, failure); err != nil {
		log.Printf("mark deep indexed %d: %v", g.ID, err)
	}
}

// deletePass removes groups whose primary file no longer exists. A partial
// refresh only considers groups under the refreshed directories.
func (r *Refresher) deletePass(ctx context.Context, whole bool, roots []string) error {
	keys, err := r.Files.AllKeys(ctx)
	if err != nil {
		return err
	}
	var doomed []int64
	for _, k := range keys {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !whole && !underAny(k.Directory, roots) {
			continue
		}
		if _, err := os.Stat(filepath.Join(k.Directory, k.PrimaryPath)); os.IsNotExist(err) {
			doomed = append(doomed, k.ID)
		}
	}
	if len(doomed) == 0 {
		return nil
	}
	if err := r.Files.Delete(ctx, doomed...); err != nil {
		return err
	}
	r.deleted.Add(float64(len(doomed)))
	return nil
}

func underAny(dir string, roots []string) bool {
	for _, root := range roots {
		if dir == root || strings.HasPrefix(dir, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
