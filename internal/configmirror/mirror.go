// Package configmirror keeps YAML files under <media>/config in sync with
// the database. The files are the durable source of truth: importing makes
// the database match the file (entries removed from the file are removed
// from the database), and dumps are debounced through the switch bus so DB
// mutations never write a file synchronously.
package configmirror

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/wrolpi/wrolpi/internal/apperr"
	"github.com/wrolpi/wrolpi/internal/flags"
	"github.com/wrolpi/wrolpi/internal/switches"
)

// File is one mirrored config file.
type File interface {
	// FileName is the name under the config directory, e.g. "tags.yaml".
	FileName() string
	// SwitchName is the switch that schedules a background dump.
	SwitchName() string
	// Dump writes the database state to the file.
	Dump(ctx context.Context) error
	// Import makes the database match the file.
	Import(ctx context.Context) error
}

// Mirror owns the config directory and the registered files.
type Mirror struct {
	Dir   string
	Flags *flags.Flags

	mu       sync.Mutex
	files    []File
	versions map[string]int
}

// NewMirror returns a mirror over dir (usually <media>/config).
func NewMirror(dir string, fl *flags.Flags) *Mirror {
	return &Mirror{Dir: dir, Flags: fl, versions: map[string]int{}}
}

// Add registers a file. Import order follows registration order, so
// register dependencies first (tags before collections).
func (m *Mirror) Add(files ...File) {
	m.files = append(m.files, files...)
}

// RegisterSwitches binds each file's dump to its switch on the bus.
func (m *Mirror) RegisterSwitches(bus *switches.Bus) {
	for _, f := range m.files {
		f := f
		bus.Register(f.SwitchName(), func(ctx context.Context, _ interface{}) error {
			return m.DumpFile(ctx, f)
		})
	}
}

// DumpFile writes one file, refusing while WROL Mode is active.
func (m *Mirror) DumpFile(ctx context.Context, f File) error {
	if m.Flags != nil && m.Flags.WROLModeEnabled() {
		return apperr.WROLDenied("saving " + f.FileName())
	}
	if err := os.MkdirAll(m.Dir, 0755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	return f.Dump(ctx)
}

// ImportAllConfigs imports every registered file in registration order and
// reports per-file success. A failed import is logged and does not stop the
// rest; callers inspect the map to decide whether to enable downloads.
func (m *Mirror) ImportAllConfigs(ctx context.Context) map[string]bool {
	out := make(map[string]bool, len(m.files))
	for _, f := range m.files {
		err := f.Import(ctx)
		if err != nil {
			log.Printf("import %s: %v", f.FileName(), err)
		}
		out[f.FileName()] = err == nil
	}
	return out
}

// DumpAll writes every registered file. Used at shutdown and by the CLI.
func (m *Mirror) DumpAll(ctx context.Context) error {
	for _, f := range m.files {
		if err := m.DumpFile(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// path returns the absolute path of a file name under the config dir.
func (m *Mirror) path(name string) string { return filepath.Join(m.Dir, name) }

// knownVersion returns the last version seen for name.
func (m *Mirror) knownVersion(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[name]
}

func (m *Mirror) setVersion(name string, v int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[name] = v
}

// versioned is embedded by every file document.
type versioned struct {
	Version int `yaml:"version"`
}

// readDocument loads the file into out. A missing file leaves out zeroed
// and returns false.
func readDocument(path string, out interface{}) (bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "read %s", filepath.Base(path))
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return false, errors.Wrapf(err, "parse %s", filepath.Base(path))
	}
	return true, nil
}

// writeDocument atomically replaces path with the YAML encoding of doc.
func writeDocument(path string, doc interface{}) error {
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "encode yaml")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp config")
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(raw)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return errors.Wrap(writeErr, "write config")
		}
		return errors.Wrap(closeErr, "write config")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "replace config")
	}
	return nil
}

// checkDumpVersion guards a dump against clobbering edits made outside the
// process: when the on-disk version has moved past what we last imported or
// wrote, the dump is refused until the file is imported again.
func (m *Mirror) checkDumpVersion(name string, onDisk int) error {
	known := m.knownVersion(name)
	if known != 0 && onDisk > known {
		return apperr.VersionMismatch(
			"%s is at version %d but version %d was expected; import it first",
			name, onDisk, known)
	}
	return nil
}

// nextVersion records and returns the version a dump should write.
func (m *Mirror) nextVersion(name string, onDisk int) int {
	v := onDisk
	if known := m.knownVersion(name); known > v {
		v = known
	}
	v++
	m.setVersion(name, v)
	return v
}
