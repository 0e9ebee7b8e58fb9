package resources

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

const (
	IndexVersion = 2
	// IndexPersistent marks entries whose binary lives outside the import
	// directory (builder artifacts). They survive Cleanup.
	IndexPersistent = "Persistent"
)

type IndexEntry struct {
	UUID string `yaml:"uuid"`
	Path string `yaml:"path"`
	Type string `yaml:"type"`
	Hash string `yaml:"hash,omitempty"`
}

type IndexSettings struct {
	Entry   string `yaml:"entry,omitempty"`
	Company string `yaml:"company,omitempty"`
	Project string `yaml:"project,omitempty"`
}

type indexFile struct {
	Version  int           `yaml:"version"`
	Settings IndexSettings `yaml:"settings"`
	Content  []IndexEntry  `yaml:"content"`
}

// Index is the path <-> UUID map of every imported resource. Paths are
// relative to the content root; UUIDs name files in the import directory.
type Index struct {
	mu sync.RWMutex

	importDir string
	entries   map[string]IndexEntry
	paths     map[string]string

	Settings IndexSettings
}

func NewIndex(importDir string) *Index {
	return &Index{
		importDir: importDir,
		entries:   make(map[string]IndexEntry),
		paths:     make(map[string]string),
	}
}

func (ix *Index) ImportDir() string {
	return ix.importDir
}

// SetImportDir switches the directory used to validate entries, used when
// the current platform changes.
func (ix *Index) SetImportDir(dir string) {
	ix.mu.Lock()
	ix.importDir = dir
	ix.mu.Unlock()
}

// Register records path -> entry when the binary for entry.UUID exists in
// the import directory. It reports whether the entry was recorded.
func (ix *Index) Register(path string, entry IndexEntry) bool {
	if entry.UUID == "" {
		return false
	}
	if _, err := os.Stat(filepath.Join(ix.importDir, entry.UUID)); err != nil {
		return false
	}
	entry.Path = path

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if old, ok := ix.entries[path]; ok && old.UUID != entry.UUID {
		delete(ix.paths, old.UUID)
	}
	ix.entries[path] = entry
	ix.paths[entry.UUID] = path
	return true
}

func (ix *Index) RegisterPersistent(path, uuid string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries[path] = IndexEntry{UUID: uuid, Path: path, Type: IndexPersistent}
	ix.paths[uuid] = path
}

// Unregister removes path and returns the UUID it was mapped to.
func (ix *Index) Unregister(path string) string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	entry, ok := ix.entries[path]
	if !ok {
		return ""
	}
	delete(ix.entries, path)
	delete(ix.paths, entry.UUID)
	return entry.UUID
}

// Rekey moves every entry at oldPath, or below it, to newPath keeping UUIDs.
func (ix *Index) Rekey(oldPath, newPath string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	moved := make(map[string]IndexEntry)
	for path, entry := range ix.entries {
		switch {
		case path == oldPath:
			entry.Path = newPath
		case len(path) > len(oldPath) && path[:len(oldPath)] == oldPath && path[len(oldPath)] == '/':
			entry.Path = newPath + path[len(oldPath):]
		default:
			continue
		}
		delete(ix.entries, path)
		moved[entry.Path] = entry
	}
	for path, entry := range moved {
		ix.entries[path] = entry
		ix.paths[entry.UUID] = path
	}
}

// PathsUnder returns the sorted paths of every entry below the directory
// dir.
func (ix *Index) PathsUnder(dir string) []string {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	ix.mu.RLock()
	var out []string
	for path := range ix.entries {
		if strings.HasPrefix(path, prefix) {
			out = append(out, path)
		}
	}
	ix.mu.RUnlock()
	slices.Sort(out)
	return out
}

func (ix *Index) PathToUUID(path string) string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.entries[path].UUID
}

func (ix *Index) UUIDToPath(uuid string) string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.paths[uuid]
}

func (ix *Index) Entry(path string) (IndexEntry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[path]
	return e, ok
}

func (ix *Index) IsPersistent(path string) bool {
	e, ok := ix.Entry(path)
	return ok && e.Type == IndexPersistent
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Entries returns a snapshot sorted by UUID.
func (ix *Index) Entries() []IndexEntry {
	ix.mu.RLock()
	out := make([]IndexEntry, 0, len(ix.entries))
	for _, e := range ix.entries {
		out = append(out, e)
	}
	ix.mu.RUnlock()

	slices.SortFunc(out, func(a, b IndexEntry) int {
		switch {
		case a.UUID < b.UUID:
			return -1
		case a.UUID > b.UUID:
			return 1
		}
		return 0
	})
	return out
}

// Labels returns the distinct resource types present in the index.
func (ix *Index) Labels() []string {
	var out []string
	for _, e := range ix.Entries() {
		if e.Type != IndexPersistent && !slices.Contains(out, e.Type) {
			out = append(out, e.Type)
		}
	}
	slices.Sort(out)
	return out
}

// Cleanup drops entries whose binary no longer exists in the import
// directory. Persistent entries are kept. It returns the number removed.
func (ix *Index) Cleanup() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	removed := 0
	for path, entry := range ix.entries {
		if entry.Type == IndexPersistent {
			continue
		}
		if _, err := os.Stat(filepath.Join(ix.importDir, entry.UUID)); err != nil {
			delete(ix.entries, path)
			delete(ix.paths, entry.UUID)
			removed++
		}
	}
	return removed
}

func (ix *Index) Save(path string) error {
	data, err := yaml.Marshal(&indexFile{
		Version:  IndexVersion,
		Settings: ix.Settings,
		Content:  ix.Entries(),
	})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Reset drops every entry and the index settings.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = make(map[string]IndexEntry)
	ix.paths = make(map[string]string)
	ix.Settings = IndexSettings{}
}

// Load replaces the index with the contents of path. A missing file leaves
// the index empty.
func (ix *Index) Load(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var f indexFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("index %s: %w", path, err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = make(map[string]IndexEntry, len(f.Content))
	ix.paths = make(map[string]string, len(f.Content))
	if f.Version != IndexVersion {
		// Stale layout; everything is re-registered on the next import.
		return nil
	}
	ix.Settings = f.Settings
	for _, e := range f.Content {
		ix.entries[e.Path] = e
		ix.paths[e.UUID] = e.Path
	}
	return nil
}
