package assets

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-builder/engine/core"
)

// Registry maps file suffixes to converters and caches the settings of
// every asset seen so far.
type Registry struct {
	mu sync.RWMutex

	converters map[string]Converter
	builders   []Builder
	settings   map[string]*Settings
	importDir  string

	logger *core.Logger
}

func NewRegistry(importDir string) *Registry {
	return &Registry{
		converters: make(map[string]Converter),
		settings:   make(map[string]*Settings),
		importDir:  importDir,
		logger:     core.NewLogger("Registry"),
	}
}

// RegisterConverter claims every suffix of c. A later registration for the
// same suffix replaces the earlier one. Converters without suffixes are
// rejected.
func (r *Registry) RegisterConverter(c Converter) bool {
	if c == nil || len(c.Suffixes()) == 0 {
		return false
	}

	r.mu.Lock()
	for _, suffix := range c.Suffixes() {
		r.converters[strings.ToLower(strings.TrimPrefix(suffix, "."))] = c
	}
	if b, ok := c.(Builder); ok && !slices.Contains(r.builders, b) {
		r.builders = append(r.builders, b)
	}
	r.mu.Unlock()

	if in, ok := c.(Initializer); ok {
		if err := in.Init(); err != nil {
			r.logger.Warnf("converter %s init failed: %s", c.ContentType(), err)
		}
	}
	return true
}

// ConverterFor resolves the converter for path by its complete suffix
// ("mesh.obj" for "hero.mesh.obj") first, then by its last suffix.
func (r *Registry) ConverterFor(path string) Converter {
	base := strings.ToLower(filepath.Base(path))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := strings.Index(base, "."); i > 0 {
		if c, ok := r.converters[base[i+1:]]; ok {
			return c
		}
	}
	if ext := filepath.Ext(base); len(ext) > 1 {
		if c, ok := r.converters[ext[1:]]; ok {
			return c
		}
	}
	return nil
}

// Converters returns each active converter once, ordered by their
// alphabetically first suffix.
func (r *Registry) Converters() []Converter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	suffixes := make([]string, 0, len(r.converters))
	for s := range r.converters {
		suffixes = append(suffixes, s)
	}
	slices.Sort(suffixes)

	var out []Converter
	for _, s := range suffixes {
		c := r.converters[s]
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// Builders returns every builder ever registered, active or not.
func (r *Registry) Builders() []Builder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Builder(nil), r.builders...)
}

// IsActive reports whether c currently owns at least one suffix.
func (r *Registry) IsActive(c Converter) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.converters {
		if v == c {
			return true
		}
	}
	return false
}

func (r *Registry) ImportDir() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.importDir
}

// SetImportDir moves every cached destination to dir.
func (r *Registry) SetImportDir(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.importDir = dir
	for _, s := range r.settings {
		s.SetAbsoluteDestination(filepath.Join(dir, s.Destination()))
	}
}

func normalize(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Clean(path)
}

// SettingsFor returns the cached settings for path or creates them: a new
// asset gets a fresh identifier, a known one is restored from its sidecar.
// It returns nil for directories, missing files and unmanaged suffixes.
func (r *Registry) SettingsFor(path string) *Settings {
	key := normalize(path)

	r.mu.RLock()
	s, ok := r.settings[key]
	r.mu.RUnlock()
	if ok {
		return s
	}

	info, err := os.Stat(key)
	if err != nil || info.IsDir() {
		return nil
	}
	c := r.ConverterFor(key)
	if c == nil {
		return nil
	}

	s = c.CreateSettings()
	s.SetSource(key)
	if !s.LoadSettings() || s.Destination() == "" {
		s.SetDestination(core.NewResourceID())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.settings[key]; ok {
		return cached
	}
	s.SetAbsoluteDestination(filepath.Join(r.importDir, s.Destination()))
	r.settings[key] = s
	for _, sub := range s.SubKeys() {
		r.settings[key+"/"+sub] = s
	}
	return s
}

// Cached returns the settings for path without creating them.
func (r *Registry) Cached(path string) *Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings[normalize(path)]
}

// CachedUnder returns the distinct settings whose source lies below dir,
// sorted by source.
func (r *Registry) CachedUnder(dir string) []*Settings {
	prefix := normalize(dir) + string(filepath.Separator)
	r.mu.RLock()
	seen := make(map[*Settings]bool)
	var out []*Settings
	for _, s := range r.settings {
		if !seen[s] && strings.HasPrefix(s.Source(), prefix) {
			seen[s] = true
			out = append(out, s)
		}
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Settings) int {
		return strings.Compare(a.Source(), b.Source())
	})
	return out
}

// Alias makes the sub-item path resolve to its parent settings.
func (r *Registry) Alias(s *Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range s.SubKeys() {
		r.settings[s.Source()+"/"+sub] = s
	}
}

// Forget drops path, and every sub-item path beneath it, from the cache.
func (r *Registry) Forget(path string) {
	key := normalize(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.settings {
		if k == key || strings.HasPrefix(k, key+"/") {
			delete(r.settings, k)
		}
	}
}

// Rekey moves cached settings from oldPath to newPath, including everything
// below oldPath when it is a directory. Identifiers are untouched.
func (r *Registry) Rekey(oldPath, newPath string) {
	from, to := normalize(oldPath), normalize(newPath)

	r.mu.Lock()
	defer r.mu.Unlock()
	moved := make(map[string]*Settings)
	for k, s := range r.settings {
		switch {
		case k == from:
			moved[to] = s
		case strings.HasPrefix(k, from+string(filepath.Separator)) || strings.HasPrefix(k, from+"/"):
			moved[to+k[len(from):]] = s
		default:
			continue
		}
		delete(r.settings, k)
	}
	seen := make(map[*Settings]bool)
	for k, s := range moved {
		if !seen[s] {
			seen[s] = true
			src := s.Source()
			if src == from {
				s.SetSource(to)
			} else if strings.HasPrefix(src, from+string(filepath.Separator)) {
				s.SetSource(to + src[len(from):])
			}
		}
		r.settings[k] = s
	}
}

// Reset clears the settings cache.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.settings = make(map[string]*Settings)
	r.mu.Unlock()
}
