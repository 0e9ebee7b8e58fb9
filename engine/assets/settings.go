package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/resources"
)

// SidecarExt is appended to a source path to name its settings file.
const SidecarExt = "set"

type SubItem struct {
	UUID string `yaml:"uuid"`
	Type string `yaml:"type"`

	dirty bool
}

// SettingsFile is the on-disk form of Settings.
type SettingsFile struct {
	GUID           string             `yaml:"guid"`
	Hash           string             `yaml:"hash"`
	Type           string             `yaml:"type,omitempty"`
	Version        uint32             `yaml:"version"`
	CurrentVersion uint32             `yaml:"currentVersion"`
	Settings       map[string]string  `yaml:"settings,omitempty"`
	SubItems       map[string]SubItem `yaml:"subItems,omitempty"`
}

// Settings holds the import state of one source asset. The destination
// identifier is assigned once and survives renames and reconversions.
type Settings struct {
	mu sync.Mutex

	source              string
	destination         string
	absoluteDestination string
	typeName            string
	version             uint32
	currentVersion      uint32
	hash                string
	pendingHash         string
	valid               bool
	modified            bool
	dir                 bool
	code                bool

	options  map[string]string
	subItems map[string]*SubItem
}

// NewSettings creates settings for a converter emitting resources of
// typeName in format version.
func NewSettings(typeName string, version uint32) *Settings {
	return &Settings{
		typeName: typeName,
		version:  version,
		options:  make(map[string]string),
		subItems: make(map[string]*SubItem),
	}
}

// NewCodeSettings creates settings for a source compiled by a Builder.
// Code assets have no binary output of their own.
func NewCodeSettings() *Settings {
	s := NewSettings(resources.ResourceTypeCode.String(), 1)
	s.code = true
	return s
}

func (s *Settings) Source() string { return s.source }

func (s *Settings) SetSource(source string) { s.source = source }

func (s *Settings) SidecarPath() string { return s.source + "." + SidecarExt }

func (s *Settings) Destination() string { return s.destination }

func (s *Settings) SetDestination(uuid string) { s.destination = uuid }

func (s *Settings) AbsoluteDestination() string { return s.absoluteDestination }

func (s *Settings) SetAbsoluteDestination(path string) { s.absoluteDestination = path }

func (s *Settings) TypeName() string { return s.typeName }

func (s *Settings) SetTypeName(name string) { s.typeName = name }

// Version is the format version the converter currently emits.
func (s *Settings) Version() uint32 { return s.version }

func (s *Settings) SetVersion(v uint32) { s.version = v }

// CurrentVersion is the format version of the resource found on disk.
func (s *Settings) CurrentVersion() uint32 { return s.currentVersion }

func (s *Settings) SetCurrentVersion(v uint32) { s.currentVersion = v }

// Hash is the source fingerprint at the last successful conversion.
func (s *Settings) Hash() string { return s.hash }

func (s *Settings) SetHash(h string) { s.hash = h }

func (s *Settings) IsValid() bool { return s.valid }

func (s *Settings) SetValid(v bool) { s.valid = v }

func (s *Settings) IsModified() bool { return s.modified }

func (s *Settings) SetModified() { s.modified = true }

func (s *Settings) IsDir() bool { return s.dir }

func (s *Settings) SetDirectory() { s.dir = true }

func (s *Settings) IsCode() bool { return s.code }

// Option returns a converter import option, or def when unset.
func (s *Settings) Option(key, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.options[key]; ok {
		return v
	}
	return def
}

func (s *Settings) SetOption(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.options[key] != value {
		s.options[key] = value
		s.modified = true
	}
}

// IsOutdated reports whether the asset must be converted again: the
// converter emits a different format version, the source changed since the
// last successful conversion, or the resource is missing.
func (s *Settings) IsOutdated() bool {
	if s.version != s.currentVersion {
		return true
	}
	fp, err := Fingerprint(s.source)
	if err != nil {
		return true
	}
	s.pendingHash = fp
	if fp != s.hash {
		return true
	}
	if s.code {
		return false
	}
	_, err = os.Stat(s.absoluteDestination)
	return err != nil
}

// CommitConversion records a successful conversion: the hash of the source
// as it is now and the format version just written.
func (s *Settings) CommitConversion() {
	if fp, err := Fingerprint(s.source); err == nil {
		s.hash = fp
	} else if s.pendingHash != "" {
		s.hash = s.pendingHash
	}
	s.pendingHash = ""
	s.currentVersion = s.version
	s.valid = true
}

// Info is the index entry for the main resource.
func (s *Settings) Info() resources.IndexEntry {
	return resources.IndexEntry{
		UUID: s.destination,
		Type: s.typeName,
		Hash: s.hash,
	}
}

// SubItem returns the identifier of the named sub-resource. When the item
// does not exist and create is set, a fresh identifier is returned; it is
// only recorded once SetSubItem is called.
func (s *Settings) SubItem(key string, create bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.subItems[key]; ok {
		return it.UUID
	}
	if create {
		return core.NewResourceID()
	}
	return ""
}

func (s *Settings) SubType(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.subItems[key]; ok {
		return it.Type
	}
	return ""
}

func (s *Settings) SubInfo(key string) resources.IndexEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.subItems[key]; ok {
		return resources.IndexEntry{UUID: it.UUID, Type: it.Type}
	}
	return resources.IndexEntry{}
}

func (s *Settings) SetSubItem(name, uuid, typeName string) {
	if name == "" || uuid == "" {
		return
	}
	s.mu.Lock()
	s.subItems[name] = &SubItem{UUID: uuid, Type: typeName}
	s.mu.Unlock()
}

// SetSubItemsDirty flags every sub-item. Items not produced again by the
// next conversion stay dirty and are dropped.
func (s *Settings) SetSubItemsDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.subItems {
		it.dirty = true
	}
}

// PruneDirty removes sub-items still dirty after a conversion and returns
// their identifiers.
func (s *Settings) PruneDirty() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for key, it := range s.subItems {
		if it.dirty {
			removed = append(removed, it.UUID)
			delete(s.subItems, key)
		}
	}
	sort.Strings(removed)
	return removed
}

// SubKeys returns the names of clean sub-items, sorted.
func (s *Settings) SubKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.subItems))
	for k, it := range s.subItems {
		if !it.dirty {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// SaveBinary writes a resource to path.
func (s *Settings) SaveBinary(t resources.ResourceType, version uint8, payload interface{}, path string) ReturnCode {
	if err := resources.WriteResource(path, t, version, payload); err != nil {
		core.LogError("failed to write resource for %s: %s", s.source, err)
		return InternalError
	}
	return Success
}

// SaveSubData writes a sub-resource next to the main resource and records
// it under name, reusing the identifier from previous conversions.
func (s *Settings) SaveSubData(name string, t resources.ResourceType, version uint8, payload interface{}) ReturnCode {
	uuid := s.SubItem(name, true)
	path := filepath.Join(filepath.Dir(s.absoluteDestination), uuid)
	result := s.SaveBinary(t, version, payload, path)
	if result == Success {
		s.SetSubItem(name, uuid, t.String())
	}
	return result
}

// Snapshot returns the persisted form of s. Dirty sub-items are left out.
func (s *Settings) Snapshot() SettingsFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := SettingsFile{
		GUID:           s.destination,
		Hash:           s.hash,
		Type:           s.typeName,
		Version:        s.version,
		CurrentVersion: s.currentVersion,
	}
	if len(s.options) > 0 {
		f.Settings = make(map[string]string, len(s.options))
		for k, v := range s.options {
			f.Settings[k] = v
		}
	}
	for k, it := range s.subItems {
		if it.dirty {
			continue
		}
		if f.SubItems == nil {
			f.SubItems = make(map[string]SubItem)
		}
		f.SubItems[k] = SubItem{UUID: it.UUID, Type: it.Type}
	}
	return f
}

// Apply loads persisted state into s. The format version stays the one
// declared by the converter.
func (s *Settings) Apply(f SettingsFile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.GUID != "" {
		s.destination = f.GUID
	}
	s.hash = f.Hash
	s.currentVersion = f.CurrentVersion
	for k, v := range f.Settings {
		s.options[k] = v
	}
	for k, it := range f.SubItems {
		if k != "" && it.UUID != "" {
			s.subItems[k] = &SubItem{UUID: it.UUID, Type: it.Type}
		}
	}
	s.modified = false
}

// LoadSettings reads the sidecar file. It returns false when there is none
// or it cannot be parsed.
func (s *Settings) LoadSettings() bool {
	f, err := ReadSettingsFile(s.SidecarPath())
	if err != nil {
		if !os.IsNotExist(err) {
			core.LogWarn("ignoring settings for %s: %s", s.source, err)
		}
		return false
	}
	s.Apply(f)
	return true
}

func (s *Settings) SaveSettings() error {
	if err := WriteSettingsFile(s.SidecarPath(), s.Snapshot()); err != nil {
		return err
	}
	s.modified = false
	return nil
}

func ReadSettingsFile(path string) (SettingsFile, error) {
	var f SettingsFile
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func WriteSettingsFile(path string, f SettingsFile) error {
	data, err := yaml.Marshal(&f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
