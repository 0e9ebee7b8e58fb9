package assets

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/copier"

	"github.com/spaghettifunk/anima-builder/engine/containers"
	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/project"
	"github.com/spaghettifunk/anima-builder/engine/resources"
)

type AssetState int

const (
	StateUnknown AssetState = iota
	StateScanned
	StateUnchanged
	StateStale
	StateConverting
	StateConverted
	StateFailed
)

func (s AssetState) String() string {
	return [...]string{"Unknown", "Scanned", "Unchanged", "Stale", "Converting", "Converted", "Failed"}[s]
}

// ImportReport summarises one drain of the import queue.
type ImportReport struct {
	Converted []string
	Failed    []string
	Skipped   []string
}

type convertOutcome int

const (
	outcomeConverted convertOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// AssetManager scans the content tree, queues stale assets and converts
// them one at a time. All mutating calls are expected on one goroutine.
type AssetManager struct {
	project  *project.ProjectSettings
	registry *Registry
	index    *resources.Index
	events   *core.EventSystem
	metrics  *core.Metrics

	queue *containers.UniqueQueue[string, *Settings]

	mutex  sync.RWMutex
	states map[string]AssetState

	logger *core.Logger
}

func NewAssetManager(ps *project.ProjectSettings, registry *Registry, index *resources.Index, events *core.EventSystem, metrics *core.Metrics) *AssetManager {
	if metrics == nil {
		metrics = core.NewMetrics()
	}
	return &AssetManager{
		project:  ps,
		registry: registry,
		index:    index,
		events:   events,
		metrics:  metrics,
		queue:    containers.NewUniqueQueue[string, *Settings](),
		states:   make(map[string]AssetState),
		logger:   core.NewLogger("Importer"),
	}
}

func (am *AssetManager) Registry() *Registry { return am.registry }

func (am *AssetManager) Index() *resources.Index { return am.index }

// State returns the import state of the asset at the absolute source path.
func (am *AssetManager) State(path string) AssetState {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return am.states[normalize(path)]
}

func (am *AssetManager) setState(path string, state AssetState) {
	am.mutex.Lock()
	am.states[path] = state
	am.mutex.Unlock()
}

// QueueLen returns the number of assets waiting for conversion.
func (am *AssetManager) QueueLen() int {
	return am.queue.Len()
}

// LocalPath returns path relative to the content root with forward
// slashes. Files outside the content root are filed under .embedded/.
func (am *AssetManager) LocalPath(path string) string {
	root := am.project.ContentPath()
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ".embedded/" + filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

func (am *AssetManager) absolute(local string) string {
	return filepath.Join(am.project.ContentPath(), filepath.FromSlash(local))
}

// Rescan walks path and queues every stale asset. Up to date assets are
// registered in the index as they are. With force every asset is queued.
// It returns the number of assets queued.
func (am *AssetManager) Rescan(path string, force bool) int {
	queued := 0
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			am.logger.Warnf("cannot scan %s: %s", p, err)
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if p != path && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "."+SidecarExt) {
			return nil
		}
		if am.scanFile(p, force) {
			queued++
		}
		return nil
	})
	if err != nil {
		am.logger.Errorf("rescan of %s failed: %s", path, err)
	}
	am.logger.Debugf("rescan of %s queued %d assets", path, queued)
	return queued
}

func (am *AssetManager) scanFile(path string, force bool) bool {
	s := am.registry.SettingsFor(path)
	if s == nil {
		return false
	}
	key := s.Source()
	am.setState(key, StateScanned)

	if force || s.IsOutdated() {
		return am.PushToImport(s)
	}

	am.setState(key, StateUnchanged)
	if !s.IsCode() {
		am.registerSettings(s)
	}
	return false
}

// PushToImport queues s unless it is already queued. It reports whether s
// was added.
func (am *AssetManager) PushToImport(s *Settings) bool {
	if s == nil {
		return false
	}
	am.setState(s.Source(), StateStale)
	return am.queue.Push(s.Source(), s)
}

// Import drains the queue one asset at a time, ordered by resource type.
// A failing asset is logged and skipped. Once the queue is empty the index
// is cleaned up and saved and EVENT_CODE_IMPORT_FINISHED fires.
func (am *AssetManager) Import() ImportReport {
	var report ImportReport

	am.queue.SortStable(func(a, b *Settings) bool {
		return a.TypeName() < b.TypeName()
	})

	for {
		_, s, ok := am.queue.Pop()
		if !ok {
			break
		}
		switch am.convert(s) {
		case outcomeConverted:
			report.Converted = append(report.Converted, s.Source())
		case outcomeSkipped:
			report.Skipped = append(report.Skipped, s.Source())
		default:
			report.Failed = append(report.Failed, s.Source())
		}
	}

	am.finishImport()

	if len(report.Converted)+len(report.Failed)+len(report.Skipped) > 0 {
		am.logger.Infof("import finished: %d converted, %d failed, %d skipped",
			len(report.Converted), len(report.Failed), len(report.Skipped))
	}
	am.events.Fire(core.EVENT_CODE_IMPORT_FINISHED, am, core.EventContext{
		Success: len(report.Failed) == 0,
	})
	return report
}

func (am *AssetManager) finishImport() {
	for _, b := range am.registry.Builders() {
		if p, ok := b.(interface {
			PersistentAsset() string
			PersistentUUID() string
		}); ok && am.registry.IsActive(b) {
			if asset, uuid := p.PersistentAsset(), p.PersistentUUID(); asset != "" && uuid != "" {
				am.index.RegisterPersistent(asset, uuid)
			}
		}
	}

	am.cleanupBundle()
	if n := am.index.Cleanup(); n > 0 {
		am.logger.Debugf("dropped %d stale index entries", n)
	}
	am.index.Settings = resources.IndexSettings{
		Entry:   am.project.FirstMap,
		Company: am.project.Company,
		Project: am.project.Name,
	}
	if err := am.index.Save(am.project.IndexPath()); err != nil {
		am.logger.Errorf("cannot save index: %s", err)
	}
}

// cleanupBundle removes files from the import directory that no index
// entry refers to.
func (am *AssetManager) cleanupBundle() {
	dir := am.project.ImportPath()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if am.index.UUIDToPath(e.Name()) == "" {
			am.logger.Debugf("removing orphaned resource %s", e.Name())
			os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}

// convert runs the converter for s. A skipped asset keeps its previous
// output and its hash is not committed.
func (am *AssetManager) convert(s *Settings) convertOutcome {
	source := s.Source()
	conv := am.registry.ConverterFor(source)
	if conv == nil {
		am.logger.Debugf("no converter for %s", source)
		am.setState(source, StateFailed)
		return outcomeFailed
	}

	am.setState(source, StateConverting)
	s.SetSubItemsDirty()

	clock := core.NewClock()
	clock.Start()
	result := safeConvert(conv, s)
	if result == CopyAsIs {
		result = copyAsIs(s)
	}
	clock.Stop()

	if result == Skipped {
		am.logger.Debugf("skipped %s", source)
		am.setState(source, StateUnchanged)
		return outcomeSkipped
	}
	if result != Success {
		am.logger.Errorf("failed to convert %s: %s", am.LocalPath(source), result)
		am.setState(source, StateFailed)
		s.SetValid(false)
		am.metrics.ConversionDone(clock.Elapsed(), false)
		return outcomeFailed
	}

	am.logger.Infof("converted %s (%s)", am.LocalPath(source), clock.Elapsed())
	am.metrics.ConversionDone(clock.Elapsed(), true)

	s.CommitConversion()
	importDir := filepath.Dir(s.AbsoluteDestination())
	for _, uuid := range s.PruneDirty() {
		os.Remove(filepath.Join(importDir, uuid))
	}

	if !s.IsCode() {
		am.registerSettings(s)
		am.registry.Alias(s)
		for _, key := range s.SubKeys() {
			info := s.SubInfo(key)
			if _, err := os.Stat(filepath.Join(importDir, info.UUID)); err == nil {
				am.events.Fire(core.EVENT_CODE_ASSET_IMPORTED, am, core.EventContext{
					Path:    source + "/" + key,
					UUID:    info.UUID,
					Success: true,
				})
			}
		}
	}
	am.events.Fire(core.EVENT_CODE_ASSET_IMPORTED, am, core.EventContext{
		Path:    source,
		UUID:    s.Destination(),
		Success: true,
	})

	if err := s.SaveSettings(); err != nil {
		am.logger.Errorf("cannot save settings for %s: %s", source, err)
	}
	am.setState(source, StateConverted)
	return outcomeConverted
}

func safeConvert(conv Converter, s *Settings) (result ReturnCode) {
	defer func() {
		if r := recover(); r != nil {
			core.LogCritical("converter %s panicked on %s: %v", conv.ContentType(), s.Source(), r)
			result = InternalError
		}
	}()
	return conv.ConvertFile(s)
}

func copyAsIs(s *Settings) ReturnCode {
	data, err := os.ReadFile(s.Source())
	if err != nil {
		return InternalError
	}
	if err := os.MkdirAll(filepath.Dir(s.AbsoluteDestination()), 0o755); err != nil {
		return InternalError
	}
	if err := os.WriteFile(s.AbsoluteDestination(), data, 0o644); err != nil {
		return InternalError
	}
	return Success
}

func (am *AssetManager) registerSettings(s *Settings) {
	local := am.LocalPath(s.Source())
	am.index.Register(local, s.Info())
	for _, key := range s.SubKeys() {
		am.index.Register(local+"/"+key, s.SubInfo(key))
	}
}

// AssetTypeName returns the resource type of a local path, which may name a
// sub-item ("model.obj/cube").
func (am *AssetManager) AssetTypeName(local string) string {
	if s := am.registry.SettingsFor(am.absolute(local)); s != nil {
		return s.TypeName()
	}
	dir, sub := filepath.Split(local)
	if s := am.registry.SettingsFor(am.absolute(strings.TrimSuffix(dir, "/"))); s != nil {
		return s.SubType(sub)
	}
	return ""
}

// RemoveResource deletes a source asset, or a directory of them, together
// with its settings, resources and index entries.
func (am *AssetManager) RemoveResource(local string) error {
	path := am.absolute(local)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrAssetNotFound, local)
	}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), "."+SidecarExt) {
				continue
			}
			if err := am.RemoveResource(local + "/" + e.Name()); err != nil {
				return err
			}
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		return am.index.Save(am.project.IndexPath())
	}

	s := am.registry.SettingsFor(path)
	if err := am.drop(path, local, s, true); err != nil {
		return err
	}
	am.logger.Infof("removed %s", local)
	return am.index.Save(am.project.IndexPath())
}

// SourceRemoved cleans up after a source that was deleted outside the
// builder, typically reported by the Watcher. A path that is not an asset
// is treated as a removed directory and every asset below it is dropped.
func (am *AssetManager) SourceRemoved(path string) error {
	path = normalize(path)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	s := am.registry.Cached(path)
	local := am.LocalPath(path)
	if s == nil && am.index.PathToUUID(local) == "" {
		if am.dropTree(path, local) == 0 {
			return fmt.Errorf("%w: %s", core.ErrAssetNotFound, local)
		}
		am.logger.Infof("%s was deleted", local)
		return am.index.Save(am.project.IndexPath())
	}
	if err := am.drop(path, local, s, false); err != nil {
		return err
	}
	am.logger.Infof("%s was deleted", local)
	return am.index.Save(am.project.IndexPath())
}

// dropTree drops every cached or indexed asset below the directory dir and
// returns how many were dropped.
func (am *AssetManager) dropTree(dir, local string) int {
	dropped := 0
	for _, s := range am.registry.CachedUnder(dir) {
		if err := am.drop(s.Source(), am.LocalPath(s.Source()), s, false); err != nil {
			am.logger.Warnf("cannot drop %s: %s", s.Source(), err)
			continue
		}
		dropped++
	}
	// assets indexed in an earlier run but never loaded in this one
	for _, p := range am.index.PathsUnder(local) {
		if am.index.IsPersistent(p) {
			continue
		}
		if err := am.drop(am.absolute(p), p, nil, false); err != nil {
			am.logger.Warnf("cannot drop %s: %s", p, err)
			continue
		}
		dropped++
	}
	am.mutex.Lock()
	for k := range am.states {
		if strings.HasPrefix(k, dir+string(filepath.Separator)) {
			delete(am.states, k)
		}
	}
	am.mutex.Unlock()
	return dropped
}

// drop unregisters the asset at path and deletes everything derived from
// it. The source itself is only deleted with removeSource.
func (am *AssetManager) drop(path, local string, s *Settings, removeSource bool) error {
	importDir := am.project.ImportPath()
	uuid := am.index.Unregister(local)
	if uuid == "" && s != nil {
		uuid = s.Destination()
	}
	if uuid != "" {
		os.Remove(filepath.Join(importDir, uuid))
		os.Remove(filepath.Join(am.project.IconPath(), uuid+".png"))
	}
	if s != nil {
		for _, key := range s.SubKeys() {
			am.index.Unregister(local + "/" + key)
			os.Remove(filepath.Join(importDir, s.SubItem(key, false)))
		}
	}

	os.Remove(path + "." + SidecarExt)
	if removeSource {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	am.registry.Forget(path)
	am.mutex.Lock()
	delete(am.states, path)
	am.mutex.Unlock()

	if s != nil && s.IsCode() {
		for _, b := range am.registry.Builders() {
			if am.registry.IsActive(b) {
				b.RescanSources(am.project.ContentPath())
				if !b.IsEmpty() {
					b.MakeOutdated()
				}
			}
		}
	}

	am.events.Fire(core.EVENT_CODE_ASSET_REMOVED, am, core.EventContext{Path: path, UUID: uuid})
	return nil
}

// RenameResource moves a source asset, or a directory, inside the content
// tree. Identifiers are preserved so references keep resolving.
func (am *AssetManager) RenameResource(oldLocal, newLocal string) error {
	if oldLocal == newLocal {
		return nil
	}
	src, dst := am.absolute(oldLocal), am.absolute(newLocal)
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrAssetNotFound, oldLocal)
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%w: %s", core.ErrAssetExists, newLocal)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		return err
	}

	if !info.IsDir() {
		if err := os.Rename(src+"."+SidecarExt, dst+"."+SidecarExt); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	am.index.Rekey(oldLocal, newLocal)
	am.registry.Rekey(src, dst)

	am.mutex.Lock()
	for path, state := range am.states {
		if path == src || strings.HasPrefix(path, src+string(filepath.Separator)) {
			delete(am.states, path)
			am.states[dst+path[len(src):]] = state
		}
	}
	am.mutex.Unlock()

	if !info.IsDir() {
		if s := am.registry.SettingsFor(dst); s != nil {
			if r, ok := am.registry.ConverterFor(dst).(Renamer); ok {
				r.RenameAsset(s, baseName(src), baseName(dst))
			}
		}
	}

	am.logger.Infof("renamed %s to %s", oldLocal, newLocal)
	return am.index.Save(am.project.IndexPath())
}

func baseName(path string) string {
	name := filepath.Base(path)
	if i := strings.Index(name, "."); i > 0 {
		return name[:i]
	}
	return name
}

// DuplicateResource copies a source asset next to itself under a free
// name. The copy gets new identifiers for itself and its sub-items and
// starts with copies of the original's resources. It returns the new local
// path.
func (am *AssetManager) DuplicateResource(local string) (string, error) {
	src := am.absolute(local)
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("%w: %s", core.ErrAssetNotFound, local)
	}

	dir := filepath.Dir(src)
	name, suffix := splitName(filepath.Base(src))
	if info.IsDir() {
		name, suffix = filepath.Base(src), ""
	}
	target := filepath.Join(dir, FindFreeName(dir, name, suffix)+suffix)

	if info.IsDir() {
		if err := copyTree(src, target); err != nil {
			return "", err
		}
		am.Rescan(target, true)
		return am.LocalPath(target), nil
	}

	if err := copyFile(src, target); err != nil {
		return "", err
	}

	orig := am.registry.SettingsFor(src)
	if orig != nil {
		snapshot := orig.Snapshot()
		var dup SettingsFile
		if err := copier.CopyWithOption(&dup, &snapshot, copier.Option{DeepCopy: true}); err != nil {
			return "", err
		}
		importDir := am.project.ImportPath()
		dup.GUID = core.NewResourceID()
		copyFile(filepath.Join(importDir, snapshot.GUID), filepath.Join(importDir, dup.GUID))
		for key, item := range dup.SubItems {
			fresh := core.NewResourceID()
			copyFile(filepath.Join(importDir, item.UUID), filepath.Join(importDir, fresh))
			item.UUID = fresh
			dup.SubItems[key] = item
		}
		if err := WriteSettingsFile(target+"."+SidecarExt, dup); err != nil {
			return "", err
		}
	}

	if s := am.registry.SettingsFor(target); s != nil && !s.IsCode() {
		am.registerSettings(s)
	}
	am.logger.Infof("duplicated %s", local)
	return am.LocalPath(target), am.index.Save(am.project.IndexPath())
}

// ImportFile copies an external file into targetDir, relative to the
// content root unless absolute, under a free name.
func (am *AssetManager) ImportFile(source, targetDir string) (string, error) {
	dir := targetDir
	if !filepath.IsAbs(dir) {
		dir = am.absolute(targetDir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name, suffix := splitName(filepath.Base(source))
	target := filepath.Join(dir, FindFreeName(dir, name, suffix)+suffix)
	if err := copyFile(source, target); err != nil {
		return "", err
	}
	return target, nil
}

// CreateFromTemplate creates a new source asset at dst from the template
// of the converter owning its suffix.
func (am *AssetManager) CreateFromTemplate(dst string) error {
	conv := am.registry.ConverterFor(dst)
	tp, ok := conv.(TemplateProvider)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrNoConverter, dst)
	}
	return tp.CreateFromTemplate(dst)
}

// Templates lists the template files of every converter that has one.
func (am *AssetManager) Templates() []string {
	var out []string
	for _, c := range am.registry.Converters() {
		if tp, ok := c.(TemplateProvider); ok && tp.TemplatePath() != "" {
			out = append(out, tp.TemplatePath())
		}
	}
	return out
}

// FindFreeName returns name, or name followed by the smallest counter,
// such that dir/name+suffix does not exist.
func FindFreeName(dir, name, suffix string) string {
	candidate := name
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(dir, candidate+suffix)); os.IsNotExist(err) {
			return candidate
		}
		candidate = name + strconv.Itoa(i)
	}
}

func splitName(base string) (string, string) {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if strings.HasSuffix(p, "."+SidecarExt) {
			return nil
		}
		return copyFile(p, target)
	})
}

// ConversionStats exposes the running averages for status output.
func (am *AssetManager) ConversionStats() (converted, failed int, avg time.Duration) {
	converted, failed = am.metrics.Counts()
	return converted, failed, am.metrics.AverageConversion()
}
