package builder

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-builder/engine/assets"
	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/resources"
)

const (
	blockBegin = "//+"
	blockEnd   = "//-"
)

// BaseBuilder carries the state every code builder shares: the set of
// source files it compiles, the outdated flag and the values substituted
// into its project templates.
type BaseBuilder struct {
	mu sync.Mutex

	name      string
	suffixes  []string
	templates fs.FS

	sources  []string
	outdated bool
	// generation is bumped by every MakeOutdated so a build only clears the
	// flag when no source changed while it was running.
	generation uint64

	tokens map[string]string
	blocks map[string]string

	logger *core.Logger
}

func NewBaseBuilder(name string, suffixes []string, templates fs.FS) *BaseBuilder {
	return &BaseBuilder{
		name:      name,
		suffixes:  suffixes,
		templates: templates,
		tokens:    make(map[string]string),
		blocks:    make(map[string]string),
		logger:    core.NewLogger(name),
	}
}

func (b *BaseBuilder) Name() string { return b.name }

func (b *BaseBuilder) Suffixes() []string { return append([]string(nil), b.suffixes...) }

func (b *BaseBuilder) ContentType() string { return resources.ResourceTypeCode.String() }

func (b *BaseBuilder) CreateSettings() *assets.Settings { return assets.NewCodeSettings() }

// ConvertFile has nothing to write for a single source. The change only
// invalidates the compiled module.
func (b *BaseBuilder) ConvertFile(s *assets.Settings) assets.ReturnCode {
	b.MakeOutdated()
	return assets.Success
}

func (b *BaseBuilder) accepts(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if strings.HasPrefix(base, ".") {
		return false
	}
	i := strings.Index(base, ".")
	if i <= 0 {
		return false
	}
	complete := base[i+1:]
	last := strings.TrimPrefix(filepath.Ext(base), ".")
	for _, s := range b.suffixes {
		s = strings.ToLower(strings.TrimPrefix(s, "."))
		if s == complete || s == last {
			return true
		}
	}
	return false
}

// RescanSources replaces the source set with every accepted file below root.
func (b *BaseBuilder) RescanSources(root string) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if b.accepts(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		b.logger.Warnf("rescan of %s failed: %s", root, err)
	}
	slices.Sort(found)
	found = slices.Compact(found)

	b.mu.Lock()
	b.sources = found
	b.mu.Unlock()
}

func (b *BaseBuilder) Sources() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sources...)
}

func (b *BaseBuilder) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sources) == 0
}

func (b *BaseBuilder) MakeOutdated() {
	b.mu.Lock()
	b.outdated = true
	b.generation++
	b.mu.Unlock()
}

func (b *BaseBuilder) IsOutdated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outdated
}

func (b *BaseBuilder) snapshotGeneration() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

// clearOutdated resets the flag unless it was raised again after gen.
func (b *BaseBuilder) clearOutdated(gen uint64) {
	b.mu.Lock()
	if b.generation == gen {
		b.outdated = false
	}
	b.mu.Unlock()
}

// SetToken sets the value substituted for ${name}.
func (b *BaseBuilder) SetToken(name, value string) {
	b.mu.Lock()
	b.tokens["${"+name+"}"] = value
	b.mu.Unlock()
}

// SetTokens merges values keyed by their ${name} placeholder.
func (b *BaseBuilder) SetTokens(values map[string]string) {
	b.mu.Lock()
	for k, v := range values {
		b.tokens[k] = v
	}
	b.mu.Unlock()
}

// SetBlock sets the content generated between //+name and //- markers.
func (b *BaseBuilder) SetBlock(name, content string) {
	b.mu.Lock()
	b.blocks[name] = content
	b.mu.Unlock()
}

func (b *BaseBuilder) replaceTokens(text string) string {
	b.mu.Lock()
	pairs := make([]string, 0, 2*len(b.tokens))
	for k, v := range b.tokens {
		pairs = append(pairs, k, v)
	}
	b.mu.Unlock()
	if len(pairs) == 0 {
		return text
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// fillBlocks regenerates every known block. Text outside the markers is
// kept as is; a block without a closing marker is left untouched.
func (b *BaseBuilder) fillBlocks(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		out = append(out, line)

		key, ok := strings.CutPrefix(strings.TrimSpace(line), blockBegin)
		if !ok {
			continue
		}
		content, known := b.blocks[strings.TrimSpace(key)]
		if !known {
			continue
		}
		end := -1
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == blockEnd {
				end = j
				break
			}
		}
		if end < 0 {
			continue
		}
		if content != "" {
			out = append(out, strings.Split(strings.TrimRight(content, "\n"), "\n")...)
		}
		out = append(out, lines[end])
		i = end
	}
	return strings.Join(out, "\n")
}

func (b *BaseBuilder) readTemplate(src string) ([]byte, error) {
	if b.templates == nil {
		return nil, fmt.Errorf("%s: no templates available for %s", b.name, src)
	}
	return fs.ReadFile(b.templates, src)
}

// UpdateTemplate regenerates dst. An existing dst is updated in place so
// edits outside the generated blocks survive; otherwise it is created from
// the src template. The file is only rewritten when its content changes.
func (b *BaseBuilder) UpdateTemplate(src, dst string) error {
	data, err := os.ReadFile(dst)
	if errors.Is(err, fs.ErrNotExist) {
		data, err = b.readTemplate(src)
	}
	if err != nil {
		return err
	}
	return writeIfChanged(dst, []byte(b.fillBlocks(b.replaceTokens(string(data)))))
}

// CopyTemplate always recreates dst from the src template.
func (b *BaseBuilder) CopyTemplate(src, dst string) error {
	data, err := b.readTemplate(src)
	if err != nil {
		return err
	}
	return writeIfChanged(dst, []byte(b.fillBlocks(b.replaceTokens(string(data)))))
}

func writeIfChanged(path string, data []byte) error {
	if old, err := os.ReadFile(path); err == nil && bytes.Equal(old, data) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// FormatList wraps every item with prefix and suffix and joins them.
func FormatList(list []string, prefix, suffix, sep string) string {
	var sb strings.Builder
	for i, item := range list {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(prefix)
		sb.WriteString(item)
		sb.WriteString(suffix)
	}
	return sb.String()
}

// RenameAsset renames the type declared by a code asset along with its
// constructor calls and pointer uses.
func (b *BaseBuilder) RenameAsset(s *assets.Settings, oldName, newName string) {
	if oldName == "" || oldName == newName {
		return
	}
	data, err := os.ReadFile(s.Source())
	if err != nil {
		b.logger.Warnf("cannot rename %s: %s", s.Source(), err)
		return
	}

	old := regexp.QuoteMeta(oldName)
	text := string(data)
	text = regexp.MustCompile(`\btype\s+`+old+`\b`).ReplaceAllString(text, "type "+newName)
	text = regexp.MustCompile(`\b`+old+`\(`).ReplaceAllString(text, newName+"(")
	text = regexp.MustCompile(`\*`+old+`\b`).ReplaceAllString(text, "*"+newName)
	text = regexp.MustCompile(`&`+old+`\{`).ReplaceAllString(text, "&"+newName+"{")

	if text == string(data) {
		return
	}
	if err := os.WriteFile(s.Source(), []byte(text), 0o644); err != nil {
		b.logger.Errorf("cannot rename %s: %s", s.Source(), err)
		return
	}
	b.MakeOutdated()
}
