package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/mattn/go-shellwords"
	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/platform"
)

const (
	ContentDir    = "content"
	PluginsDir    = "plugins"
	CacheDir      = ".cache"
	ImportDir     = "import"
	ThumbnailsDir = "thumbnails"
	GeneratedDir  = "generated"
	IndexFile     = "index.yaml"

	ConfigDebug   = "debug"
	ConfigRelease = "release"
)

type ToolchainSettings struct {
	// GoBinary is the go command used by the native builders.
	GoBinary string `toml:"goBinary,omitempty"`
	// ExtraArgs is appended to every toolchain build invocation.
	ExtraArgs string `toml:"extraArgs,omitempty"`
}

// Args splits ExtraArgs the way a shell would.
func (t ToolchainSettings) Args() ([]string, error) {
	if strings.TrimSpace(t.ExtraArgs) == "" {
		return nil, nil
	}
	return shellwords.Parse(t.ExtraArgs)
}

func (t ToolchainSettings) Go() string {
	if t.GoBinary == "" {
		return "go"
	}
	return t.GoBinary
}

// ProjectSettings is the content of a project file plus the directory
// layout derived from its location.
type ProjectSettings struct {
	Name       string            `toml:"name"`
	Company    string            `toml:"company,omitempty"`
	Version    string            `toml:"version,omitempty"`
	ID         string            `toml:"id,omitempty"`
	SDK        string            `toml:"sdk,omitempty"`
	SDKVersion string            `toml:"sdkVersion,omitempty"`
	FirstMap   string            `toml:"firstMap,omitempty"`
	Platforms  []string          `toml:"platforms,omitempty"`
	Modules    []string          `toml:"modules,omitempty"`
	Config     string            `toml:"config,omitempty"`
	Toolchain  ToolchainSettings `toml:"toolchain,omitempty"`

	projectFile     string
	root            string
	targetPath      string
	currentPlatform string
	importPath      string
	artifact        string
}

// Load reads a project file and prepares the project directory layout.
func Load(path string) (*ProjectSettings, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidProject, err)
	}

	ps := &ProjectSettings{}
	if err := toml.Unmarshal(data, ps); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrInvalidProject, abs, err)
	}
	ps.projectFile = abs
	ps.root = filepath.Dir(abs)

	if ps.Name == "" {
		ps.Name = strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	}
	if ps.ID == "" {
		ps.ID = core.NewResourceID()
	}
	switch ps.Config {
	case "":
		ps.Config = ConfigRelease
	case ConfigDebug, ConfigRelease:
	default:
		return nil, fmt.Errorf("%w: unknown config %q", core.ErrInvalidProject, ps.Config)
	}
	if ps.SDK != "" {
		if ps.SDK, err = homedir.Expand(ps.SDK); err != nil {
			return nil, fmt.Errorf("%w: sdk path: %v", core.ErrInvalidProject, err)
		}
	}
	if _, err := ps.Toolchain.Args(); err != nil {
		return nil, fmt.Errorf("%w: toolchain args: %v", core.ErrInvalidProject, err)
	}

	for _, dir := range []string{ps.ContentPath(), ps.PluginsPath(), ps.IconPath(), ps.GeneratedPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := ps.SetCurrentPlatform(""); err != nil {
		return nil, err
	}
	return ps, nil
}

func (ps *ProjectSettings) Save() error {
	data, err := toml.Marshal(ps)
	if err != nil {
		return err
	}
	return os.WriteFile(ps.projectFile, data, 0o644)
}

func (ps *ProjectSettings) ProjectFile() string   { return ps.projectFile }
func (ps *ProjectSettings) ProjectPath() string   { return ps.root }
func (ps *ProjectSettings) ContentPath() string   { return filepath.Join(ps.root, ContentDir) }
func (ps *ProjectSettings) PluginsPath() string   { return filepath.Join(ps.root, PluginsDir) }
func (ps *ProjectSettings) CachePath() string     { return filepath.Join(ps.root, CacheDir) }
func (ps *ProjectSettings) IconPath() string      { return filepath.Join(ps.CachePath(), ThumbnailsDir) }
func (ps *ProjectSettings) GeneratedPath() string { return filepath.Join(ps.CachePath(), GeneratedDir) }
func (ps *ProjectSettings) ImportPath() string    { return ps.importPath }
func (ps *ProjectSettings) TargetPath() string    { return ps.targetPath }
func (ps *ProjectSettings) Artifact() string      { return ps.artifact }
func (ps *ProjectSettings) IsDebug() bool         { return ps.Config == ConfigDebug }

// IndexPath is kept outside the import directory so that packaging only
// ever sees resource binaries.
func (ps *ProjectSettings) IndexPath() string {
	return filepath.Join(filepath.Dir(ps.importPath), IndexFile)
}

func (ps *ProjectSettings) SetArtifact(path string) {
	ps.artifact = path
}

// SetTargetPath switches the project into deployment mode. An empty target
// means the live editor.
func (ps *ProjectSettings) SetTargetPath(target string) error {
	if target == "" {
		ps.targetPath = ""
		return nil
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return err
	}
	ps.targetPath = abs
	return nil
}

func (ps *ProjectSettings) CurrentPlatformName() string {
	return ps.currentPlatform
}

func (ps *ProjectSettings) CurrentPlatform() platform.Platform {
	p, _ := platform.Lookup(ps.currentPlatform)
	return p
}

// SetCurrentPlatform selects the build target. The empty name is the host
// desktop with the shared import directory; any named platform gets its own.
func (ps *ProjectSettings) SetCurrentPlatform(name string) error {
	if _, ok := platform.Lookup(name); !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownPlatform, name)
	}
	if name == "" {
		ps.currentPlatform = platform.Desktop
		ps.importPath = filepath.Join(ps.CachePath(), ImportDir)
	} else {
		ps.currentPlatform = name
		ps.importPath = filepath.Join(ps.CachePath(), name, ImportDir)
	}
	return os.MkdirAll(ps.importPath, 0o755)
}

// PlatformList returns the platforms requested by the project, or supported
// when the project does not name any.
func (ps *ProjectSettings) PlatformList(supported []string) []string {
	if len(ps.Platforms) == 0 {
		return append([]string(nil), supported...)
	}
	return append([]string(nil), ps.Platforms...)
}

// RequiresReimport reports whether the project was last imported with an
// older SDK than builderVersion. Unparseable or missing versions force it.
func (ps *ProjectSettings) RequiresReimport(builderVersion string) bool {
	current, err := semver.NewVersion(builderVersion)
	if err != nil {
		return false
	}
	if ps.SDKVersion == "" {
		return true
	}
	recorded, err := semver.NewVersion(ps.SDKVersion)
	if err != nil {
		return true
	}
	return recorded.LessThan(current)
}
