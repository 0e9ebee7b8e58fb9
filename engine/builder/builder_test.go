package builder

import (
	"bufio"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-builder/engine/assets"
	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/platform"
	"github.com/spaghettifunk/anima-builder/engine/project"
)

func loadProject(t *testing.T) *project.ProjectSettings {
	t.Helper()
	file := filepath.Join(t.TempDir(), "demo.toml")
	require.NoError(t, os.WriteFile(file, []byte("name = \"demo\"\nversion = \"0.1.0\"\n"), 0o644))
	ps, err := project.Load(file)
	require.NoError(t, err)
	return ps
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestUpdateTemplateTokensAndBlocks(t *testing.T) {
	templates := fstest.MapFS{
		"a.tmpl": {Data: []byte("name=${projectName}\n//+List\nstale\n//-\nend ${missing}\n")},
	}
	b := NewBaseBuilder("Test", []string{"go"}, templates)
	b.SetToken("projectName", "Demo")
	b.SetBlock("List", "x\ny")

	dst := filepath.Join(t.TempDir(), "out", "a.txt")
	require.NoError(t, b.UpdateTemplate("a.tmpl", dst))
	assert.Equal(t, "name=Demo\n//+List\nx\ny\n//-\nend ${missing}\n", readFile(t, dst))

	// edits outside the block survive an update
	writeFile(t, dst, "// mine\n"+readFile(t, dst))
	b.SetBlock("List", "z")
	require.NoError(t, b.UpdateTemplate("a.tmpl", dst))
	assert.Equal(t, "// mine\nname=Demo\n//+List\nz\n//-\nend ${missing}\n", readFile(t, dst))

	// a copy starts over from the template
	require.NoError(t, b.CopyTemplate("a.tmpl", dst))
	assert.Equal(t, "name=Demo\n//+List\nz\n//-\nend ${missing}\n", readFile(t, dst))
}

func TestUpdateTemplateEdgeCases(t *testing.T) {
	templates := fstest.MapFS{
		"open.tmpl":  {Data: []byte("//+List\nkeep\n")},
		"empty.tmpl": {Data: []byte("//+List\nold\n//-\n")},
		"other.tmpl": {Data: []byte("//+Unknown\nkeep\n//-\n")},
	}
	b := NewBaseBuilder("Test", []string{"go"}, templates)
	b.SetBlock("List", "new")
	dir := t.TempDir()

	require.NoError(t, b.UpdateTemplate("open.tmpl", filepath.Join(dir, "open")))
	assert.Equal(t, "//+List\nkeep\n", readFile(t, filepath.Join(dir, "open")))

	require.NoError(t, b.UpdateTemplate("other.tmpl", filepath.Join(dir, "other")))
	assert.Equal(t, "//+Unknown\nkeep\n//-\n", readFile(t, filepath.Join(dir, "other")))

	b.SetBlock("List", "")
	require.NoError(t, b.UpdateTemplate("empty.tmpl", filepath.Join(dir, "empty")))
	assert.Equal(t, "//+List\n//-\n", readFile(t, filepath.Join(dir, "empty")))

	err := b.UpdateTemplate("missing.tmpl", filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFormatList(t *testing.T) {
	assert.Equal(t, `"a", "b"`, FormatList([]string{"a", "b"}, `"`, `"`, ", "))
	assert.Equal(t, "", FormatList(nil, "<", ">", ","))
	assert.Equal(t, "<a>", FormatList([]string{"a"}, "<", ">", ","))
}

func TestRescanSources(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, filepath.Join(root, "a.go"), "package game")
	b := writeFile(t, filepath.Join(root, "sub", "b.GO"), "package game")
	writeFile(t, filepath.Join(root, "c.txt"), "text")
	writeFile(t, filepath.Join(root, ".hidden", "d.go"), "package game")
	writeFile(t, filepath.Join(root, "e.go.set"), "")

	builder := NewBaseBuilder("Test", []string{"go"}, nil)
	assert.True(t, builder.IsEmpty())
	builder.RescanSources(root)
	assert.Equal(t, []string{a, b}, builder.Sources())
	assert.False(t, builder.IsEmpty())

	require.NoError(t, os.Remove(a))
	builder.RescanSources(root)
	assert.Equal(t, []string{b}, builder.Sources())
}

func TestConvertFileMarksOutdated(t *testing.T) {
	b := NewBaseBuilder("Test", []string{"go"}, nil)
	assert.False(t, b.IsOutdated())
	s := b.CreateSettings()
	assert.True(t, s.IsCode())
	assert.Equal(t, assets.Success, b.ConvertFile(s))
	assert.True(t, b.IsOutdated())
}

func TestDiscoverComponents(t *testing.T) {
	dir := t.TempDir()
	one := writeFile(t, filepath.Join(dir, "one.go"), `package game

//anima:component
type Player struct {
	Speed float32
}

//anima:component
// Enemy chases the player.
type Enemy struct{}

type Untagged struct{}

//anima:component
func notAType() {}

type Later struct{}
`)
	two := writeFile(t, filepath.Join(dir, "two.go"), "package game\n\n//anima:component\ntype Player struct{}\n")

	found := DiscoverComponents([]string{one, two, filepath.Join(dir, "missing.go")})
	assert.Equal(t, []string{"Enemy", "Player"}, found)
	assert.Equal(t, "\tr.Register(\"Enemy\", func() any { return &Enemy{} })\n", registrationBlock([]string{"Enemy"}))
}

func TestRenameAsset(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "player.go"),
		"package game\n\ntype Player struct{}\n\nfunc spawn() *Player { return &Player{} }\n\nfunc NewPlayer() Player { return Player() }\n")
	s := assets.NewCodeSettings()
	s.SetSource(path)

	b := NewBaseBuilder("Test", []string{"go"}, nil)
	b.RenameAsset(s, "Player", "Hero")

	assert.Equal(t,
		"package game\n\ntype Hero struct{}\n\nfunc spawn() *Hero { return &Hero{} }\n\nfunc NewPlayer() Player { return Hero() }\n",
		readFile(t, path))
	assert.True(t, b.IsOutdated())
}

func TestClassifyLine(t *testing.T) {
	cases := map[string]Severity{
		"./player.go:12:3: undefined: foo":   SeverityError,
		"game/enemy.go:4: syntax error":      SeverityError,
		"ld: error: cannot find -lfoo":       SeverityError,
		"compile error in package":           SeverityError,
		"cc1: warning: command line option":  SeverityWarning,
		"# demo/game":                        SeverityInfo,
		"go: downloading example.com v1.0.0": SeverityInfo,
		"0 errors found":                     SeverityInfo,
	}
	for line, want := range cases {
		assert.Equal(t, want, ClassifyLine(line), line)
	}
}

func TestLogOutput(t *testing.T) {
	logger := core.NewLogger("test")
	output := "./a.go:1:1: undefined: x\ncc1: warning: slow\n\nok\n"
	errs, warnings, err := logOutput(logger, []byte(output))
	require.NoError(t, err)
	assert.Equal(t, 1, errs)
	assert.Equal(t, 1, warnings)

	long := strings.Repeat("x", 2*1024*1024)
	errs, _, err = logOutput(logger, []byte("./a.go:1:1: first\n"+long+"\n./b.go:2:2: lost\n"))
	assert.ErrorIs(t, err, bufio.ErrTooLong)
	assert.Equal(t, 1, errs)
}

func TestGenerateProject(t *testing.T) {
	ps := loadProject(t)
	player := writeFile(t, filepath.Join(ps.ContentPath(), "scripts", "player.go"),
		"package game\n\n//anima:component\ntype Player struct{}\n")
	nb := NewNativeCodeBuilder(Options{Toolchain: GoToolchain{}, Project: ps})

	ctx, err := nb.GenerateProject()
	require.NoError(t, err)
	assert.True(t, ctx.Editor)
	assert.Equal(t, []string{player}, ctx.Sources)
	assert.Equal(t, []string{"Player"}, ctx.Components)

	root := ps.GeneratedPath()
	assert.Contains(t, readFile(t, filepath.Join(root, "go.mod")), "module demo")
	components := readFile(t, filepath.Join(root, "game", ComponentsFile))
	assert.Contains(t, components, `r.Register("Player", func() any { return &Player{} })`)
	assert.Contains(t, components, "\t\"Player\",\n")
	assert.FileExists(t, filepath.Join(root, "game", "scripts_player.go"))
	assert.FileExists(t, filepath.Join(root, "plugin.go"))
	assert.NoFileExists(t, filepath.Join(root, "main.go"))
	assert.Contains(t, readFile(t, filepath.Join(root, "plugin.go")), `"demo/game"`)

	// a deleted source disappears from the generated project
	require.NoError(t, os.Remove(player))
	require.NoError(t, ps.SetTargetPath(t.TempDir()))
	_, err = nb.GenerateProject()
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(root, "game", "scripts_player.go"))
	assert.NotContains(t, readFile(t, filepath.Join(root, "game", ComponentsFile)), "Player")
	assert.FileExists(t, filepath.Join(root, "main.go"))
	assert.NoFileExists(t, filepath.Join(root, "plugin.go"))
}

func TestGoToolchainCommand(t *testing.T) {
	ps := loadProject(t)
	ctx := &BuildContext{Project: ps, Platform: platform.Host(), Editor: true}

	inv, err := GoToolchain{}.Command(ctx)
	require.NoError(t, err)
	assert.Equal(t, "go", inv.Program)
	assert.Equal(t, ps.GeneratedPath(), inv.Dir)
	assert.Equal(t, []string{"build", "-buildmode=plugin", "-o", filepath.Join(ps.PluginsPath(), "demo.so"), "-trimpath", "-ldflags=-s -w", "."}, inv.Args)
	assert.Equal(t, "1", inv.Env.Value("CGO_ENABLED"))

	ctx.Editor = false
	inv, err = GoToolchain{}.Command(ctx)
	require.NoError(t, err)
	assert.NotContains(t, inv.Args, "-buildmode=plugin")
	assert.Contains(t, inv.Args, filepath.Join(ps.GeneratedPath(), "bin", platform.Desktop, "demo"+platform.Host().ExecutableSuffix()))
	assert.Equal(t, PackagingAfter, GoToolchain{}.PackagingMode())

	ps.Config = project.ConfigDebug
	ps.Toolchain.ExtraArgs = "-v"
	inv, err = GoToolchain{}.Command(ctx)
	require.NoError(t, err)
	assert.Contains(t, inv.Args, "-gcflags=all=-N -l")
	assert.Contains(t, inv.Args, "-v")
}

func TestWasmToolchainCommand(t *testing.T) {
	ps := loadProject(t)
	require.NoError(t, ps.SetCurrentPlatform(platform.Web))
	ctx := &BuildContext{Project: ps, Platform: ps.CurrentPlatform()}

	inv, err := WasmToolchain{}.Command(ctx)
	require.NoError(t, err)
	assert.Equal(t, "js", inv.Env.Value("GOOS"))
	assert.Equal(t, "wasm", inv.Env.Value("GOARCH"))
	assert.Equal(t, filepath.Join(ps.GeneratedPath(), "bin", platform.Web, "demo.wasm"), WasmToolchain{}.Artifact(ctx))
	assert.Equal(t, PackagingBefore, WasmToolchain{}.PackagingMode())

	tc, ok := ToolchainFor(platform.Web)
	require.True(t, ok)
	assert.Equal(t, "WasmBuilder", tc.Name())
	tc, ok = ToolchainFor("")
	require.True(t, ok)
	assert.Equal(t, "GoBuilder", tc.Name())
	_, ok = ToolchainFor("console")
	assert.False(t, ok)
}

// scriptToolchain runs a shell script in place of a compiler.
type scriptToolchain struct {
	program string
	script  string
	mode    PackagingMode
}

func (scriptToolchain) Name() string { return "ScriptBuilder" }

func (scriptToolchain) Suffixes() []string { return []string{"go"} }

func (scriptToolchain) Platforms() []string { return []string{platform.Desktop} }

func (scriptToolchain) Templates() fs.FS { return templatesFS() }

func (scriptToolchain) Prepare(b *BaseBuilder, ctx *BuildContext) error {
	return prepareModule(b, ctx)
}

func (s scriptToolchain) PackagingMode() PackagingMode { return s.mode }

func (scriptToolchain) Artifact(ctx *BuildContext) string {
	return filepath.Join(ctx.OutputDir(), "module.bin")
}

func (s scriptToolchain) Command(ctx *BuildContext) (Invocation, error) {
	program := s.program
	if program == "" {
		program = "sh"
	}
	return Invocation{Program: program, Args: []string{"-c", s.script}, Dir: ctx.Root()}, nil
}

type recordingPackager struct {
	mu   sync.Mutex
	dirs []string
}

func (p *recordingPackager) Package(dir string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirs = append(p.dirs, dir)
	return filepath.Join(dir, "base.pak"), nil
}

type buildFixture struct {
	project  *project.ProjectSettings
	builder  *NativeCodeBuilder
	metrics  *core.Metrics
	packager *recordingPackager
	finished chan core.EventContext

	mu       sync.Mutex
	reloaded []string
}

func newBuildFixture(t *testing.T, tc Toolchain) *buildFixture {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	f := &buildFixture{
		project:  loadProject(t),
		metrics:  core.NewMetrics(),
		packager: &recordingPackager{},
		finished: make(chan core.EventContext, 4),
	}
	events := core.NewEventSystem()
	events.Register(core.EVENT_CODE_BUILD_FINISHED, f, func(_ core.SystemEventCode, _, _ interface{}, data core.EventContext) bool {
		f.finished <- data
		return false
	})
	f.builder = NewNativeCodeBuilder(Options{
		Toolchain: tc,
		Project:   f.project,
		Events:    events,
		Metrics:   f.metrics,
		Packager:  f.packager,
		Reloader: ReloaderFunc(func(artifact string) error {
			f.mu.Lock()
			f.reloaded = append(f.reloaded, artifact)
			f.mu.Unlock()
			return nil
		}),
	})
	return f
}

func (f *buildFixture) wait(t *testing.T) core.EventContext {
	t.Helper()
	select {
	case data := <-f.finished:
		return data
	case <-time.After(10 * time.Second):
		t.Fatal("build did not finish")
	}
	return core.EventContext{}
}

func TestBuildProjectSucceeds(t *testing.T) {
	f := newBuildFixture(t, scriptToolchain{script: "echo compiling; echo 'note: warning unused' 1>&2"})
	nb := f.builder
	assert.True(t, nb.IsOutdated())

	started, err := nb.BuildProject()
	require.NoError(t, err)
	assert.True(t, started)

	data := f.wait(t)
	assert.Equal(t, "ScriptBuilder", data.Name)
	assert.Equal(t, 0, data.ExitCode)
	assert.True(t, data.Success)

	artifact := filepath.Join(f.project.PluginsPath(), "module.bin")
	assert.False(t, nb.IsOutdated())
	assert.Equal(t, Idle, nb.State())
	assert.Equal(t, artifact, nb.Artifact())
	assert.Equal(t, artifact, f.project.Artifact())
	assert.Equal(t, []string{artifact}, f.reloaded)
	assert.Empty(t, f.packager.dirs)
	assert.Equal(t, 1, f.metrics.Builds)

	// up to date
	started, err = nb.BuildProject()
	assert.NoError(t, err)
	assert.False(t, started)
}

func TestBuildProjectPackagesDeployment(t *testing.T) {
	f := newBuildFixture(t, scriptToolchain{script: "exit 0", mode: PackagingAfter})
	require.NoError(t, f.project.SetTargetPath(t.TempDir()))

	_, err := f.builder.BuildProject()
	require.NoError(t, err)
	require.True(t, f.wait(t).Success)

	assert.Empty(t, f.reloaded)
	dir := filepath.Join(f.project.GeneratedPath(), "bin", platform.Desktop)
	assert.Equal(t, []string{dir}, f.packager.dirs)
	assert.Equal(t, filepath.Join(dir, "base.pak"), f.builder.Archive())
}

func TestBuildProjectFailureKeepsOutdated(t *testing.T) {
	f := newBuildFixture(t, scriptToolchain{script: "echo './main.go:1:1: boom' 1>&2; exit 2"})

	started, err := f.builder.BuildProject()
	require.NoError(t, err)
	require.True(t, started)

	data := f.wait(t)
	assert.Equal(t, 2, data.ExitCode)
	assert.False(t, data.Success)
	assert.True(t, f.builder.IsOutdated())
	assert.Empty(t, f.builder.Archive())
	assert.Empty(t, f.builder.Artifact())
	assert.Empty(t, f.reloaded)
	assert.Equal(t, 1, f.metrics.BuildFails)

	// never retried on its own
	select {
	case <-f.finished:
		t.Fatal("unexpected second build")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBuildProjectRejectsConcurrentBuild(t *testing.T) {
	f := newBuildFixture(t, scriptToolchain{script: "sleep 5"})
	nb := f.builder

	started, err := nb.BuildProject()
	require.NoError(t, err)
	require.True(t, started)
	assert.True(t, nb.IsBuilding())

	started, err = nb.BuildProject()
	assert.ErrorIs(t, err, core.ErrBuildInProgress)
	assert.False(t, started)

	nb.Kill()
	data := f.wait(t)
	assert.NotEqual(t, 0, data.ExitCode)
	assert.False(t, data.Success)
	assert.True(t, nb.IsOutdated())
	assert.False(t, nb.IsBuilding())
	assert.Empty(t, f.reloaded)
}

func TestBuildProjectSpawnFailure(t *testing.T) {
	f := newBuildFixture(t, scriptToolchain{program: filepath.Join(t.TempDir(), "missing-toolchain")})

	started, err := f.builder.BuildProject()
	assert.ErrorIs(t, err, core.ErrFailedToStart)
	assert.False(t, started)
	assert.True(t, f.builder.IsOutdated())
	assert.Equal(t, Idle, f.builder.State())
}

func TestSourceChangeDuringBuildKeepsOutdated(t *testing.T) {
	f := newBuildFixture(t, scriptToolchain{script: "sleep 0.3"})

	_, err := f.builder.BuildProject()
	require.NoError(t, err)
	f.builder.MakeOutdated()

	require.True(t, f.wait(t).Success)
	assert.True(t, f.builder.IsOutdated())
}

func TestPersistentModule(t *testing.T) {
	f := newBuildFixture(t, scriptToolchain{})
	assert.Equal(t, ".embedded/demo-module", f.builder.PersistentAsset())
	assert.Equal(t, f.project.ID, f.builder.PersistentUUID())
	assert.True(t, f.builder.IsNative())
	assert.Equal(t, []string{platform.Desktop}, f.builder.Platforms())
}
