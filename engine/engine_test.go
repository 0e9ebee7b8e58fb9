package engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-builder/engine/builder"
	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/packager"
	"github.com/spaghettifunk/anima-builder/engine/platform"
	"github.com/spaghettifunk/anima-builder/engine/resources"
)

func writeProject(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeContent(t *testing.T, projectFile, local string, data []byte) string {
	t.Helper()
	path := filepath.Join(filepath.Dir(projectFile), "content", filepath.FromSlash(local))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(1, 1, color.NRGBA{R: 10, A: 0xff})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func runContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// runOnce initializes an editor engine, imports everything and returns the
// exit code with the paths imported.
func runOnce(t *testing.T, projectFile string) (*Engine, int, []string) {
	t.Helper()
	e := New(Config{ProjectFile: projectFile})
	require.NoError(t, e.Initialize())

	var imported []string
	e.Events().Register(core.EVENT_CODE_ASSET_IMPORTED, t, func(_ core.SystemEventCode, _, _ interface{}, data core.EventContext) bool {
		imported = append(imported, data.Path)
		return false
	})
	e.Events().Register(core.EVENT_CODE_PIPELINE_FINISHED, t, func(_ core.SystemEventCode, _, _ interface{}, data core.EventContext) bool {
		if data.Success {
			e.Quit(ExitSuccess)
		} else {
			e.Quit(ExitFailure)
		}
		return false
	})
	e.Rescan(false)
	code := e.Run(runContext(t))
	return e, code, imported
}

func TestImportEndToEnd(t *testing.T) {
	file := writeProject(t, `name = "demo"`)
	writeContent(t, file, "foo.png", pngBytes(t))
	writeContent(t, file, "docs/readme.txt", []byte("hello"))

	e, code, imported := runOnce(t, file)
	require.Equal(t, ExitSuccess, code)
	assert.Len(t, imported, 2)

	uuid := e.Index().PathToUUID("foo.png")
	require.True(t, core.IsResourceID(uuid))
	var tex resources.TextureData
	header, err := resources.ReadResource(filepath.Join(e.Project().ImportPath(), uuid), &tex)
	require.NoError(t, err)
	assert.Equal(t, resources.ResourceTypeTexture, header.ResourceType)
	assert.Equal(t, uint32(4), tex.Width)
	assert.FileExists(t, filepath.Join(e.Project().ContentPath(), "foo.png.set"))
	assert.FileExists(t, e.Project().IndexPath())
	assert.Equal(t, "docs/readme.txt", e.Index().UUIDToPath(e.Index().PathToUUID("docs/readme.txt")))
	assert.Equal(t, Version, e.Project().SDKVersion)

	// a second run finds nothing to do and keeps the identifiers
	e2, code, imported := runOnce(t, file)
	require.Equal(t, ExitSuccess, code)
	assert.Empty(t, imported)
	assert.Equal(t, uuid, e2.Index().PathToUUID("foo.png"))
}

func TestOlderProjectIsReimported(t *testing.T) {
	file := writeProject(t, `name = "demo"`)
	writeContent(t, file, "a.txt", []byte("a"))

	_, code, imported := runOnce(t, file)
	require.Equal(t, ExitSuccess, code)
	require.Len(t, imported, 1)

	// rewrite the recorded version as an older builder would have
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	data = bytes.Replace(data, []byte(Version), []byte("0.0.1"), 1)
	require.NoError(t, os.WriteFile(file, data, 0o644))

	_, code, imported = runOnce(t, file)
	require.Equal(t, ExitSuccess, code)
	assert.Len(t, imported, 1)
}

func TestRefreshFollowsChanges(t *testing.T) {
	file := writeProject(t, `name = "demo"`)
	foo := writeContent(t, file, "foo.txt", []byte("foo"))

	e := New(Config{ProjectFile: file})
	require.NoError(t, e.Initialize())

	var bar string
	pipelines := 0
	e.Events().Register(core.EVENT_CODE_PIPELINE_FINISHED, t, func(_ core.SystemEventCode, _, _ interface{}, data core.EventContext) bool {
		pipelines++
		if pipelines == 1 {
			assert.NoError(t, os.Remove(foo))
			bar = filepath.Join(filepath.Dir(foo), "bar.txt")
			assert.NoError(t, os.WriteFile(bar, []byte("bar"), 0o644))
			e.Refresh([]string{bar}, []string{foo})
			return false
		}
		e.Quit(ExitSuccess)
		return false
	})
	e.Rescan(false)
	require.Equal(t, ExitSuccess, e.Run(runContext(t)))

	assert.Empty(t, e.Index().PathToUUID("foo.txt"))
	assert.NotEmpty(t, e.Index().PathToUUID("bar.txt"))
	assert.NoFileExists(t, foo+".set")
}

func TestRunRequiresInitialize(t *testing.T) {
	e := New(Config{ProjectFile: writeProject(t, "")})
	assert.Equal(t, ExitFailure, e.Run(context.Background()))
}

func TestRunInterrupted(t *testing.T) {
	e := New(Config{ProjectFile: writeProject(t, "")})
	require.NoError(t, e.Initialize())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, ExitInterrupted, e.Run(ctx))
}

func TestSetCurrentPlatform(t *testing.T) {
	e := New(Config{ProjectFile: writeProject(t, "")})
	require.NoError(t, e.Initialize())
	assert.Equal(t, "GoBuilder", e.Builder().Name())

	var changed []string
	e.Events().Register(core.EVENT_CODE_PLATFORM_CHANGED, t, func(_ core.SystemEventCode, _, _ interface{}, data core.EventContext) bool {
		changed = append(changed, data.Name)
		return false
	})

	require.NoError(t, e.SetCurrentPlatform(platform.Web))
	assert.Equal(t, "WasmBuilder", e.Builder().Name())
	assert.Equal(t, e.Builder(), e.Registry().ConverterFor("main.go"))
	assert.Equal(t, filepath.Join(e.Project().CachePath(), platform.Web, "import"), e.Registry().ImportDir())

	assert.ErrorIs(t, e.SetCurrentPlatform("console"), core.ErrUnknownPlatform)
	assert.Equal(t, []string{platform.Web}, changed)
}

func TestBatchBuildAllPlatforms(t *testing.T) {
	file := writeProject(t, "name = \"demo\"\nplatforms = [\"desktop\", \"web\"]\n")
	writeContent(t, file, "foo.txt", []byte("foo"))
	target := t.TempDir()

	e := New(Config{ProjectFile: file, TargetPath: target})
	require.NoError(t, e.Initialize())
	batch, err := NewBatchBuilder(e)
	require.NoError(t, err)

	var changed []string
	e.Events().Register(core.EVENT_CODE_PLATFORM_CHANGED, t, func(_ core.SystemEventCode, _, _ interface{}, data core.EventContext) bool {
		changed = append(changed, data.Name)
		return false
	})

	require.NoError(t, batch.SetPlatform(""))
	require.Equal(t, ExitSuccess, e.Run(runContext(t)))

	assert.Equal(t, []string{platform.Desktop, platform.Web}, changed)
	assert.Equal(t, []string{platform.Desktop, platform.Web}, batch.Built())

	a, err := packager.OpenArchive(filepath.Join(target, platform.Desktop, packager.PackageName))
	require.NoError(t, err)
	defer a.Close()
	assert.Len(t, a.UUIDs(), 1)

	assert.DirExists(t, filepath.Join(target, platform.Web))
	assert.NoFileExists(t, filepath.Join(target, platform.Web, packager.PackageName))
}

func TestBatchBuilderValidation(t *testing.T) {
	file := writeProject(t, "")

	e := New(Config{ProjectFile: file})
	require.NoError(t, e.Initialize())
	_, err := NewBatchBuilder(e)
	assert.Error(t, err, "editor mode has no target")

	e = New(Config{ProjectFile: file, TargetPath: t.TempDir()})
	require.NoError(t, e.Initialize())
	batch, err := NewBatchBuilder(e)
	require.NoError(t, err)
	assert.ErrorIs(t, batch.SetPlatform("console"), core.ErrUnknownPlatform)
}

// scriptToolchain stands in for a compiler: it checks for the package
// when the build is meant to embed it, then writes the artifact.
type scriptToolchain struct {
	platforms []string
	mode      builder.PackagingMode
	exitCode  int
}

func (scriptToolchain) Name() string { return "ScriptBuilder" }

func (scriptToolchain) Suffixes() []string { return []string{"go"} }

func (s scriptToolchain) Platforms() []string { return s.platforms }

func (scriptToolchain) Templates() fs.FS { return nil }

func (s scriptToolchain) PackagingMode() builder.PackagingMode { return s.mode }

func (scriptToolchain) Prepare(b *builder.BaseBuilder, ctx *builder.BuildContext) error {
	return nil
}

func (scriptToolchain) Artifact(ctx *builder.BuildContext) string {
	return filepath.Join(ctx.OutputDir(), "game.bin")
}

func (s scriptToolchain) Command(ctx *builder.BuildContext) (builder.Invocation, error) {
	script := fmt.Sprintf("echo module > %q; exit %d", s.Artifact(ctx), s.exitCode)
	if s.mode == builder.PackagingBefore {
		script = "test -f base.pak || exit 3; " + script
	}
	return builder.Invocation{Program: "sh", Args: []string{"-c", script}, Dir: ctx.Root()}, nil
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestBatchBuildWithCode(t *testing.T) {
	requireShell(t)
	file := writeProject(t, "name = \"demo\"\nplatforms = [\"web\"]\n")
	writeContent(t, file, "foo.txt", []byte("foo"))
	writeContent(t, file, "scripts/player.go", []byte("package game\n"))
	target := t.TempDir()

	e := New(Config{
		ProjectFile: file,
		TargetPath:  target,
		Toolchains:  []builder.Toolchain{scriptToolchain{platforms: []string{platform.Web}, mode: builder.PackagingBefore}},
	})
	require.NoError(t, e.Initialize())
	batch, err := NewBatchBuilder(e)
	require.NoError(t, err)

	var builds []core.EventContext
	e.Events().Register(core.EVENT_CODE_BUILD_FINISHED, t, func(_ core.SystemEventCode, _, _ interface{}, data core.EventContext) bool {
		builds = append(builds, data)
		return false
	})

	require.NoError(t, batch.SetPlatform(platform.Web))
	require.Equal(t, ExitSuccess, e.Run(runContext(t)))

	require.Len(t, builds, 1)
	assert.True(t, builds[0].Success)
	assert.FileExists(t, filepath.Join(e.Project().GeneratedPath(), packager.PackageName))
	assert.FileExists(t, filepath.Join(target, platform.Web, "game.bin"))
	assert.NoFileExists(t, filepath.Join(target, platform.Web, packager.PackageName))
	assert.FileExists(t, filepath.Join(e.Project().GeneratedPath(), "game", "scripts_player.go"))
}

func TestBatchBuildFailureExitsNonZero(t *testing.T) {
	requireShell(t)
	file := writeProject(t, "name = \"demo\"\n")
	writeContent(t, file, "main.go", []byte("package game\n"))

	e := New(Config{
		ProjectFile: file,
		TargetPath:  t.TempDir(),
		Toolchains:  []builder.Toolchain{scriptToolchain{platforms: []string{platform.Desktop}, exitCode: 2}},
	})
	require.NoError(t, e.Initialize())
	batch, err := NewBatchBuilder(e)
	require.NoError(t, err)

	require.NoError(t, batch.SetPlatform(platform.Desktop))
	assert.Equal(t, ExitFailure, e.Run(runContext(t)))
	assert.True(t, e.Builder().IsOutdated())
	assert.Empty(t, batch.Built())
}

func TestBatchBuildDeploysBuilderArchive(t *testing.T) {
	requireShell(t)
	file := writeProject(t, "name = \"demo\"\nplatforms = [\"desktop\"]\n")
	writeContent(t, file, "foo.txt", []byte("foo"))
	writeContent(t, file, "main.go", []byte("package game\n"))
	target := t.TempDir()

	e := New(Config{
		ProjectFile: file,
		TargetPath:  target,
		Toolchains:  []builder.Toolchain{scriptToolchain{platforms: []string{platform.Desktop}, mode: builder.PackagingAfter}},
	})
	require.NoError(t, e.Initialize())
	batch, err := NewBatchBuilder(e)
	require.NoError(t, err)

	var archives []string
	e.Events().Register(core.EVENT_CODE_PIPELINE_FINISHED, t, func(_ core.SystemEventCode, _, _ interface{}, data core.EventContext) bool {
		archives = append(archives, data.Path)
		return false
	})

	require.NoError(t, batch.SetPlatform(platform.Desktop))
	require.Equal(t, ExitSuccess, e.Run(runContext(t)))

	built := filepath.Join(e.Project().GeneratedPath(), "bin", platform.Desktop, packager.PackageName)
	require.Equal(t, []string{built}, archives)
	want, err := os.ReadFile(built)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(target, platform.Desktop, packager.PackageName))
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.FileExists(t, filepath.Join(target, platform.Desktop, "game.bin"))
}

func TestDeployArchive(t *testing.T) {
	file := writeProject(t, "name = \"demo\"\n")
	writeContent(t, file, "foo.txt", []byte("foo"))
	target := t.TempDir()

	e := New(Config{ProjectFile: file, TargetPath: target})
	require.NoError(t, e.Initialize())
	batch, err := NewBatchBuilder(e)
	require.NoError(t, err)
	t.Cleanup(func() {
		e.Quit(ExitSuccess)
		e.Run(context.Background())
	})
	deployed := filepath.Join(target, platform.Desktop, packager.PackageName)

	// an archive written by the builder is copied as is
	archive := filepath.Join(t.TempDir(), packager.PackageName)
	require.NoError(t, os.WriteFile(archive, []byte("built"), 0o644))
	require.NoError(t, batch.deploy(platform.Desktop, archive))
	data, err := os.ReadFile(deployed)
	require.NoError(t, err)
	assert.Equal(t, "built", string(data))

	// otherwise the import directory is packaged
	require.NoError(t, batch.deploy(platform.Desktop, ""))
	a, err := packager.OpenArchive(deployed)
	require.NoError(t, err)
	assert.NoError(t, a.Close())

	assert.ErrorIs(t, batch.deploy(platform.Desktop, filepath.Join(t.TempDir(), "missing.pak")), core.ErrPackageRead)
}
