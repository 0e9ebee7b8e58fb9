package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-builder/engine/core"
)

const projectFile = `
name = "Space Demo"
company = "Anima"
version = "1.2.0"
sdkVersion = "0.2.0"
firstMap = "main.fab"
platforms = ["desktop", "web"]
config = "debug"

[toolchain]
extraArgs = "-trimpath -ldflags '-s -w'"
`

func writeProject(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadProject(t *testing.T) {
	path := writeProject(t, projectFile)

	ps, err := Load(path)
	require.NoError(t, err)

	root := filepath.Dir(path)
	assert.Equal(t, "Space Demo", ps.Name)
	assert.True(t, ps.IsDebug())
	assert.NotEmpty(t, ps.ID)
	assert.Equal(t, filepath.Join(root, "content"), ps.ContentPath())
	assert.Equal(t, filepath.Join(root, ".cache", "import"), ps.ImportPath())
	assert.Equal(t, filepath.Join(root, ".cache", "index.yaml"), ps.IndexPath())
	assert.DirExists(t, ps.ContentPath())
	assert.DirExists(t, ps.GeneratedPath())

	args, err := ps.Toolchain.Args()
	require.NoError(t, err)
	assert.Equal(t, []string{"-trimpath", "-ldflags", "-s -w"}, args)
	assert.Equal(t, "go", ps.Toolchain.Go())
}

func TestLoadProjectDefaults(t *testing.T) {
	ps, err := Load(writeProject(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "demo", ps.Name)
	assert.Equal(t, ConfigRelease, ps.Config)
	assert.Equal(t, []string{"desktop"}, ps.PlatformList([]string{"desktop"}))
}

func TestLoadProjectErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, core.ErrInvalidProject)

	_, err = Load(writeProject(t, `config = "fast"`))
	assert.ErrorIs(t, err, core.ErrInvalidProject)

	_, err = Load(writeProject(t, "name = [\n"))
	assert.ErrorIs(t, err, core.ErrInvalidProject)
}

func TestSetCurrentPlatform(t *testing.T) {
	ps, err := Load(writeProject(t, projectFile))
	require.NoError(t, err)

	require.NoError(t, ps.SetCurrentPlatform("web"))
	assert.Equal(t, "web", ps.CurrentPlatformName())
	assert.True(t, ps.CurrentPlatform().IsPackage)
	assert.Equal(t, filepath.Join(ps.CachePath(), "web", "import"), ps.ImportPath())
	assert.DirExists(t, ps.ImportPath())

	assert.ErrorIs(t, ps.SetCurrentPlatform("console"), core.ErrUnknownPlatform)
}

func TestRequiresReimport(t *testing.T) {
	ps, err := Load(writeProject(t, projectFile))
	require.NoError(t, err)

	assert.True(t, ps.RequiresReimport("0.3.0"))
	assert.False(t, ps.RequiresReimport("0.2.0"))
	assert.False(t, ps.RequiresReimport("0.1.9"))

	ps.SDKVersion = ""
	assert.True(t, ps.RequiresReimport("0.1.0"))
}

func TestTokenValues(t *testing.T) {
	ps, err := Load(writeProject(t, projectFile))
	require.NoError(t, err)

	values := ps.TokenValues()
	assert.Equal(t, "Space Demo", values["${projectName}"])
	assert.Equal(t, "Anima", values["${companyName}"])
	assert.Equal(t, "spacedemo", values["${idName}"])
	assert.Equal(t, "desktop", values["${platform}"])
	assert.Len(t, values, len(Tokens()))
}

func TestIdentifierName(t *testing.T) {
	assert.Equal(t, "mygame", IdentifierName("My Game!"))
	assert.Equal(t, "p3dworld", IdentifierName("3D World"))
	assert.Equal(t, "project", IdentifierName("***"))
}

func TestSaveRoundTrip(t *testing.T) {
	ps, err := Load(writeProject(t, projectFile))
	require.NoError(t, err)
	ps.SDKVersion = "0.3.0"
	require.NoError(t, ps.Save())

	again, err := Load(ps.ProjectFile())
	require.NoError(t, err)
	assert.Equal(t, "0.3.0", again.SDKVersion)
	assert.Equal(t, ps.ID, again.ID)
	assert.Equal(t, []string{"desktop", "web"}, again.Platforms)
}
