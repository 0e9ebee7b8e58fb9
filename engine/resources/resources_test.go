package resources

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-builder/engine/core"
)

func TestEncodeResourceDeterministic(t *testing.T) {
	payload := TextureData{
		Name:         "foo",
		Width:        1,
		Height:       1,
		ChannelCount: 4,
		Levels:       []MipLevel{{Width: 1, Height: 1, Pixels: []uint8{1, 2, 3, 4}}},
	}
	a, err := EncodeResource(ResourceTypeTexture, 1, payload)
	require.NoError(t, err)
	b, err := EncodeResource(ResourceTypeTexture, 1, payload)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var out TextureData
	header, err := DecodeResource(bytes.NewReader(a), &out)
	require.NoError(t, err)
	assert.Equal(t, ResourceMagic, header.MagicNumber)
	assert.Equal(t, ResourceTypeTexture, header.ResourceType)
	assert.Equal(t, uint8(1), header.Version)
	assert.Equal(t, payload, out)
}

func TestReadHeaderRejectsForeignData(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader([]byte{0, 1, 2, 3, 4, 5, 6, 7}))
	assert.ErrorIs(t, err, core.ErrInvalidPayload)
}

func TestWriteResource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "import", "abc")
	require.NoError(t, WriteResource(path, ResourceTypeText, 1, TextData{Name: "a", Text: "hello"}))

	var out TextData
	header, err := ReadResource(path, &out)
	require.NoError(t, err)
	assert.Equal(t, ResourceTypeText, header.ResourceType)
	assert.Equal(t, "hello", out.Text)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestResourceTypeNames(t *testing.T) {
	for i := ResourceTypeText; i <= ResourceTypeCustom; i++ {
		got, ok := ParseResourceType(i.String())
		assert.True(t, ok)
		assert.Equal(t, i, got)
	}
	_, ok := ParseResourceType("Nope")
	assert.False(t, ok)
}

func TestIndexRegisterRequiresBinary(t *testing.T) {
	dir := t.TempDir()
	ix := NewIndex(dir)

	assert.False(t, ix.Register("a.png", IndexEntry{UUID: "u1", Type: "Texture"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "u1"), []byte("x"), 0o644))
	assert.True(t, ix.Register("a.png", IndexEntry{UUID: "u1", Type: "Texture"}))

	assert.Equal(t, "u1", ix.PathToUUID("a.png"))
	assert.Equal(t, "a.png", ix.UUIDToPath("u1"))
	assert.Equal(t, []string{"Texture"}, ix.Labels())
}

func TestIndexRekeyAndCleanup(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"u1", "u2"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, id), []byte(id), 0o644))
	}
	ix := NewIndex(dir)
	require.True(t, ix.Register("m.obj", IndexEntry{UUID: "u1", Type: "Model"}))
	require.True(t, ix.Register("m.obj/cube", IndexEntry{UUID: "u2", Type: "Mesh"}))
	ix.RegisterPersistent("plugin.so", "u3")

	ix.Rekey("m.obj", "models/m.obj")
	assert.Equal(t, "u1", ix.PathToUUID("models/m.obj"))
	assert.Equal(t, "u2", ix.PathToUUID("models/m.obj/cube"))
	assert.Empty(t, ix.PathToUUID("m.obj"))

	require.NoError(t, os.Remove(filepath.Join(dir, "u2")))
	assert.Equal(t, 1, ix.Cleanup())
	assert.Equal(t, 2, ix.Len())
	assert.True(t, ix.IsPersistent("plugin.so"))
}

func TestIndexSaveLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "u1"), []byte("x"), 0o644))

	ix := NewIndex(dir)
	ix.Settings = IndexSettings{Entry: "main.fab", Project: "demo"}
	require.True(t, ix.Register("a.png", IndexEntry{UUID: "u1", Type: "Texture", Hash: "ff"}))

	file := filepath.Join(dir, "..", "index.yaml")
	require.NoError(t, ix.Save(file))

	loaded := NewIndex(dir)
	require.NoError(t, loaded.Load(file))
	assert.Equal(t, ix.Entries(), loaded.Entries())
	assert.Equal(t, "demo", loaded.Settings.Project)

	missing := NewIndex(dir)
	assert.NoError(t, missing.Load(filepath.Join(dir, "none.yaml")))
	assert.Zero(t, missing.Len())
}
