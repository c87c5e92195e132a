package schema

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalDoc = `
openapi: 3.0.3
info:
  title: Open Traffic Generator API
components:
  schemas:
    Config:
      type: object
    Flow:
      type: object
`

func builtinFS(versions ...string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for _, v := range versions {
		fsys[v+"/openapi.yaml"] = &fstest.MapFile{Data: []byte(minimalDoc)}
	}
	return fsys
}

func writeCustomDir(t *testing.T, version, content string) string {
	t.Helper()
	dir := t.TempDir()
	versionDir := filepath.Join(dir, version)
	require.NoError(t, os.MkdirAll(versionDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(versionDir, "openapi.yaml"), []byte(content), 0o644))
	return dir
}

func TestLoadBuiltinOnly(t *testing.T) {
	catalog, err := Load(builtinFS("1_28_0", "1_30_0", "1_31_0"), "")
	require.NoError(t, err)

	assert.Equal(t, 3, catalog.Len())
	assert.Equal(t, "1.31.0", catalog.Latest().String())

	a, ok := catalog.Get(MustParseVersion("1.28.0"))
	require.True(t, ok)
	assert.Equal(t, SourceBuiltin, a.Source)
}

func TestLoadCustomOverridesBuiltin(t *testing.T) {
	customDoc := `
openapi: 3.0.3
info:
  title: Patched Open Traffic Generator API
components:
  schemas:
    Config:
      type: object
    Lag:
      type: object
`
	customDir := writeCustomDir(t, "1_30_0", customDoc)

	catalog, err := Load(builtinFS("1_28_0", "1_30_0"), customDir)
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())

	// The custom artifact wins at the shared version key.
	a, ok := catalog.Get(MustParseVersion("1.30.0"))
	require.True(t, ok)
	assert.Equal(t, SourceCustom, a.Source)

	names, err := catalog.ComponentNames(MustParseVersion("1.30.0"), "components.schemas")
	require.NoError(t, err)
	assert.Contains(t, names, "Lag")

	// Versions only in the built-in set remain untouched.
	a, ok = catalog.Get(MustParseVersion("1.28.0"))
	require.True(t, ok)
	assert.Equal(t, SourceBuiltin, a.Source)
}

func TestLoadCustomAddsNewVersion(t *testing.T) {
	customDir := writeCustomDir(t, "1_32_0", minimalDoc)

	catalog, err := Load(builtinFS("1_30_0"), customDir)
	require.NoError(t, err)
	assert.Equal(t, "1.32.0", catalog.Latest().String())
}

func TestLoadSkipsMalformedEntries(t *testing.T) {
	fsys := builtinFS("1_30_0")
	fsys["not_a_version/openapi.yaml"] = &fstest.MapFile{Data: []byte(minimalDoc)}
	fsys["1_29_0/README.md"] = &fstest.MapFile{Data: []byte("no artifact here")}
	fsys["1_28_0/openapi.yaml"] = &fstest.MapFile{Data: []byte("{invalid: [unclosed")}

	catalog, err := Load(fsys, "")
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.Len())
	assert.Equal(t, "1.30.0", catalog.Latest().String())
}

func TestLoadEmptyIsConfigurationError(t *testing.T) {
	_, err := Load(fstest.MapFS{}, "")
	require.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestLoadMissingCustomDirFails(t *testing.T) {
	_, err := Load(builtinFS("1_30_0"), filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

func TestCatalogComponent(t *testing.T) {
	catalog, err := Load(builtinFS("1_30_0"), "")
	require.NoError(t, err)
	v := MustParseVersion("1.30.0")

	node, err := catalog.Component(v, "components.schemas.Flow")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "object"}, node)

	_, err = catalog.Component(v, "components.schemas.DoesNotExist")
	assert.Error(t, err)

	_, err = catalog.Component(v, "info.title.deeper")
	assert.Error(t, err)
}

func TestStoreSwap(t *testing.T) {
	first, err := Load(builtinFS("1_28_0"), "")
	require.NoError(t, err)
	second, err := Load(builtinFS("1_28_0", "1_30_0"), "")
	require.NoError(t, err)

	store := NewStore(first)
	assert.Equal(t, 1, store.Catalog().Len())

	store.Swap(second)
	assert.Equal(t, 2, store.Catalog().Len())
}
