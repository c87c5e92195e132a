package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T, versions ...string) *Catalog {
	t.Helper()

	artifacts := make([]*Artifact, 0, len(versions))
	for _, v := range versions {
		artifacts = append(artifacts, &Artifact{
			Version:  MustParseVersion(v),
			Source:   SourceBuiltin,
			Document: map[string]any{"openapi": "3.0.3"},
		})
	}

	catalog, err := NewCatalog(artifacts)
	require.NoError(t, err)
	return catalog
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		catalog []string
		want    string
	}{
		{"exact match", "1.29.0", []string{"1.28.0", "1.29.0", "1.30.0"}, "1.29.0"},
		{"patch fallback picks highest not above target", "1.29.5", []string{"1.28.0", "1.29.0", "1.29.3"}, "1.29.3"},
		{"patch fallback skips newer patch", "1.29.2", []string{"1.29.0", "1.29.3"}, "1.29.0"},
		{"minor fallback picks highest minor.patch", "1.31.0", []string{"1.28.0", "1.29.0", "1.30.2"}, "1.30.2"},
		{"minor fallback allows newer minor", "1.29.0", []string{"1.28.0", "1.30.2"}, "1.30.2"},
		{"major fallback uses overall highest", "2.0.0", []string{"1.28.0", "1.30.0"}, "1.30.0"},
		{"major fallback from below", "0.9.1", []string{"1.28.0", "1.30.0"}, "1.30.0"},
		{"single entry catalog", "9.9.9", []string{"1.28.0"}, "1.28.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := testCatalog(t, tt.catalog...)
			got := Resolve(MustParseVersion(tt.target), catalog)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestResolveReturnsCatalogMember(t *testing.T) {
	catalog := testCatalog(t, "1.28.0", "1.28.4", "1.29.1", "1.30.0", "1.31.2")

	targets := []string{
		"0.1.0", "1.0.0", "1.28.0", "1.28.9", "1.29.0", "1.29.5",
		"1.30.1", "1.31.0", "1.32.0", "2.0.0", "3.14.15",
	}
	for _, target := range targets {
		got := Resolve(MustParseVersion(target), catalog)
		_, ok := catalog.Get(got)
		assert.True(t, ok, "resolve(%s) returned %s, which is not in the catalog", target, got)
	}
}

func TestResolveIdempotent(t *testing.T) {
	catalog := testCatalog(t, "1.28.0", "1.29.3", "1.30.0")

	target := MustParseVersion("1.29.5")
	first := Resolve(target, catalog)
	second := Resolve(target, catalog)
	assert.Equal(t, first, second)
}

func TestResolveString(t *testing.T) {
	catalog := testCatalog(t, "1.28.0", "1.30.2")

	t.Run("parseable version resolves normally", func(t *testing.T) {
		assert.Equal(t, "1.28.0", ResolveString("1.28.0", catalog).String())
	})

	t.Run("underscore form is accepted", func(t *testing.T) {
		assert.Equal(t, "1.30.2", ResolveString("1_30_2", catalog).String())
	})

	t.Run("unparseable version degrades to highest available", func(t *testing.T) {
		for _, reported := range []string{"", "unknown", "dev-build", "1.x.0"} {
			assert.Equal(t, "1.30.2", ResolveString(reported, catalog).String(),
				"reported version %q", reported)
		}
	})
}
