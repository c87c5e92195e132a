package schema

import (
	"errors"
	"fmt"
	"sort"
)

// Source identifies where a schema artifact was loaded from. Custom
// artifacts take priority over built-in ones at the same version key.
type Source string

const (
	SourceBuiltin Source = "built-in"
	SourceCustom  Source = "custom"
)

// ErrEmptyCatalog is returned when loading yields no usable schema entries
// from either source. This is fatal to startup: resolution must not proceed
// against an empty catalog.
var ErrEmptyCatalog = errors.New("schema catalog is empty: no usable schemas found in built-in or custom sources")

// Artifact is one loaded schema: the parsed OpenAPI document for a single
// API version, together with its provenance.
type Artifact struct {
	Version Version
	Source  Source
	// Document is the parsed openapi.yaml content.
	Document map[string]any
	// Raw is the original file content, kept for serving the full schema.
	Raw []byte
}

// Catalog is an immutable mapping from Version to schema Artifact,
// populated once at startup. Because it is never mutated after
// construction, concurrent resolution calls need no coordination.
type Catalog struct {
	entries map[Version]*Artifact
	// sorted ascending; cached at construction
	versions []Version
}

// NewCatalog builds a catalog from the given artifacts. Later entries
// overwrite earlier ones at the same version key, which is how
// custom-overrides-built-in precedence is realized: the loader appends
// custom artifacts after built-in ones. Returns ErrEmptyCatalog when no
// artifacts are given.
func NewCatalog(artifacts []*Artifact) (*Catalog, error) {
	if len(artifacts) == 0 {
		return nil, ErrEmptyCatalog
	}

	entries := make(map[Version]*Artifact, len(artifacts))
	for _, a := range artifacts {
		entries[a.Version] = a
	}

	versions := make([]Version, 0, len(entries))
	for v := range entries {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Less(versions[j]) })

	return &Catalog{entries: entries, versions: versions}, nil
}

// Get returns the artifact for an exact version.
func (c *Catalog) Get(v Version) (*Artifact, bool) {
	a, ok := c.entries[v]
	return a, ok
}

// Versions returns all catalog versions in ascending order. The returned
// slice is a copy.
func (c *Catalog) Versions() []Version {
	out := make([]Version, len(c.versions))
	copy(out, c.versions)
	return out
}

// Latest returns the highest version in the catalog. The catalog is never
// empty by construction.
func (c *Catalog) Latest() Version {
	return c.versions[len(c.versions)-1]
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Component navigates an artifact's document by a dotted path, e.g.
// "components.schemas.Flow". Path elements that do not exist yield an error.
func (c *Catalog) Component(v Version, path string) (any, error) {
	a, ok := c.entries[v]
	if !ok {
		return nil, fmt.Errorf("schema version %s not found in catalog", v)
	}
	return navigate(a.Document, path)
}

// ComponentNames lists the keys of the mapping found at the given dotted
// path prefix, e.g. the schema names under "components.schemas".
func (c *Catalog) ComponentNames(v Version, prefix string) ([]string, error) {
	node, err := c.Component(v, prefix)
	if err != nil {
		return nil, err
	}

	m, ok := node.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("component at %q is not a mapping", prefix)
	}

	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
