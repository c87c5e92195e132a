package schema

import (
	"fmt"
	"io/fs"
	"os"
	"path"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ArtifactFileName is the API description file expected inside each
// version directory.
const ArtifactFileName = "openapi.yaml"

// Load builds a catalog from the built-in schema filesystem and, when
// customDir is non-empty, a user-supplied schema directory of the same
// layout (one subdirectory per version, e.g. "1_30_0/openapi.yaml").
//
// Custom entries take precedence over built-in entries at equal version
// keys; the override is logged for operator visibility but is never an
// error. Load fails only when both sources together yield zero usable
// entries.
func Load(builtin fs.FS, customDir string) (*Catalog, error) {
	var artifacts []*Artifact

	builtinArtifacts, err := loadFS(builtin, SourceBuiltin)
	if err != nil {
		return nil, fmt.Errorf("loading built-in schemas: %w", err)
	}
	artifacts = append(artifacts, builtinArtifacts...)

	if customDir != "" {
		customArtifacts, err := loadDir(customDir)
		if err != nil {
			return nil, fmt.Errorf("loading custom schemas from %s: %w", customDir, err)
		}
		artifacts = append(artifacts, customArtifacts...)
	}

	seen := make(map[Version]Source, len(artifacts))
	for _, a := range artifacts {
		if prev, ok := seen[a.Version]; ok && prev != a.Source {
			zap.L().Info("custom schema overrides built-in version",
				zap.String("version", a.Version.String()))
		}
		seen[a.Version] = a.Source
	}

	catalog, err := NewCatalog(artifacts)
	if err != nil {
		return nil, err
	}

	zap.L().Info("schema catalog loaded",
		zap.Int("entries", catalog.Len()),
		zap.Stringers("versions", versionStringers(catalog.Versions())))
	return catalog, nil
}

// loadFS reads every version directory in an fs.FS. Directories whose name
// does not parse as a version, or that lack a readable artifact file, are
// skipped with a warning rather than failing the whole load.
func loadFS(fsys fs.FS, source Source) ([]*Artifact, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	var artifacts []*Artifact
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		version, err := ParseVersion(entry.Name())
		if err != nil {
			zap.L().Warn("skipping schema directory with unparseable version name",
				zap.String("dir", entry.Name()), zap.String("source", string(source)))
			continue
		}

		raw, err := fs.ReadFile(fsys, path.Join(entry.Name(), ArtifactFileName))
		if err != nil {
			zap.L().Warn("skipping schema directory without artifact file",
				zap.String("dir", entry.Name()), zap.String("source", string(source)), zap.Error(err))
			continue
		}

		artifact, err := parseArtifact(version, source, raw)
		if err != nil {
			zap.L().Warn("skipping unparseable schema artifact",
				zap.String("dir", entry.Name()), zap.String("source", string(source)), zap.Error(err))
			continue
		}
		artifacts = append(artifacts, artifact)
	}

	return artifacts, nil
}

// loadDir reads a custom schema directory from the host filesystem. A
// missing directory is a configuration mistake worth surfacing, unlike the
// per-entry skips above.
func loadDir(dir string) ([]*Artifact, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	return loadFS(os.DirFS(dir), SourceCustom)
}

func parseArtifact(version Version, source Source, raw []byte) (*Artifact, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ArtifactFileName, err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("%s is empty", ArtifactFileName)
	}

	return &Artifact{
		Version:  version,
		Source:   source,
		Document: doc,
		Raw:      raw,
	}, nil
}

func versionStringers(versions []Version) []fmt.Stringer {
	out := make([]fmt.Stringer, len(versions))
	for i, v := range versions {
		out[i] = v
	}
	return out
}
