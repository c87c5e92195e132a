package schema

import (
	"fmt"
	"strings"
)

// navigate walks a parsed YAML document along a dotted path such as
// "components.schemas.Flow". Every intermediate node must be a mapping.
func navigate(doc map[string]any, path string) (any, error) {
	if path == "" {
		return doc, nil
	}

	var current any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("component path %q: %q is not a mapping", path, part)
		}
		next, ok := m[part]
		if !ok {
			return nil, fmt.Errorf("component %q not found in path %q", part, path)
		}
		current = next
	}

	return current, nil
}
