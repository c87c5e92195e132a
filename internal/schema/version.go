// Package schema provides the OTG API schema catalog and the version
// resolution logic that maps a target's reported API version onto the
// closest available schema artifact.
package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a semantic version triple identifying one released shape of
// the OTG API. Immutable once parsed; ordered by standard semver rules.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses a version string into a Version. Both dotted
// ("1.30.0") and underscore ("1_30_0", the on-disk directory form) notations
// are accepted. Missing minor/patch components are treated as zero.
func ParseVersion(s string) (Version, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), "_", ".")
	normalized = strings.TrimPrefix(normalized, "v")
	if normalized == "" {
		return Version{}, fmt.Errorf("empty version string")
	}

	parts := strings.Split(normalized, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}

	var nums [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q: component %q is not a non-negative integer", s, part)
		}
		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustParseVersion is ParseVersion that panics on error. For tests and
// compile-time-known constants only.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the dotted form, e.g. "1.30.0".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// DirName returns the schema directory form, e.g. "1_30_0".
func (v Version) DirName() string {
	return fmt.Sprintf("%d_%d_%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, or 1 if v is lower than, equal to, or higher
// than other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return compareInt(v.Major, other.Major)
	case v.Minor != other.Minor:
		return compareInt(v.Minor, other.Minor)
	default:
		return compareInt(v.Patch, other.Patch)
	}
}

// Less reports whether v orders before other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
