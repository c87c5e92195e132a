package schema

// Resolve maps a target's reported API version onto the best available
// catalog version. The first rule that yields a non-empty candidate set
// wins; ties within a rule are broken by preferring the highest version:
//
//  1. Exact match.
//  2. Same major.minor with catalog patch <= target patch: highest such patch.
//  3. Same major, any minor: highest (minor, patch).
//  4. No major match: highest version in the entire catalog.
//
// Targets are typically patch-compatible within a minor release and often
// minor-compatible within a major, so preferring "closest not-newer" keeps
// the selected schema from describing capabilities the target lacks, while
// rule 4 guarantees a usable default. Total for any non-empty catalog, and
// pure: safe for concurrent use across targets.
func Resolve(target Version, catalog *Catalog) Version {
	if _, ok := catalog.Get(target); ok {
		return target
	}

	var (
		best      Version
		haveMatch bool
	)

	// Rule 2: same major.minor, patch not above the target's.
	for _, v := range catalog.Versions() {
		if v.Major == target.Major && v.Minor == target.Minor && v.Patch <= target.Patch {
			if !haveMatch || best.Less(v) {
				best, haveMatch = v, true
			}
		}
	}
	if haveMatch {
		return best
	}

	// Rule 3: same major, highest minor.patch.
	for _, v := range catalog.Versions() {
		if v.Major == target.Major {
			if !haveMatch || best.Less(v) {
				best, haveMatch = v, true
			}
		}
	}
	if haveMatch {
		return best
	}

	// Rule 4: nothing shares the major; fall back to the newest schema.
	return catalog.Latest()
}

// ResolveString resolves a raw version string as reported by a target.
// Unparseable input degrades to the highest available schema rather than
// failing the connection: traffic generation should fall back to a
// best-guess schema instead of refusing service.
func ResolveString(reported string, catalog *Catalog) Version {
	target, err := ParseVersion(reported)
	if err != nil {
		return catalog.Latest()
	}
	return Resolve(target, catalog)
}
