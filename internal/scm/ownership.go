package scm

import (
	"cmp"
	"slices"

	"svnscm/internal/svn"
)

// ownershipEntry is one candidate owner: a working copy and the subtrees it
// must not claim (its externals and ignored directories).
type ownershipEntry struct {
	key        string
	root       string
	exclusions []string
}

// ownershipIndex answers "which working copy owns this path" with the
// longest matching root whose exclusions do not cover the path.
type ownershipIndex struct {
	entries []ownershipEntry
}

func newOwnershipIndex(entries []ownershipEntry) ownershipIndex {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b ownershipEntry) int {
		if c := cmp.Compare(len(b.root), len(a.root)); c != 0 {
			return c
		}
		return cmp.Compare(a.root, b.root)
	})
	return ownershipIndex{entries: sorted}
}

// owner returns the key of the owning entry.
func (idx ownershipIndex) owner(path string) (string, bool) {
	for _, e := range idx.entries {
		if !svn.IsDescendant(e.root, path) {
			continue
		}
		if slices.ContainsFunc(e.exclusions, func(ex string) bool { return svn.IsDescendant(ex, path) }) {
			continue
		}
		return e.key, true
	}
	return "", false
}
