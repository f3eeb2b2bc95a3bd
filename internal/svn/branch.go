package svn

import (
	"slices"
	"strings"
)

// BranchLayout names the conventional trunk/branches/tags directories.
type BranchLayout struct {
	Trunk    string
	Branches []string
	Tags     []string
}

// DefaultBranchLayout is the standard svn layout.
func DefaultBranchLayout() BranchLayout {
	return BranchLayout{
		Trunk:    "trunk",
		Branches: []string{"branches"},
		Tags:     []string{"tags"},
	}
}

// Branch is a branch located in a repository URL.
type Branch struct {
	// Name is the short name ("trunk", "feature-x").
	Name string
	// Path is the layout-relative path ("trunk", "branches/feature-x").
	Path string
	// Prefix is the URL up to (not including) Path, without trailing slash.
	Prefix  string
	IsTrunk bool
	IsTag   bool
}

// BranchFromURL finds the first layout directory in url. Returns nil when
// url does not follow the layout.
func (l BranchLayout) BranchFromURL(url string) *Branch {
	url = strings.TrimRight(url, "/")
	scheme := ""
	rest := url
	if idx := strings.Index(url, "://"); idx >= 0 {
		scheme, rest = url[:idx+3], url[idx+3:]
	}
	segments := strings.Split(rest, "/")
	// segments[0] is the host (or empty for file:///).
	for i := 1; i < len(segments); i++ {
		seg := segments[i]
		prefix := scheme + strings.Join(segments[:i], "/")
		switch {
		case l.Trunk != "" && seg == l.Trunk:
			return &Branch{Name: seg, Path: seg, Prefix: prefix, IsTrunk: true}
		case slices.Contains(l.Branches, seg) && i+1 < len(segments) && segments[i+1] != "":
			name := segments[i+1]
			return &Branch{Name: name, Path: seg + "/" + name, Prefix: prefix}
		case slices.Contains(l.Tags, seg) && i+1 < len(segments) && segments[i+1] != "":
			name := segments[i+1]
			return &Branch{Name: name, Path: seg + "/" + name, Prefix: prefix, IsTag: true}
		}
	}
	return nil
}
