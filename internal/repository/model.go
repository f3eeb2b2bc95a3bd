package repository

import (
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"svnscm/internal/globmatch"
	"svnscm/internal/svn"
)

// Group IDs.
const (
	GroupChanges       = "changes"
	GroupConflicts     = "conflicts"
	GroupUnversioned   = "unversioned"
	GroupRemoteChanges = "remotechanges"

	changelistGroupPrefix = "changelist-"
)

// Resource is one row of a resource group.
type Resource struct {
	// Path is absolute.
	Path       string     `json:"path"`
	Type       svn.Status `json:"type"`
	Props      svn.Status `json:"props"`
	RenamePath string     `json:"renamePath,omitempty"`
	Changelist string     `json:"changelist,omitempty"`
	Remote     bool       `json:"remote,omitempty"`
}

// Group is a named, ordered list of resources.
type Group struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	Changelist string     `json:"changelist,omitempty"`
	Resources  []Resource `json:"resources"`
}

// External is an svn:externals subtree reported by status.
type External struct {
	Path           string `json:"path"`
	RepositoryUUID string `json:"repositoryUuid,omitempty"`
}

// Model is the derived view of one working copy, replaced wholesale by each
// completed status pass.
type Model struct {
	Root          string  `json:"root"`
	WorkspaceRoot string  `json:"workspaceRoot"`
	State         State   `json:"state"`
	Branch        string  `json:"branch,omitempty"`
	Changes       Group   `json:"changes"`
	Conflicts     Group   `json:"conflicts"`
	Unversioned   Group   `json:"unversioned"`
	Changelists   []Group `json:"changelists"`
	// RemoteChanges is nil until a remote status pass ran, and again after
	// polling is switched off.
	RemoteChanges      *Group     `json:"remoteChanges,omitempty"`
	Externals          []External `json:"externals,omitempty"`
	Ignored            []string   `json:"ignored,omitempty"`
	Count              int        `json:"count"`
	RemoteChangedFiles int        `json:"remoteChangedFiles"`
	NeedCleanUp        bool       `json:"needCleanUp"`
	IsIncomplete       bool       `json:"isIncomplete"`
	// GroupsEpoch increases whenever the changelist groups change and the
	// unversioned group is recreated.
	GroupsEpoch int       `json:"groupsEpoch"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Group returns the group with id, including changelist and remote groups.
func (m Model) Group(id string) (Group, bool) {
	switch id {
	case GroupChanges:
		return m.Changes, true
	case GroupConflicts:
		return m.Conflicts, true
	case GroupUnversioned:
		return m.Unversioned, true
	case GroupRemoteChanges:
		if m.RemoteChanges == nil {
			return Group{}, false
		}
		return *m.RemoteChanges, true
	}
	for _, g := range m.Changelists {
		if g.ID == id {
			return g, true
		}
	}
	return Group{}, false
}

// Groups returns every group in display order.
func (m Model) Groups() []Group {
	out := make([]Group, 0, 4+len(m.Changelists))
	out = append(out, m.Changes)
	out = append(out, m.Changelists...)
	out = append(out, m.Conflicts, m.Unversioned)
	if m.RemoteChanges != nil {
		out = append(out, *m.RemoteChanges)
	}
	return out
}

func (m Model) clone() Model {
	dst := m
	dst.Changes = m.Changes.clone()
	dst.Conflicts = m.Conflicts.clone()
	dst.Unversioned = m.Unversioned.clone()
	if m.Changelists != nil {
		dst.Changelists = make([]Group, len(m.Changelists))
		for i, g := range m.Changelists {
			dst.Changelists[i] = g.clone()
		}
	}
	if m.RemoteChanges != nil {
		remote := m.RemoteChanges.clone()
		dst.RemoteChanges = &remote
	}
	dst.Externals = slices.Clone(m.Externals)
	dst.Ignored = slices.Clone(m.Ignored)
	return dst
}

func (g Group) clone() Group {
	dst := g
	dst.Resources = slices.Clone(g.Resources)
	return dst
}

func newGroup(id, label string, resources []Resource) Group {
	if resources == nil {
		resources = []Resource{}
	}
	return Group{ID: id, Label: label, Resources: resources}
}

func changelistGroup(name string, resources []Resource) Group {
	g := newGroup(changelistGroupPrefix+name, `Changelist "`+name+`"`, resources)
	g.Changelist = name
	return g
}

func changelistNames(groups []Group) []string {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Changelist
	}
	return names
}

// conflictSidecar matches the files svn leaves next to a conflicted file.
var conflictSidecar = regexp.MustCompile(`^(.+?)\.(mine|working|merge-\w+\.r\d+|r\d+)$`)

type classifyOptions struct {
	workspaceRoot       string
	exclude             []string
	ignore              []string
	hideUnversioned     bool
	countUnversioned    bool
	ignoreOnStatusCount []string
	combineExternals    bool
	repositoryUUID      string
}

type classification struct {
	changes      []Resource
	conflicts    []Resource
	unversioned  []Resource
	changelists  []Group
	remote       []Resource
	externals    []External
	ignored      []string
	needCleanUp  bool
	isIncomplete bool
	count        int
}

// classify buckets status entries into resource groups. It is pure: the same
// entries and options always give the same result.
func classify(entries []svn.StatusEntry, opts classifyOptions) classification {
	var out classification
	abs := func(p string) string {
		return filepath.Join(opts.workspaceRoot, filepath.FromSlash(p))
	}

	var externals []svn.StatusEntry
	for _, e := range entries {
		if e.Status != svn.StatusExternal {
			continue
		}
		if opts.combineExternals && opts.repositoryUUID != "" && e.RepositoryUUID == opts.repositoryUUID {
			continue
		}
		externals = append(externals, e)
		out.externals = append(out.externals, External{Path: abs(e.Path), RepositoryUUID: e.RepositoryUUID})
	}

	paths := make(map[string]struct{}, len(entries))
	renamed := make(map[string]struct{})
	for _, e := range entries {
		paths[e.Path] = struct{}{}
		if e.Rename != "" {
			renamed[e.Rename] = struct{}{}
		}
	}

	changelists := make(map[string][]Resource)
	var changelistOrder []string

	for _, e := range entries {
		if e.Status == svn.StatusIncomplete {
			out.isIncomplete = true
		}
		if e.Path == "." {
			out.needCleanUp = e.WcStatus.Locked
			continue
		}
		if e.WcStatus.Switched {
			out.isIncomplete = true
		}
		if e.WcStatus.Locked || e.WcStatus.Switched || e.Status == svn.StatusIncomplete {
			continue
		}
		if inExternal(e.Path, externals) || e.Status == svn.StatusExternal {
			continue
		}
		if len(opts.exclude) > 0 && globmatch.MatchAll(e.Path, opts.exclude) {
			continue
		}

		if e.ReposStatus != nil {
			out.remote = append(out.remote, Resource{
				Path:   abs(e.Path),
				Type:   e.ReposStatus.Item,
				Props:  e.ReposStatus.Props,
				Remote: true,
			})
		}

		if isClean(e.Status) && isClean(e.Props) && e.Changelist == "" {
			continue
		}
		if e.Status == svn.StatusDeleted {
			if _, ok := renamed[e.Path]; ok {
				continue
			}
		}

		resource := Resource{
			Path:       abs(e.Path),
			Type:       e.Status,
			Props:      e.Props,
			Changelist: e.Changelist,
		}
		if e.Rename != "" {
			resource.RenamePath = abs(e.Rename)
		}

		switch {
		case e.Status == svn.StatusIgnored:
			out.ignored = append(out.ignored, resource.Path)
		case e.Status == svn.StatusConflicted:
			out.conflicts = append(out.conflicts, resource)
		case e.Status == svn.StatusUnversioned:
			if opts.hideUnversioned {
				continue
			}
			if m := conflictSidecar.FindStringSubmatch(e.Path); m != nil {
				if _, ok := paths[m[1]]; ok {
					continue
				}
			}
			if len(opts.ignore) > 0 && globmatch.MatchAll("/"+e.Path, opts.ignore) {
				continue
			}
			out.unversioned = append(out.unversioned, resource)
		case e.Changelist != "":
			if _, ok := changelists[e.Changelist]; !ok {
				changelistOrder = append(changelistOrder, e.Changelist)
			}
			changelists[e.Changelist] = append(changelists[e.Changelist], resource)
		default:
			out.changes = append(out.changes, resource)
		}
	}

	for _, name := range changelistOrder {
		out.changelists = append(out.changelists, changelistGroup(name, changelists[name]))
	}

	out.count = len(out.changes) + len(out.conflicts)
	for _, g := range out.changelists {
		if slices.Contains(opts.ignoreOnStatusCount, g.Changelist) {
			continue
		}
		out.count += len(g.Resources)
	}
	if opts.countUnversioned {
		out.count += len(out.unversioned)
	}
	return out
}

func isClean(s svn.Status) bool {
	return s == svn.StatusNormal || s == svn.StatusNone || s == ""
}

func inExternal(path string, externals []svn.StatusEntry) bool {
	for _, ext := range externals {
		if svn.IsDescendant(ext.Path, path) {
			return true
		}
	}
	return false
}
