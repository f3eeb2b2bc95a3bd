package repository

import (
	"path/filepath"
	"reflect"
	"testing"

	"svnscm/internal/svn"
)

const testWorkspace = "/work/wc"

func abs(p string) string {
	return filepath.Join(testWorkspace, filepath.FromSlash(p))
}

func resourcePaths(rs []Resource) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Path
	}
	return out
}

func TestClassifyRenameSuppressesDeletedSource(t *testing.T) {
	entries := []svn.StatusEntry{
		{Path: "new.txt", Status: svn.StatusAdded, Props: svn.StatusNone, Rename: "old.txt"},
		{Path: "old.txt", Status: svn.StatusDeleted, Props: svn.StatusNone},
		{Path: "gone.txt", Status: svn.StatusDeleted, Props: svn.StatusNone},
	}
	got := classify(entries, classifyOptions{workspaceRoot: testWorkspace})

	if want := []string{abs("new.txt"), abs("gone.txt")}; !reflect.DeepEqual(resourcePaths(got.changes), want) {
		t.Fatalf("changes = %v, want %v", resourcePaths(got.changes), want)
	}
	if got.changes[0].RenamePath != abs("old.txt") {
		t.Fatalf("RenamePath = %q, want %q", got.changes[0].RenamePath, abs("old.txt"))
	}
}

func TestClassifyConflictSidecars(t *testing.T) {
	entries := []svn.StatusEntry{
		{Path: "a.txt", Status: svn.StatusConflicted},
		{Path: "a.txt.mine", Status: svn.StatusUnversioned},
		{Path: "a.txt.r3", Status: svn.StatusUnversioned},
		{Path: "a.txt.merge-left.r2", Status: svn.StatusUnversioned},
		{Path: "b.txt.mine", Status: svn.StatusUnversioned},
	}
	got := classify(entries, classifyOptions{workspaceRoot: testWorkspace})

	if want := []string{abs("a.txt")}; !reflect.DeepEqual(resourcePaths(got.conflicts), want) {
		t.Fatalf("conflicts = %v, want %v", resourcePaths(got.conflicts), want)
	}
	if want := []string{abs("b.txt.mine")}; !reflect.DeepEqual(resourcePaths(got.unversioned), want) {
		t.Fatalf("unversioned = %v, want %v", resourcePaths(got.unversioned), want)
	}
}

func TestClassifyBuckets(t *testing.T) {
	entries := []svn.StatusEntry{
		{Path: ".", Status: svn.StatusNormal},
		{Path: "clean.txt", Status: svn.StatusNormal, Props: svn.StatusNone},
		{Path: "mod.txt", Status: svn.StatusModified},
		{Path: "props", Status: svn.StatusNormal, Props: svn.StatusModified},
		{Path: "cl-a.txt", Status: svn.StatusModified, Changelist: "feature"},
		{Path: "cl-b.txt", Status: svn.StatusModified, Changelist: "ignore-on-commit"},
		{Path: "cl-c.txt", Status: svn.StatusNormal, Changelist: "feature"},
		{Path: "new.txt", Status: svn.StatusUnversioned},
		{Path: "build/out.log", Status: svn.StatusUnversioned},
		{Path: "bin", Status: svn.StatusIgnored},
		{Path: "cache/x.tmp", Status: svn.StatusModified},
		{Path: "locked.txt", Status: svn.StatusModified, WcStatus: svn.WcStatus{Locked: true}},
	}
	opts := classifyOptions{
		workspaceRoot:       testWorkspace,
		exclude:             []string{"*.tmp"},
		ignore:              []string{"*.log"},
		countUnversioned:    true,
		ignoreOnStatusCount: []string{"ignore-on-commit"},
	}
	got := classify(entries, opts)

	if want := []string{abs("mod.txt"), abs("props")}; !reflect.DeepEqual(resourcePaths(got.changes), want) {
		t.Errorf("changes = %v, want %v", resourcePaths(got.changes), want)
	}
	if want := []string{abs("new.txt")}; !reflect.DeepEqual(resourcePaths(got.unversioned), want) {
		t.Errorf("unversioned = %v, want %v", resourcePaths(got.unversioned), want)
	}
	if want := []string{abs("bin")}; !reflect.DeepEqual(got.ignored, want) {
		t.Errorf("ignored = %v, want %v", got.ignored, want)
	}
	if len(got.changelists) != 2 {
		t.Fatalf("changelists = %d, want 2", len(got.changelists))
	}
	if got.changelists[0].Changelist != "feature" || got.changelists[1].Changelist != "ignore-on-commit" {
		t.Errorf("changelist order = %v", changelistNames(got.changelists))
	}
	if want := []string{abs("cl-a.txt"), abs("cl-c.txt")}; !reflect.DeepEqual(resourcePaths(got.changelists[0].Resources), want) {
		t.Errorf("feature = %v, want %v", resourcePaths(got.changelists[0].Resources), want)
	}
	if got.changelists[0].ID != "changelist-feature" {
		t.Errorf("ID = %q", got.changelists[0].ID)
	}
	// changes 2 + feature 2 + unversioned 1
	if got.count != 5 {
		t.Errorf("count = %d, want 5", got.count)
	}
}

func TestClassifyCount(t *testing.T) {
	entries := []svn.StatusEntry{
		{Path: "a.txt", Status: svn.StatusModified},
		{Path: "b.txt", Status: svn.StatusUnversioned},
	}
	tests := []struct {
		name             string
		countUnversioned bool
		hideUnversioned  bool
		want             int
	}{
		{name: "counts unversioned", countUnversioned: true, want: 2},
		{name: "skips unversioned", countUnversioned: false, want: 1},
		{name: "hidden unversioned", countUnversioned: true, hideUnversioned: true, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(entries, classifyOptions{
				workspaceRoot:    testWorkspace,
				countUnversioned: tt.countUnversioned,
				hideUnversioned:  tt.hideUnversioned,
			})
			if got.count != tt.want {
				t.Fatalf("count = %d, want %d", got.count, tt.want)
			}
		})
	}
}

func TestClassifyWorkingCopyFlags(t *testing.T) {
	tests := []struct {
		name           string
		entries        []svn.StatusEntry
		wantIncomplete bool
		wantCleanUp    bool
	}{
		{
			name:    "clean root",
			entries: []svn.StatusEntry{{Path: ".", Status: svn.StatusNormal}},
		},
		{
			name:           "incomplete root",
			entries:        []svn.StatusEntry{{Path: ".", Status: svn.StatusIncomplete}},
			wantIncomplete: true,
		},
		{
			name:        "locked root",
			entries:     []svn.StatusEntry{{Path: ".", Status: svn.StatusNormal, WcStatus: svn.WcStatus{Locked: true}}},
			wantCleanUp: true,
		},
		{
			name: "switched child",
			entries: []svn.StatusEntry{
				{Path: ".", Status: svn.StatusNormal},
				{Path: "sub", Status: svn.StatusNormal, WcStatus: svn.WcStatus{Switched: true}},
			},
			wantIncomplete: true,
		},
		{
			name: "incomplete child",
			entries: []svn.StatusEntry{
				{Path: ".", Status: svn.StatusNormal},
				{Path: "sub", Status: svn.StatusIncomplete},
			},
			wantIncomplete: true,
		},
		{
			name: "incomplete child before root",
			entries: []svn.StatusEntry{
				{Path: "sub", Status: svn.StatusIncomplete},
				{Path: ".", Status: svn.StatusNormal},
			},
			wantIncomplete: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.entries, classifyOptions{workspaceRoot: testWorkspace})
			if got.isIncomplete != tt.wantIncomplete {
				t.Errorf("isIncomplete = %v, want %v", got.isIncomplete, tt.wantIncomplete)
			}
			if got.needCleanUp != tt.wantCleanUp {
				t.Errorf("needCleanUp = %v, want %v", got.needCleanUp, tt.wantCleanUp)
			}
			if len(got.changes) != 0 {
				t.Errorf("changes = %v, want none", resourcePaths(got.changes))
			}
		})
	}
}

func TestClassifyExternals(t *testing.T) {
	entries := []svn.StatusEntry{
		{Path: "lib", Status: svn.StatusExternal, RepositoryUUID: "same"},
		{Path: "lib/a.go", Status: svn.StatusModified},
		{Path: "vendor", Status: svn.StatusExternal, RepositoryUUID: "other"},
		{Path: "vendor/b.go", Status: svn.StatusModified},
		{Path: "main.go", Status: svn.StatusModified},
	}

	t.Run("separate", func(t *testing.T) {
		got := classify(entries, classifyOptions{workspaceRoot: testWorkspace})
		if want := []string{abs("main.go")}; !reflect.DeepEqual(resourcePaths(got.changes), want) {
			t.Fatalf("changes = %v, want %v", resourcePaths(got.changes), want)
		}
		if len(got.externals) != 2 {
			t.Fatalf("externals = %v, want 2", got.externals)
		}
	})

	t.Run("combined same server", func(t *testing.T) {
		got := classify(entries, classifyOptions{
			workspaceRoot:    testWorkspace,
			combineExternals: true,
			repositoryUUID:   "same",
		})
		if want := []string{abs("lib/a.go"), abs("main.go")}; !reflect.DeepEqual(resourcePaths(got.changes), want) {
			t.Fatalf("changes = %v, want %v", resourcePaths(got.changes), want)
		}
		if want := []External{{Path: abs("vendor"), RepositoryUUID: "other"}}; !reflect.DeepEqual(got.externals, want) {
			t.Fatalf("externals = %v, want %v", got.externals, want)
		}
	})
}

func TestClassifyRemoteChanges(t *testing.T) {
	entries := []svn.StatusEntry{
		{Path: "a.txt", Status: svn.StatusNormal, ReposStatus: &svn.ReposStatus{Item: svn.StatusModified, Props: svn.StatusNone}},
		{Path: "b.txt", Status: svn.StatusModified, ReposStatus: &svn.ReposStatus{Item: svn.StatusAdded}},
	}
	got := classify(entries, classifyOptions{workspaceRoot: testWorkspace})

	if len(got.remote) != 2 || !got.remote[0].Remote || got.remote[0].Type != svn.StatusModified {
		t.Fatalf("remote = %+v", got.remote)
	}
	if want := []string{abs("b.txt")}; !reflect.DeepEqual(resourcePaths(got.changes), want) {
		t.Fatalf("changes = %v, want %v", resourcePaths(got.changes), want)
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	entries := []svn.StatusEntry{
		{Path: "a.txt", Status: svn.StatusModified, Changelist: "x"},
		{Path: "b.txt", Status: svn.StatusConflicted},
		{Path: "c.txt", Status: svn.StatusUnversioned},
		{Path: "d.txt", Status: svn.StatusAdded, Rename: "e.txt"},
		{Path: "e.txt", Status: svn.StatusDeleted},
	}
	opts := classifyOptions{workspaceRoot: testWorkspace, countUnversioned: true}
	first := classify(entries, opts)
	second := classify(entries, opts)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("classify not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestModelGroupLookup(t *testing.T) {
	remote := newGroup(GroupRemoteChanges, "Remote Changes", nil)
	m := Model{
		Changes:       newGroup(GroupChanges, "Changes", nil),
		Conflicts:     newGroup(GroupConflicts, "Conflicts", nil),
		Unversioned:   newGroup(GroupUnversioned, "Unversioned", nil),
		Changelists:   []Group{changelistGroup("feature", nil)},
		RemoteChanges: &remote,
	}
	for _, id := range []string{GroupChanges, GroupConflicts, GroupUnversioned, GroupRemoteChanges, "changelist-feature"} {
		if g, ok := m.Group(id); !ok || g.ID != id {
			t.Errorf("Group(%q) = %q, %v", id, g.ID, ok)
		}
	}
	if _, ok := m.Group("changelist-missing"); ok {
		t.Error("unknown changelist group found")
	}
	if got := len(m.Groups()); got != 5 {
		t.Errorf("Groups() = %d, want 5", got)
	}

	clone := m.clone()
	clone.Changelists[0].Resources = append(clone.Changelists[0].Resources, Resource{Path: "x"})
	if len(m.Changelists[0].Resources) != 0 {
		t.Error("clone shares changelist resources")
	}
}
