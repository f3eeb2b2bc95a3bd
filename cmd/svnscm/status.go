package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"

	"svnscm/internal/repository"
	"svnscm/internal/svn"
)

var (
	rootColor   = color.New(color.FgBlue, color.Bold)
	groupColor  = color.New(color.FgYellow, color.Bold)
	dimColor    = color.New(color.FgHiBlack)
	statusColor = map[svn.Status]*color.Color{
		svn.StatusModified:    color.New(color.FgBlue),
		svn.StatusAdded:       color.New(color.FgGreen),
		svn.StatusReplaced:    color.New(color.FgGreen),
		svn.StatusDeleted:     color.New(color.FgRed),
		svn.StatusMissing:     color.New(color.FgRed),
		svn.StatusConflicted:  color.New(color.FgRed, color.Bold),
		svn.StatusObstructed:  color.New(color.FgRed, color.Bold),
		svn.StatusUnversioned: color.New(color.FgHiBlack),
	}
)

// statusLetter is the one-column code `svn status` prints for s.
func statusLetter(s svn.Status) string {
	switch s {
	case svn.StatusAdded:
		return "A"
	case svn.StatusConflicted:
		return "C"
	case svn.StatusDeleted:
		return "D"
	case svn.StatusIgnored:
		return "I"
	case svn.StatusModified:
		return "M"
	case svn.StatusReplaced:
		return "R"
	case svn.StatusExternal:
		return "X"
	case svn.StatusUnversioned:
		return "?"
	case svn.StatusMissing:
		return "!"
	case svn.StatusObstructed:
		return "~"
	case svn.StatusIncomplete:
		return "!"
	}
	return " "
}

// printStatus writes every model's non-empty groups.
func printStatus(w io.Writer, models []repository.Model) {
	if len(models) == 0 {
		fmt.Fprintln(w, "no svn working copies found")
		return
	}
	for i, m := range models {
		if i > 0 {
			fmt.Fprintln(w)
		}
		rootColor.Fprint(w, m.Root)
		if m.Branch != "" {
			dimColor.Fprintf(w, " (%s)", m.Branch)
		}
		fmt.Fprintf(w, "  %d change(s)\n", m.Count)
		if m.NeedCleanUp {
			color.New(color.FgRed).Fprintln(w, "  working copy locked, run cleanup")
		}

		groups := []repository.Group{m.Conflicts, m.Changes}
		groups = append(groups, m.Changelists...)
		groups = append(groups, m.Unversioned)
		if m.RemoteChanges != nil {
			groups = append(groups, *m.RemoteChanges)
		}
		for _, g := range groups {
			printGroup(w, m.WorkspaceRoot, g)
		}
	}
}

func printGroup(w io.Writer, workspaceRoot string, g repository.Group) {
	if len(g.Resources) == 0 {
		return
	}
	groupColor.Fprintf(w, "  %s (%d)\n", g.Label, len(g.Resources))
	for _, r := range g.Resources {
		path := r.Path
		if rel, err := filepath.Rel(workspaceRoot, r.Path); err == nil {
			path = rel
		}
		line := fmt.Sprintf("    %s %s", statusLetter(r.Type), path)
		if r.RenamePath != "" {
			if rel, err := filepath.Rel(workspaceRoot, r.RenamePath); err == nil {
				line += " (from " + rel + ")"
			}
		}
		if c, ok := statusColor[r.Type]; ok {
			c.Fprintln(w, line)
		} else {
			fmt.Fprintln(w, line)
		}
	}
}
