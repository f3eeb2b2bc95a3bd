package repository

import (
	"context"
	"errors"
	"regexp"
	"slices"

	"svnscm/internal/operation"
	"svnscm/internal/svn"
)

// ErrNothingToCommit is returned by CommitChanges when no resource qualifies.
var ErrNothingToCommit = errors.New("nothing to commit")

// conflictMarkers matches a complete <<<<<<< / ======= / >>>>>>> block.
var conflictMarkers = regexp.MustCompile(`(?ms)^<{7}.+^={7}.+^>{7}`)

// Status refreshes the model.
func (c *Controller) Status(ctx context.Context) error {
	return c.Run(ctx, operation.Status, nil)
}

// StatusRemote refreshes the model including incoming changes.
func (c *Controller) StatusRemote(ctx context.Context) error {
	return c.Run(ctx, operation.StatusRemote, nil)
}

// Commit commits files and returns svn's summary.
func (c *Controller) Commit(ctx context.Context, message string, files []string) (string, error) {
	var summary string
	err := c.Run(ctx, operation.Commit, func(ctx context.Context) error {
		var err error
		summary, err = c.wc.CommitFiles(ctx, message, files)
		return err
	})
	return summary, err
}

// CommitChanges commits every pending change. With changelist set, only that
// changelist is committed; otherwise the changes group and every changelist
// not listed in source_control.ignore_on_commit.
func (c *Controller) CommitChanges(ctx context.Context, message, changelist string) (string, error) {
	files := c.commitCandidates(changelist)
	if len(files) == 0 {
		return "", ErrNothingToCommit
	}
	return c.Commit(ctx, message, files)
}

func (c *Controller) commitCandidates(changelist string) []string {
	model := c.Snapshot()
	ignoreOnCommit := c.cfg.Get().SourceControl.IgnoreOnCommit

	var resources []Resource
	if changelist != "" {
		if g, ok := model.Group(changelistGroupPrefix + changelist); ok {
			resources = g.Resources
		}
	} else {
		resources = append(resources, model.Changes.Resources...)
		for _, g := range model.Changelists {
			if slices.Contains(ignoreOnCommit, g.Changelist) {
				continue
			}
			resources = append(resources, g.Resources...)
		}
	}

	files := make([]string, 0, len(resources))
	for _, r := range resources {
		files = append(files, r.Path)
		if r.Type == svn.StatusAdded && r.RenamePath != "" {
			files = append(files, r.RenamePath)
		}
	}
	return files
}

// Add schedules files for addition.
func (c *Controller) Add(ctx context.Context, files []string) error {
	return c.Run(ctx, operation.Add, func(ctx context.Context) error {
		return c.wc.AddFiles(ctx, files)
	})
}

// Revert reverts files to BASE.
func (c *Controller) Revert(ctx context.Context, files []string, depth string) error {
	return c.Run(ctx, operation.Revert, func(ctx context.Context) error {
		return c.wc.Revert(ctx, files, depth)
	})
}

// Resolve marks conflicts on files resolved with action ("working", "mine-full", ...).
func (c *Controller) Resolve(ctx context.Context, files []string, action string) error {
	return c.Run(ctx, operation.Resolve, func(ctx context.Context) error {
		return c.wc.Resolve(ctx, files, action)
	})
}

// Update brings the working copy up to HEAD and returns svn's last line.
func (c *Controller) Update(ctx context.Context, ignoreExternals bool) (string, error) {
	var summary string
	err := c.Run(ctx, operation.Update, func(ctx context.Context) error {
		var err error
		summary, err = c.wc.Update(ctx, ignoreExternals)
		return err
	})
	return summary, err
}

// SwitchBranch switches the working copy to ref. With force, ancestry is
// ignored; callers retry with force after a svn.KindAncestryMismatch error.
func (c *Controller) SwitchBranch(ctx context.Context, ref string, force bool) error {
	return c.Run(ctx, operation.SwitchBranch, func(ctx context.Context) error {
		return c.wc.SwitchBranch(ctx, ref, force)
	})
}

// NewBranch copies the working copy URL to name and switches to it.
func (c *Controller) NewBranch(ctx context.Context, name, message string) error {
	return c.Run(ctx, operation.NewBranch, func(ctx context.Context) error {
		return c.wc.NewBranch(ctx, name, message)
	})
}

// Merge merges ref into the working copy.
func (c *Controller) Merge(ctx context.Context, ref string, reintegrate bool, acceptAction string) error {
	return c.Run(ctx, operation.Merge, func(ctx context.Context) error {
		return c.wc.Merge(ctx, ref, reintegrate, acceptAction)
	})
}

// AddChangelist moves files to changelist name.
func (c *Controller) AddChangelist(ctx context.Context, files []string, name string) error {
	return c.Run(ctx, operation.AddChangelist, func(ctx context.Context) error {
		return c.wc.AddChangelist(ctx, files, name)
	})
}

// RemoveChangelist removes files from their changelist.
func (c *Controller) RemoveChangelist(ctx context.Context, files []string) error {
	return c.Run(ctx, operation.RemoveChangelist, func(ctx context.Context) error {
		return c.wc.RemoveChangelist(ctx, files)
	})
}

// Remove schedules files for deletion.
func (c *Controller) Remove(ctx context.Context, files []string, keepLocal bool) error {
	return c.Run(ctx, operation.Remove, func(ctx context.Context) error {
		return c.wc.RemoveFiles(ctx, files, keepLocal)
	})
}

// Cleanup runs svn cleanup.
func (c *Controller) Cleanup(ctx context.Context) error {
	return c.Run(ctx, operation.Cleanup, func(ctx context.Context) error {
		return c.wc.Cleanup(ctx)
	})
}

// AddToIgnore adds expressions to svn:ignore of directory.
func (c *Controller) AddToIgnore(ctx context.Context, expressions []string, directory string, recursive bool) error {
	return c.Run(ctx, operation.AddToIgnore, func(ctx context.Context) error {
		return c.wc.AddToIgnore(ctx, expressions, directory, recursive)
	})
}

// Log returns log entries.
func (c *Controller) Log(ctx context.Context, opts svn.LogOptions) ([]svn.LogEntry, error) {
	var entries []svn.LogEntry
	err := c.Run(ctx, operation.Log, func(ctx context.Context) error {
		var err error
		entries, err = c.wc.Log(ctx, opts)
		return err
	})
	return entries, err
}

// List lists folder (relative to the repository URL).
func (c *Controller) List(ctx context.Context, folder string) ([]svn.ListEntry, error) {
	var entries []svn.ListEntry
	err := c.Run(ctx, operation.List, func(ctx context.Context) error {
		var err error
		entries, err = c.wc.List(ctx, folder)
		return err
	})
	return entries, err
}

// Show returns the content of file at revision.
func (c *Controller) Show(ctx context.Context, file, revision string) (string, error) {
	var content string
	err := c.Run(ctx, operation.Show, func(ctx context.Context) error {
		var err error
		content, err = c.wc.Show(ctx, file, revision)
		return err
	})
	return content, err
}

// Info returns svn info for path ("" is the working copy).
func (c *Controller) Info(ctx context.Context, path string) (*svn.InfoEntry, error) {
	var info *svn.InfoEntry
	err := c.Run(ctx, operation.Info, func(ctx context.Context) error {
		var err error
		info, err = c.wc.Info(ctx, path, "", false, false)
		return err
	})
	return info, err
}

// CurrentBranch returns the branch name of the working copy.
func (c *Controller) CurrentBranch(ctx context.Context) (string, error) {
	var branch string
	err := c.Run(ctx, operation.CurrentBranch, func(ctx context.Context) error {
		var err error
		branch, err = c.wc.CurrentBranch(ctx)
		return err
	})
	return branch, err
}

// NotifySaved resolves a conflicted file once it is saved without conflict
// markers. It reports whether a resolve ran.
func (c *Controller) NotifySaved(ctx context.Context, path string, content []byte) (bool, error) {
	model := c.Snapshot()
	conflicted := slices.ContainsFunc(model.Conflicts.Resources, func(r Resource) bool {
		return svn.NormalizePath(r.Path) == svn.NormalizePath(path)
	})
	if !conflicted || conflictMarkers.Match(content) {
		return false, nil
	}
	if err := c.Resolve(ctx, []string{path}, "working"); err != nil {
		return false, err
	}
	return true, nil
}
