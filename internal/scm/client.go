package scm

import (
	"context"
	"errors"
	"log/slog"

	"svnscm/internal/config"
	"svnscm/internal/repository"
	"svnscm/internal/svn"
)

var errUpgradeDeclined = errors.New("working copy upgrade declined")

type svnClient struct {
	client *svn.Client
	cfg    *config.Holder
}

// NewSvnClient adapts client for discovery. Opened working copies take their
// layout, info cache TTL and add-ignore globs from cfg.
func NewSvnClient(client *svn.Client, cfg *config.Holder) Client {
	return svnClient{client: client, cfg: cfg}
}

func (c svnClient) IsWorkingCopy(dir string, checkParents bool) bool {
	return c.client.IsWorkingCopy(dir, checkParents)
}

func (c svnClient) RepositoryRoot(ctx context.Context, path string) (string, error) {
	return c.client.RepositoryRoot(ctx, path)
}

func (c svnClient) Open(ctx context.Context, root, workspaceRoot string) (repository.WorkingCopy, error) {
	cfg := c.cfg.Get()
	repo, err := c.client.Open(ctx, root, workspaceRoot, svn.RepositoryOptions{
		Layout: svn.BranchLayout{
			Trunk:    cfg.Layout.Trunk,
			Branches: cfg.Layout.Branches,
			Tags:     cfg.Layout.Tags,
		},
		InfoCacheTTL: cfg.InfoCacheTTL,
		AddIgnore:    cfg.SourceControl.Ignore,
	})
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// ClientUpgrader runs `svn upgrade`. Confirm, when set, is asked first; a
// declined upgrade leaves the working copy closed.
type ClientUpgrader struct {
	Client  *svn.Client
	Confirm func(ctx context.Context, path string) bool
}

func (u ClientUpgrader) Upgrade(ctx context.Context, path string) error {
	if u.Confirm != nil && !u.Confirm(ctx, path) {
		slog.Info("[DEBUG-SCM] working copy upgrade declined", "path", path)
		return errUpgradeDeclined
	}
	return u.Client.Upgrade(ctx, path)
}
