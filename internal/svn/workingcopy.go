package svn

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// IsWorkingCopy reports whether dir contains a .svn directory. With
// checkParents, every ancestor of dir is checked as well (svn ≥ 1.7 keeps a
// single admin directory at the working copy root).
func (c *Client) IsWorkingCopy(dir string, checkParents bool) bool {
	dir = filepath.Clean(dir)
	for {
		if info, err := os.Stat(filepath.Join(dir, AdminDirName)); err == nil && info.IsDir() {
			return true
		}
		if !checkParents {
			return false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}

// RepositoryRoot resolves the working copy root containing path.
func (c *Client) RepositoryRoot(ctx context.Context, path string) (string, error) {
	res, err := c.Exec(ctx, path, []string{"info", "--xml"}, ExecOptions{Quiet: true})
	if err != nil {
		return "", err
	}
	info, err := ParseInfoXML([]byte(res.Stdout))
	if err != nil {
		return "", err
	}
	if info.WcInfo.WcrootAbspath == "" {
		return "", fmt.Errorf("svn info for %s reported no working copy root", path)
	}
	return filepath.Clean(filepath.FromSlash(info.WcInfo.WcrootAbspath)), nil
}

// Open returns a handle for the working copy rooted at root. workspaceRoot is
// the directory the user opened; svn commands run there.
func (c *Client) Open(ctx context.Context, root, workspaceRoot string, opts RepositoryOptions) (*Repository, error) {
	repo := newRepository(c, root, workspaceRoot, opts)
	if _, err := repo.Info(ctx, "", "", true, false); err != nil {
		return nil, fmt.Errorf("open working copy %s: %w", root, err)
	}
	return repo, nil
}

// Upgrade runs `svn upgrade` on a working copy created by an older client.
func (c *Client) Upgrade(ctx context.Context, path string) error {
	if _, err := c.Exec(ctx, path, []string{"upgrade"}, ExecOptions{}); err != nil {
		return fmt.Errorf("upgrade working copy %s: %w", path, err)
	}
	return nil
}
