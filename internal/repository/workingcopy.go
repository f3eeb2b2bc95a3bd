package repository

import (
	"context"
	"time"

	"svnscm/internal/credentials"
	"svnscm/internal/operation"
	"svnscm/internal/svn"
	"svnscm/internal/watcher"
)

// WorkingCopy is the svn handle a Controller drives. *svn.Repository
// implements it; tests substitute fakes.
type WorkingCopy interface {
	Root() string
	WorkspaceRoot() string
	SetCredentials(username, password string)
	Credentials() (string, string)
	SetAddIgnore(patterns []string) error
	SetLayout(layout svn.BranchLayout)

	Status(ctx context.Context, opts svn.StatusOptions) ([]svn.StatusEntry, error)
	Info(ctx context.Context, path, revision string, skipCache, isURL bool) (*svn.InfoEntry, error)
	RootInfo() *svn.InfoEntry
	ResetInfoCache()
	RepositoryUUID(ctx context.Context) (string, error)
	CurrentBranch(ctx context.Context) (string, error)

	CommitFiles(ctx context.Context, message string, files []string) (string, error)
	AddFiles(ctx context.Context, files []string) error
	AddChangelist(ctx context.Context, files []string, name string) error
	RemoveChangelist(ctx context.Context, files []string) error
	RemoveFiles(ctx context.Context, files []string, keepLocal bool) error
	SwitchBranch(ctx context.Context, ref string, force bool) error
	Merge(ctx context.Context, ref string, reintegrate bool, acceptAction string) error
	NewBranch(ctx context.Context, name, message string) error
	Revert(ctx context.Context, files []string, depth string) error
	Resolve(ctx context.Context, files []string, action string) error
	Update(ctx context.Context, ignoreExternals bool) (string, error)
	Cleanup(ctx context.Context) error
	Log(ctx context.Context, opts svn.LogOptions) ([]svn.LogEntry, error)
	List(ctx context.Context, folder string) ([]svn.ListEntry, error)
	Show(ctx context.Context, file, revision string) (string, error)
	AddToIgnore(ctx context.Context, expressions []string, directory string, recursive bool) error
}

var _ WorkingCopy = (*svn.Repository)(nil)

// CredentialStore persists accounts that authenticated successfully.
// *credentials.Keyring implements it.
type CredentialStore interface {
	Load(ctx context.Context, key string) ([]credentials.Account, error)
	Append(ctx context.Context, key string, account credentials.Account) error
}

var _ CredentialStore = (*credentials.Keyring)(nil)

// Prompter asks the user for credentials. ok is false when the user cancelled.
type Prompter interface {
	PromptAuth(ctx context.Context, root, prevUsername string) (account credentials.Account, ok bool)
}

// Progress shows a busy indicator for long-running operations.
type Progress interface {
	Begin(root string, kind operation.Kind) (end func())
}

// Focus blocks background refreshes while the UI is in the background.
type Focus interface {
	WaitFocused(ctx context.Context) error
}

// EventSource is a stream of file system events for one working copy.
type EventSource interface {
	Events() <-chan watcher.Event
	Close() error
}

// WatcherFactory creates the file system watcher of a working copy.
type WatcherFactory func(workspaceRoot, wcRoot string) (EventSource, error)

// NewRepositoryWatcher is the default WatcherFactory.
func NewRepositoryWatcher(workspaceRoot, wcRoot string) (EventSource, error) {
	w, err := watcher.NewRepositoryWatcher(workspaceRoot, wcRoot)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
