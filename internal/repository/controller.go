// Package repository keeps the resource-group model of one working copy in
// sync with svn and is the single place svn operations on it are run from.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"svnscm/internal/asyncutil"
	"svnscm/internal/config"
	"svnscm/internal/credentials"
	"svnscm/internal/operation"
	"svnscm/internal/svn"
)

// ErrNotInitialized is returned by Run once the controller is disposed.
var ErrNotInitialized = errors.New("repository not initialized")

// Options configures a Controller. Only Config is required.
type Options struct {
	Config   *config.Holder
	Keyring  CredentialStore
	Prompter Prompter
	Progress Progress
	Focus    Focus
	// OnClose asks the owner to close this controller because its root
	// disappeared from disk. Called on a separate goroutine.
	OnClose func(root string)
	// Sleep waits between lock retries. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
	// NewWatcher creates the file system watcher started by Start.
	// Nil disables watching.
	NewWatcher WatcherFactory
	// ModelSequence serializes model recomputation. Controllers of one
	// process share a single Sequence.
	ModelSequence *asyncutil.Sequence
	// RootExists reports whether root is still on disk. Defaults to os.Stat.
	RootExists func(root string) bool
}

// Controller runs svn operations on one working copy and owns its model.
type Controller struct {
	wc         WorkingCopy
	cfg        *config.Holder
	keyring    CredentialStore
	prompter   Prompter
	progress   Progress
	focus      Focus
	onClose    func(root string)
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	newWatcher WatcherFactory
	rootExists func(root string) bool

	tracker       *operation.Tracker
	seq           *asyncutil.Sequence
	modelThrottle *asyncutil.Throttle
	pendingRemote atomic.Bool

	mu    sync.RWMutex
	state State
	model Model

	// credMu guards pendingSave.
	credMu      sync.Mutex
	pendingSave *credentials.Account

	subs subscribers

	lifecycle lifecycle
}

// New creates a Controller for wc. Call Start to enable watching and polling.
func New(wc WorkingCopy, opts Options) *Controller {
	if opts.Config == nil {
		opts.Config = config.NewHolder(config.DefaultConfig())
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ModelSequence == nil {
		opts.ModelSequence = &asyncutil.Sequence{}
	}
	if opts.RootExists == nil {
		opts.RootExists = func(root string) bool {
			_, err := os.Stat(root)
			return err == nil
		}
	}

	c := &Controller{
		wc:         wc,
		cfg:        opts.Config,
		keyring:    opts.Keyring,
		prompter:   opts.Prompter,
		progress:   opts.Progress,
		focus:      opts.Focus,
		onClose:    opts.OnClose,
		sleep:      opts.Sleep,
		now:        opts.Now,
		newWatcher: opts.NewWatcher,
		rootExists: opts.RootExists,
		tracker:    operation.NewTracker(),
		seq:        opts.ModelSequence,
		state:      StateIdle,
	}
	c.model = Model{
		Root:          wc.Root(),
		WorkspaceRoot: wc.WorkspaceRoot(),
		Changes:       newGroup(GroupChanges, "Changes", nil),
		Conflicts:     newGroup(GroupConflicts, "Conflicts", nil),
		Unversioned:   newGroup(GroupUnversioned, "Unversioned", nil),
	}
	c.modelThrottle = asyncutil.NewThrottle(func(ctx context.Context) error {
		return c.seq.Do(ctx, c.recomputeModel)
	})

	cfg := c.cfg.Get()
	c.applyWorkingCopySettings(cfg)
	return c
}

// Root returns the working copy root.
func (c *Controller) Root() string { return c.wc.Root() }

// WorkspaceRoot returns the directory the working copy was opened from.
func (c *Controller) WorkspaceRoot() string { return c.wc.WorkspaceRoot() }

// WorkingCopy returns the underlying svn handle.
func (c *Controller) WorkingCopy() WorkingCopy { return c.wc }

// Tracker exposes the in-flight operations.
func (c *Controller) Tracker() *operation.Tracker { return c.tracker }

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot returns a deep copy of the last completed model.
func (c *Controller) Snapshot() Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := c.model.clone()
	m.State = c.state
	return m
}

// Subscribe registers fn for controller events.
func (c *Controller) Subscribe(fn func(Event)) (cancel func()) {
	return c.subs.add(fn)
}

func (c *Controller) emit(ev Event) {
	ev.Root = c.wc.Root()
	c.subs.emit(ev)
}

func (c *Controller) setState(next State) {
	c.mu.Lock()
	if c.state == next || c.state == StateDisposed {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.mu.Unlock()
	slog.Debug("[DEBUG-REPO] state changed", "root", c.wc.Root(), "state", next)
	c.emit(Event{Kind: EventStateChanged, State: next})
}

func (c *Controller) syncRunState() {
	if c.tracker.IsIdle() {
		c.setState(StateIdle)
	} else {
		c.setState(StateRunning)
	}
}

// Run executes task as an operation of kind. Transient lock and
// authentication failures are retried. Unless kind is read-only, the model
// is recomputed from a fresh status after task succeeds. A nil task only
// refreshes the model.
func (c *Controller) Run(ctx context.Context, kind operation.Kind, task func(ctx context.Context) error) (err error) {
	if c.State() == StateDisposed {
		return ErrNotInitialized
	}
	if task == nil {
		task = func(context.Context) error { return nil }
	}

	runID := uuid.NewString()
	c.tracker.Start(kind)
	c.syncRunState()
	c.emit(Event{Kind: EventRunStarted, RunID: runID, Operation: kind})

	if kind.ShowsProgress() && c.progress != nil {
		end := c.progress.Begin(c.wc.Root(), kind)
		defer end()
	}
	defer func() {
		c.tracker.End(kind)
		c.syncRunState()
		c.emit(Event{Kind: EventRunEnded, RunID: runID, Operation: kind, Err: err})
	}()

	err = c.retryRun(ctx, task)
	if err == nil && !kind.IsReadOnly() {
		if kind != operation.Status && kind != operation.StatusRemote {
			c.wc.ResetInfoCache()
		}
		err = c.updateModelState(ctx, kind == operation.StatusRemote)
	}
	if err != nil {
		c.handleRunError(kind, err)
	}
	return err
}

func (c *Controller) handleRunError(kind operation.Kind, err error) {
	root := c.wc.Root()
	if svn.IsKind(err, svn.KindNotWorkingCopy) {
		slog.Debug("[DEBUG-REPO] working copy gone, disposing", "root", root, "operation", kind)
		c.setState(StateDisposed)
	}
	if !c.rootExists(root) && c.onClose != nil {
		go c.onClose(root)
	}
}

// retryRun runs task, retrying repository-locked failures with quadratic
// backoff and authorization failures first with stored accounts (most
// recent first) and then with prompted credentials.
func (c *Controller) retryRun(ctx context.Context, task func(ctx context.Context) error) error {
	retry := c.cfg.Get().Retry
	var accounts []credentials.Account

	for attempt := 1; ; attempt++ {
		err := task(ctx)
		if err == nil {
			c.persistPendingCredentials(ctx)
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		switch {
		case svn.IsKind(err, svn.KindLocked) && attempt <= retry.LockMaxAttempts:
			delay := time.Duration(attempt*attempt) * retry.LockBackoffUnit
			slog.Debug("[DEBUG-REPO] working copy locked, retrying",
				"root", c.wc.Root(), "attempt", attempt, "delay", delay)
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				return err
			}

		case svn.IsKind(err, svn.KindAuthFailed) && attempt <= 1+len(accounts):
			if attempt == 1 {
				accounts = c.loadAccounts(ctx)
			}
			if idx := len(accounts) - attempt; idx >= 0 {
				slog.Debug("[DEBUG-REPO] authorization failed, trying stored account",
					"root", c.wc.Root(), "attempt", attempt, "account", accounts[idx].Account)
				c.wc.SetCredentials(accounts[idx].Account, accounts[idx].Password)
			}

		case svn.IsKind(err, svn.KindAuthFailed) && attempt <= 1+len(accounts)+retry.AuthPromptAttempts:
			account, ok := c.promptAuth(ctx)
			if !ok {
				return err
			}
			c.wc.SetCredentials(account.Account, account.Password)
			c.credMu.Lock()
			c.pendingSave = &account
			c.credMu.Unlock()

		default:
			return err
		}
	}
}

func (c *Controller) credentialKey() string {
	info := c.wc.RootInfo()
	if info == nil {
		return credentials.Key("", "", c.wc.WorkspaceRoot())
	}
	return credentials.Key(info.Repository.Root, info.URL, c.wc.WorkspaceRoot())
}

func (c *Controller) loadAccounts(ctx context.Context) []credentials.Account {
	if c.keyring == nil {
		return nil
	}
	accounts, err := c.keyring.Load(ctx, c.credentialKey())
	if err != nil {
		slog.Warn("[DEBUG-REPO] failed to load stored credentials", "root", c.wc.Root(), "error", err)
		return nil
	}
	return accounts
}

func (c *Controller) promptAuth(ctx context.Context) (credentials.Account, bool) {
	if c.prompter == nil {
		return credentials.Account{}, false
	}
	prev, _ := c.wc.Credentials()
	account, ok := c.prompter.PromptAuth(ctx, c.wc.Root(), prev)
	if !ok || account.Account == "" {
		return credentials.Account{}, false
	}
	return account, true
}

func (c *Controller) persistPendingCredentials(ctx context.Context) {
	c.credMu.Lock()
	account := c.pendingSave
	c.pendingSave = nil
	c.credMu.Unlock()
	if account == nil || c.keyring == nil {
		return
	}
	if err := c.keyring.Append(ctx, c.credentialKey(), *account); err != nil {
		slog.Warn("[DEBUG-REPO] failed to store credentials", "root", c.wc.Root(), "error", err)
	}
}

// updateModelState queues a model recomputation. Concurrent requests share
// one queued pass; passes of all controllers sharing the sequence run one
// at a time.
func (c *Controller) updateModelState(ctx context.Context, checkRemote bool) error {
	if checkRemote {
		c.pendingRemote.Store(true)
	}
	return c.modelThrottle.Run(ctx)
}

func (c *Controller) recomputeModel(ctx context.Context) error {
	checkRemote := c.pendingRemote.Swap(false)
	cfg := c.cfg.Get()
	combine := cfg.SourceControl.CombineExternalIfSameServer

	entries, err := c.wc.Status(ctx, svn.StatusOptions{
		IncludeIgnored:     true,
		IncludeExternals:   combine,
		CheckRemoteChanges: checkRemote,
	})
	if err != nil {
		if checkRemote {
			c.pendingRemote.Store(true)
		}
		return fmt.Errorf("status %s: %w", c.wc.Root(), err)
	}

	repositoryUUID := ""
	if combine && slices.ContainsFunc(entries, func(e svn.StatusEntry) bool { return e.Status == svn.StatusExternal }) {
		if repositoryUUID, err = c.wc.RepositoryUUID(ctx); err != nil {
			slog.Debug("[DEBUG-REPO] repository uuid lookup failed", "root", c.wc.Root(), "error", err)
		}
	}

	result := classify(entries, classifyOptions{
		workspaceRoot:       c.wc.WorkspaceRoot(),
		exclude:             cfg.ExcludePatterns(),
		ignore:              cfg.SourceControl.Ignore,
		hideUnversioned:     cfg.SourceControl.HideUnversioned,
		countUnversioned:    cfg.SourceControl.CountUnversioned,
		ignoreOnStatusCount: cfg.SourceControl.IgnoreOnStatusCount,
		combineExternals:    combine,
		repositoryUUID:      repositoryUUID,
	})

	branch, err := c.wc.CurrentBranch(ctx)
	if err != nil {
		slog.Debug("[DEBUG-REPO] current branch lookup failed", "root", c.wc.Root(), "error", err)
	}

	c.mu.Lock()
	prev := c.model
	next := Model{
		Root:               prev.Root,
		WorkspaceRoot:      prev.WorkspaceRoot,
		Branch:             branch,
		Changes:            newGroup(GroupChanges, "Changes", result.changes),
		Conflicts:          newGroup(GroupConflicts, "Conflicts", result.conflicts),
		Unversioned:        newGroup(GroupUnversioned, "Unversioned", result.unversioned),
		Changelists:        result.changelists,
		RemoteChanges:      prev.RemoteChanges,
		Externals:          result.externals,
		Ignored:            result.ignored,
		Count:              result.count,
		RemoteChangedFiles: prev.RemoteChangedFiles,
		NeedCleanUp:        result.needCleanUp,
		IsIncomplete:       result.isIncomplete,
		GroupsEpoch:        prev.GroupsEpoch,
		UpdatedAt:          c.now(),
	}
	if branch == "" && err != nil {
		next.Branch = prev.Branch
	}
	groupsChanged := !slices.Equal(changelistNames(prev.Changelists), changelistNames(next.Changelists))
	if groupsChanged {
		next.GroupsEpoch++
	}
	remoteChanged := false
	if checkRemote {
		remote := newGroup(GroupRemoteChanges, "Remote Changes", result.remote)
		next.RemoteChanges = &remote
		if len(result.remote) != prev.RemoteChangedFiles {
			next.RemoteChangedFiles = len(result.remote)
			remoteChanged = true
		}
	}
	c.model = next
	c.mu.Unlock()

	if groupsChanged {
		c.emit(Event{Kind: EventGroupsRecreated})
	}
	c.emit(Event{Kind: EventStatusChanged, Count: next.Count})
	if remoteChanged {
		c.emit(Event{Kind: EventRemoteChangesChanged, Count: next.RemoteChangedFiles})
	}
	return nil
}

// clearRemoteChanges drops the remote changes group.
func (c *Controller) clearRemoteChanges() {
	c.mu.Lock()
	if c.model.RemoteChanges == nil {
		c.mu.Unlock()
		return
	}
	c.model.RemoteChanges = nil
	c.model.RemoteChangedFiles = 0
	count := c.model.Count
	c.mu.Unlock()
	c.emit(Event{Kind: EventRemoteChangesChanged, Count: 0})
	c.emit(Event{Kind: EventStatusChanged, Count: count})
}

func (c *Controller) applyWorkingCopySettings(cfg config.Config) {
	c.wc.SetLayout(svn.BranchLayout{
		Trunk:    cfg.Layout.Trunk,
		Branches: cfg.Layout.Branches,
		Tags:     cfg.Layout.Tags,
	})
	if err := c.wc.SetAddIgnore(cfg.SourceControl.Ignore); err != nil {
		slog.Warn("[DEBUG-REPO] invalid ignore globs", "root", c.wc.Root(), "error", err)
	}
}
