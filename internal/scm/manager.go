// Package scm discovers svn working copies below workspace folders, keeps one
// repository.Controller per working copy and routes paths to their owner.
package scm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/emirpasic/gods/sets/treeset"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"svnscm/internal/asyncutil"
	"svnscm/internal/config"
	"svnscm/internal/globmatch"
	"svnscm/internal/repository"
	"svnscm/internal/svn"
	"svnscm/internal/watcher"
	"svnscm/internal/workerutil"
)

var (
	// ErrAlreadyOpen is returned when the resolved working copy root already
	// has a controller (opened from another workspace path).
	ErrAlreadyOpen = errors.New("working copy already open")
	// ErrDisposed is returned after Dispose.
	ErrDisposed = errors.New("source control manager disposed")
)

const (
	pendingScanDebounce = 500 * time.Millisecond
	scanConcurrency     = 4
)

// Client is the svn surface discovery needs. NewSvnClient adapts *svn.Client.
type Client interface {
	IsWorkingCopy(dir string, checkParents bool) bool
	RepositoryRoot(ctx context.Context, path string) (string, error)
	Open(ctx context.Context, root, workspaceRoot string) (repository.WorkingCopy, error)
}

// Upgrader converts a working copy created by an older svn client.
type Upgrader interface {
	Upgrade(ctx context.Context, path string) error
}

// Options configures a Manager.
type Options struct {
	Config   *config.Holder
	Upgrader Upgrader
	// Repository is the template for every controller. Config, OnClose and
	// ModelSequence are owned by the manager and overwritten.
	Repository repository.Options
	// WatchWorkspace watches workspace folders for working copies that
	// appear after the initial scan.
	WatchWorkspace bool
}

type managed struct {
	ctrl        *repository.Controller
	exclusions  []string
	unsubscribe func()
}

// Manager owns the controllers of every open working copy.
type Manager struct {
	client         Client
	cfg            *config.Holder
	upgrader       Upgrader
	repoOpts       repository.Options
	watchWorkspace bool
	seq            asyncutil.Sequence

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	opening singleflight.Group

	mu       sync.RWMutex
	disposed bool
	folders  []string
	repos    map[string]*managed
	index    ownershipIndex
	watchers map[string]*watcher.Watcher

	pendingMu    sync.Mutex
	pending      *treeset.Set
	scanDebounce *asyncutil.Debouncer

	subs subscribers
}

// NewManager returns a Manager with no open working copies.
func NewManager(client Client, opts Options) *Manager {
	if opts.Config == nil {
		opts.Config = config.NewHolder(config.DefaultConfig())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		client:         client,
		cfg:            opts.Config,
		upgrader:       opts.Upgrader,
		repoOpts:       opts.Repository,
		watchWorkspace: opts.WatchWorkspace,
		ctx:            ctx,
		cancel:         cancel,
		repos:          make(map[string]*managed),
		watchers:       make(map[string]*watcher.Watcher),
		pending:        treeset.NewWithStringComparator(),
		scanDebounce:   asyncutil.NewDebouncer(pendingScanDebounce),
	}
}

// Subscribe registers fn for manager events, including every event of every
// controller. fn runs synchronously on the emitting goroutine and must not
// call Close or Dispose directly.
func (m *Manager) Subscribe(fn func(Event)) (cancel func()) {
	return m.subs.add(fn)
}

// Open scans folders as workspace folders.
func (m *Manager) Open(ctx context.Context, folders []string) error {
	cleaned := make([]string, 0, len(folders))
	m.mu.Lock()
	for _, f := range folders {
		f = filepath.Clean(f)
		cleaned = append(cleaned, f)
		if !slices.Contains(m.folders, f) {
			m.folders = append(m.folders, f)
		}
	}
	m.mu.Unlock()
	return m.scanFolders(ctx, cleaned)
}

func (m *Manager) scanFolders(ctx context.Context, folders []string) error {
	var g errgroup.Group
	for _, folder := range folders {
		g.Go(func() error {
			m.watchFolder(folder)
			if err := m.TryOpenRepository(ctx, folder, 0); err != nil && !errors.Is(err, ErrAlreadyOpen) {
				slog.Warn("[DEBUG-SCM] workspace folder scan failed", "folder", folder, "error", err)
				return fmt.Errorf("scan %s: %w", folder, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// TryOpenRepository opens the working copy at path, or at level 0 the one
// containing path. Otherwise subdirectories are scanned while level stays
// within multiple_folders.depth. A path that already has an owner is a no-op.
func (m *Manager) TryOpenRepository(ctx context.Context, path string, level int) error {
	if m.isDisposed() {
		return ErrDisposed
	}
	path = filepath.Clean(path)
	if m.Repository(path) != nil {
		return nil
	}

	if m.client.IsWorkingCopy(path, level == 0) {
		_, err, _ := m.opening.Do(svn.NormalizePath(path), func() (any, error) {
			return nil, m.openWorkingCopy(ctx, path, true)
		})
		return err
	}

	cfg := m.cfg.Get()
	maxDepth := 0
	if cfg.MultipleFolders.Enabled {
		maxDepth = cfg.MultipleFolders.Depth
	}
	next := level + 1
	if next > maxDepth {
		return nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		slog.Debug("[DEBUG-SCM] cannot list directory", "path", path, "error", err)
		return nil
	}
	var g errgroup.Group
	g.SetLimit(scanConcurrency)
	for _, e := range entries {
		if !e.IsDir() || e.Name() == svn.AdminDirName {
			continue
		}
		child := filepath.Join(path, e.Name())
		if globmatch.MatchAll(child, cfg.MultipleFolders.Ignore) {
			continue
		}
		g.Go(func() error {
			if err := m.TryOpenRepository(ctx, child, next); err != nil && !errors.Is(err, ErrAlreadyOpen) {
				slog.Warn("[DEBUG-SCM] discovery failed", "path", child, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) openWorkingCopy(ctx context.Context, path string, allowUpgrade bool) error {
	root, err := m.client.RepositoryRoot(ctx, path)
	if err != nil {
		switch {
		case svn.IsKind(err, svn.KindTooOld) && allowUpgrade && m.upgrader != nil:
			slog.Info("[DEBUG-SCM] working copy format too old, upgrading", "path", path)
			if err := m.upgrader.Upgrade(ctx, path); err != nil {
				if errors.Is(err, errUpgradeDeclined) {
					return nil
				}
				return fmt.Errorf("upgrade %s: %w", path, err)
			}
			return m.openWorkingCopy(ctx, path, false)
		case svn.IsKind(err, svn.KindNotWorkingCopy):
			slog.Debug("[DEBUG-SCM] not a working copy", "path", path)
			return nil
		}
		return fmt.Errorf("resolve working copy root of %s: %w", path, err)
	}

	if m.isIgnoredRepository(root) {
		slog.Debug("[DEBUG-SCM] working copy ignored by ignore_repositories", "root", root)
		return nil
	}

	wc, err := m.client.Open(ctx, root, path)
	if err != nil {
		return fmt.Errorf("open working copy %s: %w", root, err)
	}
	ctrl, err := m.register(wc)
	if err != nil {
		return err
	}

	ctrl.Start(m.ctx)
	if err := ctrl.Status(ctx); err != nil {
		slog.Warn("[DEBUG-SCM] initial status failed", "root", root, "error", err)
	}
	return nil
}

func (m *Manager) isIgnoredRepository(root string) bool {
	key := svn.NormalizePath(root)
	return slices.ContainsFunc(m.cfg.Get().IgnoreRepositories, func(p string) bool {
		return svn.NormalizePath(p) == key
	})
}

func (m *Manager) register(wc repository.WorkingCopy) (*repository.Controller, error) {
	key := svn.NormalizePath(wc.Root())

	opts := m.repoOpts
	opts.Config = m.cfg
	opts.ModelSequence = &m.seq
	opts.OnClose = func(root string) { m.Close(root) }
	ctrl := repository.New(wc, opts)
	entry := &managed{ctrl: ctrl}
	entry.unsubscribe = ctrl.Subscribe(func(ev repository.Event) {
		m.onRepositoryEvent(key, ctrl, ev)
	})

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		entry.unsubscribe()
		ctrl.Dispose()
		return nil, ErrDisposed
	}
	if _, ok := m.repos[key]; ok {
		m.mu.Unlock()
		entry.unsubscribe()
		ctrl.Dispose()
		return nil, fmt.Errorf("%s: %w", wc.Root(), ErrAlreadyOpen)
	}
	m.repos[key] = entry
	m.rebuildIndexLocked()
	m.mu.Unlock()

	slog.Info("[DEBUG-SCM] repository opened", "root", wc.Root(), "workspaceRoot", wc.WorkspaceRoot())
	m.subs.emit(Event{Kind: EventRepositoryOpened, Root: wc.Root()})
	return ctrl, nil
}

func (m *Manager) rebuildIndexLocked() {
	entries := make([]ownershipEntry, 0, len(m.repos))
	for key, e := range m.repos {
		entries = append(entries, ownershipEntry{
			key:        key,
			root:       e.ctrl.WorkspaceRoot(),
			exclusions: e.exclusions,
		})
	}
	m.index = newOwnershipIndex(entries)
}

func (m *Manager) onRepositoryEvent(key string, ctrl *repository.Controller, ev repository.Event) {
	switch ev.Kind {
	case repository.EventStatusChanged:
		m.updateExclusions(key, ctrl)
	case repository.EventStateChanged:
		if ev.State == repository.StateDisposed {
			go m.Close(ctrl.Root())
		}
	}
	m.subs.emit(Event{Kind: EventRepository, Root: ctrl.Root(), Repository: ev})
}

// updateExclusions refreshes the ownership exclusions of one controller from
// its latest model and queues newly seen externals and ignored directories
// for discovery.
func (m *Manager) updateExclusions(key string, ctrl *repository.Controller) {
	snap := ctrl.Snapshot()
	cfg := m.cfg.Get()

	exclusions := make([]string, 0, len(snap.Externals)+len(snap.Ignored))
	var candidates []string
	for _, ext := range snap.Externals {
		exclusions = append(exclusions, ext.Path)
		if cfg.DetectExternals {
			candidates = append(candidates, ext.Path)
		}
	}
	for _, p := range snap.Ignored {
		exclusions = append(exclusions, p)
		if cfg.DetectIgnored {
			candidates = append(candidates, p)
		}
	}

	m.mu.Lock()
	e, ok := m.repos[key]
	if !ok || e.ctrl != ctrl {
		m.mu.Unlock()
		return
	}
	previous := e.exclusions
	e.exclusions = exclusions
	m.rebuildIndexLocked()
	m.mu.Unlock()

	for _, p := range candidates {
		if !slices.Contains(previous, p) {
			m.schedulePending(p)
		}
	}
}

// NotifyPathChanged reports a file system change in a workspace folder.
// Changes below a path no controller owns may announce a new working copy;
// for paths inside a .svn directory the directory holding it is scanned.
func (m *Manager) NotifyPathChanged(path string) {
	candidate := filepath.ToSlash(path)
	if i := strings.Index(candidate, "/"+svn.AdminDirName); i >= 0 {
		candidate = candidate[:i]
	}
	candidate = filepath.Clean(filepath.FromSlash(candidate))
	if m.Repository(candidate) != nil {
		return
	}
	m.schedulePending(candidate)
}

func (m *Manager) schedulePending(path string) {
	if m.isDisposed() {
		return
	}
	m.pendingMu.Lock()
	m.pending.Add(path)
	m.pendingMu.Unlock()
	m.scanDebounce.Trigger(m.scanPending)
}

func (m *Manager) scanPending() {
	m.pendingMu.Lock()
	values := m.pending.Values()
	m.pending.Clear()
	m.pendingMu.Unlock()

	for _, v := range values {
		path := v.(string)
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			continue
		}
		if err := m.TryOpenRepository(m.ctx, path, 1); err != nil &&
			!errors.Is(err, ErrAlreadyOpen) && !errors.Is(err, ErrDisposed) {
			slog.Warn("[DEBUG-SCM] possible working copy scan failed", "path", path, "error", err)
		}
	}
}

// WorkspaceFoldersChanged scans added folders that have no owner yet and
// closes working copies that are no longer below any workspace folder.
func (m *Manager) WorkspaceFoldersChanged(ctx context.Context, added, removed []string) error {
	m.mu.Lock()
	for _, f := range removed {
		f = filepath.Clean(f)
		m.folders = slices.DeleteFunc(m.folders, func(v string) bool { return v == f })
	}
	for _, f := range added {
		f = filepath.Clean(f)
		if !slices.Contains(m.folders, f) {
			m.folders = append(m.folders, f)
		}
	}
	remaining := slices.Clone(m.folders)
	m.mu.Unlock()

	for _, f := range removed {
		m.unwatchFolder(f)
		ctrl := m.Repository(f)
		if ctrl == nil {
			continue
		}
		stillVisible := slices.ContainsFunc(remaining, func(folder string) bool {
			return svn.IsDescendant(folder, ctrl.WorkspaceRoot())
		})
		if !stillVisible {
			m.Close(ctrl.Root())
		}
	}

	var toScan []string
	for _, f := range added {
		f = filepath.Clean(f)
		if m.Repository(f) == nil {
			toScan = append(toScan, f)
		} else {
			m.watchFolder(f)
		}
	}
	return m.scanFolders(ctx, toScan)
}

// Folders returns the workspace folders.
func (m *Manager) Folders() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.folders)
}

// Repository returns the controller owning path, or nil.
func (m *Manager) Repository(path string) *repository.Controller {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.index.owner(path)
	if !ok {
		return nil
	}
	return m.repos[key].ctrl
}

// Repositories returns every open controller ordered by root.
func (m *Manager) Repositories() []*repository.Controller {
	m.mu.RLock()
	out := make([]*repository.Controller, 0, len(m.repos))
	for _, e := range m.repos {
		out = append(out, e.ctrl)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b *repository.Controller) int {
		return strings.Compare(a.Root(), b.Root())
	})
	return out
}

// RepositoryByRoot returns the controller whose working copy root is root.
func (m *Manager) RepositoryByRoot(root string) *repository.Controller {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.repos[svn.NormalizePath(root)]; ok {
		return e.ctrl
	}
	return nil
}

// Close disposes the controller of root. It reports whether one was open.
func (m *Manager) Close(root string) bool {
	key := svn.NormalizePath(root)
	m.mu.Lock()
	e, ok := m.repos[key]
	if ok {
		delete(m.repos, key)
		m.rebuildIndexLocked()
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	e.unsubscribe()
	e.ctrl.Dispose()
	slog.Info("[DEBUG-SCM] repository closed", "root", e.ctrl.Root())
	m.subs.emit(Event{Kind: EventRepositoryClosed, Root: e.ctrl.Root()})
	return true
}

// Dispose closes every controller and stops the workspace watchers.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	repos := m.repos
	m.repos = make(map[string]*managed)
	m.index = ownershipIndex{}
	watchers := m.watchers
	m.watchers = make(map[string]*watcher.Watcher)
	m.mu.Unlock()

	m.scanDebounce.Stop()
	m.cancel()
	for folder, w := range watchers {
		if err := w.Close(); err != nil {
			slog.Debug("[DEBUG-SCM] workspace watcher close failed", "folder", folder, "error", err)
		}
	}
	m.wg.Wait()

	for _, e := range repos {
		e.unsubscribe()
		e.ctrl.Dispose()
		m.subs.emit(Event{Kind: EventRepositoryClosed, Root: e.ctrl.Root()})
	}
	slog.Debug("[DEBUG-SCM] manager disposed", "repositories", len(repos))
}

func (m *Manager) isDisposed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.disposed
}

func (m *Manager) watchFolder(folder string) {
	if !m.watchWorkspace {
		return
	}
	key := svn.NormalizePath(folder)
	m.mu.RLock()
	_, exists := m.watchers[key]
	disposed := m.disposed
	m.mu.RUnlock()
	if exists || disposed {
		return
	}

	cfg := m.cfg.Get()
	ignore := cfg.MultipleFolders.Ignore
	w, err := watcher.New(folder, watcher.Options{
		Skip:     func(p string) bool { return globmatch.MatchAll(p, ignore) },
		MaxDepth: cfg.MultipleFolders.Depth + 1,
	})
	if err != nil {
		slog.Warn("[DEBUG-SCM] workspace watcher unavailable", "folder", folder, "error", err)
		return
	}

	m.mu.Lock()
	if _, ok := m.watchers[key]; ok || m.disposed {
		m.mu.Unlock()
		w.Close()
		return
	}
	m.watchers[key] = w
	defer m.mu.Unlock()

	workerutil.RunWithPanicRecovery(m.ctx, "workspace-watch:"+folder, &m.wg, func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events():
				if !ok {
					return
				}
				m.NotifyPathChanged(ev.Path)
			}
		}
	}, workerutil.RecoveryOptions{IsShutdown: func() bool { return m.ctx.Err() != nil }})
}

func (m *Manager) unwatchFolder(folder string) {
	key := svn.NormalizePath(folder)
	m.mu.Lock()
	w, ok := m.watchers[key]
	delete(m.watchers, key)
	m.mu.Unlock()
	if ok {
		if err := w.Close(); err != nil {
			slog.Debug("[DEBUG-SCM] workspace watcher close failed", "folder", folder, "error", err)
		}
	}
}
