package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"svnscm/internal/config"
	"svnscm/internal/credentials"
	"svnscm/internal/operation"
	"svnscm/internal/svn"
)

// fakeWorkingCopy implements WorkingCopy with overridable hooks. Unset hooks
// succeed with zero values.
type fakeWorkingCopy struct {
	root string

	statusFn  func(ctx context.Context, opts svn.StatusOptions) ([]svn.StatusEntry, error)
	commitFn  func(ctx context.Context, message string, files []string) (string, error)
	resolveFn func(ctx context.Context, files []string, action string) error
	uuidFn    func(ctx context.Context) (string, error)

	mu          sync.Mutex
	username    string
	password    string
	credHistory []string
	statusCalls int
	remoteCalls int
	infoResets  int
}

var _ WorkingCopy = (*fakeWorkingCopy)(nil)

func newFakeWorkingCopy(t *testing.T) *fakeWorkingCopy {
	t.Helper()
	return &fakeWorkingCopy{root: filepath.Join(t.TempDir(), "wc")}
}

func (f *fakeWorkingCopy) Root() string { return f.root }
func (f *fakeWorkingCopy) WorkspaceRoot() string { return f.root }

func (f *fakeWorkingCopy) SetCredentials(username, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.username, f.password = username, password
	f.credHistory = append(f.credHistory, username)
}

func (f *fakeWorkingCopy) Credentials() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.username, f.password
}

func (f *fakeWorkingCopy) credentialHistory() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.credHistory...)
}

func (f *fakeWorkingCopy) SetAddIgnore([]string) error { return nil }
func (f *fakeWorkingCopy) SetLayout(svn.BranchLayout) {}
func (f *fakeWorkingCopy) RootInfo() *svn.InfoEntry { return nil }
func (f *fakeWorkingCopy) Cleanup(context.Context) error { return nil }

func (f *fakeWorkingCopy) ResetInfoCache() {
	f.mu.Lock()
	f.infoResets++
	f.mu.Unlock()
}

func (f *fakeWorkingCopy) infoResetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.infoResets
}

func (f *fakeWorkingCopy) Status(ctx context.Context, opts svn.StatusOptions) ([]svn.StatusEntry, error) {
	f.mu.Lock()
	f.statusCalls++
	if opts.CheckRemoteChanges {
		f.remoteCalls++
	}
	f.mu.Unlock()
	if f.statusFn == nil {
		return nil, nil
	}
	return f.statusFn(ctx, opts)
}

func (f *fakeWorkingCopy) statusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func (f *fakeWorkingCopy) remoteStatusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remoteCalls
}

func (f *fakeWorkingCopy) Info(context.Context, string, string, bool, bool) (*svn.InfoEntry, error) {
	return &svn.InfoEntry{Path: f.root}, nil
}

func (f *fakeWorkingCopy) RepositoryUUID(ctx context.Context) (string, error) {
	if f.uuidFn == nil {
		return "", nil
	}
	return f.uuidFn(ctx)
}

func (f *fakeWorkingCopy) CurrentBranch(context.Context) (string, error) { return "trunk", nil }

func (f *fakeWorkingCopy) CommitFiles(ctx context.Context, message string, files []string) (string, error) {
	if f.commitFn == nil {
		return "Committed revision 1.", nil
	}
	return f.commitFn(ctx, message, files)
}

func (f *fakeWorkingCopy) AddFiles(context.Context, []string) error { return nil }
func (f *fakeWorkingCopy) AddChangelist(context.Context, []string, string) error { return nil }
func (f *fakeWorkingCopy) RemoveChangelist(context.Context, []string) error { return nil }
func (f *fakeWorkingCopy) RemoveFiles(context.Context, []string, bool) error { return nil }
func (f *fakeWorkingCopy) SwitchBranch(context.Context, string, bool) error { return nil }
func (f *fakeWorkingCopy) Merge(context.Context, string, bool, string) error { return nil }
func (f *fakeWorkingCopy) NewBranch(context.Context, string, string) error { return nil }
func (f *fakeWorkingCopy) Revert(context.Context, []string, string) error { return nil }
func (f *fakeWorkingCopy) Update(context.Context, bool) (string, error) { return "", nil }
func (f *fakeWorkingCopy) Log(context.Context, svn.LogOptions) ([]svn.LogEntry, error) { return nil, nil }
func (f *fakeWorkingCopy) List(context.Context, string) ([]svn.ListEntry, error) { return nil, nil }
func (f *fakeWorkingCopy) Show(context.Context, string, string) (string, error) { return "", nil }

func (f *fakeWorkingCopy) AddToIgnore(context.Context, []string, string, bool) error { return nil }

func (f *fakeWorkingCopy) Resolve(ctx context.Context, files []string, action string) error {
	if f.resolveFn == nil {
		return nil
	}
	return f.resolveFn(ctx, files, action)
}

type fakeKeyring struct {
	mu       sync.Mutex
	accounts []credentials.Account
	appended []credentials.Account
	keys     []string
}

func (k *fakeKeyring) Load(_ context.Context, key string) ([]credentials.Account, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys = append(k.keys, key)
	return append([]credentials.Account(nil), k.accounts...), nil
}

func (k *fakeKeyring) Append(_ context.Context, key string, account credentials.Account) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys = append(k.keys, key)
	k.appended = append(k.appended, account)
	return nil
}

type fakePrompter struct {
	mu      sync.Mutex
	calls   int
	account credentials.Account
	cancel  bool
}

func (p *fakePrompter) PromptAuth(context.Context, string, string) (credentials.Account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.cancel {
		return credentials.Account{}, false
	}
	return p.account, true
}

type fakeProgress struct {
	mu    sync.Mutex
	begun []operation.Kind
	ended int
}

func (p *fakeProgress) Begin(_ string, kind operation.Kind) func() {
	p.mu.Lock()
	p.begun = append(p.begun, kind)
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.ended++
		p.mu.Unlock()
	}
}

// eventRecorder collects controller events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *eventRecorder) count(kind EventKind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func (r *eventRecorder) last(kind EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}

func newTestController(t *testing.T, wc WorkingCopy, mutate func(*Options)) *Controller {
	t.Helper()
	opts := Options{
		Config:     config.NewHolder(config.DefaultConfig()),
		Sleep:      func(context.Context, time.Duration) error { return nil },
		RootExists: func(string) bool { return true },
	}
	if mutate != nil {
		mutate(&opts)
	}
	c := New(wc, opts)
	t.Cleanup(c.Dispose)
	return c
}

func lockedError() error {
	return &svn.Error{Kind: svn.KindLocked, Code: svn.CodeRepositoryLocked, Message: "svn cleanup required"}
}

func authError() error {
	return &svn.Error{Kind: svn.KindAuthFailed, Code: svn.CodeAuthorizationFailed, Message: "authorization failed"}
}
