package svn

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emirpasic/gods/sets/treeset"
	cmap "github.com/orcaman/concurrent-map/v2"

	"svnscm/internal/asyncutil"
	"svnscm/internal/globmatch"
)

// DefaultInfoCacheTTL is how long an `svn info` result is reused.
const DefaultInfoCacheTTL = 2 * time.Minute

// RepositoryOptions configures a Repository.
type RepositoryOptions struct {
	Layout       BranchLayout
	InfoCacheTTL time.Duration
	// AddIgnore lists globs skipped when AddFiles expands directories.
	AddIgnore []string
}

// StatusOptions selects `svn status` flags.
type StatusOptions struct {
	IncludeIgnored     bool
	IncludeExternals   bool
	CheckRemoteChanges bool
}

// LogOptions selects the revision range of Log.
type LogOptions struct {
	From   string
	To     string
	Limit  int
	Target string
}

type cachedInfo struct {
	info    *InfoEntry
	expires time.Time
}

// Repository is the handle to one working copy. It is safe for concurrent use.
type Repository struct {
	client        *Client
	root          string
	workspaceRoot string
	layout        BranchLayout
	infoTTL       time.Duration
	now           func() time.Time

	mu        sync.RWMutex
	username  string
	password  string
	addIgnore *globmatch.Matcher
	rootInfo  *InfoEntry

	infoCache cmap.ConcurrentMap[string, cachedInfo]
	infoLocks asyncutil.KeyedMutex
}

func newRepository(client *Client, root, workspaceRoot string, opts RepositoryOptions) *Repository {
	if workspaceRoot == "" {
		workspaceRoot = root
	}
	ttl := opts.InfoCacheTTL
	if ttl <= 0 {
		ttl = DefaultInfoCacheTTL
	}
	layout := opts.Layout
	if layout.Trunk == "" && len(layout.Branches) == 0 && len(layout.Tags) == 0 {
		layout = DefaultBranchLayout()
	}
	r := &Repository{
		client:        client,
		root:          filepath.Clean(root),
		workspaceRoot: filepath.Clean(workspaceRoot),
		layout:        layout,
		infoTTL:       ttl,
		now:           time.Now,
		infoCache:     cmap.New[cachedInfo](),
	}
	if err := r.SetAddIgnore(opts.AddIgnore); err != nil {
		slog.Warn("[DEBUG-SVN] ignoring invalid add-ignore globs", "root", root, "error", err)
	}
	return r
}

// Root returns the working copy root.
func (r *Repository) Root() string { return r.root }

// WorkspaceRoot returns the directory svn commands run in.
func (r *Repository) WorkspaceRoot() string { return r.workspaceRoot }

// SetCredentials sets the username/password passed to every later command.
func (r *Repository) SetCredentials(username, password string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.username = username
	r.password = password
}

// Credentials returns the active username/password.
func (r *Repository) Credentials() (string, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.username, r.password
}

// SetAddIgnore replaces the globs used by AddFiles.
func (r *Repository) SetAddIgnore(patterns []string) error {
	m, err := globmatch.New(patterns)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.addIgnore = m
	r.mu.Unlock()
	return nil
}

// SetLayout replaces the branch layout.
func (r *Repository) SetLayout(layout BranchLayout) {
	r.mu.Lock()
	r.layout = layout
	r.mu.Unlock()
}

func (r *Repository) exec(ctx context.Context, args []string, opts ExecOptions) (*ExecResult, error) {
	opts.Username, opts.Password = r.Credentials()
	return r.client.Exec(ctx, r.workspaceRoot, args, opts)
}

// relativePath turns file into a workspace-relative path with "/" separators.
func (r *Repository) relativePath(file string) string {
	if file == "" {
		return ""
	}
	if filepath.IsAbs(file) {
		rel, err := filepath.Rel(r.workspaceRoot, file)
		if err == nil {
			file = rel
		}
	}
	file = FixPathSeparator(file)
	if file == "" {
		return "."
	}
	return file
}

func (r *Repository) targets(files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, FixPegRevision(r.relativePath(f)))
	}
	return out
}

// Status runs `svn status --xml`. External entries get their repository UUID
// resolved; lookup failures are logged and leave the UUID empty.
func (r *Repository) Status(ctx context.Context, opts StatusOptions) ([]StatusEntry, error) {
	args := []string{"stat", "--xml"}
	if opts.IncludeIgnored {
		args = append(args, "--no-ignore")
	}
	if !opts.IncludeExternals {
		args = append(args, "--ignore-externals")
	}
	if opts.CheckRemoteChanges {
		args = append(args, "--show-updates")
	}
	res, err := r.exec(ctx, args, ExecOptions{})
	if err != nil {
		return nil, err
	}
	entries, err := ParseStatusXML([]byte(res.Stdout))
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Status != StatusExternal {
			continue
		}
		info, err := r.Info(ctx, entries[i].Path, "", false, false)
		if err != nil {
			slog.Debug("[DEBUG-SVN] external uuid lookup failed", "path", entries[i].Path, "error", err)
			continue
		}
		entries[i].RepositoryUUID = info.Repository.UUID
	}
	return entries, nil
}

// Info runs `svn info --xml` for path ("" is the workspace root). Results are
// cached per path and revision for the TTL; concurrent calls for one key run
// one at a time so at most one process is spawned per key.
func (r *Repository) Info(ctx context.Context, path, revision string, skipCache, isURL bool) (*InfoEntry, error) {
	target := path
	if !isURL {
		target = r.relativePath(path)
		if target == "." {
			target = ""
		}
	}
	key := target
	if revision != "" {
		key += "@" + revision
	}

	unlock, err := r.infoLocks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !skipCache {
		if cached, ok := r.infoCache.Get(key); ok && r.now().Before(cached.expires) {
			clone := *cached.info
			return &clone, nil
		}
	}

	args := []string{"info", "--xml"}
	if revision != "" {
		args = append(args, "-r", revision)
	}
	if target != "" {
		args = append(args, FixPegRevision(target))
	}
	res, err := r.exec(ctx, args, ExecOptions{})
	if err != nil {
		return nil, err
	}
	info, err := ParseInfoXML([]byte(res.Stdout))
	if err != nil {
		return nil, err
	}
	r.infoCache.Set(key, cachedInfo{info: info, expires: r.now().Add(r.infoTTL)})
	if key == "" {
		r.mu.Lock()
		r.rootInfo = info
		r.mu.Unlock()
	}
	clone := *info
	return &clone, nil
}

// ResetInfoCache drops every cached info entry.
func (r *Repository) ResetInfoCache() {
	r.infoCache.Clear()
}

// RootInfo returns the last fetched info of the workspace root, or nil.
func (r *Repository) RootInfo() *InfoEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.rootInfo == nil {
		return nil
	}
	clone := *r.rootInfo
	return &clone
}

// RepositoryUUID returns the UUID of the repository the working copy belongs to.
func (r *Repository) RepositoryUUID(ctx context.Context) (string, error) {
	info, err := r.Info(ctx, "", "", false, false)
	if err != nil {
		return "", err
	}
	return info.Repository.UUID, nil
}

// CurrentBranch returns the branch name derived from the working copy URL,
// or "" when the URL does not follow the layout.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	info, err := r.Info(ctx, "", "", false, false)
	if err != nil {
		return "", err
	}
	r.mu.RLock()
	layout := r.layout
	r.mu.RUnlock()
	if branch := layout.BranchFromURL(info.URL); branch != nil {
		return branch.Name, nil
	}
	return "", nil
}

// RepoURL returns the URL the layout directories live under.
func (r *Repository) RepoURL(ctx context.Context) (string, error) {
	info, err := r.Info(ctx, "", "", false, false)
	if err != nil {
		return "", err
	}
	r.mu.RLock()
	layout := r.layout
	r.mu.RUnlock()
	branch := layout.BranchFromURL(info.URL)
	if branch == nil {
		return info.Repository.Root, nil
	}
	return strings.TrimSuffix(branch.Prefix, "/"), nil
}

var (
	committedRevision = regexp.MustCompile(`(?i)Committed revision (.*)\.`)
	committedFile     = regexp.MustCompile(`(Sending|Adding|Deleting)\s+`)
)

// CommitFiles commits exactly files (--depth empty) and returns a summary
// such as "2 files committed: revision 42.".
func (r *Repository) CommitFiles(ctx context.Context, message string, files []string) (string, error) {
	args := append([]string{"commit"}, r.targets(files)...)

	if needsMessageFile(message) {
		tmp, err := os.CreateTemp("", "svn-commit-message-*.txt")
		if err != nil {
			return "", fmt.Errorf("create commit message file: %w", err)
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.WriteString(message); err != nil {
			tmp.Close()
			return "", fmt.Errorf("write commit message file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return "", fmt.Errorf("close commit message file: %w", err)
		}
		args = append(args, "-F", tmp.Name(), "--encoding", "UTF-8")
	} else {
		args = append(args, "-m", message)
	}
	args = append(args, "--depth", "empty")

	res, err := r.exec(ctx, args, ExecOptions{})
	if err != nil {
		return "", err
	}
	r.ResetInfoCache()
	return commitSummary(res.Stdout), nil
}

func needsMessageFile(message string) bool {
	if strings.ContainsAny(message, "\r\n") {
		return true
	}
	for i := 0; i < len(message); i++ {
		if message[i] >= 0x80 {
			return true
		}
	}
	return false
}

func commitSummary(stdout string) string {
	m := committedRevision.FindStringSubmatch(stdout)
	if m == nil {
		return stdout
	}
	n := len(committedFile.FindAllString(stdout, -1))
	noun := "files"
	if n == 1 {
		noun = "file"
	}
	return strconv.Itoa(n) + " " + noun + " committed: revision " + m[1] + "."
}

// AddFiles schedules files for addition. With add-ignore globs configured,
// directories are expanded here so matching descendants are left out.
func (r *Repository) AddFiles(ctx context.Context, files []string) error {
	r.mu.RLock()
	ignore := r.addIgnore
	r.mu.RUnlock()

	if ignore.Empty() {
		_, err := r.exec(ctx, append([]string{"add"}, r.targets(files)...), ExecOptions{})
		return err
	}

	var all []string
	for _, file := range files {
		abs := r.absPath(file)
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("stat %s: %w", file, err)
		}
		if !info.IsDir() {
			if !ignore.Match(r.relativePath(abs)) {
				all = append(all, abs)
			}
			continue
		}
		all = append(all, abs)
		expanded, err := expandDir(abs, r.relativePath, ignore)
		if err != nil {
			return err
		}
		all = append(all, expanded...)
	}
	if len(all) == 0 {
		return nil
	}
	// --depth=empty: the expansion already lists every child, and svn would
	// otherwise fail on children that are already versioned (E200009).
	args := append([]string{"add", "--depth=empty"}, r.targets(all)...)
	_, err := r.exec(ctx, args, ExecOptions{})
	return err
}

func (r *Repository) absPath(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(r.workspaceRoot, filepath.FromSlash(file))
}

func expandDir(dir string, rel func(string) string, ignore *globmatch.Matcher) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var out []string
	for _, entry := range entries {
		if entry.Name() == AdminDirName {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if ignore.Match(rel(path)) {
			continue
		}
		out = append(out, path)
		if entry.IsDir() {
			children, err := expandDir(path, rel, ignore)
			if err != nil {
				return nil, err
			}
			out = append(out, children...)
		}
	}
	return out, nil
}

// AddChangelist moves files into changelist name.
func (r *Repository) AddChangelist(ctx context.Context, files []string, name string) error {
	_, err := r.exec(ctx, append([]string{"changelist", name}, r.targets(files)...), ExecOptions{})
	return err
}

// RemoveChangelist removes files from whatever changelist they are in.
func (r *Repository) RemoveChangelist(ctx context.Context, files []string) error {
	args := append([]string{"changelist"}, r.targets(files)...)
	_, err := r.exec(ctx, append(args, "--remove"), ExecOptions{})
	return err
}

// RemoveFiles schedules files for deletion.
func (r *Repository) RemoveFiles(ctx context.Context, files []string, keepLocal bool) error {
	args := append([]string{"remove"}, r.targets(files)...)
	if keepLocal {
		args = append(args, "--keep-local")
	}
	_, err := r.exec(ctx, args, ExecOptions{})
	return err
}

// SwitchBranch switches the working copy to RepoURL()/ref. force adds
// --ignore-ancestry.
func (r *Repository) SwitchBranch(ctx context.Context, ref string, force bool) error {
	repoURL, err := r.RepoURL(ctx)
	if err != nil {
		return err
	}
	args := []string{"switch", repoURL + "/" + ref}
	if force {
		args = append(args, "--ignore-ancestry")
	}
	if _, err := r.exec(ctx, args, ExecOptions{}); err != nil {
		return err
	}
	r.ResetInfoCache()
	return nil
}

// Merge merges RepoURL()/ref into the working copy.
func (r *Repository) Merge(ctx context.Context, ref string, reintegrate bool, acceptAction string) error {
	repoURL, err := r.RepoURL(ctx)
	if err != nil {
		return err
	}
	if acceptAction == "" {
		acceptAction = "postpone"
	}
	args := []string{"merge", "--accept", acceptAction}
	if reintegrate {
		args = append(args, "--reintegrate")
	}
	args = append(args, repoURL+"/"+ref)
	if _, err := r.exec(ctx, args, ExecOptions{}); err != nil {
		return err
	}
	r.ResetInfoCache()
	return nil
}

// NewBranch copies the current URL to RepoURL()/name and switches to it.
func (r *Repository) NewBranch(ctx context.Context, name, message string) error {
	repoURL, err := r.RepoURL(ctx)
	if err != nil {
		return err
	}
	info, err := r.Info(ctx, "", "", false, false)
	if err != nil {
		return err
	}
	if message == "" {
		message = "Created new branch " + name
	}
	args := []string{"copy", info.URL, repoURL + "/" + name, "--parents", "-m", message}
	if _, err := r.exec(ctx, args, ExecOptions{}); err != nil {
		return err
	}
	return r.SwitchBranch(ctx, name, false)
}

// Revert reverts files to BASE at the given depth ("empty", "files",
// "immediates", "infinity").
func (r *Repository) Revert(ctx context.Context, files []string, depth string) error {
	if depth == "" {
		depth = "empty"
	}
	args := append([]string{"revert", "--depth", depth}, r.targets(files)...)
	if _, err := r.exec(ctx, args, ExecOptions{}); err != nil {
		return err
	}
	r.ResetInfoCache()
	return nil
}

// Resolve marks conflicts in files resolved with the given --accept action.
func (r *Repository) Resolve(ctx context.Context, files []string, action string) error {
	if action == "" {
		action = "working"
	}
	args := append([]string{"resolve", "--accept", action}, r.targets(files)...)
	if _, err := r.exec(ctx, args, ExecOptions{}); err != nil {
		return err
	}
	r.ResetInfoCache()
	return nil
}

// Update brings the working copy to HEAD and returns svn's last output line
// (e.g. "At revision 42.").
func (r *Repository) Update(ctx context.Context, ignoreExternals bool) (string, error) {
	args := []string{"update"}
	if ignoreExternals {
		args = append(args, "--ignore-externals")
	}
	res, err := r.exec(ctx, args, ExecOptions{})
	if err != nil {
		return "", err
	}
	r.ResetInfoCache()
	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if last := strings.TrimSpace(lines[len(lines)-1]); last != "" {
		return last, nil
	}
	return res.Stdout, nil
}

// Cleanup runs `svn cleanup` to release stale working copy locks.
func (r *Repository) Cleanup(ctx context.Context) error {
	_, err := r.exec(ctx, []string{"cleanup"}, ExecOptions{})
	return err
}

// Log returns the verbose log for a revision range.
func (r *Repository) Log(ctx context.Context, opts LogOptions) ([]LogEntry, error) {
	from, to := opts.From, opts.To
	if from == "" {
		from = "HEAD"
	}
	if to == "" {
		to = "1"
	}
	args := []string{"log", "-r", from + ":" + to, "--xml", "-v"}
	if opts.Limit > 0 {
		args = append(args, "--limit="+strconv.Itoa(opts.Limit))
	}
	if opts.Target != "" {
		args = append(args, FixPegRevision(opts.Target))
	}
	res, err := r.exec(ctx, args, ExecOptions{})
	if err != nil {
		return nil, err
	}
	return ParseLogXML([]byte(res.Stdout))
}

// List lists RepoURL()/folder on the server.
func (r *Repository) List(ctx context.Context, folder string) ([]ListEntry, error) {
	url, err := r.RepoURL(ctx)
	if err != nil {
		return nil, err
	}
	if folder != "" {
		url += "/" + strings.TrimPrefix(folder, "/")
	}
	res, err := r.exec(ctx, []string{"list", url, "--xml"}, ExecOptions{})
	if err != nil {
		return nil, err
	}
	return ParseListXML([]byte(res.Stdout))
}

// Show returns the content of file at revision (`svn cat`). Revisions other
// than BASE, COMMITTED and PREV are resolved through the file's URL so
// files deleted locally can still be shown.
func (r *Repository) Show(ctx context.Context, file, revision string) (string, error) {
	target := file
	local := !strings.Contains(file, "://")
	if local {
		target = r.relativePath(file)
	}
	args := []string{"cat"}
	if revision != "" {
		args = append(args, "-r", revision)
		switch strings.ToUpper(revision) {
		case "BASE", "COMMITTED", "PREV":
		default:
			if local {
				info, err := r.Info(ctx, "", "", false, false)
				if err != nil {
					return "", err
				}
				target = info.URL + "/" + target
			}
		}
	}
	res, err := r.exec(ctx, append(args, FixPegRevision(target)), ExecOptions{})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// CurrentIgnore returns the svn:ignore entries of directory. A missing
// property yields an empty list.
func (r *Repository) CurrentIgnore(ctx context.Context, directory string) ([]string, error) {
	args := []string{"propget", "svn:ignore"}
	if dir := r.relativePath(directory); dir != "" {
		args = append(args, FixPegRevision(dir))
	}
	res, err := r.exec(ctx, args, ExecOptions{})
	if err != nil {
		slog.Debug("[DEBUG-SVN] propget svn:ignore failed", "directory", directory, "error", err)
		return nil, nil
	}
	var out []string
	for _, line := range strings.FieldsFunc(res.Stdout, func(c rune) bool { return c == '\n' || c == '\r' }) {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// AddToIgnore adds expressions to svn:ignore of directory. The stored list is
// deduplicated and sorted.
func (r *Repository) AddToIgnore(ctx context.Context, expressions []string, directory string, recursive bool) error {
	current, err := r.CurrentIgnore(ctx, directory)
	if err != nil {
		return err
	}
	set := treeset.NewWithStringComparator()
	for _, expr := range append(current, expressions...) {
		if expr = strings.TrimSpace(expr); expr != "" {
			set.Add(expr)
		}
	}
	values := make([]string, 0, set.Size())
	for _, v := range set.Values() {
		values = append(values, v.(string))
	}

	target := "."
	if dir := r.relativePath(directory); dir != "" {
		target = FixPegRevision(dir)
	}
	args := []string{"propset", "svn:ignore", strings.Join(values, "\n"), target}
	if recursive {
		args = append(args, "--recursive")
	}
	_, err = r.exec(ctx, args, ExecOptions{})
	return err
}
