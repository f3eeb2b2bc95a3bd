package svn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	"golang.org/x/mod/semver"
	"golang.org/x/sync/semaphore"

	"svnscm/internal/procutil"
)

const (
	// defaultMaxConcurrent caps parallel svn processes across all working copies.
	// svn takes a write lock on wc.db for most commands; more parallelism only
	// turns into E155004 retries.
	defaultMaxConcurrent = 4
	// semaphoreAcquireTimeout bounds the wait for a free process slot.
	semaphoreAcquireTimeout = 30 * time.Second
	// LogGroup is the slog group carrying svn command lines. The output log
	// handler tees this group to the UI.
	LogGroup = "svn"
)

// commandRunner executes the svn binary. A non-nil error means the process
// could not be run at all; a non-zero exit code is reported via exitCode.
type commandRunner func(ctx context.Context, bin, dir string, args, env []string) (stdout, stderr []byte, exitCode int, err error)

// ClientOptions configures a Client.
type ClientOptions struct {
	// Path to the svn binary. Empty means "svn" looked up on PATH.
	Path string
	// MaxConcurrent caps concurrent svn processes. 0 means default.
	MaxConcurrent int
	// DefaultEncoding is the fallback charset for non-XML output when
	// detection is inconclusive.
	DefaultEncoding string
}

// Client runs the svn command line tool.
// All invocations are non-interactive; credentials are passed explicitly.
type Client struct {
	path            string
	defaultEncoding string
	sem             *semaphore.Weighted
	acquireTimeout  time.Duration
	run             commandRunner

	versionOnce sync.Once
	version     string
	versionErr  error
}

// ExecOptions are per-invocation settings.
type ExecOptions struct {
	Username string
	Password string
	// Encoding forces the output charset. Empty means detect.
	Encoding string
	// Env entries (KEY=VALUE) added on top of the process environment.
	Env []string
	// Quiet skips the command line in the output log.
	Quiet bool
}

// ExecResult is the decoded result of a successful svn invocation.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// NewClient creates a Client.
func NewClient(opts ClientOptions) *Client {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = "svn"
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &Client{
		path:            path,
		defaultEncoding: opts.DefaultEncoding,
		sem:             semaphore.NewWeighted(int64(maxConcurrent)),
		acquireTimeout:  semaphoreAcquireTimeout,
		run:             runSvnProcess,
	}
}

// Path returns the svn binary used by the client.
func (c *Client) Path() string {
	return c.path
}

// Exec runs svn in cwd and decodes its output.
// XML output is always UTF-8; other output goes through DetectEncoding.
func (c *Client) Exec(ctx context.Context, cwd string, args []string, opts ExecOptions) (*ExecResult, error) {
	stdout, stderr, err := c.execRaw(ctx, cwd, args, opts)
	if err != nil {
		return nil, err
	}

	encoding := opts.Encoding
	if encoding == "" && slices.Contains(args, "--xml") {
		encoding = "utf-8"
	}
	if encoding == "" {
		encoding = DetectEncoding(stdout, c.defaultEncoding)
	}
	decoded, decodeErr := Decode(stdout, encoding)
	if decodeErr != nil {
		slog.Warn("[DEBUG-SVN] output decode failed, using raw bytes",
			"encoding", encoding, "command", args[0], "error", decodeErr)
		decoded = string(stdout)
	}
	return &ExecResult{Stdout: decoded, Stderr: stderr}, nil
}

// ExecRaw runs svn and returns stdout undecoded (e.g. for `svn cat` of binary files).
func (c *Client) ExecRaw(ctx context.Context, cwd string, args []string, opts ExecOptions) ([]byte, error) {
	stdout, _, err := c.execRaw(ctx, cwd, args, opts)
	return stdout, err
}

func (c *Client) execRaw(ctx context.Context, cwd string, args []string, opts ExecOptions) ([]byte, string, error) {
	if len(args) == 0 {
		return nil, "", fmt.Errorf("svn: no command specified")
	}
	fullArgs := buildArgs(args, opts)

	if !opts.Quiet {
		slog.Default().WithGroup(LogGroup).Info(commandLine(c.path, fullArgs), "cwd", cwd)
	}

	start := time.Now()
	exitCode := 0
	defer func() {
		slog.Debug("[DEBUG-SVN] svn command completed",
			"cwd", cwd,
			"command", args[0],
			"exitCode", exitCode,
			"duration_ms", time.Since(start).Milliseconds())
	}()

	if err := c.acquire(ctx); err != nil {
		return nil, "", fmt.Errorf("svn %s: %w", args[0], err)
	}
	defer c.sem.Release(1)

	stdout, stderr, code, err := c.run(ctx, c.path, cwd, fullArgs, svnEnv(os.Environ(), opts.Env))
	exitCode = code
	if err != nil {
		return nil, "", fmt.Errorf("svn %s: %w", args[0], err)
	}
	if code != 0 {
		return nil, "", newExecError(args[0], code, string(stdout), string(stderr))
	}
	return stdout, string(stderr), nil
}

func (c *Client) acquire(ctx context.Context) error {
	acquireCtx, cancel := context.WithTimeout(ctx, c.acquireTimeout)
	defer cancel()
	if err := c.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("process slot acquisition timed out after %v", c.acquireTimeout)
	}
	return nil
}

// buildArgs appends credential overrides and --non-interactive.
func buildArgs(args []string, opts ExecOptions) []string {
	out := make([]string, 0, len(args)+9)
	out = append(out, args...)
	if opts.Username != "" {
		out = append(out, "--username", opts.Username)
	}
	if opts.Password != "" {
		out = append(out, "--password", opts.Password)
	}
	if opts.Username != "" || opts.Password != "" {
		// Never let svn persist credentials we pass on the command line.
		out = append(out,
			"--config-option", "config:auth:password-stores=",
			"--config-option", "servers:global:store-auth-creds=no",
		)
	}
	return append(out, "--non-interactive")
}

// commandLine renders a shell-quoted command for the output log with the
// password masked.
func commandLine(bin string, args []string) string {
	masked := make([]string, len(args))
	copy(masked, args)
	for i := 0; i < len(masked)-1; i++ {
		if masked[i] == "--password" {
			masked[i+1] = "REDACTED"
		}
	}
	return shellquote.Join(append([]string{bin}, masked...)...)
}

// svnEnv forces an English UTF-8 locale so stderr matching and XML decoding
// behave the same on every host.
func svnEnv(base []string, extra []string) []string {
	env := make([]string, len(base))
	copy(env, base)
	env = upsertEnvVar(env, "LC_ALL", "en_US.UTF-8")
	env = upsertEnvVar(env, "LANG", "en_US.UTF-8")
	for _, entry := range extra {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		env = upsertEnvVar(env, key, value)
	}
	return env
}

// upsertEnvVar replaces KEY=... in env or appends it. Keys are matched
// case-insensitively on Windows.
func upsertEnvVar(env []string, key, value string) []string {
	for i, entry := range env {
		existing, _, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if existing == key || (runtime.GOOS == "windows" && strings.EqualFold(existing, key)) {
			env[i] = key + "=" + value
			return env
		}
	}
	return append(env, key+"="+value)
}

func runSvnProcess(ctx context.Context, bin, dir string, args, env []string) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Env = env
	procutil.Configure(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), stderr.Bytes(), 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), nil
	}
	if ctx.Err() != nil {
		return nil, nil, -1, ctx.Err()
	}
	return nil, nil, -1, err
}

// Version returns the installed svn version (e.g. "1.14.2").
func (c *Client) Version(ctx context.Context) (string, error) {
	c.versionOnce.Do(func() {
		res, err := c.Exec(ctx, "", []string{"--version", "--quiet"}, ExecOptions{Quiet: true, Encoding: "utf-8"})
		if err != nil {
			c.versionErr = err
			return
		}
		c.version = strings.TrimSpace(res.Stdout)
	})
	return c.version, c.versionErr
}

// AtLeast reports whether the installed svn is at least version min ("1.8").
func (c *Client) AtLeast(ctx context.Context, min string) bool {
	version, err := c.Version(ctx)
	if err != nil {
		return false
	}
	return versionAtLeast(version, min)
}

func versionAtLeast(version, min string) bool {
	fields := strings.Fields(version)
	if len(fields) == 0 {
		return false
	}
	v := "v" + strings.TrimPrefix(fields[0], "v")
	m := "v" + strings.TrimPrefix(min, "v")
	if !semver.IsValid(v) || !semver.IsValid(m) {
		return false
	}
	return semver.Compare(v, m) >= 0
}
