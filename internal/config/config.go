package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"
	"golang.org/x/text/encoding/htmlindex"

	"svnscm/internal/globmatch"
)

const (
	maxConfigFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry           = 10
	// Windows file lock releases (antivirus/indexing) typically settle quickly.
	// Use a short linear backoff: baseDelay * (1..maxRenameRetry).
	renameRetryBaseDelay = 10 * time.Millisecond

	appDirName             = "svnscm"
	configFileName         = "config.yaml"
	credentialsFileName    = "credentials.db"
	maxMultipleFolderDepth = 64
)

// defaultConfigDirFn is a test seam; tests override it to simulate
// directory-resolution failures in validateConfigPath.
var defaultConfigDirFn = defaultConfigDir
var userHomeDirFn = os.UserHomeDir
var defaultPathWarningState struct {
	mu       sync.Mutex
	messages []string
}

func recordDefaultPathWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	defaultPathWarningState.mu.Lock()
	defaultPathWarningState.messages = append(defaultPathWarningState.messages, trimmed)
	defaultPathWarningState.mu.Unlock()
}

// ConsumeDefaultPathWarnings returns and clears path-resolution warnings
// accumulated during DefaultPath() calls.
func ConsumeDefaultPathWarnings() []string {
	defaultPathWarningState.mu.Lock()
	defer defaultPathWarningState.mu.Unlock()
	if len(defaultPathWarningState.messages) == 0 {
		return nil
	}
	out := make([]string, len(defaultPathWarningState.messages))
	copy(out, defaultPathWarningState.messages)
	defaultPathWarningState.messages = nil
	return out
}

// Config is svnscm runtime configuration.
type Config struct {
	// SvnPath is the svn binary. Empty means "svn" looked up on PATH.
	SvnPath string `yaml:"svn_path" json:"svn_path"`
	// DefaultEncoding is the fallback charset for non-XML svn output.
	DefaultEncoding     string        `yaml:"default_encoding" json:"default_encoding"`
	AutoRefresh         bool          `yaml:"autorefresh" json:"autorefresh"`
	AutoRefreshDebounce time.Duration `yaml:"auto_refresh_debounce" json:"auto_refresh_debounce"`

	MultipleFolders    MultipleFoldersConfig `yaml:"multiple_folders" json:"multiple_folders"`
	IgnoreRepositories []string              `yaml:"ignore_repositories" json:"ignore_repositories"`
	DetectExternals    bool                  `yaml:"detect_externals" json:"detect_externals"`
	DetectIgnored      bool                  `yaml:"detect_ignored" json:"detect_ignored"`

	SourceControl SourceControlConfig `yaml:"source_control" json:"source_control"`
	// FilesExclude maps glob -> enabled. Entries mapped to false are ignored.
	FilesExclude  map[string]bool     `yaml:"files_exclude,omitempty" json:"files_exclude,omitempty"`
	RemoteChanges RemoteChangesConfig `yaml:"remote_changes" json:"remote_changes"`
	Layout        LayoutConfig        `yaml:"layout" json:"layout"`
	Retry         RetryConfig         `yaml:"retry" json:"retry"`

	InfoCacheTTL     time.Duration     `yaml:"info_cache_ttl" json:"info_cache_ttl"`
	MaxConcurrentSvn int               `yaml:"max_concurrent_svn" json:"max_concurrent_svn"`
	EventServer      EventServerConfig `yaml:"event_server" json:"event_server"`
	Credentials      CredentialsConfig `yaml:"credentials" json:"credentials"`
}

// MultipleFoldersConfig controls working copy discovery below workspace folders.
type MultipleFoldersConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Depth is the maximum number of directory levels scanned below a
	// workspace folder.
	Depth  int      `yaml:"depth" json:"depth"`
	Ignore []string `yaml:"ignore" json:"ignore"`
}

// SourceControlConfig controls how status entries are grouped and counted.
type SourceControlConfig struct {
	// Ignore globs hide unversioned files.
	Ignore              []string `yaml:"ignore" json:"ignore"`
	HideUnversioned     bool     `yaml:"hide_unversioned" json:"hide_unversioned"`
	CountUnversioned    bool     `yaml:"count_unversioned" json:"count_unversioned"`
	IgnoreOnStatusCount []string `yaml:"ignore_on_status_count" json:"ignore_on_status_count"`
	// CombineExternalIfSameServer folds externals that share the working
	// copy's repository UUID into the normal groups.
	CombineExternalIfSameServer bool     `yaml:"combine_external_if_same_server" json:"combine_external_if_same_server"`
	IgnoreOnCommit              []string `yaml:"ignore_on_commit" json:"ignore_on_commit"`
}

// RemoteChangesConfig controls the server polling worker.
type RemoteChangesConfig struct {
	// CheckFrequency is the poll interval. 0 disables polling.
	CheckFrequency time.Duration `yaml:"check_frequency" json:"check_frequency"`
}

// LayoutConfig names the trunk/branches/tags directories.
type LayoutConfig struct {
	Trunk    string   `yaml:"trunk" json:"trunk"`
	Branches []string `yaml:"branches" json:"branches"`
	Tags     []string `yaml:"tags" json:"tags"`
}

// RetryConfig holds the transient-error retry budgets.
type RetryConfig struct {
	LockMaxAttempts    int           `yaml:"lock_max_attempts" json:"lock_max_attempts"`
	LockBackoffUnit    time.Duration `yaml:"lock_backoff_unit" json:"lock_backoff_unit"`
	AuthPromptAttempts int           `yaml:"auth_prompt_attempts" json:"auth_prompt_attempts"`
}

// EventServerConfig holds the UI event stream listener settings.
type EventServerConfig struct {
	// Addr is host:port. Port 0 lets the OS pick a free port.
	Addr string `yaml:"addr" json:"addr"`
}

// CredentialsConfig locates the secret store.
type CredentialsConfig struct {
	// Database is the SQLite file. Empty means next to the config file.
	Database string `yaml:"database,omitempty" json:"database,omitempty"`
}

// DefaultConfig returns default values.
func DefaultConfig() Config {
	return Config{
		AutoRefresh:         true,
		AutoRefreshDebounce: time.Second,
		MultipleFolders: MultipleFoldersConfig{
			Enabled: true,
			Depth:   4,
			Ignore:  []string{"**/.git", "**/.hg", "**/vendor", "**/node_modules"},
		},
		IgnoreRepositories: []string{},
		DetectExternals:    true,
		DetectIgnored:      true,
		SourceControl: SourceControlConfig{
			Ignore:              []string{},
			CountUnversioned:    true,
			IgnoreOnStatusCount: []string{},
			IgnoreOnCommit:      []string{"ignore-on-commit"},
		},
		RemoteChanges: RemoteChangesConfig{CheckFrequency: 300 * time.Second},
		Layout: LayoutConfig{
			Trunk:    "trunk",
			Branches: []string{"branches"},
			Tags:     []string{"tags"},
		},
		Retry: RetryConfig{
			LockMaxAttempts:    10,
			LockBackoffUnit:    50 * time.Millisecond,
			AuthPromptAttempts: 3,
		},
		InfoCacheTTL:     2 * time.Minute,
		MaxConcurrentSvn: 4,
		EventServer:      EventServerConfig{Addr: "127.0.0.1:0"},
	}
}

// DefaultPath resolves the config file path, preferring LOCALAPPDATA over
// APPDATA, then XDG_CONFIG_HOME, falling back to ~/.config, and then to
// os.TempDir() if the home directory cannot be resolved.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("APPDATA"))
	}
	if base == "" {
		base = strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	}
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			// Keep config path resolvable even in restricted environments.
			slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
			recordDefaultPathWarning(
				"Config path fallback: failed to resolve LOCALAPPDATA/APPDATA/XDG_CONFIG_HOME/home directory. Using temp directory; settings persistence may be limited.",
			)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, appDirName, configFileName)
}

// CredentialsPath returns the secret store file for cfg loaded from
// configPath.
func CredentialsPath(cfg Config, configPath string) string {
	if cfg.Credentials.Database != "" {
		return cfg.Credentials.Database
	}
	return filepath.Join(filepath.Dir(configPath), credentialsFileName)
}

// Load reads config file. If file does not exist, defaults are returned.
// Keys absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), err
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EnsureFile writes default config if missing and returns loaded config.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// ExcludePatterns returns the enabled files_exclude globs, sorted.
func (c Config) ExcludePatterns() []string {
	out := make([]string, 0, len(c.FilesExclude))
	for pattern, enabled := range c.FilesExclude {
		if enabled {
			out = append(out, pattern)
		}
	}
	slices.Sort(out)
	return out
}

// Clone returns a deep copy of cfg.
// Use this when sharing config snapshots across goroutines or package boundaries.
func Clone(src Config) Config {
	dst := src

	dst.MultipleFolders.Ignore = cloneStringSlice(src.MultipleFolders.Ignore)
	dst.IgnoreRepositories = cloneStringSlice(src.IgnoreRepositories)
	dst.SourceControl.Ignore = cloneStringSlice(src.SourceControl.Ignore)
	dst.SourceControl.IgnoreOnStatusCount = cloneStringSlice(src.SourceControl.IgnoreOnStatusCount)
	dst.SourceControl.IgnoreOnCommit = cloneStringSlice(src.SourceControl.IgnoreOnCommit)
	dst.Layout.Branches = cloneStringSlice(src.Layout.Branches)
	dst.Layout.Tags = cloneStringSlice(src.Layout.Tags)

	if src.FilesExclude != nil {
		dst.FilesExclude = make(map[string]bool, len(src.FilesExclude))
		maps.Copy(dst.FilesExclude, src.FilesExclude)
	}
	return dst
}

func cloneStringSlice(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}

// Save validates cfg, fills defaults, and atomically writes to path.
// Returns the normalized config that was actually written to disk.
func Save(path string, cfg Config) (Config, error) {
	normalizedPath, err := validateConfigPath(path)
	if err != nil {
		return cfg, err
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(normalizedPath, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", path)
	return cfg, nil
}

// atomicWrite writes config data using temp-file + rename to avoid partial
// writes and retries rename on Windows to tolerate transient file locks.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

// validateConfigPath normalizes path and enforces that config writes stay
// inside the default config directory when that directory is resolvable.
func validateConfigPath(path string) (string, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return "", errors.New("config path required")
	}
	absolutePath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return "", fmt.Errorf("save config: resolve path: %w", err)
	}

	expectedDir, err := defaultConfigDirFn()
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	absoluteExpectedDir, err := filepath.Abs(expectedDir)
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	if !pathWithinDir(absolutePath, absoluteExpectedDir) {
		return "", fmt.Errorf("save config: path outside config directory: %q", absolutePath)
	}

	return absolutePath, nil
}

func defaultConfigDir() (string, error) {
	return filepath.Dir(DefaultPath()), nil
}

// pathWithinDir blocks directory traversal by ensuring path is under dir.
// It also rejects Windows cross-drive escapes because filepath.Rel returns
// an absolute path when roots differ.
func pathWithinDir(path string, dir string) bool {
	relativePath, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	if relativePath == "." {
		return true
	}
	if relativePath == ".." || strings.HasPrefix(relativePath, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(relativePath)
}

// applyDefaultsAndValidate fills missing defaults and validates cfg in-place.
// MUTATES: cfg is directly modified.
// Used by Load, Save and Holder.Update to ensure consistent normalization.
func applyDefaultsAndValidate(cfg *Config) error {
	defaults := DefaultConfig()
	if isZeroConfig(*cfg) {
		*cfg = defaults
		return nil
	}

	if err := validateSvnPath(cfg.SvnPath); err != nil {
		return err
	}
	cfg.SvnPath = strings.TrimSpace(cfg.SvnPath)
	validateDefaultEncoding(cfg)

	if cfg.AutoRefreshDebounce <= 0 {
		cfg.AutoRefreshDebounce = defaults.AutoRefreshDebounce
	}
	if cfg.MultipleFolders.Depth < 0 || cfg.MultipleFolders.Depth > maxMultipleFolderDepth {
		slog.Warn("[WARN-CONFIG] multiple_folders.depth out of range, using default",
			"configured", cfg.MultipleFolders.Depth, "max", maxMultipleFolderDepth)
		cfg.MultipleFolders.Depth = defaults.MultipleFolders.Depth
	}
	if cfg.MultipleFolders.Ignore == nil {
		cfg.MultipleFolders.Ignore = cloneStringSlice(defaults.MultipleFolders.Ignore)
	}
	cfg.MultipleFolders.Ignore = sanitizeGlobs(cfg.MultipleFolders.Ignore, "multiple_folders.ignore")
	cfg.IgnoreRepositories = sanitizePathList(cfg.IgnoreRepositories, "ignore_repositories")

	cfg.SourceControl.Ignore = sanitizeGlobs(cfg.SourceControl.Ignore, "source_control.ignore")
	cfg.SourceControl.IgnoreOnStatusCount = sanitizeNames(cfg.SourceControl.IgnoreOnStatusCount)
	if cfg.SourceControl.IgnoreOnCommit == nil {
		cfg.SourceControl.IgnoreOnCommit = cloneStringSlice(defaults.SourceControl.IgnoreOnCommit)
	}
	cfg.SourceControl.IgnoreOnCommit = sanitizeNames(cfg.SourceControl.IgnoreOnCommit)
	sanitizeFilesExclude(cfg)

	if cfg.RemoteChanges.CheckFrequency < 0 {
		slog.Warn("[WARN-CONFIG] remote_changes.check_frequency is negative, disabling polling",
			"configured", cfg.RemoteChanges.CheckFrequency)
		cfg.RemoteChanges.CheckFrequency = 0
	}

	cfg.Layout.Trunk = strings.Trim(strings.TrimSpace(cfg.Layout.Trunk), "/")
	if cfg.Layout.Branches == nil {
		cfg.Layout.Branches = cloneStringSlice(defaults.Layout.Branches)
	}
	if cfg.Layout.Tags == nil {
		cfg.Layout.Tags = cloneStringSlice(defaults.Layout.Tags)
	}
	cfg.Layout.Branches = sanitizeNames(cfg.Layout.Branches)
	cfg.Layout.Tags = sanitizeNames(cfg.Layout.Tags)

	validateRetry(cfg, defaults.Retry)

	if cfg.InfoCacheTTL <= 0 {
		cfg.InfoCacheTTL = defaults.InfoCacheTTL
	}
	if cfg.MaxConcurrentSvn <= 0 {
		cfg.MaxConcurrentSvn = defaults.MaxConcurrentSvn
	}
	validateEventServerAddr(cfg, defaults.EventServer.Addr)
	validateCredentialsDatabase(cfg)
	return nil
}

// validateSvnPath rejects values that cannot name an executable.
func validateSvnPath(svnPath string) error {
	svnPath = strings.TrimSpace(svnPath)
	if svnPath == "" {
		return nil
	}
	if strings.ContainsRune(svnPath, '\x00') {
		return errors.New("svn_path contains invalid null byte")
	}
	if filepath.IsAbs(svnPath) {
		info, err := os.Stat(svnPath)
		if err != nil {
			return fmt.Errorf("svn_path does not exist: %w", err)
		}
		if info.IsDir() {
			return errors.New("svn_path cannot be a directory")
		}
	}
	return nil
}

// validateDefaultEncoding clears unknown charsets with a warning (non-fatal).
func validateDefaultEncoding(cfg *Config) {
	name := strings.ToLower(strings.TrimSpace(cfg.DefaultEncoding))
	cfg.DefaultEncoding = name
	if name == "" {
		return
	}
	if _, err := htmlindex.Get(name); err == nil {
		return
	}
	if _, err := htmlindex.Get(strings.ReplaceAll(name, "-", "")); err == nil {
		return
	}
	slog.Warn("[WARN-CONFIG] default_encoding is not a known charset, ignoring", "encoding", name)
	cfg.DefaultEncoding = ""
}

// validateRetry resets out-of-range retry budgets to defaults.
// A zero attempt count is valid and disables that retry class.
func validateRetry(cfg *Config, defaults RetryConfig) {
	if cfg.Retry.LockMaxAttempts < 0 {
		slog.Warn("[WARN-CONFIG] retry.lock_max_attempts is negative, using default",
			"configured", cfg.Retry.LockMaxAttempts)
		cfg.Retry.LockMaxAttempts = defaults.LockMaxAttempts
	}
	if cfg.Retry.LockBackoffUnit <= 0 {
		cfg.Retry.LockBackoffUnit = defaults.LockBackoffUnit
	}
	if cfg.Retry.AuthPromptAttempts < 0 {
		slog.Warn("[WARN-CONFIG] retry.auth_prompt_attempts is negative, using default",
			"configured", cfg.Retry.AuthPromptAttempts)
		cfg.Retry.AuthPromptAttempts = defaults.AuthPromptAttempts
	}
}

// validateEventServerAddr falls back to the default address when the
// configured one is not host:port. Non-fatal, like every listener setting.
func validateEventServerAddr(cfg *Config, fallback string) {
	addr := strings.TrimSpace(cfg.EventServer.Addr)
	if addr == "" {
		cfg.EventServer.Addr = fallback
		return
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		slog.Warn("[WARN-CONFIG] event_server.addr is not host:port, falling back to default",
			"configured", addr, "default", fallback, "error", err)
		cfg.EventServer.Addr = fallback
		return
	}
	cfg.EventServer.Addr = addr
}

// validateCredentialsDatabase normalizes Credentials.Database in place.
// Expands ~ prefix, applies filepath.Clean, and clears non-absolute paths
// with a warning log (non-fatal).
func validateCredentialsDatabase(cfg *Config) {
	dbPath := strings.TrimSpace(cfg.Credentials.Database)
	if dbPath == "" {
		cfg.Credentials.Database = ""
		return
	}
	if strings.HasPrefix(dbPath, "~") {
		home, err := userHomeDirFn()
		if err != nil {
			slog.Warn("[WARN-CONFIG] credentials.database: failed to expand ~, ignoring",
				"path", dbPath, "error", err)
			cfg.Credentials.Database = ""
			return
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}
	dbPath = filepath.Clean(dbPath)
	if !filepath.IsAbs(dbPath) {
		slog.Warn("[WARN-CONFIG] credentials.database is not an absolute path, ignoring", "path", dbPath)
		cfg.Credentials.Database = ""
		return
	}
	cfg.Credentials.Database = dbPath
}

// sanitizeGlobs trims entries and drops empty or invalid patterns.
// Returns an empty (non-nil) slice when nothing survives.
func sanitizeGlobs(patterns []string, logPrefix string) []string {
	out := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if _, err := globmatch.New([]string{pattern}); err != nil {
			slog.Warn("[WARN-CONFIG] "+logPrefix+": dropped invalid glob", "pattern", pattern, "error", err)
			continue
		}
		out = append(out, pattern)
	}
	return out
}

// sanitizeFilesExclude drops invalid globs from FilesExclude.
func sanitizeFilesExclude(cfg *Config) {
	if len(cfg.FilesExclude) == 0 {
		cfg.FilesExclude = nil
		return
	}
	cleaned := make(map[string]bool, len(cfg.FilesExclude))
	for pattern, enabled := range cfg.FilesExclude {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if _, err := globmatch.New([]string{pattern}); err != nil {
			slog.Warn("[WARN-CONFIG] files_exclude: dropped invalid glob", "pattern", pattern, "error", err)
			continue
		}
		cleaned[pattern] = enabled
	}
	if len(cleaned) == 0 {
		cleaned = nil
	}
	cfg.FilesExclude = cleaned
}

// sanitizeNames trims entries, drops empty ones and deduplicates while
// keeping the first occurrence's position.
func sanitizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.Trim(strings.TrimSpace(name), "/")
		if name == "" || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// sanitizePathList cleans directory paths and drops entries that are empty
// or contain null bytes.
func sanitizePathList(paths []string, logPrefix string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.ContainsRune(p, '\x00') {
			slog.Warn("[WARN-CONFIG] "+logPrefix+": dropped entry with null byte", "path", p)
			continue
		}
		p = filepath.Clean(p)
		if slices.Contains(out, p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	limited := io.LimitReader(file, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func isZeroConfig(cfg Config) bool {
	// reflect.DeepEqual guards against field-addition drift that manual checks miss.
	return reflect.DeepEqual(cfg, Config{})
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}
