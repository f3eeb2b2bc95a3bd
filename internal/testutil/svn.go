package testutil

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// SkipIfNoSvn skips the test unless both svn and svnadmin are on PATH.
func SkipIfNoSvn(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"svn", "svnadmin"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping", bin)
		}
	}
}

// ResolvePath resolves symlinks and Windows 8.3 short names so paths match
// the ones svn reports. Returns path unchanged when resolution fails.
func ResolvePath(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		slog.Debug("[DEBUG-TEST] EvalSymlinks failed, using original path",
			"path", path, "error", err)
		return path
	}
	return resolved
}

// FileURL returns the file:// URL of a local repository directory.
func FileURL(dir string) string {
	p := filepath.ToSlash(dir)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + p
}

// CreateTempWorkingCopy creates a repository with svnadmin and checks it out.
// It returns the working copy root and the repository URL. The repository
// starts with one committed file, README.txt, at revision 1.
func CreateTempWorkingCopy(t *testing.T) (wc, repoURL string) {
	t.Helper()
	SkipIfNoSvn(t)

	base := ResolvePath(t.TempDir())
	repoDir := filepath.Join(base, "repo")
	wc = filepath.Join(base, "wc")
	repoURL = FileURL(repoDir)

	Run(t, base, "svnadmin", "create", repoDir)
	Run(t, base, "svn", "checkout", "--non-interactive", repoURL, wc)

	if err := os.WriteFile(filepath.Join(wc, "README.txt"), []byte("readme\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	Run(t, wc, "svn", "add", "README.txt")
	Run(t, wc, "svn", "commit", "--non-interactive", "-m", "initial", "--username", "test")
	Run(t, wc, "svn", "update", "--non-interactive")
	return wc, repoURL
}

// Run executes a command in dir and fails the test on a non-zero exit.
func Run(t *testing.T, dir, name string, args ...string) string {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to run %s %v: %v\n%s", name, args, err, out)
	}
	return string(out)
}
