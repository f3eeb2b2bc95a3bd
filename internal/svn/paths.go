package svn

import (
	"path/filepath"
	"runtime"
	"strings"
)

// AdminDirName is the working copy administrative directory.
const AdminDirName = ".svn"

// FixPathSeparator converts backslashes to forward slashes, the separator svn prints in XML.
func FixPathSeparator(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// FixPegRevision appends "@" to paths containing "@" so svn does not read
// the tail as a peg revision.
func FixPegRevision(p string) string {
	if strings.Contains(p, "@") {
		return p + "@"
	}
	return p
}

// UnfixPegRevision reverses FixPegRevision.
func UnfixPegRevision(p string) string {
	if strings.HasSuffix(p, "@") && strings.Contains(p[:len(p)-1], "@") {
		return p[:len(p)-1]
	}
	return p
}

// NormalizePath returns a cleaned, OS-native path suitable for map keys.
// Windows paths are lower-cased since the filesystem is case-insensitive.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	p = filepath.Clean(filepath.FromSlash(FixPathSeparator(p)))
	if runtime.GOOS == "windows" {
		p = strings.ToLower(p)
	}
	return p
}

// IsDescendant reports whether child equals parent or lies beneath it.
func IsDescendant(parent, child string) bool {
	parent = NormalizePath(parent)
	child = NormalizePath(child)
	if parent == "" || child == "" {
		return false
	}
	if parent == child {
		return true
	}
	if !strings.HasSuffix(parent, string(filepath.Separator)) {
		parent += string(filepath.Separator)
	}
	return strings.HasPrefix(child, parent)
}

// IsAdminPath reports whether p is inside (or is) a .svn directory.
func IsAdminPath(p string) bool {
	for _, part := range strings.Split(FixPathSeparator(p), "/") {
		if part == AdminDirName {
			return true
		}
	}
	return false
}
