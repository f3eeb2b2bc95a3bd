package svn

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrorKind classifies svn failures that callers react to differently.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	// KindLocked: the working copy is locked by another svn process (E155004).
	KindLocked
	// KindAuthFailed: credentials were rejected or are missing (E170001, E215004).
	KindAuthFailed
	// KindNotWorkingCopy: the path is not (or no longer) a working copy (E155007).
	KindNotWorkingCopy
	// KindTooOld: the working copy format needs `svn upgrade` (E155036).
	KindTooOld
	// KindAncestryMismatch: switch/merge targets do not share ancestry (E195012).
	KindAncestryMismatch
)

// Known svn error codes.
const (
	CodeRepositoryLocked    = "E155004"
	CodeAuthorizationFailed = "E170001"
	CodeNotWorkingCopy      = "E155007"
	CodeWorkingCopyTooOld   = "E155036"
	CodeAncestryMismatch    = "E195012"
)

func (k ErrorKind) String() string {
	switch k {
	case KindLocked:
		return "locked"
	case KindAuthFailed:
		return "auth-failed"
	case KindNotWorkingCopy:
		return "not-a-working-copy"
	case KindTooOld:
		return "working-copy-too-old"
	case KindAncestryMismatch:
		return "ancestry-mismatch"
	default:
		return "other"
	}
}

var knownCodes = []struct {
	code string
	kind ErrorKind
}{
	{CodeAuthorizationFailed, KindAuthFailed},
	{CodeRepositoryLocked, KindLocked},
	{CodeNotWorkingCopy, KindNotWorkingCopy},
	{CodeAncestryMismatch, KindAncestryMismatch},
	{CodeWorkingCopyTooOld, KindTooOld},
}

// Classify maps svn stderr to an error kind and the matching error code.
// Unknown failures return (KindOther, "").
func Classify(stderr string) (ErrorKind, string) {
	for _, known := range knownCodes {
		if strings.Contains(stderr, "svn: "+known.code) {
			return known.kind, known.code
		}
	}
	// svn reports exhausted credential providers without E170001 on some versions.
	if strings.Contains(stderr, "No more credentials or we tried too many times") {
		return KindAuthFailed, CodeAuthorizationFailed
	}
	return KindOther, ""
}

// Error is the structured failure returned by every svn invocation.
type Error struct {
	Kind     ErrorKind
	Code     string
	Message  string
	Stdout   string
	Stderr   string
	ExitCode int
	// Command is the svn subcommand (e.g. "status").
	Command string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if formatted := e.StderrFormatted(); formatted != "" {
		b.WriteString(": ")
		b.WriteString(formatted)
	}
	return b.String()
}

var svnErrorPrefix = regexp.MustCompile(`(?m)^svn: E\d+: `)

// StderrFormatted returns stderr with the "svn: E######: " prefixes removed.
func (e *Error) StderrFormatted() string {
	return strings.TrimSpace(svnErrorPrefix.ReplaceAllString(e.Stderr, ""))
}

func newExecError(command string, exitCode int, stdout, stderr string) *Error {
	kind, code := Classify(stderr)
	return &Error{
		Kind:     kind,
		Code:     code,
		Message:  fmt.Sprintf("svn %s failed with exit code %d", command, exitCode),
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		Command:  command,
	}
}

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var svnErr *Error
	if !errors.As(err, &svnErr) {
		return false
	}
	return svnErr.Kind == kind
}

// KindOf returns the kind of the wrapped *Error, or KindOther.
func KindOf(err error) ErrorKind {
	var svnErr *Error
	if errors.As(err, &svnErr) {
		return svnErr.Kind
	}
	return KindOther
}
