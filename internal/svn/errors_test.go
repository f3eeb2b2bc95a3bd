package svn

import (
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		stderr   string
		wantKind ErrorKind
		wantCode string
	}{
		{
			name:     "locked",
			stderr:   "svn: E155004: Run 'svn cleanup' to remove locks\nsvn: E155004: Working copy '/ws' locked.",
			wantKind: KindLocked,
			wantCode: CodeRepositoryLocked,
		},
		{
			name:     "auth",
			stderr:   "svn: E170001: Authorization failed",
			wantKind: KindAuthFailed,
			wantCode: CodeAuthorizationFailed,
		},
		{
			name:     "auth without code",
			stderr:   "svn: E215004: No more credentials or we tried too many times.",
			wantKind: KindAuthFailed,
			wantCode: CodeAuthorizationFailed,
		},
		{
			name:     "not a working copy",
			stderr:   "svn: E155007: '/tmp/x' is not a working copy",
			wantKind: KindNotWorkingCopy,
			wantCode: CodeNotWorkingCopy,
		},
		{
			name:     "too old",
			stderr:   "svn: E155036: Please see the 'svn upgrade' command",
			wantKind: KindTooOld,
			wantCode: CodeWorkingCopyTooOld,
		},
		{
			name:     "ancestry",
			stderr:   "svn: E195012: Path '.' does not share common version control ancestry",
			wantKind: KindAncestryMismatch,
			wantCode: CodeAncestryMismatch,
		},
		{
			name:     "other",
			stderr:   "svn: E200009: Could not add all targets",
			wantKind: KindOther,
			wantCode: "",
		},
		{
			name:     "empty",
			stderr:   "",
			wantKind: KindOther,
			wantCode: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, code := Classify(tt.stderr)
			if kind != tt.wantKind || code != tt.wantCode {
				t.Errorf("Classify() = (%v, %q), want (%v, %q)", kind, code, tt.wantKind, tt.wantCode)
			}
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	err := newExecError("update", 1, "", "svn: E155004: Working copy locked.\nsvn: E155004: Run cleanup.\n")
	if err.Kind != KindLocked {
		t.Fatalf("Kind = %v, want %v", err.Kind, KindLocked)
	}
	if got, want := err.StderrFormatted(), "Working copy locked.\nRun cleanup."; got != want {
		t.Fatalf("StderrFormatted() = %q, want %q", got, want)
	}
	if got, want := err.Error(), "svn update failed with exit code 1: Working copy locked.\nRun cleanup."; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestIsKindUnwraps(t *testing.T) {
	base := newExecError("commit", 1, "", "svn: E170001: Authorization failed")
	wrapped := fmt.Errorf("run commit: %w", base)

	if !IsKind(wrapped, KindAuthFailed) {
		t.Fatal("IsKind(wrapped, KindAuthFailed) = false, want true")
	}
	if IsKind(wrapped, KindLocked) {
		t.Fatal("IsKind(wrapped, KindLocked) = true, want false")
	}
	if got := KindOf(fmt.Errorf("plain")); got != KindOther {
		t.Fatalf("KindOf(plain) = %v, want %v", got, KindOther)
	}
}
