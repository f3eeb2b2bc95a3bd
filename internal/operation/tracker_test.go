package operation

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKindClassification(t *testing.T) {
	readOnly := []Kind{Info, Log, Show, CurrentBranch, Changes, List}
	for _, k := range readOnly {
		if !k.IsReadOnly() {
			t.Errorf("%s.IsReadOnly() = false, want true", k)
		}
	}
	mutating := []Kind{Add, Commit, Update, SwitchBranch, Merge, Status, StatusRemote, Revert, Resolve, Cleanup}
	for _, k := range mutating {
		if k.IsReadOnly() {
			t.Errorf("%s.IsReadOnly() = true, want false", k)
		}
	}

	for _, k := range []Kind{CurrentBranch, Show, Info} {
		if k.ShowsProgress() {
			t.Errorf("%s.ShowsProgress() = true, want false", k)
		}
	}
	for _, k := range []Kind{Status, Commit, Log} {
		if !k.ShowsProgress() {
			t.Errorf("%s.ShowsProgress() = false, want true", k)
		}
	}
}

func TestTrackerIdleSemantics(t *testing.T) {
	tr := NewTracker()
	if !tr.IsIdle() {
		t.Fatal("empty tracker should be idle")
	}

	tr.Start(Show)
	if !tr.IsIdle() {
		t.Fatal("Show only: want idle")
	}
	tr.Start(Commit)
	if tr.IsIdle() {
		t.Fatal("Show+Commit: want busy")
	}
	tr.End(Commit)
	if !tr.IsIdle() {
		t.Fatal("after End(Commit): want idle")
	}
	if !tr.IsRunning(Show) {
		t.Fatal("Show should still be running")
	}
}

func TestTrackerReentrantCounts(t *testing.T) {
	tr := NewTracker()
	tr.Start(Update)
	tr.Start(Update)
	tr.End(Update)
	if !tr.IsRunning(Update) || tr.IsIdle() {
		t.Fatal("one Update still running: want running and busy")
	}
	tr.End(Update)
	if tr.IsRunning(Update) || !tr.IsIdle() {
		t.Fatal("all Updates ended: want not running and idle")
	}
	if got := tr.Snapshot(); len(got) != 0 {
		t.Fatalf("Snapshot() = %v, want empty", got)
	}
}

func TestTrackerNeverUnderflows(t *testing.T) {
	tr := NewTracker()
	tr.End(Commit)
	tr.End(Commit)
	if tr.IsRunning(Commit) {
		t.Fatal("End without Start made Commit running")
	}
	tr.Start(Commit)
	tr.End(Commit)
	tr.End(Commit)
	if tr.IsRunning(Commit) || !tr.IsIdle() {
		t.Fatal("extra End changed state")
	}
	tr.Start(Commit)
	if !tr.IsRunning(Commit) {
		t.Fatal("Start after extra End: want running")
	}
}

func TestTrackerIdleSequences(t *testing.T) {
	// isIdle is false iff some running kind is mutating.
	ops := []struct {
		start bool
		kind  Kind
	}{
		{true, Info}, {true, Status}, {false, Info}, {true, Log}, {false, Status},
		{false, Log}, {true, Add}, {true, Add}, {false, Add}, {false, Add}, {false, Add},
	}
	tr := NewTracker()
	counts := map[Kind]int{}
	for i, op := range ops {
		if op.start {
			tr.Start(op.kind)
			counts[op.kind]++
		} else {
			tr.End(op.kind)
			if counts[op.kind] > 0 {
				counts[op.kind]--
			}
		}
		wantIdle := true
		for k, n := range counts {
			if n > 0 && !k.IsReadOnly() {
				wantIdle = false
			}
		}
		if got := tr.IsIdle(); got != wantIdle {
			t.Fatalf("step %d: IsIdle() = %v, want %v", i, got, wantIdle)
		}
	}
}

func TestWaitIdle(t *testing.T) {
	tr := NewTracker()
	if err := tr.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle on idle tracker: %v", err)
	}

	tr.Start(Commit)
	done := make(chan error, 1)
	go func() { done <- tr.WaitIdle(context.Background()) }()

	select {
	case <-done:
		t.Fatal("WaitIdle returned while Commit running")
	case <-time.After(20 * time.Millisecond):
	}
	tr.End(Commit)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitIdle() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitIdle did not return after End")
	}

	tr.Start(Update)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := tr.WaitIdle(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitIdle() error = %v, want DeadlineExceeded", err)
	}
}
