//go:build unix

package procutil

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func TestConfigureSetsProcessGroup(t *testing.T) {
	tests := []struct {
		name       string
		cmd        func() *exec.Cmd
		wantCancel bool
	}{
		{
			name:       "context command",
			cmd:        func() *exec.Cmd { return exec.CommandContext(context.Background(), "true") },
			wantCancel: true,
		},
		{
			name: "plain command",
			cmd:  func() *exec.Cmd { return exec.Command("true") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := tt.cmd()
			Configure(cmd)
			if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
				t.Fatal("Setpgid not set")
			}
			if (cmd.Cancel != nil) != tt.wantCancel {
				t.Fatalf("Cancel set = %v, want %v", cmd.Cancel != nil, tt.wantCancel)
			}
			if cmd.WaitDelay != waitDelay {
				t.Fatalf("WaitDelay = %v, want %v", cmd.WaitDelay, waitDelay)
			}
		})
	}
}

func TestConfigureNilCmd(t *testing.T) {
	Configure(nil)
}

func TestCancelKillsProcessGroup(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "sh", "-c", "sleep 30 & wait")
	Configure(cmd)
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	time.AfterFunc(100*time.Millisecond, cancel)
	if err := cmd.Wait(); err == nil {
		t.Fatal("Wait() returned nil after cancellation")
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Fatalf("Wait() took %v; child process group survived", elapsed)
	}
}
