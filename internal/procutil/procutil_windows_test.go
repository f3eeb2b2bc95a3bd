//go:build windows

package procutil

import (
	"os/exec"
	"syscall"
	"testing"

	"golang.org/x/sys/windows"
)

func TestConfigure(t *testing.T) {
	cmd := exec.Command("cmd.exe", "/c", "echo", "test")
	Configure(cmd)

	if cmd.SysProcAttr == nil {
		t.Fatal("SysProcAttr is nil after Configure()")
	}
	if !cmd.SysProcAttr.HideWindow {
		t.Error("HideWindow is false, want true")
	}
	if cmd.SysProcAttr.CreationFlags&windows.CREATE_NO_WINDOW == 0 {
		t.Error("CREATE_NO_WINDOW not set")
	}
}

func TestConfigurePreservesExistingSysProcAttr(t *testing.T) {
	cmd := exec.Command("cmd.exe", "/c", "echo", "test")
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: "custom"}
	Configure(cmd)

	if cmd.SysProcAttr.CmdLine != "custom" {
		t.Errorf("CmdLine = %q, want custom", cmd.SysProcAttr.CmdLine)
	}
	if !cmd.SysProcAttr.HideWindow {
		t.Error("HideWindow is false, want true")
	}
}
