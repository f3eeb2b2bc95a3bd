//go:build !unix && !windows

package procutil

import "os/exec"

// Configure only bounds pipe draining on this platform.
func Configure(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	cmd.WaitDelay = waitDelay
}
