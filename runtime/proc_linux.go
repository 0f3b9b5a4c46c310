//go:build linux

package runtime

import (
	"os/exec"
	"syscall"
)

// setPlatformSpecificAttrs configures process attributes for Linux. It
// uses Pdeathsig so a spawned game server is terminated by the kernel if
// the lobby process exits, leaving no orphaned servers holding pool
// ports.
func setPlatformSpecificAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGKILL,
	}
}
