//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureCmdSysProcAttr places the child in a new process group led by
// itself, so the group id equals the child's pid.
func configureCmdSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: 0}
}
