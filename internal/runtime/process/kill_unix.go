//go:build !windows

package process

import "syscall"

// killGroup sends SIGKILL to every member of the process group pgid. The child
// was started with Setpgid so its pgid equals its pid.
func killGroup(pgid int) error {
	return syscall.Kill(-pgid, syscall.SIGKILL)
}

const groupTarget = "process group"
