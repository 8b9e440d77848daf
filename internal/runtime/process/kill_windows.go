//go:build windows

package process

// killGroup is not available on Windows. Terminating descendants would require
// a job object; callers fall back to the direct child.
func killGroup(int) error {
	return ErrGroupKillUnsupported
}

const groupTarget = "process"
