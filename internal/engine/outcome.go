package engine

import (
	"os"
	"time"

	"github.com/Paintersrp/beatguard/internal/runtime/process"
)

// OutcomeKind identifies why supervision ended.
type OutcomeKind string

const (
	ChildExitedNaturally OutcomeKind = "child_exited"
	TimedOut             OutcomeKind = "timed_out"
	ShutdownRequested    OutcomeKind = "shutdown_requested"
	ChildWaitError       OutcomeKind = "child_wait_error"
	ListenerFailed       OutcomeKind = "listener_failed"
)

// Process exit codes for each outcome.
const (
	ExitCodeOK             = 0
	ExitCodeTimeout        = 1
	ExitCodeWaitError      = 2
	ExitCodeListenerFailed = 3
)

// Outcome is the terminal result of a supervision run. It is immutable once
// the monitor returns it.
type Outcome struct {
	Kind OutcomeKind
	Pid  int
	// State is the child's exit status when it was observed.
	State *os.ProcessState
	// Err is set for ChildWaitError.
	Err error
	// SinceHeartbeat is the time since the last heartbeat at decision time.
	SinceHeartbeat time.Duration
	Timeout        time.Duration
	At             time.Time
	// Termination is set when the monitor killed the child.
	Termination *process.Report
}

// ExitCode maps the outcome to the supervisor's process exit status.
func (o Outcome) ExitCode() int {
	switch o.Kind {
	case ChildExitedNaturally, ShutdownRequested:
		return ExitCodeOK
	case TimedOut:
		return ExitCodeTimeout
	case ChildWaitError:
		return ExitCodeWaitError
	case ListenerFailed:
		return ExitCodeListenerFailed
	default:
		return ExitCodeTimeout
	}
}

// Terminated reports whether the monitor killed the child.
func (o Outcome) Terminated() bool {
	return o.Termination != nil
}
