package process

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Paintersrp/beatguard/internal/runtime"
)

// DefaultGracePeriod is how long Terminate waits after signalling before it
// checks the exit status once.
const DefaultGracePeriod = 100 * time.Millisecond

// ErrGroupKillUnsupported is returned by platforms without process group
// signal delivery.
var ErrGroupKillUnsupported = errors.New("process group kill not supported on this platform")

// Report summarises a termination attempt.
type Report struct {
	Pid int
	// GroupErr is the error from the process group kill, if any.
	GroupErr error
	// FallbackUsed is set when only the direct child was signalled.
	FallbackUsed bool
	// FallbackErr is the error from the direct child kill, if any.
	FallbackErr error
	// Confirmed is set when the child had exited by the end of the grace period.
	Confirmed bool
	State     *os.ProcessState
	WaitErr   error
}

// Terminator force-kills a child process tree. It is best effort: it signals
// once, falls back once, waits a fixed grace period and never blocks on
// confirmation.
type Terminator struct {
	grace time.Duration
	log   func(runtime.LogEntry)

	killGroup func(int) error
	sleep     func(time.Duration)
}

// NewTerminator constructs a Terminator that reports progress through log.
func NewTerminator(log func(runtime.LogEntry)) *Terminator {
	return &Terminator{
		grace:     DefaultGracePeriod,
		log:       log,
		killGroup: killGroup,
		sleep:     time.Sleep,
	}
}

// WithGracePeriod overrides the wait between signalling and the status check.
func (t *Terminator) WithGracePeriod(d time.Duration) *Terminator {
	if d >= 0 {
		t.grace = d
	}
	return t
}

// Terminate takes ownership of h and kills the child's process tree. The
// caller must not use h afterwards.
func (t *Terminator) Terminate(h *Handle) Report {
	pid := h.Pid()
	report := Report{Pid: pid}
	t.info(fmt.Sprintf("Terminating child %s (PID: %d)...", groupTarget, pid))

	if err := t.killGroup(pid); err != nil {
		report.GroupErr = err
		report.FallbackUsed = true
		if errors.Is(err, ErrGroupKillUnsupported) {
			t.info(fmt.Sprintf("Process group kill unavailable, killing PID %d only; descendants may survive.", pid))
		} else {
			t.warn(fmt.Sprintf("Failed to kill process group %d: %v. Falling back to killing PID %d.", pid, err, pid))
		}
		if err := h.kill(); err != nil {
			report.FallbackErr = err
			t.warn(fmt.Sprintf("Fallback attempt to kill child process %d failed: %v", pid, err))
		} else {
			t.info(fmt.Sprintf("Fallback kill signal sent to PID %d.", pid))
		}
	} else {
		t.info(fmt.Sprintf("Sent SIGKILL to process group %d.", pid))
	}

	t.sleep(t.grace)

	state, waitErr, ok := h.TryResult()
	switch {
	case !ok:
		t.info("Child process still running shortly after kill signal, continuing supervisor exit.")
	case waitErr != nil:
		report.WaitErr = waitErr
		t.warn(fmt.Sprintf("Error checking child process status after kill: %v", waitErr))
	default:
		report.Confirmed = true
		report.State = state
		t.info(fmt.Sprintf("Child process confirmed exit after kill signal with status: %s", DescribeState(state)))
	}
	return report
}

func (t *Terminator) info(msg string) {
	t.emit("info", msg)
}

func (t *Terminator) warn(msg string) {
	t.emit("warn", msg)
}

func (t *Terminator) emit(level, msg string) {
	if t.log == nil {
		return
	}
	t.log(runtime.LogEntry{Message: msg, Source: runtime.LogSourceSystem, Level: level})
}

// KillGroup kills the process group pgid without owning a handle. It falls
// back to the single process when group delivery fails. No exit status can be
// observed on this path.
func KillGroup(pgid int) error {
	if pgid <= 0 {
		return fmt.Errorf("invalid process group id %d", pgid)
	}
	groupErr := killGroup(pgid)
	if groupErr == nil {
		return nil
	}
	proc, err := os.FindProcess(pgid)
	if err != nil {
		return errors.Join(groupErr, err)
	}
	if err := proc.Kill(); err != nil {
		return errors.Join(groupErr, err)
	}
	return nil
}
