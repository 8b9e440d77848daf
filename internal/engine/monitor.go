package engine

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Paintersrp/beatguard/internal/heartbeat"
	"github.com/Paintersrp/beatguard/internal/runtime"
	"github.com/Paintersrp/beatguard/internal/runtime/process"
	"github.com/Paintersrp/beatguard/internal/shutdown"
)

// Child is the monitor's view of the supervised process.
type Child interface {
	Pid() int
	Done() <-chan struct{}
	Result() (*os.ProcessState, error)
}

// Terminator kills a child it has been handed. After Terminate is called the
// caller no longer owns the child.
type Terminator interface {
	Terminate(Child) process.Report
}

// wake identifies the event that resolved a wait. The declaration order is
// the resolution priority when several events are ready at once.
type wake int

const (
	wakeShutdown wake = iota
	wakeChildExit
	wakeHeartbeat
	wakeListenerGone
	wakeTimer
)

// Monitor races child exit, heartbeat arrival, shutdown requests and timeout
// expiry for one supervision run. It owns the child until it decides to
// terminate it.
type Monitor struct {
	child      Child
	pid        int
	clock      *heartbeat.Clock
	token      *shutdown.Token
	timeout    time.Duration
	terminator Terminator
	events     Sink

	now   func() time.Time
	after func(time.Duration) (<-chan time.Time, func() bool)

	pendingBeat bool
	outcome     *Outcome
}

// NewMonitor takes ownership of child.
func NewMonitor(child Child, clock *heartbeat.Clock, token *shutdown.Token, timeout time.Duration, terminator Terminator, events Sink) (*Monitor, error) {
	switch {
	case child == nil:
		return nil, errors.New("monitor requires a child")
	case clock == nil:
		return nil, errors.New("monitor requires a heartbeat clock")
	case token == nil:
		return nil, errors.New("monitor requires a shutdown token")
	case terminator == nil:
		return nil, errors.New("monitor requires a terminator")
	case timeout <= 0:
		return nil, fmt.Errorf("monitor timeout must be positive, got %s", timeout)
	}
	return &Monitor{
		child:      child,
		pid:        child.Pid(),
		clock:      clock,
		token:      token,
		timeout:    timeout,
		terminator: terminator,
		events:     events,
		now:        time.Now,
		after:      newTimer,
	}, nil
}

func newTimer(d time.Duration) (<-chan time.Time, func() bool) {
	t := time.NewTimer(d)
	return t.C, t.Stop
}

// Run supervises until a terminal outcome is reached. Calling Run again
// returns the same outcome without further action.
func (m *Monitor) Run() Outcome {
	if m.outcome != nil {
		return *m.outcome
	}
	defer m.clock.Detach()
	defer m.token.Detach()

	m.emit(EventTypeStarted, "info", fmt.Sprintf("Monitoring for heartbeat timeout (%s) and child process (%d) exit...", m.timeout, m.pid), "", nil)

	for {
		remaining := m.timeout - m.sinceHeartbeat()
		if remaining < 0 {
			remaining = 0
		}

		timer, stop := m.after(remaining)
		w := m.wait(timer)
		stop()

		switch w {
		case wakeShutdown:
			since := m.sinceHeartbeat()
			m.emit(EventTypeStopping, "warn", fmt.Sprintf("Shutdown requested (last heartbeat %s ago, limit %s). Terminating child.", round(since), m.timeout), ReasonShutdown, nil)
			return m.finish(m.terminate(ShutdownRequested, since))
		case wakeChildExit:
			return m.finish(m.childExited())
		case wakeHeartbeat:
			continue
		case wakeListenerGone:
			since := m.sinceHeartbeat()
			m.emit(EventTypeError, "error", fmt.Sprintf("Heartbeat listener stopped unexpectedly (last heartbeat %s ago, limit %s). Terminating child.", round(since), m.timeout), ReasonListenerFailed, nil)
			return m.finish(m.terminate(ListenerFailed, since))
		case wakeTimer:
			// Re-read the clock: a heartbeat may have landed while we slept.
			since := m.sinceHeartbeat()
			if since >= m.timeout {
				m.emit(EventTypeStopping, "error", fmt.Sprintf("Timeout detected! No heartbeat received for ~%s (limit: %s). Terminating child.", round(since), m.timeout), ReasonTimeout, nil)
				return m.finish(m.terminate(TimedOut, since))
			}
			m.emit(EventTypeCheck, "info", "Potential timeout check passed (heartbeat received during sleep).", ReasonHeartbeatLate, nil)
		}
	}
}

// wait blocks until at least one event is ready, then resolves all ready
// events in priority order. Go's select picks randomly among ready cases, so
// the blocking select only wakes us; poll makes the decision.
func (m *Monitor) wait(timer <-chan time.Time) wake {
	if w, ok := m.poll(false); ok {
		return w
	}
	fired := false
	select {
	case <-m.token.Done():
	case <-m.child.Done():
	case <-m.clock.Updated():
		m.pendingBeat = true
	case <-m.clock.Closed():
	case <-timer:
		fired = true
	}
	w, _ := m.poll(fired)
	return w
}

func (m *Monitor) poll(timerFired bool) (wake, bool) {
	if m.token.Fired() {
		return wakeShutdown, true
	}
	select {
	case <-m.child.Done():
		return wakeChildExit, true
	default:
	}
	if m.pendingBeat {
		m.pendingBeat = false
		return wakeHeartbeat, true
	}
	select {
	case <-m.clock.Updated():
		return wakeHeartbeat, true
	default:
	}
	select {
	case <-m.clock.Closed():
		return wakeListenerGone, true
	default:
	}
	if timerFired {
		return wakeTimer, true
	}
	return 0, false
}

func (m *Monitor) childExited() Outcome {
	child := m.child
	m.child = nil
	state, err := child.Result()
	out := Outcome{
		Pid:            m.pid,
		State:          state,
		SinceHeartbeat: m.sinceHeartbeat(),
		Timeout:        m.timeout,
		At:             m.now(),
	}
	if err != nil {
		out.Kind = ChildWaitError
		out.Err = err
		m.emit(EventTypeError, "error", fmt.Sprintf("Error waiting for child process exit: %v. Exiting supervisor.", err), ReasonWaitError, err)
		return out
	}
	out.Kind = ChildExitedNaturally
	m.emit(EventTypeExited, "info", fmt.Sprintf("Child process exited on its own with status: %s. Exiting supervisor.", process.DescribeState(state)), ReasonChildExit, nil)
	return out
}

// terminate hands the child to the terminator. It runs at most once per
// monitor because every caller returns immediately afterwards.
func (m *Monitor) terminate(kind OutcomeKind, since time.Duration) Outcome {
	child := m.child
	m.child = nil
	report := m.terminator.Terminate(child)
	out := Outcome{
		Kind:           kind,
		Pid:            m.pid,
		State:          report.State,
		SinceHeartbeat: since,
		Timeout:        m.timeout,
		At:             m.now(),
		Termination:    &report,
	}
	m.emit(EventTypeStopped, "info", fmt.Sprintf("Child %d terminated (%s).", m.pid, kind), ReasonTermination, nil)
	return out
}

func (m *Monitor) finish(out Outcome) Outcome {
	m.outcome = &out
	return out
}

func (m *Monitor) sinceHeartbeat() time.Duration {
	return m.now().Sub(m.clock.Last())
}

func (m *Monitor) emit(t EventType, level, msg, reason string, err error) {
	if m.events == nil {
		return
	}
	m.events.Emit(Event{
		Timestamp: m.now(),
		Type:      t,
		Message:   msg,
		Level:     level,
		Source:    runtime.LogSourceSystem,
		Reason:    reason,
		Pid:       m.pid,
		Err:       err,
	})
}

func round(d time.Duration) time.Duration {
	return d.Round(10 * time.Millisecond)
}
