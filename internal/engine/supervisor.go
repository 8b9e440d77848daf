package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Paintersrp/beatguard/internal/api"
	httpapi "github.com/Paintersrp/beatguard/internal/api/http"
	"github.com/Paintersrp/beatguard/internal/heartbeat"
	"github.com/Paintersrp/beatguard/internal/metrics"
	"github.com/Paintersrp/beatguard/internal/runtime"
	"github.com/Paintersrp/beatguard/internal/runtime/process"
	"github.com/Paintersrp/beatguard/internal/shutdown"
)

// ErrInvalidConfig is returned by New when the configuration cannot be
// supervised.
var ErrInvalidConfig = errors.New("invalid supervisor configuration")

// Config describes one supervision run.
type Config struct {
	Child      runtime.Spec
	ListenAddr string
	Timeout    time.Duration
	// StatusAddr enables the status and metrics server when non-empty.
	StatusAddr string
	RunID      string
}

// Supervisor wires the launcher, heartbeat listener, shutdown handler,
// monitor and terminator together for a single child.
type Supervisor struct {
	cfg    Config
	events Sink
	exit   func(int)

	start      func(runtime.Spec, ...process.Option) (*process.Handle, error)
	listen     func(context.Context, string, ...heartbeat.ListenOption) (*heartbeat.Listener, error)
	stats      func(context.Context, int) (process.ResourceStats, error)
	now        func() time.Time
	terminator Terminator

	received atomic.Int64

	mu        sync.Mutex
	startedAt time.Time
	childDone <-chan struct{}
	pid       int
	clock     *heartbeat.Clock
	boundAddr string
	listening bool
	statusURL string
	outcome   *Outcome
}

// New validates cfg and returns a supervisor. exit is used by the signal
// handler to end the process; events receives every diagnostic.
func New(cfg Config, events Sink, exit func(int)) (*Supervisor, error) {
	if strings.TrimSpace(cfg.Child.Command) == "" {
		return nil, fmt.Errorf("%w: child command is required", ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be greater than 0, got %s", ErrInvalidConfig, cfg.Timeout)
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return nil, fmt.Errorf("%w: listen address is required", ErrInvalidConfig)
	}
	s := &Supervisor{
		cfg:    cfg,
		events: events,
		exit:   exit,
		start:  process.Start,
		listen: heartbeat.Listen,
		stats:  process.Stats,
		now:    time.Now,
	}
	s.terminator = processTerminator{process.NewTerminator(logEntryFunc(events, ReasonTermination))}
	return s, nil
}

// Run launches the child and supervises it until a terminal outcome. An error
// is returned only when supervision could not begin; the child has been
// cleaned up in that case.
func (s *Supervisor) Run(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if s.outcome != nil {
		out := *s.outcome
		s.mu.Unlock()
		return out, nil
	}
	if s.childDone != nil {
		s.mu.Unlock()
		return Outcome{}, errors.New("supervisor already running")
	}
	s.mu.Unlock()

	metrics.SetTimeout(s.cfg.Timeout)
	sendEvent(s.events, EventTypeStarting, "info", fmt.Sprintf("Starting child process: %s", describeCommand(s.cfg.Child)), ReasonLaunch, nil)

	// The deadline counts from launch, so a child that never beats is killed
	// one timeout after it started.
	clock := heartbeat.NewClock(s.now())
	output := newOutputPump(s.events, outputBufferSize)
	handle, err := s.start(s.cfg.Child, process.WithOutput(output.Send))
	if err != nil {
		output.Close()
		output.Wait(outputFlushTimeout)
		sendEvent(s.events, EventTypeError, "error", fmt.Sprintf("Failed to spawn child process '%s': %v", s.cfg.Child.Command, err), ReasonLaunch, err)
		return Outcome{}, fmt.Errorf("launch child: %w", err)
	}
	pid := handle.Pid()
	// Descendants may hold the pipes after the child exited; the drain is
	// bounded and later lines are discarded.
	go func() {
		<-handle.OutputDone()
		output.Close()
	}()
	defer func() {
		if !output.Wait(outputFlushTimeout) {
			output.Close()
		}
	}()

	s.mu.Lock()
	s.startedAt = clock.Last()
	s.childDone = handle.Done()
	s.pid = pid
	s.clock = clock
	s.mu.Unlock()
	metrics.SetChildRunning(true)
	sendEventPid(s.events, EventTypeStarted, "info", fmt.Sprintf("Child process launched (PID: %d).", pid), ReasonLaunch, pid)

	token := shutdown.NewToken()
	handler := shutdown.NewHandler(token, pid, s.exit, logEntryFunc(s.events, ReasonShutdown))
	// The handler outlives the monitor so a late signal still reaches the
	// child's process group.
	go handler.Run(ctx)

	// Cancel before waiting: the listener and status server stop on runCtx.
	var wg sync.WaitGroup
	defer wg.Wait()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.startListener(runCtx, clock, &wg)
	s.startStatusServer(runCtx, &wg)

	monitor, err := NewMonitor(handle, clock, token, s.cfg.Timeout, s.terminator, s.events)
	if err != nil {
		report := s.terminator.Terminate(handle)
		return Outcome{Pid: pid, At: s.now(), Termination: &report}, fmt.Errorf("create monitor: %w", err)
	}
	out := monitor.Run()

	metrics.SetChildRunning(false)
	metrics.RecordOutcome(string(out.Kind))
	if out.Terminated() {
		metrics.IncrementTermination(string(out.Kind))
	}

	s.mu.Lock()
	s.outcome = &out
	s.mu.Unlock()
	return out, nil
}

func (s *Supervisor) startListener(ctx context.Context, clock *heartbeat.Clock, wg *sync.WaitGroup) {
	addr := s.cfg.ListenAddr
	sendEvent(s.events, EventTypeStarting, "info", fmt.Sprintf("Starting UDP heartbeat listener on %s", addr), "", nil)
	listener, err := s.listen(ctx, addr, heartbeat.WithClockSource(s.now), heartbeat.WithHeartbeatHook(s.observeHeartbeat))
	if err != nil {
		// The clock stays open: with no heartbeats the monitor times out.
		sendEvent(s.events, EventTypeError, "error", fmt.Sprintf("Failed to bind UDP socket: %v. No heartbeats can be received; the child will be killed after %s.", err, s.cfg.Timeout), ReasonBindFailed, err)
		return
	}

	bound := listener.Addr().String()
	s.mu.Lock()
	s.boundAddr = bound
	s.listening = true
	s.mu.Unlock()
	sendEvent(s.events, EventTypeListening, "info", fmt.Sprintf("UDP listener bound successfully on %s.", bound), "", nil)

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := listener.Serve(ctx, clock)
		s.mu.Lock()
		s.listening = false
		s.mu.Unlock()
		switch {
		case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		case errors.Is(err, heartbeat.ErrReaderGone):
			sendEvent(s.events, EventTypeStopped, "debug", "Monitor stopped reading heartbeats, stopping UDP listener.", ReasonListenerStopped, nil)
		default:
			sendEvent(s.events, EventTypeError, "error", fmt.Sprintf("Error receiving UDP packet: %v. Stopping listener.", err), ReasonListenerStopped, err)
		}
	}()
}

func (s *Supervisor) startStatusServer(ctx context.Context, wg *sync.WaitGroup) {
	if strings.TrimSpace(s.cfg.StatusAddr) == "" {
		return
	}
	server, err := httpapi.Listen(s.cfg.StatusAddr, s)
	if err != nil {
		sendEvent(s.events, EventTypeError, "warn", fmt.Sprintf("Status server disabled: %v", err), ReasonStatusServer, err)
		return
	}
	s.mu.Lock()
	s.statusURL = "http://" + server.Addr()
	s.mu.Unlock()
	sendEvent(s.events, EventTypeListening, "info", fmt.Sprintf("Serving status and metrics on http://%s", server.Addr()), ReasonStatusServer, nil)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(ctx); err != nil {
			sendEvent(s.events, EventTypeError, "warn", fmt.Sprintf("Status server stopped: %v", err), ReasonStatusServer, err)
		}
	}()
}

func (s *Supervisor) observeHeartbeat(at time.Time) {
	s.received.Add(1)
	metrics.ObserveHeartbeat(at)
}

// StatusURL returns the base URL of the status server, or "" when disabled.
func (s *Supervisor) StatusURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusURL
}

// Status implements api.Controller.
func (s *Supervisor) Status(ctx context.Context) (*api.StatusReport, error) {
	s.mu.Lock()
	childDone := s.childDone
	pid := s.pid
	clock := s.clock
	report := &api.StatusReport{
		RunID:     s.cfg.RunID,
		StartedAt: s.startedAt,
		Heartbeat: api.HeartbeatReport{
			ListenAddr:     s.cfg.ListenAddr,
			BoundAddr:      s.boundAddr,
			Listening:      s.listening,
			TimeoutSeconds: s.cfg.Timeout.Seconds(),
		},
	}
	var out *Outcome
	if s.outcome != nil {
		copied := *s.outcome
		out = &copied
	}
	s.mu.Unlock()

	if childDone == nil {
		return nil, api.ErrNotStarted
	}

	now := s.now()
	report.GeneratedAt = now
	last := clock.Last()
	deadline := last.Add(s.cfg.Timeout)
	remaining := deadline.Sub(now)
	if remaining < 0 || out != nil {
		remaining = 0
	}
	report.Heartbeat.Received = s.received.Load()
	report.Heartbeat.Last = last
	report.Heartbeat.Deadline = deadline
	report.Heartbeat.Remaining = remaining.Round(time.Millisecond).String()

	report.Child = api.ChildReport{
		Pid:     pid,
		Command: s.cfg.Child.Command,
		Args:    append([]string(nil), s.cfg.Child.Args...),
	}
	select {
	case <-childDone:
	default:
		report.Child.Running = true
	}
	if report.Child.Running {
		stats, err := s.stats(ctx, pid)
		if err != nil {
			report.Child.StatsError = err.Error()
		} else {
			report.Child.Resources = &stats
		}
	}

	if out != nil {
		or := &api.OutcomeReport{
			Kind:       string(out.Kind),
			ExitCode:   out.ExitCode(),
			At:         out.At,
			Terminated: out.Terminated(),
		}
		if out.State != nil {
			or.Status = process.DescribeState(out.State)
		}
		if out.Err != nil {
			or.Error = out.Err.Error()
		}
		report.Outcome = or
	}
	return report, nil
}

// processTerminator adapts process.Terminator to the monitor's Child view.
type processTerminator struct {
	t *process.Terminator
}

func (p processTerminator) Terminate(child Child) process.Report {
	h, ok := child.(*process.Handle)
	if !ok {
		err := process.KillGroup(child.Pid())
		return process.Report{Pid: child.Pid(), GroupErr: err}
	}
	return p.t.Terminate(h)
}

func sendEventPid(sink Sink, t EventType, level, message, reason string, pid int) {
	if sink == nil {
		return
	}
	sink.Emit(Event{
		Timestamp: time.Now(),
		Type:      t,
		Message:   message,
		Level:     level,
		Source:    runtime.LogSourceSystem,
		Reason:    reason,
		Pid:       pid,
	})
}

func describeCommand(spec runtime.Spec) string {
	if len(spec.Args) == 0 {
		return spec.Command
	}
	return spec.Command + " " + strings.Join(spec.Args, " ")
}
