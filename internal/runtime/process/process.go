package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Paintersrp/beatguard/internal/runtime"
)

const (
	// orphanWaitTimeout bounds the wait after killing a child whose pid could
	// not be retrieved.
	orphanWaitTimeout = time.Second
)

var (
	// ErrMissingCommand is returned when the spec has no binary path.
	ErrMissingCommand = errors.New("child command is required")
	// ErrNoPid is returned when the child started but its pid is unavailable.
	ErrNoPid = errors.New("could not get pid of spawned child process")
)

// Option customises Start.
type Option func(*options)

type options struct {
	output func(runtime.LogEntry)
}

// WithOutput forwards each line the child writes to stdout or stderr.
func WithOutput(fn func(runtime.LogEntry)) Option {
	return func(o *options) {
		o.output = fn
	}
}

// Start launches the child described by spec in its own process group and
// returns the owned handle.
func Start(spec runtime.Spec, opts ...Option) (*Handle, error) {
	if strings.TrimSpace(spec.Command) == "" {
		return nil, ErrMissingCommand
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	if spec.Workdir != "" {
		cmd.Dir = spec.Workdir
	}

	env := os.Environ()
	if spec.Env != nil {
		envOverrides := make([]string, 0, len(spec.Env))
		for k, v := range spec.Env {
			envOverrides = append(envOverrides, fmt.Sprintf("%s=%s", k, v))
		}
		env = append(env, envOverrides...)
	}
	cmd.Env = env

	// The child gets the write ends as *os.File, so Wait returns as soon as
	// the child exits even when descendants keep the pipes open.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("child stdout: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, fmt.Errorf("child stderr: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	configureCmdSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return nil, fmt.Errorf("spawn child process %q: %w", spec.Command, err)
	}
	closeAll(stdoutW, stderrW)

	h := &Handle{
		cmd:        cmd,
		done:       make(chan struct{}),
		outputDone: make(chan struct{}),
	}
	if cmd.Process != nil {
		h.pid = cmd.Process.Pid
	}

	var streams sync.WaitGroup
	streams.Add(2)
	go streamLines(stdoutR, runtime.LogSourceStdout, o.output, &streams)
	go streamLines(stderrR, runtime.LogSourceStderr, o.output, &streams)
	go func() {
		streams.Wait()
		close(h.outputDone)
	}()

	go func() {
		err := cmd.Wait()
		h.finish(cmd.ProcessState, err)
	}()

	if h.pid <= 0 {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		select {
		case <-h.done:
		case <-time.After(orphanWaitTimeout):
		}
		return nil, ErrNoPid
	}

	return h, nil
}

// Handle is the exclusive owner of a running child process. Exactly one
// goroutine waits on the underlying process; observers read its result.
type Handle struct {
	cmd *exec.Cmd
	pid int

	done       chan struct{}
	outputDone chan struct{}
	once       sync.Once
	state      *os.ProcessState
	err        error
}

// Pid returns the child's process id, which is also its process group id.
func (h *Handle) Pid() int {
	return h.pid
}

// Done is closed once the child has exited and its status was collected.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// OutputDone is closed once both output streams reached end of file. That
// can be later than Done when descendants inherited the pipes.
func (h *Handle) OutputDone() <-chan struct{} {
	return h.outputDone
}

// Result blocks until the child exits. A nil error means the exit status was
// observed, regardless of whether the child exited with a non-zero code.
func (h *Handle) Result() (*os.ProcessState, error) {
	<-h.done
	return h.state, h.err
}

// TryResult reports the exit status without blocking. ok is false while the
// child is still running.
func (h *Handle) TryResult() (state *os.ProcessState, err error, ok bool) {
	select {
	case <-h.done:
		return h.state, h.err, true
	default:
		return nil, nil, false
	}
}

// kill terminates only the direct child.
func (h *Handle) kill() error {
	if h.cmd.Process == nil {
		return errors.New("process not started")
	}
	return h.cmd.Process.Kill()
}

func (h *Handle) finish(state *os.ProcessState, err error) {
	h.once.Do(func() {
		h.state = state
		h.err = classifyWaitError(err)
		close(h.done)
	})
}

// classifyWaitError separates failures to observe the exit status from a child
// that simply exited with a non-zero code.
func classifyWaitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return fmt.Errorf("wait for child process: %w", err)
}

// DescribeState renders an exit status the way it is logged.
func DescribeState(state *os.ProcessState) string {
	if state == nil {
		return "unknown"
	}
	return state.String()
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// streamLines forwards each line read from r until end of file. A trailing
// line without a newline is forwarded too.
func streamLines(r io.ReadCloser, source string, emit func(runtime.LogEntry), wg *sync.WaitGroup) {
	defer wg.Done()
	defer r.Close()
	if emit == nil {
		_, _ = io.Copy(io.Discard, r)
		return
	}
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			emit(runtime.LogEntry{Message: strings.TrimRight(line, "\r\n"), Source: source})
		}
		if err != nil {
			return
		}
	}
}
