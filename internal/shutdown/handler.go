package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Paintersrp/beatguard/internal/runtime"
	"github.com/Paintersrp/beatguard/internal/runtime/process"
)

const (
	// DefaultGracePeriod is how long the handler lets the monitor finish
	// before it exits the supervisor itself.
	DefaultGracePeriod = 500 * time.Millisecond
	// ExitCodeInterrupted is used when the signal number is unknown.
	ExitCodeInterrupted = 130
)

// Handler waits for the first termination request, fires the token and then
// exits the supervisor with a signal-derived status.
type Handler struct {
	token *Token
	pid   int
	grace time.Duration
	log   func(runtime.LogEntry)

	exit    func(int)
	kill    func(int) error
	notify  func(chan<- os.Signal, ...os.Signal)
	stop    func(chan<- os.Signal)
	sleep   func(time.Duration)
	signals []os.Signal
}

// NewHandler builds a handler for the child whose process group is pid. exit
// terminates the supervisor; pass os.Exit in production.
func NewHandler(token *Token, pid int, exit func(int), log func(runtime.LogEntry)) *Handler {
	if exit == nil {
		exit = os.Exit
	}
	return &Handler{
		token:   token,
		pid:     pid,
		grace:   DefaultGracePeriod,
		log:     log,
		exit:    exit,
		kill:    process.KillGroup,
		notify:  signal.Notify,
		stop:    signal.Stop,
		sleep:   time.Sleep,
		signals: terminationSignals,
	}
}

// Run blocks until a termination signal arrives or ctx is cancelled. It
// handles at most one signal.
func (h *Handler) Run(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	h.notify(sigCh, h.signals...)
	defer h.stop(sigCh)

	select {
	case <-ctx.Done():
		return
	case sig := <-sigCh:
		h.handle(sig)
	}
}

func (h *Handler) handle(sig os.Signal) {
	h.emit("warn", fmt.Sprintf("Received %s, requesting shutdown.", sig))

	if !h.token.Fire() {
		h.emit("warn", fmt.Sprintf("Monitor already stopped, killing process group %d directly.", h.pid))
		if err := h.kill(h.pid); err != nil {
			h.emit("error", fmt.Sprintf("Direct kill of process group %d failed: %v", h.pid, err))
		}
	}

	h.sleep(h.grace)
	code := ExitCode(sig)
	h.emit("info", fmt.Sprintf("Exiting supervisor after %s with code %d.", sig, code))
	h.exit(code)
}

func (h *Handler) emit(level, msg string) {
	if h.log == nil {
		return
	}
	h.log(runtime.LogEntry{Message: msg, Source: runtime.LogSourceSystem, Level: level})
}

// ExitCode maps a signal to the conventional 128+n status. SIGINT yields 130.
func ExitCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok && int(s) > 0 {
		return 128 + int(s)
	}
	return ExitCodeInterrupted
}
