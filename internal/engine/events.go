package engine

import (
	"time"

	"github.com/Paintersrp/beatguard/internal/runtime"
)

// EventType captures high level lifecycle notifications emitted by the
// monitor and the supervisor.
type EventType string

const (
	EventTypeStarting  EventType = "starting"
	EventTypeStarted   EventType = "started"
	EventTypeListening EventType = "listening"
	EventTypeCheck     EventType = "check"
	EventTypeStopping  EventType = "stopping"
	EventTypeStopped   EventType = "stopped"
	EventTypeExited    EventType = "exited"
	EventTypeLog       EventType = "log"
	EventTypeError     EventType = "error"
)

// Event represents a single lifecycle or log notification.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Message   string
	Level     string
	Source    string
	Reason    string
	Pid       int
	Err       error
}

const (
	ReasonLaunch          = "launch"
	ReasonBindFailed      = "bind_failed"
	ReasonListenerStopped = "listener_stopped"
	ReasonShutdown        = "shutdown"
	ReasonChildExit       = "child_exit"
	ReasonWaitError       = "wait_error"
	ReasonListenerFailed  = "listener_failed"
	ReasonTimeout         = "heartbeat_timeout"
	ReasonHeartbeatLate   = "heartbeat_during_sleep"
	ReasonTermination     = "termination"
	ReasonStatusServer    = "status_server"
	ReasonOutputDropped   = "output_dropped"
)

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(evt).
func (f SinkFunc) Emit(evt Event) {
	f(evt)
}

func sendEvent(sink Sink, t EventType, level, message, reason string, err error) {
	if sink == nil {
		return
	}
	if level == "" {
		level = "info"
	}
	sink.Emit(Event{
		Timestamp: time.Now(),
		Type:      t,
		Message:   message,
		Level:     level,
		Source:    runtime.LogSourceSystem,
		Reason:    reason,
		Err:       err,
	})
}

// logEntryFunc converts runtime log entries (child output and messages from
// the process and shutdown packages) into log events on sink.
func logEntryFunc(sink Sink, reason string) func(runtime.LogEntry) {
	return func(entry runtime.LogEntry) {
		if sink == nil {
			return
		}
		source := entry.Source
		if source == "" {
			source = runtime.LogSourceSystem
		}
		sink.Emit(Event{
			Timestamp: time.Now(),
			Type:      EventTypeLog,
			Message:   entry.Message,
			Level:     entry.Level,
			Source:    source,
			Reason:    reason,
		})
	}
}
