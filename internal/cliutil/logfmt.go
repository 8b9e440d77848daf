package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/Paintersrp/beatguard/internal/engine"
	"github.com/Paintersrp/beatguard/internal/runtime"
)

// LogRecord represents a structured log event ready for JSON encoding.
type LogRecord struct {
	Timestamp time.Time `json:"ts"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
	Source    string    `json:"source"`
	Reason    string    `json:"reason,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Pid       int       `json:"pid,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// NewLogRecord converts an engine event into a structured log record, masking
// credentials with r.
func NewLogRecord(event engine.Event, runID string, r *Redactor) LogRecord {
	level := event.Level
	if level == "" {
		if inferred := inferLogLevel(event.Message); inferred != "" {
			level = inferred
		} else {
			level = "info"
		}
	}
	source := event.Source
	if source == "" {
		source = runtime.LogSourceSystem
	}
	record := LogRecord{
		Timestamp: event.Timestamp,
		Level:     level,
		Message:   r.Redact(event.Message),
		Source:    source,
		Reason:    event.Reason,
		RunID:     runID,
		Pid:       event.Pid,
	}
	if event.Err != nil {
		record.Error = r.Redact(event.Err.Error())
	}
	return record
}

var levelTokenPattern = regexp.MustCompile(`(?i)\b(error|warn|info)\b`)

func inferLogLevel(message string) string {
	matches := levelTokenPattern.FindStringSubmatch(message)
	if len(matches) < 2 {
		return ""
	}
	switch strings.ToLower(matches[1]) {
	case "error":
		return "error"
	case "warn":
		return "warn"
	case "info":
		return "info"
	default:
		return ""
	}
}

// EncodeLogEvent encodes a log event to JSON, reporting errors to stderr if needed.
func EncodeLogEvent(enc *json.Encoder, stderr io.Writer, event engine.Event, runID string, r *Redactor) {
	if enc == nil {
		return
	}
	record := NewLogRecord(event, runID, r)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode log: %v\n", err)
	}
}

// WriteTextEvent renders a log event as a single human readable line.
// Supervisor messages are printed as is; child output is prefixed with its
// stream so it can be told apart.
func WriteTextEvent(w io.Writer, event engine.Event, r *Redactor) {
	if w == nil {
		return
	}
	record := NewLogRecord(event, "", r)
	var b strings.Builder
	switch record.Source {
	case runtime.LogSourceStdout, runtime.LogSourceStderr:
		fmt.Fprintf(&b, "[%s] %s", record.Source, record.Message)
	default:
		if record.Level == "error" || record.Level == "warn" {
			fmt.Fprintf(&b, "%s: ", strings.ToUpper(record.Level))
		}
		b.WriteString(record.Message)
	}
	b.WriteByte('\n')
	_, _ = io.WriteString(w, b.String())
}
