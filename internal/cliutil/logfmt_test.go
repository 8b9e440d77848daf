package cliutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Paintersrp/beatguard/internal/engine"
	"github.com/Paintersrp/beatguard/internal/runtime"
)

func TestEncodeLogEventInfersLevel(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected string
	}{
		{name: "errorToken", message: "[ERROR] failed to start", expected: "error"},
		{name: "warnToken", message: "WARN worker requires attention", expected: "warn"},
		{name: "infoToken", message: "info: worker ready", expected: "info"},
		{name: "noTokenDefaults", message: "worker started", expected: "info"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			var errBuf bytes.Buffer

			event := engine.Event{
				Timestamp: time.Unix(0, 0),
				Message:   tc.message,
				Source:    runtime.LogSourceStdout,
			}

			EncodeLogEvent(json.NewEncoder(&out), &errBuf, event, "run-1", nil)

			if errBuf.Len() != 0 {
				t.Fatalf("unexpected stderr output: %s", errBuf.String())
			}

			var record LogRecord
			if err := json.Unmarshal(out.Bytes(), &record); err != nil {
				t.Fatalf("failed to unmarshal log record: %v", err)
			}

			if record.Level != tc.expected {
				t.Fatalf("expected level %q, got %q", tc.expected, record.Level)
			}
			if record.RunID != "run-1" || record.Source != runtime.LogSourceStdout {
				t.Fatalf("unexpected record metadata: %+v", record)
			}
		})
	}
}

func TestEncodeLogEventKeepsProvidedLevel(t *testing.T) {
	var out bytes.Buffer
	var errBuf bytes.Buffer

	event := engine.Event{
		Timestamp: time.Unix(0, 0),
		Message:   "custom level",
		Level:     "debug",
	}

	EncodeLogEvent(json.NewEncoder(&out), &errBuf, event, "", nil)

	if errBuf.Len() != 0 {
		t.Fatalf("unexpected stderr output: %s", errBuf.String())
	}

	var record LogRecord
	if err := json.Unmarshal(out.Bytes(), &record); err != nil {
		t.Fatalf("failed to unmarshal log record: %v", err)
	}

	if record.Level != "debug" {
		t.Fatalf("expected level %q, got %q", "debug", record.Level)
	}
	if record.Source != runtime.LogSourceSystem {
		t.Fatalf("expected default source %q, got %q", runtime.LogSourceSystem, record.Source)
	}
	if strings.Contains(out.String(), `"run_id"`) {
		t.Fatalf("expected empty run id to be omitted: %s", out.String())
	}
}

func TestEncodeLogEventCarriesReasonPidAndError(t *testing.T) {
	var out bytes.Buffer
	event := engine.Event{
		Timestamp: time.Unix(0, 0),
		Message:   "Timeout detected!",
		Level:     "error",
		Reason:    engine.ReasonTimeout,
		Pid:       321,
		Err:       errors.New("boom"),
	}
	EncodeLogEvent(json.NewEncoder(&out), &bytes.Buffer{}, event, "run-2", nil)

	var record LogRecord
	if err := json.Unmarshal(out.Bytes(), &record); err != nil {
		t.Fatalf("failed to unmarshal log record: %v", err)
	}
	if record.Reason != engine.ReasonTimeout || record.Pid != 321 || record.Error != "boom" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestNewLogRecordRedactsChildEnvSecrets(t *testing.T) {
	redactor := NewRedactor(map[string]string{
		"DB_PASSWORD": "hunter22",
		"API_TOKEN":   "tok-abcdef",
		"LOG_LEVEL":   "debug-verbose",
		"SHORT_TOKEN": "on",
	})
	event := engine.Event{
		Timestamp: time.Unix(0, 0),
		Message:   "connecting as admin/hunter22 with tok-abcdef at debug-verbose",
		Source:    runtime.LogSourceStdout,
		Err:       errors.New("auth failed for hunter22"),
	}

	record := NewLogRecord(event, "", redactor)

	if strings.Contains(record.Message, "hunter22") || strings.Contains(record.Message, "tok-abcdef") {
		t.Fatalf("expected env secrets to be redacted, got %q", record.Message)
	}
	if !strings.Contains(record.Message, "debug-verbose") {
		t.Fatalf("expected non-secret env values to be kept, got %q", record.Message)
	}
	if record.Error != "auth failed for [redacted]" {
		t.Fatalf("expected error to be redacted, got %q", record.Error)
	}
}

func TestRedactorGenericPatterns(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "assignment", in: `DB_PASSWORD="super-secret" user=app`, want: `DB_PASSWORD="[redacted]" user=app`},
		{name: "colon", in: "api_key: abc123", want: "api_key: [redacted]"},
		{name: "flagWithSpace", in: "Starting child process: /bin/app --db-password s3cret --port 80", want: "Starting child process: /bin/app --db-password [redacted] --port 80"},
		{name: "flagWithEquals", in: "/bin/app --token=s3cret", want: "/bin/app --token=[redacted]"},
		{name: "bearer", in: "Authorization: Bearer eyJhbGciOi.x.y", want: "Authorization: Bearer [redacted]"},
		{name: "plain", in: "Timeout set to: 5 seconds", want: "Timeout set to: 5 seconds"},
	}
	var redactor *Redactor
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := redactor.Redact(tc.in); got != tc.want {
				t.Fatalf("Redact(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNewLogRecordInfersStderrLevel(t *testing.T) {
	record := NewLogRecord(engine.Event{Message: "ERROR: disk full", Source: runtime.LogSourceStderr}, "", nil)
	if record.Level != "error" {
		t.Fatalf("expected error level from stderr token, got %q", record.Level)
	}
	record = NewLogRecord(engine.Event{Message: "compiling", Source: runtime.LogSourceStderr}, "", nil)
	if record.Level != "info" {
		t.Fatalf("expected default level for untagged stderr line, got %q", record.Level)
	}
}

func TestWriteTextEvent(t *testing.T) {
	var out bytes.Buffer
	WriteTextEvent(&out, engine.Event{Message: "Child process launched (PID: 7).", Level: "info"}, nil)
	WriteTextEvent(&out, engine.Event{Message: "Failed to bind UDP socket", Level: "error"}, nil)
	WriteTextEvent(&out, engine.Event{Message: "hello", Source: runtime.LogSourceStderr}, nil)

	want := "Child process launched (PID: 7).\nERROR: Failed to bind UDP socket\n[stderr] hello\n"
	if out.String() != want {
		t.Fatalf("unexpected text output:\n%q\nwant\n%q", out.String(), want)
	}
}
