package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "beatguard.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	workdir := filepath.Join(dir, "app")
	if err := os.Mkdir(workdir, 0o755); err != nil {
		t.Fatalf("mkdir workdir: %v", err)
	}
	envFile := filepath.Join(dir, "child.env")
	if err := os.WriteFile(envFile, []byte("# comment\nTOKEN=${FILE_SECRET}\nexport MODE='file'\nQUOTED=\"a b\"\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("FILE_SECRET", "alpha")
	t.Setenv("HEARTBEAT_PORT", "23456")
	t.Setenv("TIMEOUT", "9")

	path := writeConfig(t, dir, `listen: 127.0.0.1:${HEARTBEAT_PORT}
timeoutSeconds: ${TIMEOUT}
child:
  command: /usr/bin/worker
  args: ["--queue", "${QUEUE:-default}"]
  env:
    MODE: inline
  envFromFile: ./child.env
  workdir: ./app
metrics:
  addr: 127.0.0.1:9464
logging:
  format: json
`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if doc.Listen != "127.0.0.1:23456" {
		t.Fatalf("unexpected listen address %q", doc.Listen)
	}
	if doc.TimeoutSeconds == nil || *doc.TimeoutSeconds != 9 {
		t.Fatalf("expected timeoutSeconds 9, got %v", doc.TimeoutSeconds)
	}
	if got := strings.Join(doc.Child.Args, " "); got != "--queue default" {
		t.Fatalf("unexpected args %q", got)
	}
	if doc.Child.Workdir != workdir {
		t.Fatalf("unexpected workdir: got %q want %q", doc.Child.Workdir, workdir)
	}
	if doc.Child.Env["TOKEN"] != "alpha" || doc.Child.Env["QUOTED"] != "a b" {
		t.Fatalf("unexpected env from file: %v", doc.Child.Env)
	}
	if doc.Child.Env["MODE"] != "inline" {
		t.Fatalf("expected inline env to override the file, got %q", doc.Child.Env["MODE"])
	}

	cfg := Default()
	cfg.ApplyFile(doc)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("resolved config invalid: %v", err)
	}
	if cfg.Timeout() != 9*time.Second || cfg.MetricsAddr != "127.0.0.1:9464" || cfg.LogFormat != LogFormatJSON {
		t.Fatalf("unexpected resolved config: %+v", cfg)
	}
	if cfg.Child.Command != "/usr/bin/worker" {
		t.Fatalf("unexpected command %q", cfg.Child.Command)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "listen: 127.0.0.1:1\nretries: 3\n")
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected error for unknown field")
	}
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected schema error, got %v", err)
	}
	if len(schemaErr.Problems) != 1 || schemaErr.Problems[0].Field != "config" || !strings.Contains(schemaErr.Problems[0].Message, "retries") {
		t.Fatalf("expected a single problem naming retries, got %+v", schemaErr.Problems)
	}
}

func TestLoadSchemaErrorNamesOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "timeoutSeconds: soon\nlogging:\n  format: xml\n")
	_, err := Load(path)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected schema error, got %v", err)
	}
	if len(schemaErr.Problems) != 2 {
		t.Fatalf("expected two problems, got %+v", schemaErr.Problems)
	}
	if schemaErr.Problems[0].Field != "logging.format" || schemaErr.Problems[1].Field != "timeoutSeconds" {
		t.Fatalf("expected problems sorted by field, got %+v", schemaErr.Problems)
	}
	msg := err.Error()
	for _, want := range []string{"--log-format, " + EnvLogFormat, "--timeout-secs, " + EnvTimeoutSecs} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in error, got %v", want, msg)
		}
	}
}

func TestLoadRejectsOversizedTimeout(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "timeoutSeconds: 18500000000\n")
	_, err := Load(path)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) || schemaErr.Problems[0].Field != "timeoutSeconds" {
		t.Fatalf("expected timeoutSeconds schema error, got %v", err)
	}
}

func TestLoadSchemaReportsLocation(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "child:\n  args: [1, \"ok\"]\n")
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected schema error")
	}
	if !strings.Contains(err.Error(), "child.args[0]") {
		t.Fatalf("expected error to point at child.args[0], got %v", err)
	}
}

func TestLoadRejectsZeroTimeout(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "timeoutSeconds: 0\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for zero timeout")
	}
}

func TestLoadRejectsInvalidListenPort(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "listen: 0.0.0.0:70000\n")
	_, err := Load(path)
	if !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "child:\n  envFromFile: ./missing.env\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "child.envFromFile") {
		t.Fatalf("expected env file error, got %v", err)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	cfg := Default()
	cfg.ApplyFile(doc)
	if cfg.ListenAddr != DefaultListenAddr || cfg.TimeoutSeconds != DefaultTimeoutSeconds {
		t.Fatalf("expected defaults to survive an empty file, got %+v", cfg)
	}
}

func TestExpandEnvWithDefault(t *testing.T) {
	t.Setenv("SET_VAR", "value")
	t.Setenv("EMPTY_VAR", "")

	cases := map[string]string{
		"${SET_VAR}":             "value",
		"$SET_VAR/suffix":        "value/suffix",
		"${UNSET_VAR:-fallback}": "fallback",
		"${EMPTY_VAR:-fallback}": "fallback",
		"${SET_VAR:-fallback}":   "value",
		"plain":                  "plain",
	}
	for input, want := range cases {
		if got := expandEnvWithDefault(input); got != want {
			t.Fatalf("expandEnvWithDefault(%q)=%q, want %q", input, got, want)
		}
	}
}
