package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigLintSuccess(t *testing.T) {
	manifest := configManifest(
		"listen: 127.0.0.1:12345",
		"timeoutSeconds: 3",
		"child:",
		"  command: /usr/bin/worker",
		"  args: [--verbose]",
	)
	stdout, stderr, path, err := runConfigLint(t, manifest)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	want := fmt.Sprintf("%s: OK\n", path)
	if stdout != want {
		t.Fatalf("unexpected stdout: got %q want %q", stdout, want)
	}
	if stderr != "" {
		t.Fatalf("unexpected stderr output: %q", stderr)
	}
}

func TestConfigLintSchemaViolation(t *testing.T) {
	manifest := configManifest(
		"listen: 127.0.0.1:12345",
		"timeoutSeconds: fast",
	)
	stdout, stderr, path, err := runConfigLint(t, manifest)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if stdout != "" {
		t.Fatalf("expected empty stdout, got %q", stdout)
	}
	if !strings.Contains(stderr, filepath.Base(path)) {
		t.Fatalf("stderr does not mention config path: %q", stderr)
	}
	if !strings.Contains(stderr, "timeoutSeconds") {
		t.Fatalf("stderr does not mention the invalid field: %q", stderr)
	}
}

func TestConfigLintInvalidListenPort(t *testing.T) {
	stdout, stderr, _, err := runConfigLint(t, configManifest("listen: 0.0.0.0:99999"))
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if stdout != "" {
		t.Fatalf("expected empty stdout, got %q", stdout)
	}
	if !strings.Contains(stderr, "listen") {
		t.Fatalf("stderr does not mention listen: %q", stderr)
	}
}

func TestConfigLintRequiresFile(t *testing.T) {
	cmd := NewRootCmd()
	errBuf := &bytes.Buffer{}
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{"config", "lint"})

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error without --config")
	}
	if !strings.Contains(errBuf.String(), "--config") {
		t.Fatalf("expected hint about --config, got %q", errBuf.String())
	}
}

func runConfigLint(t *testing.T, manifest string) (stdout, stderr, path string, err error) {
	t.Helper()
	dir := t.TempDir()
	path = filepath.Join(dir, "beatguard.yaml")
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := NewRootCmd()
	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{"config", "lint", "--config", path})

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), path, err
}

func configManifest(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}
