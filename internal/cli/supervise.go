package cli

import (
	stdcontext "context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/beatguard/internal/cliutil"
	"github.com/Paintersrp/beatguard/internal/config"
	"github.com/Paintersrp/beatguard/internal/engine"
	"github.com/Paintersrp/beatguard/internal/runtime"
)

func (c *context) runSupervise(cmd *cobra.Command, args []string) error {
	cfg, err := c.resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	sink := newLogSink(c.resolveLogFormat(cfg.LogFormat, cmd.OutOrStdout()), runID, cliutil.NewRedactor(cfg.Child.Env), cmd.OutOrStdout(), cmd.ErrOrStderr())

	emit(sink, engine.EventTypeStarting, "info", fmt.Sprintf("Listening for UDP heartbeats on: %s", cfg.ListenAddr))
	emit(sink, engine.EventTypeStarting, "info", fmt.Sprintf("Timeout set to: %d seconds", cfg.TimeoutSeconds))

	out, err := c.supervise(cmd.Context(), engine.Config{
		Child:      cfg.Child,
		ListenAddr: cfg.ListenAddr,
		Timeout:    cfg.Timeout(),
		StatusAddr: cfg.MetricsAddr,
		RunID:      runID,
	}, sink, c.exit)
	if err != nil {
		return err
	}

	c.exitCode = out.ExitCode()
	emit(sink, engine.EventTypeExited, exitLevel(c.exitCode), fmt.Sprintf("Exiting supervisor (%s) with code %d.", out.Kind, c.exitCode))
	return nil
}

// resolveConfig layers defaults, the config file, BEATGUARD_* variables and
// explicitly set flags, in increasing precedence.
func (c *context) resolveConfig(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg := config.Default()
	if c.opts.configFile != "" {
		doc, err := config.Load(c.opts.configFile)
		if err != nil {
			return cfg, err
		}
		cfg.ApplyFile(doc)
	}
	if err := cfg.ApplyEnv(c.lookupEnv); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("listen-addr") {
		cfg.ListenAddr = c.opts.listenAddr
	}
	if flags.Changed("timeout-secs") {
		cfg.TimeoutSeconds = c.opts.timeoutSecs
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = c.opts.metricsAddr
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = strings.ToLower(c.opts.logFormat)
	}
	if len(args) > 0 {
		cfg.Child.Command = args[0]
		cfg.Child.Args = append([]string(nil), args[1:]...)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// resolveLogFormat maps auto to text on a terminal and JSON otherwise.
func (c *context) resolveLogFormat(format string, out io.Writer) string {
	if format != config.LogFormatAuto {
		return format
	}
	if f, ok := out.(*os.File); ok && c.isTerminal != nil && c.isTerminal(int(f.Fd())) {
		return config.LogFormatText
	}
	return config.LogFormatJSON
}

func runSupervisor(ctx stdcontext.Context, cfg engine.Config, sink engine.Sink, exit func(int)) (engine.Outcome, error) {
	sup, err := engine.New(cfg, sink, exit)
	if err != nil {
		return engine.Outcome{}, err
	}
	return sup.Run(ctx)
}

// logSink writes engine events either as JSON lines on stdout or as plain
// text, with warnings, errors and child stderr on stderr.
type logSink struct {
	mu       sync.Mutex
	format   string
	runID    string
	redactor *cliutil.Redactor
	stdout   io.Writer
	stderr   io.Writer
	enc      *json.Encoder
}

func newLogSink(format, runID string, redactor *cliutil.Redactor, stdout, stderr io.Writer) *logSink {
	return &logSink{
		format:   format,
		runID:    runID,
		redactor: redactor,
		stdout:   stdout,
		stderr:   stderr,
		enc:      json.NewEncoder(stdout),
	}
}

func (s *logSink) Emit(evt engine.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == config.LogFormatJSON {
		cliutil.EncodeLogEvent(s.enc, s.stderr, evt, s.runID, s.redactor)
		return
	}
	if evt.Level == "debug" {
		return
	}
	w := s.stdout
	if evt.Source == runtime.LogSourceStderr || evt.Level == "warn" || evt.Level == "error" {
		w = s.stderr
	}
	cliutil.WriteTextEvent(w, evt, s.redactor)
}

func emit(sink engine.Sink, t engine.EventType, level, msg string) {
	sink.Emit(engine.Event{
		Timestamp: time.Now(),
		Type:      t,
		Message:   msg,
		Level:     level,
		Source:    runtime.LogSourceSystem,
	})
}

func exitLevel(code int) string {
	if code == engine.ExitCodeOK {
		return "info"
	}
	return "error"
}
