package config

import (
	"time"

	"github.com/Paintersrp/beatguard/internal/runtime"
)

const (
	DefaultListenAddr     = "0.0.0.0:12345"
	DefaultTimeoutSeconds = 5
	// MaxTimeoutSeconds caps the timeout at one year, well inside the
	// time.Duration range.
	MaxTimeoutSeconds = 365 * 24 * 60 * 60

	LogFormatAuto = "auto"
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// File mirrors the beatguard.yaml document structure.
type File struct {
	Listen         string      `yaml:"listen"`
	TimeoutSeconds *int        `yaml:"timeoutSeconds"`
	Child          ChildSpec   `yaml:"child"`
	Metrics        MetricsSpec `yaml:"metrics"`
	Logging        LoggingSpec `yaml:"logging"`
}

// ChildSpec describes the supervised binary.
type ChildSpec struct {
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	EnvFromFile string            `yaml:"envFromFile"`
	Workdir     string            `yaml:"workdir"`
}

// MetricsSpec configures the status and metrics server.
type MetricsSpec struct {
	Addr string `yaml:"addr"`
}

// LoggingSpec configures supervisor log output.
type LoggingSpec struct {
	Format string `yaml:"format"`
}

// Config is the fully resolved supervisor configuration.
type Config struct {
	ListenAddr     string
	TimeoutSeconds int
	Child          runtime.Spec
	MetricsAddr    string
	LogFormat      string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		ListenAddr:     DefaultListenAddr,
		TimeoutSeconds: DefaultTimeoutSeconds,
		LogFormat:      LogFormatAuto,
	}
}

// Timeout returns the heartbeat timeout as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ApplyFile overlays the values present in f onto c.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	if f.Listen != "" {
		c.ListenAddr = f.Listen
	}
	if f.TimeoutSeconds != nil {
		c.TimeoutSeconds = *f.TimeoutSeconds
	}
	if f.Child.Command != "" {
		c.Child.Command = f.Child.Command
	}
	if len(f.Child.Args) > 0 {
		c.Child.Args = append([]string(nil), f.Child.Args...)
	}
	if len(f.Child.Env) > 0 {
		c.Child.Env = make(map[string]string, len(f.Child.Env))
		for k, v := range f.Child.Env {
			c.Child.Env[k] = v
		}
	}
	if f.Child.Workdir != "" {
		c.Child.Workdir = f.Child.Workdir
	}
	if f.Metrics.Addr != "" {
		c.MetricsAddr = f.Metrics.Addr
	}
	if f.Logging.Format != "" {
		c.LogFormat = f.Logging.Format
	}
}
