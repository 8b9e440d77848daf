package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables that override file values.
const (
	EnvListenAddr  = "BEATGUARD_LISTEN_ADDR"
	EnvTimeoutSecs = "BEATGUARD_TIMEOUT_SECS"
	EnvMetricsAddr = "BEATGUARD_METRICS_ADDR"
	EnvLogFormat   = "BEATGUARD_LOG_FORMAT"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// ApplyEnv overlays BEATGUARD_* variables onto c. A nil lookup reads the
// process environment.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvListenAddr); ok {
		c.ListenAddr = v
	}
	if v, ok := get(EnvTimeoutSecs); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: parse %q: %w", EnvTimeoutSecs, v, err)
		}
		c.TimeoutSeconds = n
	}
	if v, ok := get(EnvMetricsAddr); ok {
		c.MetricsAddr = v
	}
	if v, ok := get(EnvLogFormat); ok {
		c.LogFormat = strings.ToLower(v)
	}
	return nil
}
