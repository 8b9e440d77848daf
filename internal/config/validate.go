package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/docker/go-connections/nat"
)

var (
	ErrInvalidTimeout   = errors.New("timeout must be between 1 and 31536000 seconds")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrMissingCommand   = errors.New("child command is required")
	ErrInvalidLogFormat = errors.New("invalid log format")
)

// Validate checks the resolved configuration before anything is started.
func (c Config) Validate() error {
	var errs []error
	if c.TimeoutSeconds <= 0 || c.TimeoutSeconds > MaxTimeoutSeconds {
		errs = append(errs, fmt.Errorf("%w (got %d)", ErrInvalidTimeout, c.TimeoutSeconds))
	}
	if err := ValidateAddr(c.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("listen: %w", err))
	}
	if strings.TrimSpace(c.Child.Command) == "" {
		errs = append(errs, ErrMissingCommand)
	}
	if c.MetricsAddr != "" {
		if err := ValidateAddr(c.MetricsAddr); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}
	if err := validateLogFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// validate checks the parts of a file that do not depend on flags or the
// environment. The child command may still come from the command line.
func (f *File) validate() error {
	var errs []error
	if f.TimeoutSeconds != nil && (*f.TimeoutSeconds <= 0 || *f.TimeoutSeconds > MaxTimeoutSeconds) {
		errs = append(errs, fmt.Errorf("timeoutSeconds: %w (got %d)", ErrInvalidTimeout, *f.TimeoutSeconds))
	}
	if f.Listen != "" {
		if err := ValidateAddr(f.Listen); err != nil {
			errs = append(errs, fmt.Errorf("listen: %w", err))
		}
	}
	if f.Metrics.Addr != "" {
		if err := ValidateAddr(f.Metrics.Addr); err != nil {
			errs = append(errs, fmt.Errorf("metrics.addr: %w", err))
		}
	}
	if f.Logging.Format != "" {
		if err := validateLogFormat(f.Logging.Format); err != nil {
			errs = append(errs, fmt.Errorf("logging.format: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ValidateAddr checks that addr is host:port with a port in 0-65535. An empty
// host means all interfaces.
func ValidateAddr(addr string) error {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidAddress, addr, err)
	}
	if strings.TrimSpace(port) == "" {
		return fmt.Errorf("%w %q: port must be specified", ErrInvalidAddress, addr)
	}
	if _, err := nat.ParsePort(port); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidAddress, addr, err)
	}
	if strings.ContainsAny(host, " \t") {
		return fmt.Errorf("%w %q: host contains whitespace", ErrInvalidAddress, addr)
	}
	return nil
}

func validateLogFormat(format string) error {
	switch format {
	case LogFormatAuto, LogFormatText, LogFormatJSON:
		return nil
	default:
		return fmt.Errorf("%w %q: expected one of auto, text, json", ErrInvalidLogFormat, format)
	}
}
