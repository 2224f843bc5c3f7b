package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateService(); err != nil {
		return err
	}
	if err := c.validateAggregator(); err != nil {
		return err
	}
	if c.Publisher.Buffer < 0 {
		return errors.New("publisher.buffer must be zero or positive")
	}
	return c.validateLogging()
}

func (c *Config) validateService() error {
	name := c.Service.Name
	if name == "." || name == ".." || strings.ContainsRune(name, '/') || name != filepath.Base(name) {
		return fmt.Errorf("service.name %q must be a single path element", c.Service.Name)
	}
	if c.Service.PID < 0 {
		return errors.New("service.pid must be zero or positive")
	}
	return nil
}

func (c *Config) validateAggregator() error {
	if c.Aggregator.PollIntervalMillis < 0 {
		return errors.New("aggregator.poll_interval_ms must be positive")
	}
	if c.Aggregator.DialTimeoutMillis < 0 {
		return errors.New("aggregator.dial_timeout_ms must be positive")
	}
	if c.Aggregator.MaxFramesPerCycle < 0 {
		return errors.New("aggregator.max_frames_per_cycle must be positive")
	}
	switch c.Aggregator.Output {
	case OutputAuto, OutputRaw, OutputPretty:
	default:
		return fmt.Errorf("aggregator.output: unsupported value %q", c.Aggregator.Output)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
