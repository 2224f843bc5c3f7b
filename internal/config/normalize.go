package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeService(); err != nil {
		return err
	}
	if err := c.normalizeAggregator(); err != nil {
		return err
	}
	if c.Publisher.Buffer == 0 {
		c.Publisher.Buffer = defaultPublisherBuffer
	}
	c.normalizeFilter()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeService() error {
	c.Service.Name = strings.TrimSpace(c.Service.Name)
	if c.Service.Name == "" {
		c.Service.Name = defaultServiceName
	}
	var err error
	if c.Service.RendezvousDir, err = expandPath(strings.TrimSpace(c.Service.RendezvousDir)); err != nil {
		return fmt.Errorf("service.rendezvous_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAggregator() error {
	if c.Aggregator.PollIntervalMillis == 0 {
		c.Aggregator.PollIntervalMillis = defaultPollIntervalMillis
	}
	if c.Aggregator.DialTimeoutMillis == 0 {
		c.Aggregator.DialTimeoutMillis = defaultDialTimeoutMillis
	}
	if c.Aggregator.MaxFramesPerCycle == 0 {
		c.Aggregator.MaxFramesPerCycle = defaultMaxFramesPerCycle
	}
	c.Aggregator.Output = strings.ToLower(strings.TrimSpace(c.Aggregator.Output))
	if c.Aggregator.Output == "" {
		c.Aggregator.Output = defaultOutputMode
	}
	var err error
	if c.Aggregator.RecordPath, err = expandPath(strings.TrimSpace(c.Aggregator.RecordPath)); err != nil {
		return fmt.Errorf("aggregator.record_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeFilter() {
	if len(c.Filter.Whitelist) == 0 {
		c.Filter.Whitelist = ParseList(os.Getenv("GNPROVIDER"))
	}
	if len(c.Filter.Blacklist) == 0 {
		c.Filter.Blacklist = ParseList(os.Getenv("GNPROVIDER_BL"))
	}
	if len(c.Filter.Features) == 0 {
		c.Filter.Features = ParseList(os.Getenv("GNFEATURES"))
	}
	c.Filter.Whitelist = compactList(c.Filter.Whitelist)
	c.Filter.Blacklist = compactList(c.Filter.Blacklist)
	c.Filter.Features = compactList(c.Filter.Features)
	if !c.Filter.Verbose && os.Getenv("FILTERMSVERBOSE") != "" {
		c.Filter.Verbose = true
	}
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv("FILTERMS_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}

// ParseList converts the environment list syntax into a slice. A bare word
// yields a single element; "[a,b]" yields its comma separated elements. Empty
// input, "[]" and unterminated brackets yield an empty list.
func ParseList(value string) []string {
	if value == "" {
		return nil
	}
	if value[0] != '[' {
		return []string{value}
	}
	if len(value) < 3 || value[len(value)-1] != ']' {
		return nil
	}
	return compactList(strings.Split(value[1:len(value)-1], ","))
}

func compactList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
