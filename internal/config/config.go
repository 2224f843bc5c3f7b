package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Service identifies the rendezvous namespace shared by publishers and aggregators.
type Service struct {
	Name          string `toml:"name"`
	RendezvousDir string `toml:"rendezvous_dir"`
	PID           int    `toml:"pid"`
}

// Aggregator contains timing and output settings for the aggregating consumer.
type Aggregator struct {
	PollIntervalMillis int    `toml:"poll_interval_ms"`
	DialTimeoutMillis  int    `toml:"dial_timeout_ms"`
	MaxFramesPerCycle  int    `toml:"max_frames_per_cycle"`
	RecordPath         string `toml:"record_path"`
	Output             string `toml:"output"`
}

// Publisher contains settings for publisher endpoints.
type Publisher struct {
	// Buffer is the number of signals queued while no consumer is attached.
	Buffer int `toml:"buffer"`
}

// Filter contains the provider whitelist/blacklist strategy inputs.
type Filter struct {
	Whitelist []string `toml:"whitelist"`
	Blacklist []string `toml:"blacklist"`
	Features  []string `toml:"features"`
	Verbose   bool     `toml:"verbose"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for filterms.
//
// Configuration sections by subsystem:
//   - Service: rendezvous namespace and publisher identity
//   - Aggregator: poll cadence, dial timeout, history database, output mode
//   - Publisher: outbound signal buffering
//   - Filter: provider whitelist, blacklist and required CPU features
//   - Logging: log format and level
type Config struct {
	Service    Service    `toml:"service"`
	Aggregator Aggregator `toml:"aggregator"`
	Publisher  Publisher  `toml:"publisher"`
	Filter     Filter     `toml:"filter"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/filterms/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("filterms.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// PollInterval is the idle time between aggregator cycles.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Aggregator.PollIntervalMillis) * time.Millisecond
}

// DialTimeout bounds a single connect attempt to a discovered publisher.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Aggregator.DialTimeoutMillis) * time.Millisecond
}

// PublisherPID returns the identity a publisher reports, falling back to the
// process id when no override is configured.
func (c *Config) PublisherPID() int {
	if c.Service.PID > 0 {
		return c.Service.PID
	}
	return os.Getpid()
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
