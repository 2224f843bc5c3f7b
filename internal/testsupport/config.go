package testsupport

import (
	"path/filepath"
	"testing"

	"filterms/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with a unique rendezvous root per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Service.Name = "svc"
	cfgVal.Service.RendezvousDir = filepath.Join(base, "rv")
	cfgVal.Aggregator.PollIntervalMillis = 10
	cfgVal.Aggregator.DialTimeoutMillis = 500

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithService overrides the service name on the test config.
func WithService(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Service.Name = name
	}
}

// WithHistory enables the signal history inside the test's temp directory.
func WithHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Aggregator.RecordPath = filepath.Join(b.baseDir, "history", "signals.db")
	}
}

// WithFilter sets the provider filter lists on the test config.
func WithFilter(whitelist, blacklist, features []string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Filter.Whitelist = whitelist
		b.cfg.Filter.Blacklist = blacklist
		b.cfg.Filter.Features = features
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Service.RendezvousDir)
}
