package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"filterms/internal/aggregator"
	"filterms/internal/config"
	"filterms/internal/logging"
	"filterms/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	root       string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	for _, key := range []string{"GNPROVIDER", "GNPROVIDER_BL", "GNFEATURES", "FILTERMSVERBOSE", "FILTERMS_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "error"
	homeDir := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(testsupport.BaseDir(cfg), "filterms.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		root:       cfg.Service.RendezvousDir,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, context.Background(), strings.NewReader(stdin), append([]string{"--config", e.configPath}, args...))
}

func runCLI(t *testing.T, ctx context.Context, stdin io.Reader, args []string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(stdin)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected output to contain %q, got:\n%s", substr, output)
	}
}

// syncBuffer is a bytes.Buffer safe to read while a command writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// aggregatorSink runs an in-process aggregator over the test rendezvous root
// until the test ends and returns the sink it delivers to.
func aggregatorSink(t *testing.T, env *cliTestEnv) *aggregator.ChanSink {
	t.Helper()
	sink := aggregator.NewChanSink(16)
	agg, err := aggregator.New(aggregator.Options{
		Service:      env.cfg.Service.Name,
		Root:         env.root,
		Sink:         sink,
		Logger:       logging.NewNop(),
		PollInterval: env.cfg.PollInterval(),
		DialTimeout:  env.cfg.DialTimeout(),
	})
	if err != nil {
		t.Fatalf("aggregator.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = agg.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return sink
}
