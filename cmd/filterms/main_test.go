package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filterms/internal/logging"
	"filterms/internal/publisher"
	"filterms/internal/record"
	"filterms/internal/rendezvous"
	"filterms/internal/testsupport"
	"filterms/internal/wire"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, _, err := runCLI(t, context.Background(), strings.NewReader(""), []string{"config", "init", "--path", target})
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration to "+target)
	if !testsupport.Exists(target) {
		t.Fatal("expected sample config to be written")
	}

	if _, _, err := runCLI(t, context.Background(), strings.NewReader(""), []string{"config", "init", "--path", target}); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	} else {
		requireContains(t, err.Error(), "already exists")
	}

	out, _, err = env.run(t, "", "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Config path: "+env.configPath)
	requireContains(t, out, "Service: svc")
	requireContains(t, out, "Rendezvous root: "+env.root)
	requireContains(t, out, "Signal history: disabled")
	requireContains(t, out, "Configuration valid")
}

func TestInvalidConfigFailsCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.WriteFile(env.configPath, []byte("[aggregator]\noutput = \"xml\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := env.run(t, "", "peers"); err == nil {
		t.Fatal("expected invalid config to fail")
	} else {
		requireContains(t, err.Error(), "aggregator.output")
	}
}

func TestPeersListsRendezvousEntries(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "", "peers")
	if err != nil {
		t.Fatalf("peers: %v", err)
	}
	requireContains(t, out, "No publishers under "+env.root)

	endpoint := filepath.Join(env.root, "4242", rendezvous.EndpointFile)
	dir := testsupport.WritePeer(t, env.root, 4242, endpoint)
	if ok, err := (rendezvous.LockFileClaim{}).TryClaim(dir); err != nil || !ok {
		t.Fatalf("TryClaim = %v, %v", ok, err)
	}

	out, _, err = env.run(t, "", "peers")
	if err != nil {
		t.Fatalf("peers: %v", err)
	}
	requireContains(t, out, "4242")
	requireContains(t, out, endpoint)
	requireContains(t, out, "yes")
	requireContains(t, out, "no")
}

func TestSweepRemovesDeadPublishers(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "", "sweep")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	requireContains(t, out, "No orphaned publishers found")

	dir := testsupport.WritePeer(t, env.root, 77, filepath.Join(env.root, "77", rendezvous.EndpointFile))
	out, _, err = env.run(t, "", "sweep")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	requireContains(t, out, "Removed pid 77")
	if testsupport.Exists(dir) {
		t.Fatalf("expected %s to be removed", dir)
	}
}

func TestFilterPrintsDecisions(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithFilter(nil, []string{"mallory"}, []string{"avx2"}))
	stdin := strings.Join([]string{
		`{"name":"alice","id":"0xaaa","cpu_capabilities":["avx2","sse4"]}`,
		`{"name":"mallory","id":"0xbbb","cpu_capabilities":["avx2"]}`,
		`not json`,
		``,
		`{"name":"bob","id":"0xccc"}`,
	}, "\n")

	out, _, err := env.run(t, stdin, "filter")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	requireContains(t, out, "accept alice@0xaaa allowed")
	requireContains(t, out, "reject mallory@0xbbb blacklisted")
	requireContains(t, out, "reject bob@0xccc missing_features")
	if lines := strings.Count(out, "\n"); lines != 3 {
		t.Fatalf("expected 3 decisions, got %d:\n%s", lines, out)
	}
}

func TestFilterFlagsOverrideConfig(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithFilter(nil, []string{"alice"}, nil))

	out, _, err := env.run(t, `{"name":"alice","id":"0xaaa"}`+"\n", "filter", "--blacklist", "mallory", "--whitelist", "alice")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	requireContains(t, out, "accept alice@0xaaa allowed")
}

func TestHistoryShowsRecordedSignals(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithHistory())
	store := testsupport.MustOpenRecord(t, env.cfg)
	sink := record.NewSink(store, "0123456789abcdef")
	frame, err := wire.NewEnvelope(wire.Raw("ready"), 100, "svc").Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := sink.Deliver(context.Background(), frame); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	out, _, err := env.run(t, "", "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "ready")
	requireContains(t, out, "01234567")

	out, _, err = env.run(t, "", "history", "--pid", "5")
	if err != nil {
		t.Fatalf("history --pid: %v", err)
	}
	requireContains(t, out, "No signals recorded")

	out, _, err = env.run(t, "", "history", "clear")
	if err != nil {
		t.Fatalf("history clear: %v", err)
	}
	requireContains(t, out, "Removed 1 signal(s)")
}

func TestHistoryRequiresRecordPath(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := env.run(t, "", "history")
	if err == nil {
		t.Fatal("expected error when history is disabled")
	}
	requireContains(t, err.Error(), "aggregator.record_path")
}

func TestCheckReportsHealthyEnvironment(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithHistory())

	out, _, err := env.run(t, "", "check")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "ok   Rendezvous root")
	requireContains(t, out, "ok   Signal history")
	if strings.Contains(out, "FAIL") {
		t.Fatalf("unexpected failure:\n%s", out)
	}
}

func TestCheckFlagsOrphans(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WritePeer(t, env.root, 31, filepath.Join(env.root, "31", rendezvous.EndpointFile))

	out, _, err := env.run(t, "", "check")
	if err == nil {
		t.Fatal("expected check to fail with an orphaned publisher")
	}
	requireContains(t, out, "FAIL Orphaned publishers")
	requireContains(t, out, "31")
}

func TestAggregateRelaysAndRecordsSignals(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithHistory())

	ep, err := publisher.New(publisher.Options{
		Service: env.cfg.Service.Name,
		Root:    env.root,
		PID:     100,
		Logger:  logging.NewNop(),
	})
	if err != nil {
		testsupport.SkipIfSocketsForbidden(t, err)
		t.Fatalf("publisher.New: %v", err)
	}
	t.Cleanup(func() { _ = ep.Close() })
	pubCtx, pubCancel := context.WithCancel(context.Background())
	t.Cleanup(pubCancel)
	go func() { _ = ep.Serve(pubCtx) }()
	if err := ep.Publish(pubCtx, wire.Raw("ready")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := newRootCommand()
	var stdout syncBuffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&syncBuffer{})
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs([]string{"--config", env.configPath, "aggregate", "--output", "raw"})
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	testsupport.Eventually(t, 5*time.Second, "relayed signal", func() bool {
		return strings.Contains(stdout.String(), `{"signal":"ready","pid":100,"exename":"svc"}`)
	})
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("aggregate: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("aggregate did not stop after cancellation")
	}
	if rendezvous.IsClaimed(ep.Dir()) {
		t.Fatal("expected the claim to be released when aggregate exits")
	}

	out, _, err := env.run(t, "", "history", "--pid", "100")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "ready")
}

func TestPublishDeliversStdinLines(t *testing.T) {
	env := setupCLITestEnv(t)
	sink := aggregatorSink(t, env)

	stdin := "ready\n{\"signal\":\"accept\",\"provider\":\"alice\"}\n"
	_, stderr, err := env.run(t, stdin, "publish", "--pid", "55", "--deliver-timeout", "5s", "hello")
	if err != nil {
		testsupport.SkipIfSocketsForbidden(t, err)
		t.Fatalf("publish: %v\n%s", err, stderr)
	}
	requireContains(t, stderr, "Publishing as pid 55")

	want := []string{
		`{"signal":"hello","pid":55,"exename":"svc"}`,
		`{"signal":"ready","pid":55,"exename":"svc"}`,
		`{"signal":"accept","pid":55,"exename":"svc","provider":"alice"}`,
	}
	for _, w := range want {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, frame, err := sink.Next(ctx)
		cancel()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if string(frame) != w {
			t.Fatalf("frame = %s, want %s", frame, w)
		}
	}
	if testsupport.Exists(rendezvous.PeerDir(env.root, 55)) {
		t.Fatal("expected publish to remove its rendezvous entry on exit")
	}
}

func TestPublishStopsOnCancelWhileStdinIsOpen(t *testing.T) {
	env := setupCLITestEnv(t)
	stdinReader, stdinWriter := io.Pipe()
	t.Cleanup(func() { _ = stdinWriter.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stderr := &syncBuffer{}
	cmd := newRootCommand()
	cmd.SetOut(&syncBuffer{})
	cmd.SetErr(stderr)
	cmd.SetIn(stdinReader)
	cmd.SetArgs([]string{"--config", env.configPath, "publish", "--pid", "56"})
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	dir := rendezvous.PeerDir(env.root, 56)
	testsupport.Eventually(t, 5*time.Second, "publisher started", func() bool {
		select {
		case err := <-done:
			testsupport.SkipIfSocketsForbidden(t, err)
			t.Fatalf("publish exited early: %v", err)
		default:
		}
		return strings.Contains(stderr.String(), "Publishing as pid 56")
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("publish kept waiting on stdin after cancellation")
	}
	if testsupport.Exists(dir) {
		t.Fatalf("expected %s to be removed on exit", dir)
	}
}
