package record_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"filterms/internal/config"
	"filterms/internal/record"
	"filterms/internal/testsupport"
	"filterms/internal/wire"
)

func TestOpenRequiresRecordPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := record.Open(cfg); !errors.Is(err, record.ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestSinkRecordsEnvelopes(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHistory())
	store := testsupport.MustOpenRecord(t, cfg)
	ctx := context.Background()

	sink := record.NewSink(store, "session-a")
	for _, payload := range []wire.Payload{
		wire.Raw("ready"),
		wire.Tagged(map[string]any{"signal": "reject", "provider": "mallory"}),
	} {
		frame, err := wire.NewEnvelope(payload, 100, "svc").Encode()
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if err := sink.Deliver(ctx, frame); err != nil {
			t.Fatalf("Deliver: %v", err)
		}
	}

	signals, err := store.List(ctx, record.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(signals))
	}
	latest := signals[0]
	if latest.Signal != "reject" || latest.PID != 100 || latest.ExeName != "svc" || latest.SessionID != "session-a" {
		t.Fatalf("unexpected latest signal %+v", latest)
	}
	if latest.Payload != `{"signal":"reject","pid":100,"exename":"svc","provider":"mallory"}` {
		t.Fatalf("expected verbatim payload, got %s", latest.Payload)
	}
	if latest.ReceivedAt.IsZero() {
		t.Fatal("expected received_at to be set")
	}
	if signals[1].Signal != "ready" {
		t.Fatalf("expected oldest signal last, got %+v", signals[1])
	}
}

func TestSinkRejectsMalformedFrame(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHistory())
	store := testsupport.MustOpenRecord(t, cfg)
	if err := record.NewSink(store, "s").Deliver(context.Background(), []byte("not json")); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestListFilters(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHistory())
	store := testsupport.MustOpenRecord(t, cfg)
	ctx := context.Background()

	rows := []record.Signal{
		{SessionID: "a", PID: 1, ExeName: "svc", Signal: "one", Payload: "{}"},
		{SessionID: "a", PID: 2, ExeName: "svc", Signal: "two", Payload: "{}"},
		{SessionID: "b", PID: 1, ExeName: "svc", Signal: "three", Payload: "{}"},
	}
	for _, row := range rows {
		if _, err := store.Insert(ctx, row); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	tests := []struct {
		name string
		opts record.ListOptions
		want []string
	}{
		{"all", record.ListOptions{}, []string{"three", "two", "one"}},
		{"session", record.ListOptions{SessionID: "a"}, []string{"two", "one"}},
		{"pid", record.ListOptions{PID: 1}, []string{"three", "one"}},
		{"limit", record.ListOptions{Limit: 1}, []string{"three"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.opts)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d rows, got %d", len(tt.want), len(got))
			}
			for i, sig := range got {
				if sig.Signal != tt.want[i] {
					t.Fatalf("row %d = %q, want %q", i, sig.Signal, tt.want[i])
				}
			}
		})
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 rows removed, got %d", removed)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "signals.db")
	store, err := record.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if _, err := store.Insert(context.Background(), record.Signal{SessionID: "s", PID: 3, ExeName: "svc", Signal: "x", Payload: "{}"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cfg := config.Default()
	cfg.Aggregator.RecordPath = path
	reopened, err := record.Open(&cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.List(context.Background(), record.ListOptions{})
	if err != nil || len(got) != 1 {
		t.Fatalf("expected persisted signal, got %v, %v", got, err)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.db")
	store, err := record.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := record.OpenPath(path); !errors.Is(err, record.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
