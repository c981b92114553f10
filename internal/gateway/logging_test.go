package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pulse-os/pulse-observer/internal/policy"
	"github.com/pulse-os/pulse-observer/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedGateway(t *testing.T, backend storage.Backend) (*Gateway, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	gw, err := New(Options{Store: backend, Logger: zap.New(core), Now: func() time.Time { return fixedNow }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return gw, logs
}

func TestLogging_DenialsAtInfo(t *testing.T) {
	store, err := storage.OpenSQLite(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	gw, logs := newObservedGateway(t, store)

	_, err = gw.Query(context.Background(), policy.AccessRequest{Table: "pulse_signals", Columns: []string{"payload"}, UserID: "alice"})
	if err == nil {
		t.Fatal("expected denial")
	}

	entries := logs.FilterMessage("access denied").All()
	if len(entries) != 1 {
		t.Fatalf("got %d denial entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Level != zapcore.InfoLevel {
		t.Errorf("level = %s", e.Level)
	}
	fields := e.ContextMap()
	if fields["code"] != string(policy.CodeColumnPolicy) || fields["table"] != "pulse_signals" || fields["user_id"] != "alice" {
		t.Errorf("fields = %v", fields)
	}
}

func TestLogging_StorageFailureAtError(t *testing.T) {
	store, err := storage.OpenSQLite(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	rb := &recordingBackend{inner: store, fail: errors.New("dial tcp: connection refused")}
	t.Cleanup(func() { _ = rb.Close() })
	gw, logs := newObservedGateway(t, rb)

	if _, err := gw.Query(context.Background(), policy.AccessRequest{Table: "pulse_goals", UserID: "alice"}); err == nil {
		t.Fatal("expected storage error")
	}
	entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	if len(entries) != 1 || entries[0].Message != "storage call failed" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].ContextMap()["op"] != "query" {
		t.Errorf("fields = %v", entries[0].ContextMap())
	}
}

func TestLogging_ProposalQueued(t *testing.T) {
	store, err := storage.OpenSQLite(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	gw, logs := newObservedGateway(t, store)

	rec, err := gw.ProposeImprovement(context.Background(), "alice", json.RawMessage(`{"title":"narrow estimates"}`))
	if err != nil {
		t.Fatalf("ProposeImprovement: %v", err)
	}
	entries := logs.FilterMessage("proposal queued for review").All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].ContextMap()["proposal_id"] != rec.ID {
		t.Errorf("fields = %v, want proposal_id %s", entries[0].ContextMap(), rec.ID)
	}
}
