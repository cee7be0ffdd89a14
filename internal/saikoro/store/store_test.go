package store_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/bdobrica/Saikoro/internal/saikoro/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "saikoro-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// --- Migrations ---

func TestNew_AppliesAllMigrations(t *testing.T) {
	s := newTestStore(t)
	v, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 3 {
		t.Errorf("schema version: got %d, want 3", v)
	}
}

func TestNew_ReopenIsIdempotent(t *testing.T) {
	path := t.TempDir() + "/reopen.db"
	first, err := store.New(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.WriteAudit(context.Background(), "t_1", "u", "ping", "", store.ResultSuccess, nil, ""); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}
	first.Close()

	second, err := store.New(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()

	entries, err := second.GetAuditLog(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetAuditLog: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries after reopen: got %d, want 1", len(entries))
	}
}

// --- Audit ---

func TestWriteAudit_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.WriteAudit(ctx, "t_abc", "@alice:example.org", "roll", "2d6", store.ResultSuccess,
		store.AuditPayload{"dice": 2}, ""); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}

	entries, err := s.GetAuditByTrace(ctx, "t_abc")
	if err != nil {
		t.Fatalf("GetAuditByTrace: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Actor != "@alice:example.org" || e.Action != "roll" || e.Result != store.ResultSuccess {
		t.Errorf("unexpected entry: %+v", e)
	}
	if !e.Target.Valid || e.Target.String != "2d6" {
		t.Errorf("Target: got %+v", e.Target)
	}
	if !e.PayloadJSON.Valid || e.PayloadJSON.String != `{"dice":2}` {
		t.Errorf("PayloadJSON: got %+v", e.PayloadJSON)
	}
	if e.ErrorMessage.Valid {
		t.Errorf("ErrorMessage should be NULL, got %q", e.ErrorMessage.String)
	}
	if e.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestGetAuditLog_NewestFirstAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, action := range []string{"a", "b", "c"} {
		if err := s.WriteAudit(ctx, "t_"+action, "u", action, "", store.ResultSuccess, nil, ""); err != nil {
			t.Fatalf("WriteAudit: %v", err)
		}
	}

	entries, err := s.GetAuditLog(ctx, 2)
	if err != nil {
		t.Fatalf("GetAuditLog: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != "c" || entries[1].Action != "b" {
		t.Errorf("got %d entries: %+v", len(entries), entries)
	}
}

func TestGetAuditByActor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.WriteAudit(ctx, "t_1", "alice", "roll", "", store.ResultSuccess, nil, "")
	s.WriteAudit(ctx, "t_2", "bob", "roll", "", store.ResultRejected, nil, "bad notation")
	s.WriteAudit(ctx, "t_3", "alice", "help", "", store.ResultSuccess, nil, "")

	entries, err := s.GetAuditByActor(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("GetAuditByActor: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != "help" {
		t.Errorf("unexpected entries: %+v", entries)
	}

	bob, _ := s.GetAuditByActor(ctx, "bob", 5)
	if len(bob) != 1 || !bob[0].ErrorMessage.Valid || bob[0].ErrorMessage.String != "bad notation" {
		t.Errorf("unexpected bob entries: %+v", bob)
	}
}

// --- Rolls ---

func TestRolls_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &store.Roll{
		SessionID: "t_roll",
		Transport: "matrix",
		Actor:     "@alice:example.org",
		Notation:  "2d6",
		Dice:      []store.RollDie{{ID: "a", Sides: 6, Result: 3}, {ID: "b", Sides: 6, Result: 1}},
		Hitches:   1,
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := s.CreateRoll(ctx, r); err != nil {
		t.Fatalf("CreateRoll: %v", err)
	}

	open, err := s.CountRolls(ctx, "")
	if err != nil || open != 1 {
		t.Fatalf("open rolls: got %d, %v", open, err)
	}

	got, err := s.GetRoll(ctx, "t_roll")
	if err != nil {
		t.Fatalf("GetRoll: %v", err)
	}
	if got.Outcome != "" || got.Result != nil || got.FinishedAt.Valid {
		t.Errorf("open roll has outcome: %+v", got)
	}
	if len(got.Dice) != 2 || got.Dice[0] != r.Dice[0] {
		t.Errorf("Dice: got %+v", got.Dice)
	}

	result := &store.RollResult{Total: 3, Values: []int{3}, EffectSides: 4}
	if err := s.FinishRoll(ctx, "t_roll", "confirmed", result); err != nil {
		t.Fatalf("FinishRoll: %v", err)
	}

	got, err = s.GetRoll(ctx, "t_roll")
	if err != nil {
		t.Fatalf("GetRoll: %v", err)
	}
	if got.Outcome != "confirmed" || !got.FinishedAt.Valid {
		t.Errorf("finished roll: %+v", got)
	}
	if got.Result == nil || got.Result.Total != 3 || len(got.Result.Values) != 1 || got.Result.EffectSides != 4 {
		t.Errorf("Result: got %+v", got.Result)
	}

	if err := s.FinishRoll(ctx, "t_roll", "expired", nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second finish: got %v, want ErrNotFound", err)
	}
	if n, _ := s.CountRolls(ctx, "confirmed"); n != 1 {
		t.Errorf("confirmed rolls: got %d", n)
	}
}

func TestFinishRoll_ExpiredHasNoResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateRoll(ctx, &store.Roll{SessionID: "t_x", Transport: "discord", Actor: "1", Notation: "d4"}); err != nil {
		t.Fatalf("CreateRoll: %v", err)
	}
	if err := s.FinishRoll(ctx, "t_x", "expired", nil); err != nil {
		t.Fatalf("FinishRoll: %v", err)
	}
	got, err := s.GetRoll(ctx, "t_x")
	if err != nil {
		t.Fatalf("GetRoll: %v", err)
	}
	if got.Outcome != "expired" || got.Result != nil {
		t.Errorf("unexpected roll: %+v", got)
	}
}

func TestGetRoll_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetRoll(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestListRollsByActor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		if err := s.CreateRoll(ctx, &store.Roll{
			SessionID: id, Transport: "matrix", Actor: "alice", Notation: "d6",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("CreateRoll: %v", err)
		}
	}
	s.CreateRoll(ctx, &store.Roll{SessionID: "other", Transport: "matrix", Actor: "bob", Notation: "d6", StartedAt: base})

	rolls, err := s.ListRollsByActor(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("ListRollsByActor: %v", err)
	}
	if len(rolls) != 2 || rolls[0].SessionID != "r3" || rolls[1].SessionID != "r2" {
		t.Errorf("unexpected rolls: %+v", rolls)
	}
}
