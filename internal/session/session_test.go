package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ALT-F4-LLC/porter/internal/db"
	"github.com/ALT-F4-LLC/porter/internal/model"
)

func mustStore(t *testing.T) *SQLStore {
	t.Helper()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.Initialize(conn); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return NewSQLStore(conn)
}

// clock is a settable time source shared by a manager and its store.
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func mustManager(t *testing.T) (*Manager, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	store := mustStore(t)
	store.now = c.now
	m := NewManager(store, time.Hour)
	m.now = c.now
	return m, c
}

func TestExportSessionRoundTrip(t *testing.T) {
	m, _ := mustManager(t)
	ctx := context.Background()

	s := &model.ExportSession{
		Token:     "tok-1",
		Operator:  "alice",
		Filename:  "export.json",
		FilePath:  "/tmp/export.json",
		IDs:       []int64{5, 3, 9},
		Filters:   map[string]any{"product_status": []any{"publish"}},
		Options:   model.DefaultExportOptions(),
		Total:     3,
		BatchSize: model.ExportBatchSize,
	}
	if err := m.SaveExport(ctx, s); err != nil {
		t.Fatalf("SaveExport: %v", err)
	}

	got, err := m.LoadExport(ctx, "alice", "tok-1")
	if err != nil {
		t.Fatalf("LoadExport: %v", err)
	}
	if got.Total != 3 || len(got.IDs) != 3 || got.IDs[1] != 3 || !got.Options.IncludeMeta {
		t.Errorf("got %+v", got)
	}
	if !got.ExpiresAt.Equal(got.CreatedAt.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want CreatedAt+1h", got.ExpiresAt)
	}

	for _, tc := range []struct{ operator, token string }{
		{"alice", "wrong"},
		{"alice", ""},
		{"bob", "tok-1"},
	} {
		_, err := m.LoadExport(ctx, tc.operator, tc.token)
		if !errors.Is(err, model.ErrSessionNotFound) {
			t.Errorf("LoadExport(%s, %q) err = %v, want ErrSessionNotFound", tc.operator, tc.token, err)
		}
		if model.KindOf(err) != model.KindSession {
			t.Errorf("KindOf = %v, want session", model.KindOf(err))
		}
	}

	if err := m.DeleteExport(ctx, "alice"); err != nil {
		t.Fatalf("DeleteExport: %v", err)
	}
	if _, err := m.LoadExport(ctx, "alice", "tok-1"); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("after delete err = %v, want ErrSessionNotFound", err)
	}
}

func TestSaveRefreshesExpiry(t *testing.T) {
	m, c := mustManager(t)
	ctx := context.Background()

	s := &model.ImportSession{Token: "imp", Operator: "alice", Total: 10}
	if err := m.SaveImport(ctx, s); err != nil {
		t.Fatalf("SaveImport: %v", err)
	}
	created := s.CreatedAt

	c.t = c.t.Add(50 * time.Minute)
	s.Result.Imported = 5
	if err := m.SaveImport(ctx, s); err != nil {
		t.Fatalf("SaveImport: %v", err)
	}

	c.t = c.t.Add(50 * time.Minute)
	got, err := m.LoadImport(ctx, "alice", "imp")
	if err != nil {
		t.Fatalf("LoadImport after refresh: %v", err)
	}
	if got.Result.Imported != 5 || !got.CreatedAt.Equal(created) {
		t.Errorf("got imported=%d created=%v", got.Result.Imported, got.CreatedAt)
	}

	c.t = c.t.Add(11 * time.Minute)
	if _, err := m.LoadImport(ctx, "alice", "imp"); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("expired err = %v, want ErrSessionNotFound", err)
	}
}

func TestNewSessionReplacesOld(t *testing.T) {
	m, _ := mustManager(t)
	ctx := context.Background()

	m.SaveExport(ctx, &model.ExportSession{Token: "old", Operator: "alice"})
	m.SaveExport(ctx, &model.ExportSession{Token: "new", Operator: "alice"})

	if _, err := m.LoadExport(ctx, "alice", "old"); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("old token err = %v, want ErrSessionNotFound", err)
	}
	if _, err := m.LoadExport(ctx, "alice", "new"); err != nil {
		t.Errorf("new token: %v", err)
	}
}

func TestPendingImport(t *testing.T) {
	m, _ := mustManager(t)
	ctx := context.Background()

	got, err := m.PendingImport(ctx, "alice")
	if err != nil || got != nil {
		t.Fatalf("PendingImport = %v, %v; want nil, nil", got, err)
	}

	m.SaveImport(ctx, &model.ImportSession{Token: "imp", Operator: "alice", Total: 2})
	got, err = m.PendingImport(ctx, "alice")
	if err != nil {
		t.Fatalf("PendingImport: %v", err)
	}
	if got == nil || got.Token != "imp" {
		t.Errorf("got %+v, want token imp", got)
	}
}

func TestExpiredRemovesSessions(t *testing.T) {
	m, c := mustManager(t)
	ctx := context.Background()

	m.SaveExport(ctx, &model.ExportSession{Token: "e", Operator: "alice", FilePath: "/w/exports/e.json"})
	m.SaveImport(ctx, &model.ImportSession{
		Token: "i", Operator: "alice", DataPath: "/w/imports/i/products.json", ExtractRoot: "/w/imports/i",
	})
	c.t = c.t.Add(30 * time.Minute)
	m.SaveImport(ctx, &model.ImportSession{Token: "live", Operator: "bob"})

	expired, err := m.Store().Expired(ctx, c.t.Add(45*time.Minute))
	if err != nil {
		t.Fatalf("Expired: %v", err)
	}
	if len(expired) != 2 {
		t.Fatalf("expired = %d, want 2", len(expired))
	}

	var paths []string
	for _, r := range expired {
		p, err := r.Paths()
		if err != nil {
			t.Fatalf("Paths(%s): %v", r.Kind, err)
		}
		paths = append(paths, p...)
	}
	if len(paths) != 3 {
		t.Errorf("paths = %v, want export file plus import data and extraction root", paths)
	}

	again, err := m.Store().Expired(ctx, c.t.Add(45*time.Minute))
	if err != nil || len(again) != 0 {
		t.Errorf("second Expired = %d, %v; want none", len(again), err)
	}
	if _, err := m.LoadImport(ctx, "bob", "live"); err != nil {
		t.Errorf("live session removed: %v", err)
	}
}

func TestRecordPathsUnknownKind(t *testing.T) {
	if _, err := (Record{Kind: "other", Payload: []byte(`{}`)}).Paths(); err == nil {
		t.Error("expected error for unknown kind")
	}
}
