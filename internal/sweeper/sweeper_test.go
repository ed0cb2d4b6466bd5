package sweeper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ALT-F4-LLC/porter/internal/db"
	"github.com/ALT-F4-LLC/porter/internal/model"
	"github.com/ALT-F4-LLC/porter/internal/session"
)

func mustSweeper(t *testing.T) (*Sweeper, *session.SQLStore, Dirs) {
	t.Helper()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.Initialize(conn); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	root := t.TempDir()
	dirs := Dirs{
		Exports: filepath.Join(root, "exports"),
		Imports: filepath.Join(root, "imports"),
		Tmp:     filepath.Join(root, "tmp"),
	}
	for _, d := range []string{dirs.Exports, dirs.Imports, dirs.Tmp} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	store := session.NewSQLStore(conn)
	return New(store, dirs, time.Hour, nil), store, dirs
}

func touch(t *testing.T, path string, dir bool, age time.Duration) {
	t.Helper()
	var err error
	if dir {
		err = os.MkdirAll(path, 0o755)
	} else {
		err = os.WriteFile(path, []byte("{}"), 0o644)
	}
	if err != nil {
		t.Fatal(err)
	}
	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatal(err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestSweepRemovesExpiredSessionFiles(t *testing.T) {
	sw, store, dirs := mustSweeper(t)
	ctx := context.Background()
	now := time.Now().UTC()

	dataFile := filepath.Join(dirs.Exports, "porter-export-a.json")
	touch(t, dataFile, false, 0)
	work := filepath.Join(dirs.Imports, "import-b")
	touch(t, work, true, 0)
	liveWork := filepath.Join(dirs.Imports, "import-c")
	touch(t, liveWork, true, 0)

	put := func(kind, operator string, payload []byte, expires time.Time) {
		t.Helper()
		if err := store.Put(ctx, session.Record{
			Kind: kind, Operator: operator, Token: operator,
			Payload: payload, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: expires,
		}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	put(model.SessionExport, "alice", []byte(`{"file_path":"`+dataFile+`"}`), now.Add(-time.Minute))
	put(model.SessionImport, "bob", []byte(`{"work_dir":"`+work+`"}`), now.Add(-time.Minute))
	put(model.SessionImport, "carol", []byte(`{"work_dir":"`+liveWork+`"}`), now.Add(time.Hour))

	rep, err := sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if rep.Sessions != 2 {
		t.Errorf("Sessions = %d, want 2", rep.Sessions)
	}
	if exists(dataFile) || exists(work) {
		t.Errorf("expired session files remain: %v", rep.Removed)
	}
	if !exists(liveWork) {
		t.Error("live session work dir was removed")
	}
	if _, err := store.Get(ctx, model.SessionImport, "carol"); err != nil {
		t.Errorf("live session gone: %v", err)
	}
}

func TestSweepRemovesOldOrphans(t *testing.T) {
	sw, _, dirs := mustSweeper(t)
	old := 48 * time.Hour

	orphans := []string{
		filepath.Join(dirs.Imports, "import-old"),
		filepath.Join(dirs.Tmp, "export-old"),
		filepath.Join(dirs.Exports, "porter-export-old.json"),
	}
	touch(t, orphans[0], true, old)
	touch(t, orphans[1], true, old)
	touch(t, orphans[2], false, old)

	kept := []string{
		filepath.Join(dirs.Imports, "import-fresh"),
		filepath.Join(dirs.Exports, "porter-export-old.zip"),
		filepath.Join(dirs.Imports, "notes"),
	}
	touch(t, kept[0], true, time.Minute)
	touch(t, kept[1], false, old)
	touch(t, kept[2], true, old)

	rep, err := sw.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	for _, p := range orphans {
		if exists(p) {
			t.Errorf("%s was not removed", filepath.Base(p))
		}
	}
	for _, p := range kept {
		if !exists(p) {
			t.Errorf("%s was removed", filepath.Base(p))
		}
	}
	if len(rep.Removed) != len(orphans) {
		t.Errorf("Removed = %v, want %d entries", rep.Removed, len(orphans))
	}
}

func TestWatchRejectsBadSchedule(t *testing.T) {
	sw, _, _ := mustSweeper(t)
	if err := sw.Watch(context.Background(), "not a schedule", nil); err == nil {
		t.Error("expected an error for an invalid schedule")
	}
}

func TestWatchStopsWithContext(t *testing.T) {
	sw, _, _ := mustSweeper(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Watch(ctx, "@every 1h", nil) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
