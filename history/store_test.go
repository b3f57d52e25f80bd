package history

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/petal-labs/ghcid-mcp/probe"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := NewSQLiteStore(SQLiteStoreConfig{DSN: path})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestSQLiteStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exit := 1
	inputs := []Record{
		{Kind: KindManifest, Path: "/a", ManifestPath: "/a/a.cabal", Success: true, StartedAt: base},
		{Kind: KindCompile, Path: "/a", ManifestPath: "/a/a.cabal", Message: "Compilation failed - errors detected", ExitCode: &exit, TimeoutSeconds: 300, DurationMS: 42, StartedAt: base.Add(time.Minute)},
		{Kind: KindCompile, Path: "/b", ErrorCode: probe.ErrorCodeNoManifest, TimeoutSeconds: 300, StartedAt: base.Add(2 * time.Minute)},
	}
	for _, rec := range inputs {
		stored, err := s.Append(ctx, rec)
		if err != nil {
			t.Fatalf("Append: unexpected error: %v", err)
		}
		if stored.ID == "" {
			t.Fatal("Append: expected generated ID")
		}
	}

	all, err := s.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List: got %d records, want 3", len(all))
	}
	if all[0].Path != "/b" || all[2].Kind != KindManifest {
		t.Fatalf("List: not newest first: %+v", all)
	}
	if all[0].ExitCode != nil {
		t.Fatalf("List: exit code = %v, want nil", *all[0].ExitCode)
	}
	if all[1].ExitCode == nil || *all[1].ExitCode != 1 {
		t.Fatalf("List: exit code = %v, want 1", all[1].ExitCode)
	}
	if !all[1].StartedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("List: started_at = %s, want %s", all[1].StartedAt, base.Add(time.Minute))
	}
	if all[1].DurationMS != 42 || all[1].TimeoutSeconds != 300 {
		t.Fatalf("List: duration/timeout = %d/%d", all[1].DurationMS, all[1].TimeoutSeconds)
	}
	if !all[2].Success {
		t.Fatal("List: manifest record should be successful")
	}

	compiles, err := s.List(ctx, Filter{Path: "/a", Kind: KindCompile})
	if err != nil {
		t.Fatalf("List(filter): unexpected error: %v", err)
	}
	if len(compiles) != 1 || compiles[0].Message != "Compilation failed - errors detected" {
		t.Fatalf("List(filter): got %+v", compiles)
	}

	limited, err := s.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List(limit): unexpected error: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("List(limit): got %d records, want 2", len(limited))
	}
}

func TestSQLiteStore_Prune(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for _, age := range []time.Duration{time.Hour, 48 * time.Hour, 72 * time.Hour} {
		if _, err := s.Append(ctx, Record{Kind: KindManifest, Path: "/p", StartedAt: now.Add(-age)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	n, err := s.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("Prune: deleted %d, want 2", n)
	}

	left, err := s.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(left) != 1 {
		t.Fatalf("List after prune: got %d, want 1", len(left))
	}
}

func TestNewSQLiteStore_RequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(SQLiteStoreConfig{DSN: "  "}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestRecorder_WritesObservations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := NewRecorder(s, nil)

	started := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	r.ObserveLocate(probe.LocateObservation{
		Path:         "/proj",
		ManifestPath: "/proj/proj.cabal",
		Success:      true,
		DurationMS:   3,
		StartedAt:    started,
	})
	exit := 0
	r.ObserveCheck(probe.CheckObservation{
		Path:           "/proj",
		ManifestPath:   "/proj/proj.cabal",
		TimeoutSeconds: 60,
		ExitCode:       &exit,
		Success:        true,
		Message:        "Compilation successful - no errors found",
		StartedAt:      started.Add(time.Second),
	})

	records, err := s.List(ctx, Filter{Path: "/proj"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].Kind != KindCompile || records[0].TimeoutSeconds != 60 {
		t.Fatalf("compile record = %+v", records[0])
	}
	if records[0].ExitCode == nil || *records[0].ExitCode != 0 {
		t.Fatalf("compile exit code = %v, want 0", records[0].ExitCode)
	}
	if records[1].Kind != KindManifest || records[1].ManifestPath != "/proj/proj.cabal" {
		t.Fatalf("manifest record = %+v", records[1])
	}
}

type failingAppender struct {
	mu    sync.Mutex
	calls int
}

func (f *failingAppender) Append(context.Context, Record) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return Record{}, errors.New("disk full")
}

func TestRecorder_SwallowsWriteErrors(t *testing.T) {
	store := &failingAppender{}
	r := NewRecorder(store, nil)

	r.ObserveCheck(probe.CheckObservation{Path: "/p"})
	r.ObserveLocate(probe.LocateObservation{Path: "/p"})

	if store.calls != 2 {
		t.Fatalf("append calls = %d, want 2", store.calls)
	}

	var nilRecorder *Recorder
	nilRecorder.ObserveCheck(probe.CheckObservation{})
}
