package storage

import (
	"slices"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_ReopenKeepsSchemaVersions(t *testing.T) {
	dir := t.TempDir()

	first, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	before, _ := first.AppliedMigrations()
	first.Close()

	second, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	after, _ := second.AppliedMigrations()

	if len(before) == 0 || !slices.Equal(before, after) {
		t.Errorf("versions before=%v after=%v", before, after)
	}
	if !slices.IsSorted(after) {
		t.Errorf("versions not ascending: %v", after)
	}
}

func TestPendingMigrations(t *testing.T) {
	all, err := pendingMigrations(nil)
	if err != nil {
		t.Fatalf("pendingMigrations: %v", err)
	}
	if len(all) < 2 || all[0].version != 1 || all[1].version != 2 {
		t.Fatalf("migrations = %+v", all)
	}

	rest, _ := pendingMigrations([]int{1})
	for _, m := range rest {
		if m.version == 1 {
			t.Errorf("applied migration listed as pending: %+v", m)
		}
	}
}

func TestSchemaIndexes(t *testing.T) {
	s := openTestStore(t)
	for _, idx := range []string{"idx_sessions_updated", "idx_jobs_status_run_after", "idx_jobs_session"} {
		var n int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, idx).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("index %s missing", idx)
		}
	}
}

func TestParseStamp(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 890, time.UTC)
	for _, v := range []string{stamp(at), "2026-03-04T05:06:07Z"} {
		if _, err := parseStamp("x", v); err != nil {
			t.Errorf("parseStamp(%q): %v", v, err)
		}
	}
	if got, _ := parseStamp("x", stamp(at)); !got.Equal(at) {
		t.Errorf("round trip = %v, want %v", got, at)
	}
	if _, err := parseStamp("x", "yesterday"); err == nil {
		t.Error("garbage stamp accepted")
	}
	if stamp(at.Add(time.Second)) <= stamp(at) {
		t.Error("stamps do not sort as text")
	}
}
