package state

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T, seed int64) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "session.db"), seed)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCellRecordRoundTrip(t *testing.T) {
	s := openTestStore(t, 42)

	rec := CellRecord{Cell: 12345, Faction: 2, TechLevel: 3}
	if err := s.SaveCell(rec); err != nil {
		t.Fatalf("SaveCell: %v", err)
	}

	got, ok, err := s.LoadCell(12345)
	if err != nil {
		t.Fatalf("LoadCell: %v", err)
	}
	if !ok {
		t.Fatal("record not found")
	}
	if got != rec {
		t.Errorf("loaded %+v, want %+v", got, rec)
	}
}

func TestCellRecordUpsert(t *testing.T) {
	s := openTestStore(t, 42)

	if err := s.SaveCell(CellRecord{Cell: 7, Faction: 1, TechLevel: 1}); err != nil {
		t.Fatalf("SaveCell: %v", err)
	}
	if err := s.SaveCell(CellRecord{Cell: 7, Faction: 3, TechLevel: 2}); err != nil {
		t.Fatalf("SaveCell (second): %v", err)
	}

	got, ok, err := s.LoadCell(7)
	if err != nil || !ok {
		t.Fatalf("LoadCell: ok=%v err=%v", ok, err)
	}
	if got.Faction != 3 || got.TechLevel != 2 {
		t.Errorf("upsert kept the old record: %+v", got)
	}
}

func TestLoadMissingCell(t *testing.T) {
	s := openTestStore(t, 42)
	_, ok, err := s.LoadCell(999)
	if err != nil {
		t.Fatalf("LoadCell: %v", err)
	}
	if ok {
		t.Error("missing record reported as found")
	}
}

func TestSeedIsolation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.db")

	a, err := OpenStore(path, 1)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if err := a.SaveCell(CellRecord{Cell: 5, Faction: 1}); err != nil {
		t.Fatalf("SaveCell: %v", err)
	}
	a.Close()

	// A different world seed in the same file sees nothing.
	b, err := OpenStore(path, 2)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer b.Close()
	if _, ok, _ := b.LoadCell(5); ok {
		t.Error("record leaked across world seeds")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t, 42)

	if err := s.SaveSnapshot(100, []byte("first")); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := s.SaveSnapshot(200, []byte("second")); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	frame, data, err := s.LoadLatestSnapshot()
	if err != nil {
		t.Fatalf("LoadLatestSnapshot: %v", err)
	}
	if frame != 200 || string(data) != "second" {
		t.Errorf("latest = (%d, %q)", frame, data)
	}
}

func TestLoadSnapshotEmpty(t *testing.T) {
	s := openTestStore(t, 42)
	frame, data, err := s.LoadLatestSnapshot()
	if err != nil {
		t.Fatalf("LoadLatestSnapshot: %v", err)
	}
	if frame != 0 || data != nil {
		t.Errorf("empty store returned (%d, %v)", frame, data)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.db")

	a, err := OpenStore(path, 9)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if err := a.SaveCell(CellRecord{Cell: 11, Faction: 2, TechLevel: 1}); err != nil {
		t.Fatalf("SaveCell: %v", err)
	}
	a.Close()

	b, err := OpenStore(path, 9)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	got, ok, err := b.LoadCell(11)
	if err != nil || !ok {
		t.Fatalf("LoadCell after reopen: ok=%v err=%v", ok, err)
	}
	if got.Faction != 2 {
		t.Errorf("reopened record = %+v", got)
	}
}
