package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"crystalpets.ai/internal/persistence/snapshot"
	"crystalpets.ai/internal/sim/garden"
)

func openTest(t *testing.T) (*SQLiteIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx, path
}

func TestSQLiteIndex_WritesRows(t *testing.T) {
	idx, _ := openTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runID, err := idx.StartRun(ctx, "garden_1", 1337, map[string]int{"tick_rate_hz": 10})
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if runID == "" || idx.RunID() != runID {
		t.Fatalf("run id=%q stored=%q", runID, idx.RunID())
	}

	_ = idx.WriteTick(garden.TickLogEntry{Tick: 1, Tier: 1, Coins: 3, Crystals: 12, Pets: 4, Claims: 4})
	_ = idx.WriteTick(garden.TickLogEntry{Tick: 2, Tier: 2, Coins: 0})
	_ = idx.WriteUpgrade(garden.UpgradeEntry{Tick: 2, Tier: 2, PrevTier: 1, Capacity: 150, NextCost: 150, Paid: 100, Upgraded: true})
	idx.RecordSnapshot("/data/000000000002.snap.zst", snapshot.SnapshotV1{
		Header:   snapshot.Header{Tick: 2},
		Tier:     2,
		Crystals: []snapshot.CrystalV1{{ID: "C1"}},
	})
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	var ticks, upgrades, snaps int
	_ = idx.db.QueryRow(`SELECT COUNT(*) FROM ticks WHERE run_id=?`, runID).Scan(&ticks)
	_ = idx.db.QueryRow(`SELECT COUNT(*) FROM upgrades WHERE run_id=? AND upgraded=1`, runID).Scan(&upgrades)
	_ = idx.db.QueryRow(`SELECT COUNT(*) FROM snapshots WHERE run_id=? AND crystals=1`, runID).Scan(&snaps)
	if ticks != 2 || upgrades != 1 || snaps != 1 {
		t.Fatalf("rows ticks=%d upgrades=%d snapshots=%d", ticks, upgrades, snaps)
	}

	var version string
	if err := idx.db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&version); err != nil || version != schemaVersion {
		t.Fatalf("schema version=%q err=%v", version, err)
	}
}

func TestSQLiteIndex_LatestTierAcrossRuns(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	path := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok, err := idx.LatestTier(ctx, "garden_1"); err != nil || ok {
		t.Fatalf("empty index: ok=%v err=%v", ok, err)
	}
	if _, err := idx.StartRun(ctx, "garden_1", 1, nil); err != nil {
		t.Fatalf("start run: %v", err)
	}
	_ = idx.WriteUpgrade(garden.UpgradeEntry{Tick: 5, Tier: 2, PrevTier: 1, Upgraded: true})
	_ = idx.WriteUpgrade(garden.UpgradeEntry{Tick: 9, Tier: 3, PrevTier: 2, Upgraded: true})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A later process on the same file, for a different field and then the same one.
	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	if _, err := idx.StartRun(ctx, "garden_2", 1, nil); err != nil {
		t.Fatalf("start run: %v", err)
	}
	_ = idx.WriteUpgrade(garden.UpgradeEntry{Tick: 1, Tier: 7, PrevTier: 1})
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	tier, ok, err := idx.LatestTier(ctx, "garden_1")
	if err != nil || !ok || tier != 3 {
		t.Fatalf("garden_1 tier=%d ok=%v err=%v want 3", tier, ok, err)
	}
	tier, ok, err = idx.LatestTier(ctx, "garden_2")
	if err != nil || !ok || tier != 7 {
		t.Fatalf("garden_2 tier=%d ok=%v err=%v want 7", tier, ok, err)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.runID.Store("r")
	s.ch <- req{kind: reqTick}

	_ = s.WriteTick(garden.TickLogEntry{Tick: 2})
	_ = s.WriteUpgrade(garden.UpgradeEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropUpgradeTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drops=%+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilSafe(t *testing.T) {
	var s *SQLiteIndex
	if err := s.WriteTick(garden.TickLogEntry{}); err != nil {
		t.Fatalf("nil WriteTick: %v", err)
	}
	s.RecordSnapshot("", snapshot.SnapshotV1{})
	if st := s.Stats(); st.QueueCapacity != 0 {
		t.Fatalf("nil stats: %+v", st)
	}
}
