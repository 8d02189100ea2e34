package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func sample(tick uint64) SnapshotV1 {
	return SnapshotV1{
		Header:        Header{Version: Version, FieldID: "garden_1", RunID: "run-a", Tick: tick},
		Seed:          1337,
		TickRate:      10,
		Radius:        32,
		CrystalTarget: 2,
		RespawnTicks:  50,
		Tier:          3,
		Coins:         41,
		CoinFrac:      0.4,
		Crystals: []CrystalV1{
			{ID: "C1", Pos: [3]float64{1, 0, 2}, HP: 100, MaxHP: 225, SpawnedTick: 3},
		},
		Pets: []PetV1{
			{ID: "P1", Name: "Mochi", Pos: [3]float64{0, 0, 1}, Speed: 0.5, Reach: 1.5, HarvestPerTick: 5, Harvested: 12, TargetID: "C1"},
		},
		Respawns: []uint64{90},
		Counters: CountersV1{NextCrystal: 2, NextPet: 1},
	}
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName(120))
	if err := WriteSnapshot(path, sample(120)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header.Tick != 120 || got.Tier != 3 || got.Coins != 41 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if len(got.Crystals) != 1 || got.Crystals[0].MaxHP != 225 {
		t.Fatalf("crystals: %+v", got.Crystals)
	}
	if len(got.Pets) != 1 || got.Pets[0].TargetID != "C1" {
		t.Fatalf("pets: %+v", got.Pets)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.FieldID != "garden_1" || h.RunID != "run-a" || h.Tick != 120 {
		t.Fatalf("header: %+v", h)
	}
}

func TestWriteFillsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName(1))
	s := sample(1)
	s.Header.Version = 0
	if err := WriteSnapshot(path, s); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header.Version != Version {
		t.Fatalf("version=%d", got.Header.Version)
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := Latest(dir); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("empty dir: %v", err)
	}
	if _, _, err := Latest(filepath.Join(dir, "missing")); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("missing dir: %v", err)
	}

	for _, tick := range []uint64{30, 3000, 300} {
		if err := WriteSnapshot(filepath.Join(dir, FileName(tick)), sample(tick)); err != nil {
			t.Fatalf("write %d: %v", tick, err)
		}
	}
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)

	path, tick, err := Latest(dir)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if tick != 3000 || filepath.Base(path) != FileName(3000) {
		t.Fatalf("latest=%s tick=%d", path, tick)
	}
}
