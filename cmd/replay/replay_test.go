package main

import (
	"strings"
	"testing"

	persistlog "crystalpets.ai/internal/persistence/log"
	"crystalpets.ai/internal/persistence/snapshot"
	"crystalpets.ai/internal/sim/garden"
	"crystalpets.ai/internal/sim/tuning"
)

func recordRun(t *testing.T, dir string) (snapshot.SnapshotV1, tuning.Tuning) {
	t.Helper()
	tune := tuning.Defaults()
	cfg := fieldConfig(snapshot.SnapshotV1{
		Header:        snapshot.Header{FieldID: "garden_replay"},
		Seed:          99,
		TickRate:      10,
		Radius:        6,
		CrystalTarget: 4,
		RespawnTicks:  5,
	}, tune)
	cfg.StartingCoins = 500
	w, err := garden.New(cfg)
	if err != nil {
		t.Fatalf("new field: %v", err)
	}

	tickLog := persistlog.NewTickLogger(dir)
	upLog := persistlog.NewUpgradeLogger(dir)
	w.SetTickLogger(tickLog)
	w.SetUpgradeLogger(upLog)

	var snap snapshot.SnapshotV1
	for w.CurrentTick() <= 60 {
		var reqs garden.Requests
		switch w.CurrentTick() {
		case 0:
			reqs.SpawnPets = []garden.SpawnPetRequest{{Name: "a"}, {Name: "b"}, {Name: "c"}}
		case 10:
			reqs.Upgrades = []garden.UpgradeRequest{{}}
		case 20:
			reqs.RemovePets = []garden.RemovePetRequest{{PetID: "P1", Abrupt: true}}
			reqs.SpawnPets = []garden.SpawnPetRequest{{Name: "d"}}
		case 21:
			reqs.SetTiers = []garden.SetTierRequest{{Tier: 5}}
		case 30:
			reqs.RemovePets = []garden.RemovePetRequest{{PetID: "P2"}}
		}
		w.StepOnce(reqs)
		if w.CurrentTick() == 10 {
			snap = w.ExportSnapshot(9)
		}
	}
	if err := tickLog.Close(); err != nil {
		t.Fatalf("close ticks: %v", err)
	}
	if err := upLog.Close(); err != nil {
		t.Fatalf("close upgrades: %v", err)
	}
	return snap, tune
}

func TestReplay_MatchesRecordedRun(t *testing.T) {
	dir := t.TempDir()
	snap, tune := recordRun(t, dir)

	ticks, err := readJSONL[tickEntry](dir+"/ticks", "ticks-")
	if err != nil {
		t.Fatalf("read ticks: %v", err)
	}
	if len(ticks) != 61 {
		t.Fatalf("ticks=%d want 61", len(ticks))
	}
	upgrades, err := readJSONL[upgradeEntry](dir+"/upgrades", "upgrades-")
	if err != nil {
		t.Fatalf("read upgrades: %v", err)
	}
	if len(upgrades) != 2 || !upgrades[0].Upgraded || upgrades[1].Upgraded {
		t.Fatalf("upgrades=%+v", upgrades)
	}

	checked, err := replay(snap, tune, ticks, upgrades, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 51 {
		t.Fatalf("checked=%d want 51", checked)
	}

	checked, err = replay(snap, tune, ticks, upgrades, 15)
	if err != nil || checked != 6 {
		t.Fatalf("bounded replay checked=%d err=%v", checked, err)
	}
}

func TestReplay_DetectsDivergence(t *testing.T) {
	dir := t.TempDir()
	snap, tune := recordRun(t, dir)
	ticks, _ := readJSONL[tickEntry](dir+"/ticks", "ticks-")
	upgrades, _ := readJSONL[upgradeEntry](dir+"/upgrades", "upgrades-")

	// Dropping the upgrade leaves the replayed tier behind the log.
	_, err := replay(snap, tune, ticks, nil, 0)
	if err == nil || !strings.Contains(err.Error(), "tier") {
		t.Fatalf("expected tier divergence, got %v", err)
	}

	ticks[40].Coins++
	_, err = replay(snap, tune, ticks, upgrades, 0)
	if err == nil || !strings.Contains(err.Error(), "tick 40") {
		t.Fatalf("expected coin divergence at tick 40, got %v", err)
	}
}

func TestReadJSONL_MissingDir(t *testing.T) {
	if _, err := readJSONL[tickEntry](t.TempDir()+"/nope", "ticks-"); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}
