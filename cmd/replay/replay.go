package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"crystalpets.ai/internal/persistence/snapshot"
	"crystalpets.ai/internal/sim/garden"
	"crystalpets.ai/internal/sim/progression"
	"crystalpets.ai/internal/sim/tuning"
)

type (
	tickEntry    = garden.TickLogEntry
	upgradeEntry = garden.UpgradeEntry
)

// readJSONL decodes every prefix*.jsonl.zst file in dir, in file name order.
func readJSONL[T any](dir, prefix string) ([]T, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []T
	for _, name := range names {
		if err := decodeFile(filepath.Join(dir, name), func(b []byte) error {
			var v T
			if err := json.Unmarshal(b, &v); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", name, err)
			}
			out = append(out, v)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeFile(path string, fn func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}

type lastTick struct{ e garden.TickLogEntry }

func (l *lastTick) WriteTick(e garden.TickLogEntry) error {
	l.e = e
	return nil
}

func fieldConfig(snap snapshot.SnapshotV1, tune tuning.Tuning) garden.WorldConfig {
	return garden.WorldConfig{
		ID:            snap.Header.FieldID,
		TickRateHz:    snap.TickRate,
		Seed:          snap.Seed,
		Radius:        snap.Radius,
		CrystalTarget: snap.CrystalTarget,
		RespawnTicks:  snap.RespawnTicks,
		CoinsPerHP:    tune.Pets.CoinsPerHP,
		PetStats: garden.PetStats{
			Speed:          tune.Pets.Speed,
			Reach:          tune.Pets.Reach,
			HarvestPerTick: tune.Pets.HarvestPerTick,
		},
		Formula: progression.Formula{
			CapacityBase: tune.Progression.CapacityBase,
			CostBase:     tune.Progression.CostBase,
			Growth:       tune.Progression.Growth,
		},
		MaxTier: tune.Progression.MaxTier,
	}
}

// replay restores snap, re-feeds the logged joins, leaves and tier changes tick by tick and
// checks that every stepped tick matches its log line.
func replay(snap snapshot.SnapshotV1, tune tuning.Tuning, ticks []tickEntry, upgrades []upgradeEntry, toTick uint64) (uint64, error) {
	w, err := garden.New(fieldConfig(snap, tune))
	if err != nil {
		return 0, fmt.Errorf("field: %w", err)
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return 0, fmt.Errorf("import snapshot: %w", err)
	}
	got := &lastTick{}
	w.SetTickLogger(got)

	byTick := map[uint64][]upgradeEntry{}
	for _, u := range upgrades {
		byTick[u.Tick] = append(byTick[u.Tick], u)
	}

	var checked uint64
	for _, want := range ticks {
		if want.Tick < w.CurrentTick() {
			continue
		}
		if toTick != 0 && want.Tick > toTick {
			break
		}
		if want.Tick != w.CurrentTick() {
			return checked, fmt.Errorf("tick gap: want=%d got=%d", w.CurrentTick(), want.Tick)
		}

		var reqs garden.Requests
		for range want.Joins {
			reqs.SpawnPets = append(reqs.SpawnPets, garden.SpawnPetRequest{})
		}
		for _, id := range want.Leaves {
			reqs.RemovePets = append(reqs.RemovePets, garden.RemovePetRequest{PetID: id, Abrupt: slices.Contains(want.Vanished, id)})
		}
		for _, u := range byTick[want.Tick] {
			if u.Upgraded {
				reqs.Upgrades = append(reqs.Upgrades, garden.UpgradeRequest{})
			} else {
				reqs.SetTiers = append(reqs.SetTiers, garden.SetTierRequest{Tier: u.Tier})
			}
		}

		tick := w.StepOnce(reqs)
		if err := compareTick(got.e, want); err != nil {
			return checked, fmt.Errorf("tick %d: %w", tick, err)
		}
		checked++
	}
	return checked, nil
}

func compareTick(got, want tickEntry) error {
	switch {
	case got.Tier != want.Tier:
		return fmt.Errorf("tier got=%d want=%d", got.Tier, want.Tier)
	case got.Coins != want.Coins:
		return fmt.Errorf("coins got=%d want=%d", got.Coins, want.Coins)
	case got.Crystals != want.Crystals:
		return fmt.Errorf("crystals got=%d want=%d", got.Crystals, want.Crystals)
	case got.Pets != want.Pets:
		return fmt.Errorf("pets got=%d want=%d", got.Pets, want.Pets)
	case got.Claims != want.Claims:
		return fmt.Errorf("claims got=%d want=%d", got.Claims, want.Claims)
	case !slices.Equal(got.Joins, want.Joins):
		return fmt.Errorf("joins got=%v want=%v", got.Joins, want.Joins)
	case !slices.Equal(got.Depleted, want.Depleted):
		return fmt.Errorf("depleted got=%v want=%v", got.Depleted, want.Depleted)
	}
	return nil
}
