package garden

import (
	"testing"

	"crystalpets.ai/internal/sim/progression"
)

func testConfig() WorldConfig {
	return WorldConfig{
		ID:            "garden_test",
		TickRateHz:    100,
		Seed:          7,
		Radius:        2,
		CrystalTarget: 1,
		RespawnTicks:  100,
		CoinsPerHP:    1,
		PetStats:      PetStats{Speed: 10, Reach: 1.5, HarvestPerTick: 50},
		Formula:       progression.DefaultFormula(),
	}
}

func newTestWorld(t *testing.T, mod func(*WorldConfig)) *World {
	t.Helper()
	cfg := testConfig()
	if mod != nil {
		mod(&cfg)
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

type memLogs struct {
	ticks    []TickLogEntry
	upgrades []UpgradeEntry
}

func (m *memLogs) WriteTick(e TickLogEntry) error {
	m.ticks = append(m.ticks, e)
	return nil
}

func (m *memLogs) WriteUpgrade(e UpgradeEntry) error {
	m.upgrades = append(m.upgrades, e)
	return nil
}

func spawn(names ...string) Requests {
	var r Requests
	for _, n := range names {
		r.SpawnPets = append(r.SpawnPets, SpawnPetRequest{Name: n})
	}
	return r
}

func holderOf(t *testing.T, w *World, crystalID string) string {
	t.Helper()
	c := w.crystals[crystalID]
	if c == nil {
		t.Fatalf("crystal %s not in field", crystalID)
	}
	h, ok := w.core.Claims.HolderOf(c)
	if !ok {
		return ""
	}
	return h.AgentID()
}
