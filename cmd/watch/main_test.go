package main

import (
	"strings"
	"testing"

	"crystalpets.ai/internal/observerproto"
)

func TestDescribeTick(t *testing.T) {
	msg := &observerproto.TickMsg{
		Tick:        42,
		Progression: observerproto.Progression{Tier: 3, Capacity: 225, UpgradeCost: 225},
		Coins:       17,
		Pets:        []observerproto.PetState{{ID: "P1"}},
		Claims:      []observerproto.ClaimState{{CrystalID: "C1", PetID: "P1"}},
		Events: []observerproto.Event{
			{Kind: "TIER_CHANGED", Tier: 3, PrevTier: 2, Capacity: 225, Upgraded: true},
			{Kind: "PET_LEFT", PetID: "P2", Abrupt: true},
			{Kind: "CRYSTAL_DEPLETED", CrystalID: "C4"},
		},
	}
	got := describeTick(msg, true)
	for _, want := range []string{
		"tick=42 tier=3 capacity=225.0 next_cost=225 coins=17",
		"pets=1 claims=1",
		"TIER_CHANGED 2->3 capacity=225.0 upgraded=true",
		"PET_LEFT P2 abrupt=true",
		"CRYSTAL_DEPLETED C4",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
	if strings.Contains(describeTick(msg, false), "TIER_CHANGED") {
		t.Fatalf("events logged when disabled")
	}
}
