package observerproto_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"crystalpets.ai/internal/observerproto"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// roundTrip turns a Go value into the generic form the validator expects.
func roundTrip(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ValidateSamples(t *testing.T) {
	subSchema := compile(t, "observer_subscribe.schema.json")
	tickSchema := compile(t, "observer_tick.schema.json")

	var sub any
	_ = json.Unmarshal([]byte(`{
	  "type":"SUBSCRIBE",
	  "protocol_version":"0.1",
	  "every_ticks":5,
	  "include_field":true
	}`), &sub)
	if err := subSchema.Validate(sub); err != nil {
		t.Fatalf("validate subscribe: %v", err)
	}

	var tick any
	_ = json.Unmarshal([]byte(`{
	  "type":"TICK",
	  "protocol_version":"0.1",
	  "tick":42,
	  "progression":{"tier":2,"capacity":150,"upgrade_cost":150},
	  "coins":12,
	  "crystals":[{"id":"C1","pos":[0,0,0],"hp":75,"max_hp":150}],
	  "pets":[{"id":"P1","name":"Mochi","pos":[1,0,0],"target_id":"C1","harvested":25}],
	  "claims":[{"crystal_id":"C1","pet_id":"P1"}],
	  "events":[{"kind":"TIER_CHANGED","tier":2,"prev_tier":1,"capacity":150,"cost":150,"upgraded":true}]
	}`), &tick)
	if err := tickSchema.Validate(tick); err != nil {
		t.Fatalf("validate tick: %v", err)
	}
}

func TestSchemas_GoTypesMatch(t *testing.T) {
	tickSchema := compile(t, "observer_tick.schema.json")

	msg := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            7,
		Progression:     observerproto.Progression{Tier: 1, Capacity: 100, UpgradeCost: 100},
		Crystals: []observerproto.CrystalState{
			{ID: "C1", Pos: [3]float64{3, 0, -2}, HP: 100, MaxHP: 100},
		},
		Pets: []observerproto.PetState{
			{ID: "P1", Name: "Pip", Pos: [3]float64{0, 0, 0}},
		},
		Events: []observerproto.Event{
			{Kind: "PET_LEFT", PetID: "P2", Abrupt: true},
			{Kind: "CRYSTAL_SPAWNED", CrystalID: "C1"},
		},
	}
	if err := tickSchema.Validate(roundTrip(t, msg)); err != nil {
		t.Fatalf("validate TickMsg: %v", err)
	}

	subSchema := compile(t, "observer_subscribe.schema.json")
	sub := observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version, EveryTicks: 1}
	if err := subSchema.Validate(roundTrip(t, sub)); err != nil {
		t.Fatalf("validate SubscribeMsg: %v", err)
	}
}

func TestSchemas_RejectBadTier(t *testing.T) {
	tickSchema := compile(t, "observer_tick.schema.json")
	var bad any
	_ = json.Unmarshal([]byte(`{
	  "type":"TICK","protocol_version":"0.1","tick":1,"coins":0,
	  "progression":{"tier":0,"capacity":100,"upgrade_cost":100}
	}`), &bad)
	if err := tickSchema.Validate(bad); err == nil {
		t.Fatalf("tier 0 should not validate")
	}
}
