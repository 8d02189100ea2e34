package garden

import (
	"fmt"

	"crystalpets.ai/internal/persistence/snapshot"
	"crystalpets.ai/internal/sim/harvest"
)

func vec(v harvest.Vec3) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func unvec(a [3]float64) harvest.Vec3 { return harvest.Vec3{X: a[0], Y: a[1], Z: a[2]} }

// ExportSnapshot captures the field as of nowTick. Must be called from the loop goroutine.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			FieldID: w.cfg.ID,
			RunID:   w.runID,
			Tick:    nowTick,
		},
		Seed:          w.cfg.Seed,
		TickRate:      w.cfg.TickRateHz,
		Radius:        w.cfg.Radius,
		CrystalTarget: w.cfg.CrystalTarget,
		RespawnTicks:  w.cfg.RespawnTicks,
		Tier:          w.prog.CurrentTier(),
		Coins:         w.ledger.coins,
		CoinFrac:      w.ledger.frac,
		Respawns:      append([]uint64(nil), w.respawns...),
		Counters: snapshot.CountersV1{
			NextCrystal: w.nextCrystalNum,
			NextPet:     w.nextPetNum,
		},
	}
	for _, c := range w.sortedCrystals() {
		snap.Crystals = append(snap.Crystals, snapshot.CrystalV1{
			ID:          c.ID,
			Pos:         vec(c.Pos),
			HP:          c.HP,
			MaxHP:       c.MaxHP,
			SpawnedTick: c.SpawnedTick,
		})
	}
	for _, p := range w.sortedPets() {
		snap.Pets = append(snap.Pets, snapshot.PetV1{
			ID:             p.ID,
			Name:           p.Name,
			Pos:            vec(p.Pos),
			Speed:          p.Stats.Speed,
			Reach:          p.Stats.Reach,
			HarvestPerTick: p.Stats.HarvestPerTick,
			Harvested:      p.Harvested,
			TargetID:       p.TargetID(),
		})
	}
	return snap
}

// ImportSnapshot replaces the field with a saved one. The tier is restored with SetTier so no coins
// change hands; crystals are registered afterwards so their saved HP is kept as-is.
// Must be called before Run starts.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", s.Header.Version)
	}
	if s.Header.FieldID != "" && s.Header.FieldID != w.cfg.ID {
		return fmt.Errorf("snapshot field %q does not match world %q", s.Header.FieldID, w.cfg.ID)
	}

	for _, c := range w.crystals {
		c.Destroy()
		w.core.Registry.Unregister(c)
	}
	for _, p := range w.pets {
		p.leave(w.core)
	}
	w.crystals = map[string]*Crystal{}
	w.pets = map[string]*Pet{}

	w.prog.SetTier(s.Tier)
	w.ledger.coins = s.Coins
	w.ledger.frac = s.CoinFrac

	for _, cv := range s.Crystals {
		c := NewCrystal(cv.ID, unvec(cv.Pos), cv.MaxHP, cv.SpawnedTick)
		c.HP = cv.HP
		w.crystals[c.ID] = c
		w.core.Registry.Register(c)
	}
	for _, pv := range s.Pets {
		p := &Pet{
			ID:        pv.ID,
			Name:      pv.Name,
			Pos:       unvec(pv.Pos),
			Stats:     PetStats{Speed: pv.Speed, Reach: pv.Reach, HarvestPerTick: pv.HarvestPerTick},
			Harvested: pv.Harvested,
		}
		if c := w.crystals[pv.TargetID]; c != nil {
			p.target = c
			w.core.Claims.Claim(c, p)
		}
		w.pets[p.ID] = p
	}

	w.respawns = append([]uint64(nil), s.Respawns...)
	w.nextCrystalNum = s.Counters.NextCrystal
	w.nextPetNum = s.Counters.NextPet
	w.tick.Store(s.Header.Tick + 1)

	// Restoring is not news to observers.
	w.events = w.events[:0]
	w.publishMetrics(0)
	return nil
}
