package garden

import (
	"math"
	"sort"

	"crystalpets.ai/internal/sim/harvest"
)

const (
	saltCrystal uint64 = 0xC0FFEE
	saltPet     uint64 = 0xBEEF
)

// hash3 is a splitmix64-style mix of seed and two keys. Deterministic across runs and platforms.
func hash3(seed int64, a, b uint64) uint64 {
	x := uint64(seed) ^ 0x9E3779B97F4A7C15
	x ^= a * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x ^= b * 0x94D049BB133111EB
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

func unit(h uint64) float64 { return float64(h>>11) / float64(uint64(1)<<53) }

// scatter places point n uniformly inside a disc of the given radius on the XZ plane.
func scatter(seed int64, n, salt uint64, radius float64) harvest.Vec3 {
	theta := 2 * math.Pi * unit(hash3(seed, n, salt))
	r := radius * math.Sqrt(unit(hash3(seed, n, salt+1)))
	return harvest.Vec3{X: r * math.Cos(theta), Z: r * math.Sin(theta)}
}

func (w *World) spawnCrystal(nowTick uint64) *Crystal {
	id := w.newCrystalID()
	pos := scatter(w.cfg.Seed, w.nextCrystalNum, saltCrystal, w.cfg.Radius)
	c := NewCrystal(id, pos, w.prog.CurrentCapacity(), nowTick)
	w.crystals[id] = c
	w.core.Registry.Register(c)
	w.events = append(w.events, eventCrystal("CRYSTAL_SPAWNED", id))
	return c
}

// fillField tops the field up to CrystalTarget live crystals.
func (w *World) fillField() {
	now := w.tick.Load()
	for len(w.crystals) < w.cfg.CrystalTarget {
		w.spawnCrystal(now)
	}
}

// spawnDue spawns one crystal for each respawn timer that has come due.
func (w *World) spawnDue(nowTick uint64) {
	if len(w.respawns) == 0 {
		return
	}
	sort.Slice(w.respawns, func(i, j int) bool { return w.respawns[i] < w.respawns[j] })
	n := 0
	for n < len(w.respawns) && w.respawns[n] <= nowTick {
		n++
	}
	w.respawns = w.respawns[n:]
	for i := 0; i < n && len(w.crystals) < w.cfg.CrystalTarget; i++ {
		w.spawnCrystal(nowTick)
	}
}

func (w *World) removeCrystal(c *Crystal, nowTick uint64) {
	c.Destroy()
	delete(w.crystals, c.ID)
	w.core.Registry.Unregister(c)
	w.respawns = append(w.respawns, nowTick+uint64(w.cfg.RespawnTicks))
}

func (w *World) addPet(name string) *Pet {
	id := w.newPetID()
	if name == "" {
		name = id
	}
	p := &Pet{
		ID:    id,
		Name:  name,
		Pos:   scatter(w.cfg.Seed, w.nextPetNum, saltPet, w.cfg.Radius/4),
		Stats: w.cfg.PetStats,
	}
	w.pets[id] = p
	w.tickJoins = append(w.tickJoins, id)
	w.events = append(w.events, eventPet("PET_JOINED", id, false))
	return p
}

func (w *World) dropPet(id string, abrupt bool) error {
	p := w.pets[id]
	if p == nil {
		return ErrUnknownPet
	}
	if abrupt {
		p.vanish()
	} else {
		p.leave(w.core)
	}
	delete(w.pets, id)
	w.tickLeave = append(w.tickLeave, id)
	if abrupt {
		w.tickVanish = append(w.tickVanish, id)
	}
	w.events = append(w.events, eventPet("PET_LEFT", id, abrupt))
	return nil
}
