package garden

import (
	"time"

	"crystalpets.ai/internal/observerproto"
)

func (w *World) step(reqs Requests) {
	start := time.Now()
	nowTick := w.tick.Load()

	w.applyRequests(reqs)
	w.spawnDue(nowTick)

	var harvested float64
	var depleted []string
	for _, p := range w.sortedPets() {
		res := p.think(w.core)
		harvested += res.taken
		if res.depleted != nil {
			depleted = append(depleted, res.depleted.ID)
			w.removeCrystal(res.depleted, nowTick)
			w.events = append(w.events, eventCrystal("CRYSTAL_DEPLETED", res.depleted.ID))
		}
	}
	earned := w.ledger.Earn(harvested, w.cfg.CoinsPerHP)

	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{
			Tick:      nowTick,
			Tier:      w.prog.CurrentTier(),
			Coins:     w.ledger.Balance(),
			Earned:    earned,
			Harvested: harvested,
			Crystals:  w.core.Registry.Count(),
			Pets:      len(w.pets),
			Claims:    len(w.core.Claims.Holders()),
			Joins:     w.tickJoins,
			Leaves:    w.tickLeave,
			Vanished:  w.tickVanish,
			Depleted:  depleted,
		})
	}

	w.broadcastObserverTick(nowTick)

	if w.snapshotSink != nil && w.cfg.SnapshotEveryTicks > 0 && nowTick > 0 && nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		select {
		case w.snapshotSink <- w.ExportSnapshot(nowTick):
		default:
			// Writer is behind; skip rather than stall the loop.
		}
	}

	w.events = w.events[:0]
	w.tickJoins = nil
	w.tickLeave = nil
	w.tickVanish = nil
	w.tick.Add(1)
	w.publishMetrics(time.Since(start))
}

func (w *World) applyRequests(reqs Requests) {
	for _, r := range reqs.SpawnPets {
		p := w.addPet(r.Name)
		reply(r.Resp, SpawnPetResponse{PetID: p.ID})
	}
	for _, r := range reqs.RemovePets {
		err := w.dropPet(r.PetID, r.Abrupt)
		reply(r.Resp, err)
	}
	for _, r := range reqs.SetTiers {
		change := w.prog.SetTier(r.Tier)
		reply(r.Resp, change)
	}
	for _, r := range reqs.Upgrades {
		w.lastPaid = w.prog.UpgradeCost()
		rec, err := w.shop.BuyUpgrade()
		w.lastPaid = 0
		reply(r.Resp, UpgradeResponse{Receipt: rec, Err: err})
	}
}

// reply never blocks the loop; a caller that gave up just misses the answer.
func reply[T any](ch chan T, v T) {
	if ch == nil {
		return
	}
	select {
	case ch <- v:
	default:
	}
}

func eventCrystal(kind, id string) observerproto.Event {
	return observerproto.Event{Kind: kind, CrystalID: id}
}

func eventPet(kind, id string, abrupt bool) observerproto.Event {
	return observerproto.Event{Kind: kind, PetID: id, Abrupt: abrupt}
}
