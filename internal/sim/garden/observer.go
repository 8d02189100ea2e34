package garden

import (
	"encoding/json"

	"crystalpets.ai/internal/observerproto"
)

// ObserverJoinRequest registers a read-only observer session that receives per-tick TICK messages
// on TickOut. All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte

	EveryTicks   int
	IncludeField bool
}

// ObserverSubscribeRequest updates an existing observer session subscription settings.
type ObserverSubscribeRequest struct {
	SessionID string

	EveryTicks   int
	IncludeField bool
}

type observerClient struct {
	id      string
	tickOut chan []byte

	everyTicks   int
	includeField bool
}

func clampEvery(n int) int {
	switch {
	case n < 1:
		return 1
	case n > 600:
		return 600
	}
	return n
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil {
		return
	}
	if old := w.observers[req.SessionID]; old != nil {
		close(old.tickOut)
	}
	w.observers[req.SessionID] = &observerClient{
		id:           req.SessionID,
		tickOut:      req.TickOut,
		everyTicks:   clampEvery(req.EveryTicks),
		includeField: req.IncludeField,
	}
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	c.everyTicks = clampEvery(req.EveryTicks)
	c.includeField = req.IncludeField
}

func (w *World) handleObserverLeave(sessionID string) {
	c := w.observers[sessionID]
	if c == nil {
		return
	}
	delete(w.observers, sessionID)
	close(c.tickOut)
}

func (w *World) progressionState() observerproto.Progression {
	return observerproto.Progression{
		Tier:        w.prog.CurrentTier(),
		Capacity:    w.prog.CurrentCapacity(),
		UpgradeCost: w.prog.UpgradeCost(),
		MaxTier:     w.cfg.MaxTier,
	}
}

// broadcastObserverTick encodes at most two variants per tick (with and without field lists) and
// hands them to sessions without blocking. Ticks with events are always sent.
func (w *World) broadcastObserverTick(nowTick uint64) {
	if len(w.observers) == 0 {
		return
	}
	base := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            nowTick,
		Progression:     w.progressionState(),
		Coins:           w.ledger.Balance(),
		Events:          w.events,
	}

	var slim, full []byte
	for _, c := range w.observers {
		if nowTick%uint64(c.everyTicks) != 0 && len(w.events) == 0 {
			continue
		}
		var b []byte
		if c.includeField {
			if full == nil {
				full = w.encodeTick(w.withField(base))
			}
			b = full
		} else {
			if slim == nil {
				slim = w.encodeTick(base)
			}
			b = slim
		}
		if b != nil {
			sendLatest(c.tickOut, b)
		}
	}
}

func (w *World) withField(msg observerproto.TickMsg) observerproto.TickMsg {
	for _, c := range w.sortedCrystals() {
		msg.Crystals = append(msg.Crystals, observerproto.CrystalState{
			ID: c.ID, Pos: vec(c.Pos), HP: c.HP, MaxHP: c.MaxHP,
		})
	}
	for _, p := range w.sortedPets() {
		msg.Pets = append(msg.Pets, observerproto.PetState{
			ID: p.ID, Name: p.Name, Pos: vec(p.Pos), TargetID: p.TargetID(), Harvest: p.Harvested,
		})
	}
	for _, h := range w.core.Claims.Holders() {
		msg.Claims = append(msg.Claims, observerproto.ClaimState{CrystalID: h.ResourceID, PetID: h.AgentID})
	}
	return msg
}

func (w *World) encodeTick(msg observerproto.TickMsg) []byte {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return b
}

// sendLatest drops the oldest queued message when the session is behind.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

// ObserverBootstrap is safe to call from other goroutines; it reads the published metrics.
func (w *World) ObserverBootstrap() observerproto.BootstrapResponse {
	m := w.Metrics()
	return observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		FieldID:         w.cfg.ID,
		Tick:            m.Tick,
		FieldParams: observerproto.FieldParams{
			TickRateHz:    w.cfg.TickRateHz,
			Seed:          w.cfg.Seed,
			Radius:        w.cfg.Radius,
			CrystalTarget: w.cfg.CrystalTarget,
		},
		Progression: observerproto.Progression{
			Tier:        m.Tier,
			Capacity:    m.Capacity,
			UpgradeCost: m.UpgradeCost,
			MaxTier:     m.MaxTier,
		},
	}
}
