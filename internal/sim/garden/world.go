package garden

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"crystalpets.ai/internal/observerproto"
	"crystalpets.ai/internal/persistence/snapshot"
	"crystalpets.ai/internal/sim/harvest"
	"crystalpets.ai/internal/sim/progression"
)

type WorldConfig struct {
	ID         string
	TickRateHz int
	Seed       int64

	Radius        float64
	CrystalTarget int
	RespawnTicks  int

	SnapshotEveryTicks int

	StartingCoins int64
	CoinsPerHP    float64
	PetStats      PetStats

	Formula progression.Formula
	MaxTier int
}

func (c WorldConfig) validate() error {
	switch {
	case c.ID == "":
		return errors.New("world id is required")
	case c.TickRateHz <= 0:
		return fmt.Errorf("tick rate must be > 0, got %d", c.TickRateHz)
	case c.Radius <= 0:
		return fmt.Errorf("radius must be > 0, got %v", c.Radius)
	case c.CrystalTarget < 0:
		return fmt.Errorf("crystal target must be >= 0, got %d", c.CrystalTarget)
	case c.RespawnTicks < 0:
		return fmt.Errorf("respawn ticks must be >= 0, got %d", c.RespawnTicks)
	case c.MaxTier < 0:
		return fmt.Errorf("max tier must be >= 0, got %d", c.MaxTier)
	}
	return nil
}

type SpawnPetRequest struct {
	Name string
	Resp chan SpawnPetResponse
}

type SpawnPetResponse struct {
	PetID string
	Err   error
}

// RemovePetRequest removes a pet. Abrupt removal skips the claim release, as if the pet crashed.
type RemovePetRequest struct {
	PetID  string
	Abrupt bool
	Resp   chan error
}

type UpgradeRequest struct {
	Resp chan UpgradeResponse
}

type UpgradeResponse struct {
	Receipt UpgradeReceipt
	Err     error
}

type SetTierRequest struct {
	Tier int
	Resp chan progression.TierChange
}

// Requests is everything applied at the start of one tick, in field order.
type Requests struct {
	SpawnPets  []SpawnPetRequest
	RemovePets []RemovePetRequest
	SetTiers   []SetTierRequest
	Upgrades   []UpgradeRequest
}

func (r *Requests) reset() {
	r.SpawnPets = r.SpawnPets[:0]
	r.RemovePets = r.RemovePets[:0]
	r.SetTiers = r.SetTiers[:0]
	r.Upgrades = r.Upgrades[:0]
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type UpgradeLogger interface {
	WriteUpgrade(entry UpgradeEntry) error
}

type TickLogEntry struct {
	Tick      uint64   `json:"tick"`
	Tier      int      `json:"tier"`
	Coins     int64    `json:"coins"`
	Earned    int64    `json:"earned,omitempty"`
	Harvested float64  `json:"harvested,omitempty"`
	Crystals  int      `json:"crystals"`
	Pets      int      `json:"pets"`
	Claims    int      `json:"claims"`
	Joins     []string `json:"joins,omitempty"`
	Leaves    []string `json:"leaves,omitempty"`
	Vanished  []string `json:"vanished,omitempty"`
	Depleted  []string `json:"depleted,omitempty"`
}

type UpgradeEntry struct {
	Tick     uint64  `json:"tick"`
	Tier     int     `json:"tier"`
	PrevTier int     `json:"prev_tier"`
	Capacity float64 `json:"capacity"`
	NextCost int64   `json:"next_cost"`
	Paid     int64   `json:"paid,omitempty"`
	Upgraded bool    `json:"upgraded"`
	Balance  int64   `json:"balance"`
}

// World is a single-threaded authoritative garden simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig

	tick atomic.Uint64

	core   *harvest.Core
	prog   *progression.Progression
	ledger *Ledger
	shop   *Shop

	crystals map[string]*Crystal
	pets     map[string]*Pet
	respawns []uint64

	nextCrystalNum uint64
	nextPetNum     uint64

	spawnPet  chan SpawnPetRequest
	removePet chan RemovePetRequest
	upgrade   chan UpgradeRequest
	setTier   chan SetTierRequest
	admin     chan adminSnapshotReq
	stop      chan struct{}

	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	observers     map[string]*observerClient

	// Per-tick scratch, flushed at the end of step.
	events     []observerproto.Event
	lastPaid   int64
	tickJoins  []string
	tickLeave  []string
	tickVanish []string // subset of tickLeave that left without releasing claims

	// Optional loggers (may be nil). Implemented in internal/persistence/log.
	tickLogger    TickLogger
	upgradeLogger UpgradeLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1
	runID        string

	metrics atomic.Value // WorldMetrics
}

func New(cfg WorldConfig) (*World, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	core := harvest.NewCore()
	prog := progression.New(cfg.Formula, core.Registry)
	ledger := NewLedger(cfg.StartingCoins)

	w := &World{
		cfg:           cfg,
		core:          core,
		prog:          prog,
		ledger:        ledger,
		shop:          &Shop{Ledger: ledger, Progression: prog, MaxTier: cfg.MaxTier},
		crystals:      map[string]*Crystal{},
		pets:          map[string]*Pet{},
		spawnPet:      make(chan SpawnPetRequest, 64),
		removePet:     make(chan RemovePetRequest, 64),
		upgrade:       make(chan UpgradeRequest, 64),
		setTier:       make(chan SetTierRequest, 16),
		admin:         make(chan adminSnapshotReq, 16),
		stop:          make(chan struct{}),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 16),
		observerLeave: make(chan string, 16),
		observers:     map[string]*observerClient{},
	}
	prog.Subscribe(&tierEvents{w: w})
	w.fillField()
	w.publishMetrics(0)
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetUpgradeLogger(l UpgradeLogger)              { w.upgradeLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }
func (w *World) SetRunID(id string)                            { w.runID = id }

func (w *World) SpawnPetCh() chan<- SpawnPetRequest                 { return w.spawnPet }
func (w *World) RemovePetCh() chan<- RemovePetRequest               { return w.removePet }
func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

func (w *World) ID() string          { return w.cfg.ID }
func (w *World) Config() WorldConfig { return w.cfg }
func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending Requests
	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.spawnPet:
			pending.SpawnPets = append(pending.SpawnPets, req)
		case req := <-w.removePet:
			pending.RemovePets = append(pending.RemovePets, req)
		case req := <-w.setTier:
			pending.SetTiers = append(pending.SetTiers, req)
		case req := <-w.upgrade:
			pending.Upgrades = append(pending.Upgrades, req)
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case <-ticker.C:
			w.step(pending)
			w.handleAdminSnapshotRequests(pendingAdmin)
			pending.reset()
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering semantics as Run.
func (w *World) StepOnce(reqs Requests) uint64 {
	tick := w.tick.Load()
	w.step(reqs)
	return tick
}

// BuyUpgrade asks the loop to sell one tier upgrade. Safe to call from other goroutines.
func (w *World) BuyUpgrade(ctx context.Context) (UpgradeReceipt, error) {
	resp := make(chan UpgradeResponse, 1)
	select {
	case w.upgrade <- UpgradeRequest{Resp: resp}:
	case <-ctx.Done():
		return UpgradeReceipt{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.Receipt, r.Err
	case <-ctx.Done():
		return UpgradeReceipt{}, ctx.Err()
	}
}

// SetTier forces the tier without charging coins.
func (w *World) SetTier(ctx context.Context, n int) (progression.TierChange, error) {
	resp := make(chan progression.TierChange, 1)
	select {
	case w.setTier <- SetTierRequest{Tier: n, Resp: resp}:
	case <-ctx.Done():
		return progression.TierChange{}, ctx.Err()
	}
	select {
	case ch := <-resp:
		return ch, nil
	case <-ctx.Done():
		return progression.TierChange{}, ctx.Err()
	}
}

func (w *World) SpawnPet(ctx context.Context, name string) (string, error) {
	resp := make(chan SpawnPetResponse, 1)
	select {
	case w.spawnPet <- SpawnPetRequest{Name: name, Resp: resp}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-resp:
		return r.PetID, r.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (w *World) RemovePet(ctx context.Context, id string, abrupt bool) error {
	resp := make(chan error, 1)
	select {
	case w.removePet <- RemovePetRequest{PetID: id, Abrupt: abrupt, Resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

var ErrUnknownPet = errors.New("unknown pet")

func (w *World) newCrystalID() string {
	w.nextCrystalNum++
	return fmt.Sprintf("C%d", w.nextCrystalNum)
}

func (w *World) newPetID() string {
	w.nextPetNum++
	return fmt.Sprintf("P%d", w.nextPetNum)
}

func (w *World) sortedPets() []*Pet {
	out := make([]*Pet, 0, len(w.pets))
	for _, p := range w.pets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out
}

func (w *World) sortedCrystals() []*Crystal {
	out := make([]*Crystal, 0, len(w.crystals))
	for _, c := range w.crystals {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out
}

// idLess orders "P2" before "P10".
func idLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// tierEvents turns progression changes into observer events and upgrade log entries.
type tierEvents struct{ w *World }

func (t *tierEvents) OnTierChanged(c progression.TierChange) {
	w := t.w
	w.events = append(w.events, observerproto.Event{
		Kind:     "TIER_CHANGED",
		Tier:     c.Tier,
		PrevTier: c.PrevTier,
		Capacity: c.Capacity,
		Cost:     c.Cost,
		Upgraded: c.Upgraded,
	})
	if w.upgradeLogger != nil {
		_ = w.upgradeLogger.WriteUpgrade(UpgradeEntry{
			Tick:     w.tick.Load(),
			Tier:     c.Tier,
			PrevTier: c.PrevTier,
			Capacity: c.Capacity,
			NextCost: c.Cost,
			Paid:     w.lastPaid,
			Upgraded: c.Upgraded,
			Balance:  w.ledger.Balance(),
		})
	}
}
