// Package progression holds the process-wide capacity tier of the crystal field.
//
// Raising the tier rescales every live crystal's max health and the price of the next raise.
// Progression never charges for an upgrade; the caller debits the cost first.
package progression

import (
	"math"

	"crystalpets.ai/internal/sim/harvest"
)

const (
	DefaultCapacityBase = 100.0
	DefaultCostBase     = 100.0
	DefaultGrowth       = 1.5
)

// Formula maps a tier to a capacity and an upgrade cost. Both grow geometrically with the same
// shape but stay separate so they can diverge.
type Formula struct {
	CapacityBase float64
	CostBase     float64
	Growth       float64
}

func DefaultFormula() Formula {
	return Formula{CapacityBase: DefaultCapacityBase, CostBase: DefaultCostBase, Growth: DefaultGrowth}
}

func (f Formula) normalized() Formula {
	if f.CapacityBase <= 0 {
		f.CapacityBase = DefaultCapacityBase
	}
	if f.CostBase <= 0 {
		f.CostBase = DefaultCostBase
	}
	if f.Growth < 1 {
		f.Growth = DefaultGrowth
	}
	return f
}

func (f Formula) CapacityAt(tier int) float64 {
	f = f.normalized()
	return f.CapacityBase * math.Pow(f.Growth, float64(clampTier(tier)-1))
}

func (f Formula) CostAt(tier int) int64 {
	f = f.normalized()
	return int64(math.Round(f.CostBase * math.Pow(f.Growth, float64(clampTier(tier)-1))))
}

func clampTier(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// TierChange is delivered to listeners after the new capacity has been pushed to every crystal.
type TierChange struct {
	Tier     int
	PrevTier int
	Capacity float64
	Cost     int64
	// Upgraded is true for Upgrade and false for SetTier (restore or debug assignment).
	Upgraded bool
}

// Listener implementations must be comparable (typically a pointer) so Unsubscribe can find them.
type Listener interface {
	OnTierChanged(change TierChange)
}

// Targets is the set of crystals a tier change is pushed to.
type Targets interface {
	ListAlive() []harvest.Resource
}

// Progression is single-threaded; use it from the simulation loop only.
type Progression struct {
	formula Formula
	targets Targets

	tier     int
	capacity float64

	listeners []Listener
}

// New starts at tier 1. targets may be nil when there is nothing to push capacity to.
func New(f Formula, targets Targets) *Progression {
	p := &Progression{
		formula: f.normalized(),
		targets: targets,
		tier:    1,
	}
	p.capacity = p.formula.CapacityAt(p.tier)
	return p
}

func (p *Progression) Formula() Formula { return p.formula }

func (p *Progression) CurrentTier() int { return p.tier }

func (p *Progression) CurrentCapacity() float64 { return p.capacity }

func (p *Progression) UpgradeCost() int64 { return p.formula.CostAt(p.tier) }

// Upgrade raises the tier by one, pushes the new capacity and notifies listeners.
func (p *Progression) Upgrade() TierChange {
	return p.apply(p.tier+1, true)
}

// SetTier assigns an absolute tier (minimum 1) without any cost semantics. It is meant for
// restoring saved progress and for debugging. Listeners are notified with Upgraded=false.
func (p *Progression) SetTier(n int) TierChange {
	return p.apply(clampTier(n), false)
}

func (p *Progression) apply(tier int, upgraded bool) TierChange {
	prev := p.tier
	p.tier = tier
	p.capacity = p.formula.CapacityAt(tier)
	p.broadcast()

	change := TierChange{
		Tier:     p.tier,
		PrevTier: prev,
		Capacity: p.capacity,
		Cost:     p.UpgradeCost(),
		Upgraded: upgraded,
	}
	// Copy so a listener may unsubscribe itself.
	ls := append([]Listener(nil), p.listeners...)
	for _, l := range ls {
		l.OnTierChanged(change)
	}
	return change
}

func (p *Progression) broadcast() {
	if p.targets == nil {
		return
	}
	for _, r := range p.targets.ListAlive() {
		r.SetMaxHealth(p.capacity)
	}
}

// Subscribe registers l. Subscribing the same listener twice is a no-op.
func (p *Progression) Subscribe(l Listener) {
	if l == nil {
		return
	}
	for _, cur := range p.listeners {
		if cur == l {
			return
		}
	}
	p.listeners = append(p.listeners, l)
}

func (p *Progression) Unsubscribe(l Listener) {
	for i, cur := range p.listeners {
		if cur == l {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			return
		}
	}
}
