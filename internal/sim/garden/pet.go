package garden

import (
	"crystalpets.ai/internal/sim/harvest"
)

// reachSlack absorbs rounding when a pet stops exactly at reach distance.
const reachSlack = 1e-9

type PetStats struct {
	Speed          float64
	Reach          float64
	HarvestPerTick float64
}

// Pet is a harvesting agent. It owns its movement and asks the harvest core which crystal it
// may work on.
type Pet struct {
	ID    string
	Name  string
	Pos   harvest.Vec3
	Stats PetStats

	Harvested float64

	target *Crystal
	gone   bool
}

func (p *Pet) AgentID() string {
	if p == nil {
		return ""
	}
	return p.ID
}

func (p *Pet) IsAlive() bool { return p != nil && !p.gone }

func (p *Pet) TargetID() string {
	if p.target == nil {
		return ""
	}
	return p.target.ID
}

type thinkResult struct {
	taken    float64
	depleted *Crystal
}

// think runs one decide, move, harvest pass.
func (p *Pet) think(core *harvest.Core) thinkResult {
	if !p.IsAlive() {
		return thinkResult{}
	}
	p.dropLostTarget(core)
	if p.target == nil && !p.pickTarget(core) {
		return thinkResult{}
	}

	p.moveToward(p.target.Pos)
	if p.Pos.Dist(p.target.Pos) > p.Stats.Reach+reachSlack {
		return thinkResult{}
	}

	// Re-affirm every tick while harvesting.
	core.Claims.Claim(p.target, p)
	taken := p.target.Harvest(p.Stats.HarvestPerTick)
	p.Harvested += taken
	res := thinkResult{taken: taken}
	if !p.target.IsAlive() {
		core.Claims.Release(p.target, p)
		res.depleted = p.target
		p.target = nil
	}
	return res
}

func (p *Pet) dropLostTarget(core *harvest.Core) {
	if p.target == nil {
		return
	}
	if !p.target.IsAlive() {
		core.Claims.Release(p.target, p)
		p.target = nil
		return
	}
	// Another pet claimed it after us in the same tick; last write wins, so move on.
	if holder, ok := core.Claims.HolderOf(p.target); ok && holder.AgentID() != p.ID {
		p.target = nil
	}
}

func (p *Pet) pickTarget(core *harvest.Core) bool {
	res, ok := core.Registry.NearestEligible(p.Pos, p)
	if !ok {
		return false
	}
	c, ok := res.(*Crystal)
	if !ok {
		return false
	}
	core.Claims.Claim(c, p)
	p.target = c
	return true
}

func (p *Pet) moveToward(dst harvest.Vec3) {
	d := dst.Sub(p.Pos)
	dist := p.Pos.Dist(dst)
	if dist <= p.Stats.Reach || dist == 0 {
		return
	}
	step := p.Stats.Speed
	if step > dist-p.Stats.Reach {
		step = dist - p.Stats.Reach
	}
	k := step / dist
	p.Pos = harvest.Vec3{X: p.Pos.X + d.X*k, Y: p.Pos.Y + d.Y*k, Z: p.Pos.Z + d.Z*k}
}

// leave releases every claim the pet holds before it goes away.
func (p *Pet) leave(core *harvest.Core) {
	core.Claims.ReleaseAll(p)
	p.target = nil
	p.gone = true
}

// vanish removes the pet without releasing anything; its claims go stale.
func (p *Pet) vanish() {
	p.target = nil
	p.gone = true
}
