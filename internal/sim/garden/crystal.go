package garden

import "crystalpets.ai/internal/sim/harvest"

// Crystal is a harvestable resource. It dies when its HP reaches zero.
type Crystal struct {
	ID    string
	Pos   harvest.Vec3
	HP    float64
	MaxHP float64

	SpawnedTick uint64
	dead        bool
}

func NewCrystal(id string, pos harvest.Vec3, maxHP float64, nowTick uint64) *Crystal {
	return &Crystal{ID: id, Pos: pos, HP: maxHP, MaxHP: maxHP, SpawnedTick: nowTick}
}

func (c *Crystal) ResourceID() string {
	if c == nil {
		return ""
	}
	return c.ID
}

func (c *Crystal) IsAlive() bool { return c != nil && !c.dead }

func (c *Crystal) Position() harvest.Vec3 { return c.Pos }

// SetMaxHealth rescales HP so the crystal keeps the same fraction of its health.
func (c *Crystal) SetMaxHealth(hp float64) {
	if c == nil || hp <= 0 {
		return
	}
	if c.MaxHP > 0 {
		c.HP = c.HP * hp / c.MaxHP
	} else {
		c.HP = hp
	}
	c.MaxHP = hp
}

// Harvest removes up to amount HP and returns what was actually taken.
func (c *Crystal) Harvest(amount float64) float64 {
	if !c.IsAlive() || amount <= 0 {
		return 0
	}
	if amount > c.HP {
		amount = c.HP
	}
	c.HP -= amount
	if c.HP <= 0 {
		c.HP = 0
		c.dead = true
	}
	return amount
}

// Destroy removes the crystal from play without harvesting it.
func (c *Crystal) Destroy() {
	if c != nil {
		c.dead = true
	}
}
