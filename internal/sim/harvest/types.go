// Package harvest decides which crystal a pet may harvest.
//
// The registry tracks live resources and the allocator tracks exclusive claims on them.
// Neither owns the entities it references: liveness is asked of the entity every time it is
// read, and dead entries are dropped lazily on that read. Both types are single-threaded and
// must only be used from the simulation loop goroutine.
package harvest

import "math"

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

func (v Vec3) DistSq(o Vec3) float64 {
	d := v.Sub(o)
	return d.X*d.X + d.Y*d.Y + d.Z*d.Z
}

func (v Vec3) Dist(o Vec3) float64 { return math.Sqrt(v.DistSq(o)) }

// Resource is a harvestable entity owned elsewhere.
// ResourceID and IsAlive must be safe to call on a nil receiver.
type Resource interface {
	ResourceID() string
	IsAlive() bool
	Position() Vec3
	SetMaxHealth(hp float64)
}

// Agent is a harvester owned elsewhere.
// AgentID and IsAlive must be safe to call on a nil receiver.
type Agent interface {
	AgentID() string
	IsAlive() bool
}

func resourceGone(r Resource) bool { return r == nil || !r.IsAlive() }

func agentGone(a Agent) bool { return a == nil || !a.IsAlive() }

// Core bundles the registry with the allocator it consults.
type Core struct {
	Registry *Registry
	Claims   *Allocator
}

func NewCore() *Core {
	claims := NewAllocator()
	return &Core{
		Registry: NewRegistry(claims),
		Claims:   claims,
	}
}
