package harvest

import "testing"

type stubResource struct {
	id    string
	pos   Vec3
	dead  bool
	maxHP float64
}

func (s *stubResource) ResourceID() string {
	if s == nil {
		return ""
	}
	return s.id
}
func (s *stubResource) IsAlive() bool           { return s != nil && !s.dead }
func (s *stubResource) Position() Vec3          { return s.pos }
func (s *stubResource) SetMaxHealth(hp float64) { s.maxHP = hp }

type stubAgent struct {
	id   string
	dead bool
}

func (s *stubAgent) AgentID() string {
	if s == nil {
		return ""
	}
	return s.id
}
func (s *stubAgent) IsAlive() bool { return s != nil && !s.dead }

func res(id string, x float64) *stubResource {
	return &stubResource{id: id, pos: Vec3{X: x}}
}

func ids(rs []Resource) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ResourceID())
	}
	return out
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	a := res("C1", 0)
	r.Register(a)
	r.Register(a)
	r.Register(&stubResource{id: "C1"})
	r.Register(nil)

	if got := r.Count(); got != 1 {
		t.Fatalf("count: got %d want 1", got)
	}
}

func TestRegistry_RegisterReplacesUnprunedDeadEntry(t *testing.T) {
	r := NewRegistry(nil)
	old := res("C1", 0)
	r.Register(old)
	r.Register(res("C2", 1))
	old.dead = true

	fresh := res("C1", 5)
	r.Register(fresh)

	got := r.ListAlive()
	if len(got) != 2 || got[0] != Resource(fresh) || got[1].ResourceID() != "C2" {
		t.Fatalf("alive: %v", ids(got))
	}
	if found, ok := r.Lookup("C1"); !ok || found != Resource(fresh) {
		t.Fatalf("lookup C1: %v %v", found, ok)
	}
	if near, ok := r.NearestEligible(Vec3{X: 6}, &stubAgent{id: "A"}); !ok || near != Resource(fresh) {
		t.Fatalf("nearest: %v %v", near, ok)
	}
}

func TestRegistry_UnregisterAbsentIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	r.Unregister(res("missing", 0))
	r.Unregister(nil)
	r.UnregisterID("missing")

	a, b := res("C1", 0), res("C2", 1)
	r.Register(a)
	r.Register(b)
	r.Unregister(a)
	r.Unregister(a)

	got := ids(r.ListAlive())
	if len(got) != 1 || got[0] != "C2" {
		t.Fatalf("after unregister: got %v want [C2]", got)
	}
}

func TestRegistry_ListAlivePrunesDeadAndKeepsOrder(t *testing.T) {
	r := NewRegistry(nil)
	a, b, c := res("C1", 0), res("C2", 1), res("C3", 2)
	r.Register(a)
	r.Register(b)
	r.Register(c)

	b.dead = true
	got := ids(r.ListAlive())
	if len(got) != 2 || got[0] != "C1" || got[1] != "C3" {
		t.Fatalf("list alive: got %v want [C1 C3]", got)
	}

	// Pruning is permanent: reviving the entity does not bring it back.
	b.dead = false
	if got := r.Count(); got != 2 {
		t.Fatalf("count after revive: got %d want 2", got)
	}
	// But it can be registered again.
	r.Register(b)
	got = ids(r.ListAlive())
	if len(got) != 3 || got[2] != "C2" {
		t.Fatalf("re-register: got %v want [C1 C3 C2]", got)
	}
}

func TestRegistry_ListAliveReturnsCopy(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(res("C1", 0))
	r.Register(res("C2", 1))

	snap := r.ListAlive()
	snap[0] = res("X", 9)
	r.Register(res("C3", 2))

	if len(snap) != 2 {
		t.Fatalf("snapshot grew: %v", ids(snap))
	}
	got := ids(r.ListAlive())
	if got[0] != "C1" {
		t.Fatalf("caller mutation leaked into registry: %v", got)
	}
}

func TestRegistry_NeverListsDuplicatesOrDead(t *testing.T) {
	r := NewRegistry(nil)
	pool := []*stubResource{res("C1", 0), res("C2", 1), res("C3", 2), res("C4", 3)}
	for step := 0; step < 64; step++ {
		e := pool[step%len(pool)]
		switch step % 5 {
		case 0, 1, 3:
			r.Register(e)
		case 2:
			r.Unregister(e)
		case 4:
			e.dead = !e.dead
		}
		seen := map[string]bool{}
		for _, got := range r.ListAlive() {
			id := got.ResourceID()
			if seen[id] {
				t.Fatalf("step %d: duplicate %s", step, id)
			}
			seen[id] = true
			if !got.IsAlive() {
				t.Fatalf("step %d: dead resource %s listed", step, id)
			}
		}
	}
}

func TestRegistry_LookupDropsDead(t *testing.T) {
	r := NewRegistry(nil)
	a := res("C1", 0)
	r.Register(a)
	if got, ok := r.Lookup("C1"); !ok || got.ResourceID() != "C1" {
		t.Fatalf("lookup alive: got %v ok=%v", got, ok)
	}
	a.dead = true
	if _, ok := r.Lookup("C1"); ok {
		t.Fatalf("lookup should miss dead resource")
	}
	a.dead = false
	if _, ok := r.Lookup("C1"); ok {
		t.Fatalf("dead resource should have been pruned by lookup")
	}
}

func TestRegistry_NearestEligible(t *testing.T) {
	core := NewCore()
	r0, r5, r10 := res("C0", 0), res("C5", 5), res("C10", 10)
	core.Registry.Register(r0)
	core.Registry.Register(r5)
	core.Registry.Register(r10)

	x := &stubAgent{id: "PX"}
	y := &stubAgent{id: "PY"}
	at := Vec3{X: 1}

	got, ok := core.Registry.NearestEligible(at, x)
	if !ok || got.ResourceID() != "C0" {
		t.Fatalf("unclaimed: got %v ok=%v want C0", got, ok)
	}

	core.Claims.Claim(r0, y)
	got, ok = core.Registry.NearestEligible(at, x)
	if !ok || got.ResourceID() != "C5" {
		t.Fatalf("claimed by other: got %v want C5", got)
	}

	// The holder itself still sees its own claim.
	got, ok = core.Registry.NearestEligible(at, y)
	if !ok || got.ResourceID() != "C0" {
		t.Fatalf("own claim: got %v want C0", got)
	}

	// A stale holder no longer blocks anyone.
	y.dead = true
	got, ok = core.Registry.NearestEligible(at, x)
	if !ok || got.ResourceID() != "C0" {
		t.Fatalf("stale claim: got %v want C0", got)
	}
}

func TestRegistry_NearestEligibleTieGoesToFirstRegistered(t *testing.T) {
	r := NewRegistry(NewAllocator())
	r.Register(&stubResource{id: "B", pos: Vec3{X: -1}})
	r.Register(&stubResource{id: "A", pos: Vec3{X: 1}})
	for i := 0; i < 10; i++ {
		got, ok := r.NearestEligible(Vec3{}, &stubAgent{id: "P"})
		if !ok || got.ResourceID() != "B" {
			t.Fatalf("tie: got %v want B", got)
		}
	}
}

func TestRegistry_NearestEligibleNone(t *testing.T) {
	core := NewCore()
	if got, ok := core.Registry.NearestEligible(Vec3{}, &stubAgent{id: "P"}); ok || got != nil {
		t.Fatalf("empty registry: got %v ok=%v", got, ok)
	}

	a := res("C1", 0)
	core.Registry.Register(a)
	core.Claims.Claim(a, &stubAgent{id: "Q"})
	if _, ok := core.Registry.NearestEligible(Vec3{}, &stubAgent{id: "P"}); ok {
		t.Fatalf("only resource is claimed by someone else")
	}
	if _, ok := core.Registry.NearestEligible(Vec3{}, nil); ok {
		t.Fatalf("nil agent must not see claimed resources")
	}

	a.dead = true
	if _, ok := core.Registry.NearestEligible(Vec3{}, &stubAgent{id: "Q"}); ok {
		t.Fatalf("dead resource returned")
	}
}

func TestRegistry_NearestEligibleNeverReturnsForeignClaim(t *testing.T) {
	core := NewCore()
	rs := make([]*stubResource, 0, 8)
	for i := 0; i < 8; i++ {
		r := &stubResource{id: string(rune('a' + i)), pos: Vec3{X: float64(i * 3), Z: float64(i % 3)}}
		rs = append(rs, r)
		core.Registry.Register(r)
	}
	agents := []*stubAgent{{id: "P1"}, {id: "P2"}, {id: "P3"}}
	for tick := 0; tick < 30; tick++ {
		for i, a := range agents {
			p := Vec3{X: float64((tick*7 + i*5) % 24)}
			got, ok := core.Registry.NearestEligible(p, a)
			if !ok {
				continue
			}
			if holder, held := core.Claims.HolderOf(got); held && holder.AgentID() != a.AgentID() {
				t.Fatalf("tick %d: %s got %s held by %s", tick, a.id, got.ResourceID(), holder.AgentID())
			}
			core.Claims.Claim(got, a)
			if tick%4 == i {
				core.Claims.Release(got, a)
			}
		}
	}
}
