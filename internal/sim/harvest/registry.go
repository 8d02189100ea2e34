package harvest

// HolderLookup is the part of the allocator the registry consults when filtering candidates.
type HolderLookup interface {
	HolderOf(r Resource) (Agent, bool)
}

// Registry is an insertion-ordered, de-duplicated set of resources.
// Dead entries are pruned on read, never on a timer.
type Registry struct {
	claims HolderLookup

	order []Resource
	byID  map[string]Resource
}

// NewRegistry returns an empty registry. claims may be nil, in which case every alive
// resource is eligible for every agent.
func NewRegistry(claims HolderLookup) *Registry {
	return &Registry{
		claims: claims,
		byID:   map[string]Resource{},
	}
}

func (r *Registry) Register(res Resource) {
	if resourceGone(res) {
		return
	}
	id := res.ResourceID()
	if cur, ok := r.byID[id]; ok {
		if !resourceGone(cur) {
			return
		}
		// A dead entry not yet pruned counts as absent; the newcomer takes its slot.
		for i, e := range r.order {
			if e.ResourceID() == id {
				r.order[i] = res
				break
			}
		}
		r.byID[id] = res
		return
	}
	r.byID[id] = res
	r.order = append(r.order, res)
}

func (r *Registry) Unregister(res Resource) {
	if res == nil {
		return
	}
	r.UnregisterID(res.ResourceID())
}

func (r *Registry) UnregisterID(id string) {
	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)
	for i, e := range r.order {
		if e.ResourceID() == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// ListAlive drops every tracked resource that is gone and returns a copy of the survivors
// in registration order.
func (r *Registry) ListAlive() []Resource {
	kept := r.order[:0]
	for _, e := range r.order {
		if resourceGone(e) {
			delete(r.byID, e.ResourceID())
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(r.order); i++ {
		r.order[i] = nil
	}
	r.order = kept

	out := make([]Resource, len(kept))
	copy(out, kept)
	return out
}

func (r *Registry) Count() int { return len(r.ListAlive()) }

// Lookup returns the tracked resource with the given id if it is still alive.
func (r *Registry) Lookup(id string) (Resource, bool) {
	res, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	if resourceGone(res) {
		r.UnregisterID(id)
		return nil, false
	}
	return res, true
}

// NearestEligible returns the closest alive resource to p that is either unclaimed or
// claimed by agent. Ties go to the resource registered first.
func (r *Registry) NearestEligible(p Vec3, agent Agent) (Resource, bool) {
	var (
		best   Resource
		bestD2 float64
	)
	for _, res := range r.ListAlive() {
		if !r.eligible(res, agent) {
			continue
		}
		d2 := res.Position().DistSq(p)
		if best == nil || d2 < bestD2 {
			best, bestD2 = res, d2
		}
	}
	return best, best != nil
}

func (r *Registry) eligible(res Resource, agent Agent) bool {
	if r.claims == nil {
		return true
	}
	holder, ok := r.claims.HolderOf(res)
	if !ok {
		return true
	}
	return agent != nil && holder.AgentID() == agent.AgentID()
}
