package harvest

import "sort"

// ClaimView is a copied, read-only row of the claim map.
type ClaimView struct {
	ResourceID string `json:"resource_id"`
	AgentID    string `json:"agent_id"`
}

// Allocator maps a resource to the one agent allowed to harvest it.
//
// Claim is "set", not "test-and-set": a second claim on the same resource silently replaces the
// first. Callers check eligibility first (Registry.NearestEligible or IsOccupied); two pets that
// decide in the same tick converge on later ticks because the loser stops seeing the resource.
type Allocator struct {
	claims map[string]Agent
}

func NewAllocator() *Allocator {
	return &Allocator{claims: map[string]Agent{}}
}

func (a *Allocator) Claim(res Resource, agent Agent) {
	if resourceGone(res) || agentGone(agent) {
		return
	}
	a.claims[res.ResourceID()] = agent
}

// Release drops the claim on res only when agent is its current holder.
func (a *Allocator) Release(res Resource, agent Agent) {
	if res == nil || agent == nil {
		return
	}
	id := res.ResourceID()
	holder, ok := a.claims[id]
	if !ok || holder.AgentID() != agent.AgentID() {
		return
	}
	delete(a.claims, id)
}

// ReleaseAll drops every claim held by agent and reports how many were dropped.
func (a *Allocator) ReleaseAll(agent Agent) int {
	if agent == nil {
		return 0
	}
	id := agent.AgentID()
	n := 0
	for rid, holder := range a.claims {
		if holder.AgentID() == id {
			delete(a.claims, rid)
			n++
		}
	}
	return n
}

func (a *Allocator) IsOccupied(res Resource) bool {
	_, ok := a.HolderOf(res)
	return ok
}

// HolderOf returns the live holder of res. A claim whose agent is gone is evicted here.
func (a *Allocator) HolderOf(res Resource) (Agent, bool) {
	if res == nil {
		return nil, false
	}
	id := res.ResourceID()
	holder, ok := a.claims[id]
	if !ok {
		return nil, false
	}
	if agentGone(holder) {
		delete(a.claims, id)
		return nil, false
	}
	return holder, true
}

// Holders returns live claims sorted by resource id. Stale claims are skipped but left in
// the map; only HolderOf and IsOccupied evict.
func (a *Allocator) Holders() []ClaimView {
	out := make([]ClaimView, 0, len(a.claims))
	for rid, holder := range a.claims {
		if agentGone(holder) {
			continue
		}
		out = append(out, ClaimView{ResourceID: rid, AgentID: holder.AgentID()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}

// Len counts entries in the claim map, including stale ones nobody has read yet.
func (a *Allocator) Len() int { return len(a.claims) }
