package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crystalpets.ai/internal/persistence/indexdb"
	"crystalpets.ai/internal/sim/garden"
	"crystalpets.ai/internal/transport/observer"
)

const requestTimeout = 5 * time.Second

type api struct {
	field  *garden.World
	idx    *indexdb.SQLiteIndex
	obs    *observer.Server
	logger *log.Logger
}

type progressionResponse struct {
	FieldID     string  `json:"field_id"`
	Tick        uint64  `json:"tick"`
	Tier        int     `json:"tier"`
	Capacity    float64 `json:"capacity"`
	UpgradeCost int64   `json:"upgrade_cost"`
	MaxTier     int     `json:"max_tier,omitempty"`
	Coins       int64   `json:"coins"`
}

type tierResponse struct {
	Tier     int     `json:"tier"`
	PrevTier int     `json:"prev_tier"`
	Capacity float64 `json:"capacity"`
	NextCost int64   `json:"next_cost"`
}

func (a *api) routes(enableAdmin bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.handleMetrics)
	mux.HandleFunc("/v1/progression", a.handleProgression)
	mux.HandleFunc("/v1/shop/upgrade", a.handleUpgrade)

	if !enableAdmin {
		if a.logger != nil {
			a.logger.Printf("admin endpoints disabled (CP_ENABLE_ADMIN_HTTP=false)")
		}
		return mux
	}
	mux.HandleFunc("/admin/v1/state", a.loopbackOnly(a.handleState))
	mux.HandleFunc("/admin/v1/tier", a.loopbackOnly(a.handleSetTier))
	mux.HandleFunc("/admin/v1/pets", a.loopbackOnly(a.handlePets))
	mux.HandleFunc("/admin/v1/snapshot", a.loopbackOnly(a.handleSnapshot))
	if a.obs != nil {
		mux.HandleFunc("/admin/v1/observer/bootstrap", a.obs.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", a.obs.WSHandler())
	}
	return mux
}

func (a *api) loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !observer.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeErr(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, map[string]any{"ok": false, "error": err.Error()})
}

// statusFor maps loop errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, garden.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, garden.ErrMaxTier):
		return http.StatusConflict
	case errors.Is(err, garden.ErrUnknownPet):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (a *api) handleProgression(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	m := a.field.Metrics()
	writeJSON(rw, http.StatusOK, progressionResponse{
		FieldID:     a.field.ID(),
		Tick:        m.Tick,
		Tier:        m.Tier,
		Capacity:    m.Capacity,
		UpgradeCost: m.UpgradeCost,
		MaxTier:     m.MaxTier,
		Coins:       m.Coins,
	})
}

func (a *api) handleUpgrade(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	rec, err := a.field.BuyUpgrade(ctx)
	if err != nil {
		writeErr(rw, statusFor(err), err)
		return
	}
	if a.logger != nil {
		a.logger.Printf("upgrade: tier=%d paid=%d balance=%d", rec.Tier, rec.Paid, rec.Balance)
	}
	writeJSON(rw, http.StatusOK, rec)
}

func (a *api) handleSetTier(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("n")))
	if err != nil {
		writeErr(rw, http.StatusBadRequest, fmt.Errorf("bad tier: %w", err))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	ch, err := a.field.SetTier(ctx, n)
	if err != nil {
		writeErr(rw, statusFor(err), err)
		return
	}
	writeJSON(rw, http.StatusOK, tierResponse{Tier: ch.Tier, PrevTier: ch.PrevTier, Capacity: ch.Capacity, NextCost: ch.Cost})
}

func (a *api) handlePets(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	q := r.URL.Query()
	switch r.Method {
	case http.MethodPost:
		id, err := a.field.SpawnPet(ctx, strings.TrimSpace(q.Get("name")))
		if err != nil {
			writeErr(rw, statusFor(err), err)
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "pet_id": id})
	case http.MethodDelete:
		id := strings.TrimSpace(q.Get("id"))
		if id == "" {
			writeErr(rw, http.StatusBadRequest, errors.New("missing id"))
			return
		}
		abrupt, _ := strconv.ParseBool(q.Get("abrupt"))
		if err := a.field.RemovePet(ctx, id, abrupt); err != nil {
			writeErr(rw, statusFor(err), err)
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "pet_id": id, "abrupt": abrupt})
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *api) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	tick, err := a.field.RequestSnapshot(ctx)
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "tick": tick, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": tick})
}

func (a *api) handleState(rw http.ResponseWriter, r *http.Request) {
	resp := struct {
		FieldID string              `json:"field_id"`
		RunID   string              `json:"run_id,omitempty"`
		Metrics garden.WorldMetrics `json:"metrics"`
		Index   indexdb.Stats       `json:"index"`
	}{
		FieldID: a.field.ID(),
		RunID:   a.idx.RunID(),
		Metrics: a.field.Metrics(),
		Index:   a.idx.Stats(),
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *api) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	id := a.field.ID()
	m := a.field.Metrics()

	// Minimal Prometheus exposition format.
	gauge := func(name, help string, v any) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
		fmt.Fprintf(rw, "%s{field=%q} %v\n", name, id, v)
	}
	gauge("crystalpets_tick", "Current field tick.", m.Tick)
	gauge("crystalpets_tier", "Current capacity tier.", m.Tier)
	gauge("crystalpets_capacity", "Max health assigned to crystals at the current tier.", m.Capacity)
	gauge("crystalpets_upgrade_cost", "Coins needed for the next tier.", m.UpgradeCost)
	gauge("crystalpets_coins", "Coin balance.", m.Coins)
	gauge("crystalpets_crystals", "Live crystals in the field.", m.Crystals)
	gauge("crystalpets_pets", "Pets in the field.", m.Pets)
	gauge("crystalpets_claims", "Claim map entries, including stale ones not yet evicted.", m.Claims)
	gauge("crystalpets_observers", "Observer sessions attached to the loop.", m.Observers)
	fmt.Fprintf(rw, "# HELP crystalpets_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE crystalpets_step_ms gauge\n")
	fmt.Fprintf(rw, "crystalpets_step_ms{field=%q} %.3f\n", id, m.StepMS)

	fmt.Fprintf(rw, "# HELP crystalpets_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE crystalpets_queue_depth gauge\n")
	fmt.Fprintf(rw, "crystalpets_queue_depth{field=%q,queue=%q} %d\n", id, "spawn_pet", m.QueueDepths.SpawnPet)
	fmt.Fprintf(rw, "crystalpets_queue_depth{field=%q,queue=%q} %d\n", id, "remove_pet", m.QueueDepths.RemovePet)
	fmt.Fprintf(rw, "crystalpets_queue_depth{field=%q,queue=%q} %d\n", id, "upgrade", m.QueueDepths.Upgrade)
	fmt.Fprintf(rw, "crystalpets_queue_depth{field=%q,queue=%q} %d\n", id, "set_tier", m.QueueDepths.SetTier)

	if a.idx != nil {
		st := a.idx.Stats()
		fmt.Fprintf(rw, "# HELP crystalpets_index_dropped_total Index writes dropped because the writer fell behind.\n")
		fmt.Fprintf(rw, "# TYPE crystalpets_index_dropped_total counter\n")
		fmt.Fprintf(rw, "crystalpets_index_dropped_total{field=%q,kind=%q} %d\n", id, "tick", st.DropTickTotal)
		fmt.Fprintf(rw, "crystalpets_index_dropped_total{field=%q,kind=%q} %d\n", id, "upgrade", st.DropUpgradeTotal)
		fmt.Fprintf(rw, "crystalpets_index_dropped_total{field=%q,kind=%q} %d\n", id, "snapshot", st.DropSnapshotTotal)
	}
}
