package garden

import "time"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Tier        int     `json:"tier"`
	Capacity    float64 `json:"capacity"`
	UpgradeCost int64   `json:"upgrade_cost"`
	MaxTier     int     `json:"max_tier,omitempty"`
	Coins       int64   `json:"coins"`

	Crystals  int `json:"crystals"`
	Pets      int `json:"pets"`
	Claims    int `json:"claims"`
	Observers int `json:"observers"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	SpawnPet  int `json:"spawn_pet"`
	RemovePet int `json:"remove_pet"`
	Upgrade   int `json:"upgrade"`
	SetTier   int `json:"set_tier"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) publishMetrics(stepDur time.Duration) {
	w.metrics.Store(WorldMetrics{
		Tick:        w.tick.Load(),
		Tier:        w.prog.CurrentTier(),
		Capacity:    w.prog.CurrentCapacity(),
		UpgradeCost: w.prog.UpgradeCost(),
		MaxTier:     w.cfg.MaxTier,
		Coins:       w.ledger.Balance(),
		Crystals:    len(w.crystals),
		Pets:        len(w.pets),
		Claims:      w.core.Claims.Len(),
		Observers:   len(w.observers),
		QueueDepths: QueueDepths{
			SpawnPet:  len(w.spawnPet),
			RemovePet: len(w.removePet),
			Upgrade:   len(w.upgrade),
			SetTier:   len(w.setTier),
		},
		StepMS: float64(stepDur.Microseconds()) / 1000.0,
	})
}
