package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"crystalpets.ai/internal/persistence/indexdb"
	persistlog "crystalpets.ai/internal/persistence/log"
	"crystalpets.ai/internal/persistence/snapshot"
	"crystalpets.ai/internal/sim/garden"
	"crystalpets.ai/internal/sim/progression"
	"crystalpets.ai/internal/sim/tuning"
	"crystalpets.ai/internal/transport/observer"
)

// serverEnv holds deployment switches that are not part of the field tuning.
type serverEnv struct {
	DeployEnv   string `env:"DEPLOY_ENV"`
	EnableAdmin *bool  `env:"CP_ENABLE_ADMIN_HTTP"`
	EnablePprof bool   `env:"CP_ENABLE_PPROF_HTTP"`
}

// adminEnabled defaults to on outside staging and production.
func (e serverEnv) adminEnabled() bool {
	if e.EnableAdmin != nil {
		return *e.EnableAdmin
	}
	switch strings.ToLower(strings.TrimSpace(e.DeployEnv)) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		fieldID    = flag.String("field", "garden_1", "field id")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (tick/upgrade rows + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	var senv serverEnv
	if err := env.Parse(&senv); err != nil {
		logger.Fatalf("parse env: %v", err)
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
		if err := tune.ApplyEnv(); err != nil {
			logger.Fatalf("tuning env: %v", err)
		}
	}

	fieldDir := filepath.Join(*dataDir, "fields", *fieldID)
	if err := os.MkdirAll(fieldDir, 0o755); err != nil {
		logger.Fatalf("mkdir %s: %v", fieldDir, err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	// The index is a read model; the field runs the same without it.
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(fieldDir, "index.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	w, err := garden.New(worldConfig(*fieldID, tune))
	if err != nil {
		logger.Fatalf("field: %v", err)
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		p, _, err := snapshot.Latest(filepath.Join(fieldDir, "snapshots"))
		switch {
		case err == nil:
			snapshotToLoad = p
		case !errors.Is(err, snapshot.ErrNoSnapshot):
			logger.Printf("scan snapshots: %v", err)
		}
	}

	resumed := false
	restoreTier := 0
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		resumed = true
		logger.Printf("resumed from snapshot=%s tick=%d tier=%d", filepath.Base(snapshotToLoad), w.CurrentTick(), snap.Tier)
	} else if idx != nil {
		// No snapshot: fall back to the last tier the index saw for this field.
		tier, ok, err := idx.LatestTier(ctx, *fieldID)
		if err != nil {
			logger.Printf("index latest tier: %v", err)
		} else if ok && tier > 1 {
			restoreTier = tier
		}
	}

	if idx != nil {
		runID, err := idx.StartRun(ctx, *fieldID, tune.Field.Seed, tune)
		if err != nil {
			logger.Fatalf("start run: %v", err)
		}
		w.SetRunID(runID)
		logger.Printf("run_id=%s", runID)
	}

	tickLog := persistlog.NewTickLogger(fieldDir)
	upgradeLog := persistlog.NewUpgradeLogger(fieldDir)
	defer tickLog.Close()
	defer upgradeLog.Close()
	tickLoggers := persistlog.MultiTickLogger{tickLog}
	upgradeLoggers := persistlog.MultiUpgradeLogger{upgradeLog}
	if idx != nil {
		tickLoggers = append(tickLoggers, idx)
		upgradeLoggers = append(upgradeLoggers, idx)
	}
	w.SetTickLogger(tickLoggers)
	w.SetUpgradeLogger(upgradeLoggers)

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go runSnapshotWriter(ctx, fieldDir, snapCh, idx, logger)

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("field stopped: %v", err)
		}
	}()

	if restoreTier > 0 {
		if ch, err := w.SetTier(ctx, restoreTier); err != nil {
			logger.Printf("restore tier %d: %v", restoreTier, err)
		} else {
			logger.Printf("restored tier=%d capacity=%.1f from index", ch.Tier, ch.Capacity)
		}
	}
	if !resumed {
		for i := 0; i < tune.Pets.Initial; i++ {
			if _, err := w.SpawnPet(ctx, ""); err != nil {
				logger.Printf("spawn pet: %v", err)
				break
			}
		}
	}

	a := &api{field: w, idx: idx, logger: logger}
	enableAdmin := senv.adminEnabled()
	if enableAdmin {
		a.obs = observer.NewServer(w, logger)
	}
	mux := a.routes(enableAdmin)
	if senv.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (CP_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s field=%s tier=%d crystals=%d", *addr, *fieldID, w.Metrics().Tier, w.Metrics().Crystals)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-worldDone
	if idx != nil {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		if err := idx.Flush(ctx2); err != nil {
			logger.Printf("index flush: %v", err)
		}
		cancel2()
	}
}

func worldConfig(id string, tune tuning.Tuning) garden.WorldConfig {
	return garden.WorldConfig{
		ID:                 id,
		TickRateHz:         tune.TickRateHz,
		Seed:               tune.Field.Seed,
		Radius:             tune.Field.Radius,
		CrystalTarget:      tune.Field.CrystalTarget,
		RespawnTicks:       tune.Field.RespawnTicks,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		StartingCoins:      tune.StartingCoins,
		CoinsPerHP:         tune.Pets.CoinsPerHP,
		PetStats: garden.PetStats{
			Speed:          tune.Pets.Speed,
			Reach:          tune.Pets.Reach,
			HarvestPerTick: tune.Pets.HarvestPerTick,
		},
		Formula: progression.Formula{
			CapacityBase: tune.Progression.CapacityBase,
			CostBase:     tune.Progression.CostBase,
			Growth:       tune.Progression.Growth,
		},
		MaxTier: tune.Progression.MaxTier,
	}
}

func runSnapshotWriter(ctx context.Context, fieldDir string, snapCh <-chan snapshot.SnapshotV1, idx *indexdb.SQLiteIndex, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snapCh:
			path := filepath.Join(fieldDir, "snapshots", snapshot.FileName(snap.Header.Tick))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Printf("snapshot write: %v", err)
				continue
			}
			idx.RecordSnapshot(path, snap)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
