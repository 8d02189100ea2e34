package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"crystalpets.ai/internal/persistence/snapshot"
	"crystalpets.ai/internal/sim/tuning"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst")
		fieldDir   = flag.String("field_dir", "", "field data dir containing ticks/ and upgrades/ (optional)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml (pet stats, coin rate, formula)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d field=%s run=%s tick=%d seed=%d tier=%d coins=%d crystals=%d pets=%d respawns=%d\n",
		snap.Header.Version, snap.Header.FieldID, snap.Header.RunID, snap.Header.Tick, snap.Seed,
		snap.Tier, snap.Coins, len(snap.Crystals), len(snap.Pets), len(snap.Respawns))

	if *fieldDir == "" {
		return
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	ticks, err := readJSONL[tickEntry](filepath.Join(*fieldDir, "ticks"), "ticks-")
	if err != nil {
		fmt.Fprintln(os.Stderr, "read ticks:", err)
		os.Exit(1)
	}
	if len(ticks) == 0 {
		fmt.Fprintln(os.Stderr, "no tick log files found in", *fieldDir)
		os.Exit(1)
	}
	upgrades, err := readJSONL[upgradeEntry](filepath.Join(*fieldDir, "upgrades"), "upgrades-")
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "read upgrades:", err)
		os.Exit(1)
	}

	checked, err := replay(snap, tune, ticks, upgrades, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (from snapshot tick=%d)\n", checked, snap.Header.Tick)
}
