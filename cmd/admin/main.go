package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"crystalpets.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "tier":
			tierCmd(os.Args[2:])
			return
		case "upgrade":
			upgradeCmd(os.Args[2:])
			return
		case "pet":
			petCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	fieldID := fs.String("field", "", "field id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "fields")
	if *fieldID != "" {
		base = filepath.Join(base, *fieldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// inspectCmd prints a snapshot header and a summary without starting a field.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	fieldID := fs.String("field", "", "field id (used when -snapshot is empty)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	headerOnly := fs.Bool("header", false, "read only the header line")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*fieldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -field or -snapshot")
			os.Exit(2)
		}
		p, _, err := snapshot.Latest(filepath.Join(*dataDir, "fields", *fieldID, "snapshots"))
		if errors.Is(err, snapshot.ErrNoSnapshot) {
			fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
			os.Exit(2)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "scan snapshots:", err)
			os.Exit(1)
		}
		path = p
	}

	if *headerOnly {
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read header:", err)
			os.Exit(1)
		}
		printJSON(h)
		return
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(snap))
}

type snapshotSummary struct {
	Header    snapshot.Header `json:"header"`
	Seed      int64           `json:"seed"`
	Tier      int             `json:"tier"`
	Coins     int64           `json:"coins"`
	Crystals  int             `json:"crystals"`
	TotalHP   float64         `json:"total_hp"`
	Pets      int             `json:"pets"`
	Targeting int             `json:"targeting"`
	Respawns  int             `json:"respawns"`
}

func summarize(s snapshot.SnapshotV1) snapshotSummary {
	out := snapshotSummary{
		Header:   s.Header,
		Seed:     s.Seed,
		Tier:     s.Tier,
		Coins:    s.Coins,
		Crystals: len(s.Crystals),
		Pets:     len(s.Pets),
		Respawns: len(s.Respawns),
	}
	for _, c := range s.Crystals {
		out.TotalHP += c.HP
	}
	for _, p := range s.Pets {
		if p.TargetID != "" {
			out.Targeting++
		}
	}
	return out
}
