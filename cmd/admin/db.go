package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type dbOpts struct {
	FieldID string
	RunID   string
	Limit   int
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	fieldID := fs.String("field", "", "field id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	runID := fs.String("run", "", "run id (optional; defaults to the latest run)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*fieldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -field or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "fields", *fieldID, "index.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	rows, err := queryIndex(db, q, dbOpts{FieldID: *fieldID, RunID: *runID, Limit: *limit})
	if err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

type runRow struct {
	RunID        string `json:"run_id"`
	FieldID      string `json:"field_id"`
	Seed         int64  `json:"seed"`
	StartedAt    string `json:"started_at"`
	TuningDigest string `json:"tuning_digest"`
}

type tickRow struct {
	Tick     uint64 `json:"tick"`
	Tier     int    `json:"tier"`
	Coins    int64  `json:"coins"`
	Earned   int64  `json:"earned"`
	Crystals int    `json:"crystals"`
	Pets     int    `json:"pets"`
	Claims   int    `json:"claims"`
}

type upgradeRow struct {
	Tick     uint64  `json:"tick"`
	Tier     int     `json:"tier"`
	PrevTier int     `json:"prev_tier"`
	Capacity float64 `json:"capacity"`
	NextCost int64   `json:"next_cost"`
	Paid     int64   `json:"paid"`
	Upgraded bool    `json:"upgraded"`
	Balance  int64   `json:"balance"`
}

type snapshotRow struct {
	Tick     uint64 `json:"tick"`
	Path     string `json:"path"`
	Tier     int    `json:"tier"`
	Coins    int64  `json:"coins"`
	Crystals int    `json:"crystals"`
	Pets     int    `json:"pets"`
}

// queryIndex runs one of the canned read-model queries. Everything but "runs" is scoped to a
// single run, the latest one unless opts.RunID is set.
func queryIndex(db *sql.DB, q string, opts dbOpts) ([]any, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if q == "runs" {
		return queryRuns(db, opts)
	}

	runID := strings.TrimSpace(opts.RunID)
	if runID == "" {
		var err error
		if runID, err = latestRunID(db, opts.FieldID); err != nil {
			return nil, err
		}
	}

	var out []any
	switch q {
	case "ticks":
		rows, err := db.Query(`SELECT tick,tier,coins,earned,crystals,pets,claims FROM ticks WHERE run_id=? ORDER BY tick DESC LIMIT ?`, runID, opts.Limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var r tickRow
			if err := rows.Scan(&r.Tick, &r.Tier, &r.Coins, &r.Earned, &r.Crystals, &r.Pets, &r.Claims); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, rows.Err()

	case "upgrades":
		rows, err := db.Query(`SELECT tick,tier,prev_tier,capacity,next_cost,paid,upgraded,balance FROM upgrades WHERE run_id=? ORDER BY id DESC LIMIT ?`, runID, opts.Limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var r upgradeRow
			var upgraded int
			if err := rows.Scan(&r.Tick, &r.Tier, &r.PrevTier, &r.Capacity, &r.NextCost, &r.Paid, &upgraded, &r.Balance); err != nil {
				return nil, err
			}
			r.Upgraded = upgraded != 0
			out = append(out, r)
		}
		return out, rows.Err()

	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,tier,coins,crystals,pets FROM snapshots WHERE run_id=? ORDER BY tick DESC LIMIT ?`, runID, opts.Limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var r snapshotRow
			if err := rows.Scan(&r.Tick, &r.Path, &r.Tier, &r.Coins, &r.Crystals, &r.Pets); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, rows.Err()
	}
	return nil, fmt.Errorf("unknown query %q (want runs|ticks|upgrades|snapshots)", q)
}

func queryRuns(db *sql.DB, opts dbOpts) ([]any, error) {
	query := `SELECT run_id,field_id,seed,started_at,tuning_digest FROM runs`
	args := []any{}
	if opts.FieldID != "" {
		query += ` WHERE field_id=?`
		args = append(args, opts.FieldID)
	}
	query += ` ORDER BY rowid DESC LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var r runRow
		if err := rows.Scan(&r.RunID, &r.FieldID, &r.Seed, &r.StartedAt, &r.TuningDigest); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func latestRunID(db *sql.DB, fieldID string) (string, error) {
	query := `SELECT run_id FROM runs`
	args := []any{}
	if fieldID != "" {
		query += ` WHERE field_id=?`
		args = append(args, fieldID)
	}
	query += ` ORDER BY rowid DESC LIMIT 1`
	var id string
	if err := db.QueryRow(query, args...).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("no runs recorded")
		}
		return "", err
	}
	return id, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
