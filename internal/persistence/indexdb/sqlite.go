package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"crystalpets.ai/internal/persistence/snapshot"
	"crystalpets.ai/internal/sim/garden"
)

const schemaVersion = "1"

// SQLiteIndex is a secondary, queryable copy of the tick and upgrade logs. Writes are queued to a
// single writer goroutine and dropped when it falls behind; the JSONL logs remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
	runID  atomic.Value // string

	dropTick     atomic.Uint64
	dropUpgrade  atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqUpgrade
	reqSnapshot
	reqFlush
)

type req struct {
	kind  reqKind
	runID string

	tick     garden.TickLogEntry
	upgrade  garden.UpgradeEntry
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	Tick     uint64
	Path     string
	Tier     int
	Coins    int64
	Crystals int
	Pets     int
}

type Stats struct {
	QueueDepth    int `json:"queue_depth"`
	QueueCapacity int `json:"queue_capacity"`

	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropUpgradeTotal  uint64 `json:"drop_upgrade_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.runID.Store("")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			field_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			tuning_digest TEXT NOT NULL,
			tuning_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_field ON runs(field_id, started_at);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			tier INTEGER NOT NULL,
			coins INTEGER NOT NULL,
			earned INTEGER NOT NULL,
			crystals INTEGER NOT NULL,
			pets INTEGER NOT NULL,
			claims INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS upgrades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			tier INTEGER NOT NULL,
			prev_tier INTEGER NOT NULL,
			capacity REAL NOT NULL,
			next_cost INTEGER NOT NULL,
			paid INTEGER NOT NULL,
			upgraded INTEGER NOT NULL,
			balance INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_upgrades_run_tick ON upgrades(run_id, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			tier INTEGER NOT NULL,
			coins INTEGER NOT NULL,
			crystals INTEGER NOT NULL,
			pets INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion)
	return err
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// StartRun records a new run and tags every later write with its id. Call it before the world starts.
func (s *SQLiteIndex) StartRun(ctx context.Context, fieldID string, seed int64, tune any) (string, error) {
	b, err := json.Marshal(tune)
	if err != nil {
		return "", fmt.Errorf("encode tuning: %w", err)
	}
	sum := sha256.Sum256(b)
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id,field_id,seed,started_at,tuning_digest,tuning_json) VALUES(?,?,?,?,?,?)`,
		id, fieldID, seed, time.Now().UTC().Format(time.RFC3339Nano), hex.EncodeToString(sum[:]), string(b),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	s.runID.Store(id)
	return id, nil
}

func (s *SQLiteIndex) RunID() string {
	if s == nil {
		return ""
	}
	id, _ := s.runID.Load().(string)
	return id
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	r.runID = s.RunID()
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry garden.TickLogEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	return nil
}

func (s *SQLiteIndex) WriteUpgrade(entry garden.UpgradeEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqUpgrade, upgrade: entry}, &s.dropUpgrade)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Tick:     snap.Header.Tick,
		Path:     path,
		Tier:     snap.Tier,
		Coins:    snap.Coins,
		Crystals: len(snap.Crystals),
		Pets:     len(snap.Pets),
	}}, &s.dropSnapshot)
}

// Flush waits until everything queued so far is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return errors.New("index closed")
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropUpgradeTotal:  s.dropUpgrade.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

// LatestTier returns the most recent tier recorded for fieldID across all runs. It is the fallback
// when no snapshot file survives. The writer holds the only connection while a batch is open, so call
// it at startup or after Flush.
func (s *SQLiteIndex) LatestTier(ctx context.Context, fieldID string) (int, bool, error) {
	var tier int
	err := s.db.QueryRowContext(ctx, `
		SELECT u.tier FROM upgrades u
		JOIN runs r ON r.run_id = u.run_id
		WHERE r.field_id = ?
		ORDER BY u.id DESC
		LIMIT 1`, fieldID).Scan(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return tier, true, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,tick,tier,coins,earned,crystals,pets,claims,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertUpgrade, _ := s.db.Prepare(`INSERT INTO upgrades(run_id,tick,tier,prev_tier,capacity,next_cost,paid,upgraded,balance) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(path,run_id,tick,tier,coins,crystals,pets) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertUpgrade, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			raw, _ := json.Marshal(t)
			exec(insertTick, r.runID, int64(t.Tick), t.Tier, t.Coins, t.Earned, t.Crystals, t.Pets, t.Claims, string(raw))
		case reqUpgrade:
			u := r.upgrade
			exec(insertUpgrade, r.runID, int64(u.Tick), u.Tier, u.PrevTier, u.Capacity, u.NextCost, u.Paid, u.Upgraded, u.Balance)
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.Path, r.runID, int64(sn.Tick), sn.Tier, sn.Coins, sn.Crystals, sn.Pets)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
