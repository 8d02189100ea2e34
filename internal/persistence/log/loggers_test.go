package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"crystalpets.ai/internal/sim/garden"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()

	var out []string
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "ticks")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	for i := 0; i < 2; i++ {
		if err := w.Write(garden.TickLogEntry{Tick: uint64(i)}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(garden.TickLogEntry{Tick: 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	first := readLines(t, filepath.Join(dir, "ticks-2026-03-01-10.jsonl.zst"))
	second := readLines(t, filepath.Join(dir, "ticks-2026-03-01-11.jsonl.zst"))
	if len(first) != 2 || len(second) != 1 {
		t.Fatalf("lines per hour: %d/%d want 2/1", len(first), len(second))
	}
	var e garden.TickLogEntry
	if err := json.Unmarshal([]byte(second[0]), &e); err != nil || e.Tick != 2 {
		t.Fatalf("entry=%+v err=%v", e, err)
	}
}

func TestUpgradeLogger_WritesEntries(t *testing.T) {
	dir := t.TempDir()
	l := NewUpgradeLogger(dir)
	if err := l.WriteUpgrade(garden.UpgradeEntry{Tick: 9, Tier: 2, PrevTier: 1, Paid: 100, Upgraded: true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "upgrades", "upgrades-*.jsonl.zst"))
	if len(matches) != 1 {
		t.Fatalf("files=%v", matches)
	}
	lines := readLines(t, matches[0])
	var e garden.UpgradeEntry
	if len(lines) != 1 || json.Unmarshal([]byte(lines[0]), &e) != nil || e.Paid != 100 {
		t.Fatalf("lines=%v", lines)
	}
}

type failingTicks struct{ n int }

func (f *failingTicks) WriteTick(garden.TickLogEntry) error {
	f.n++
	return errors.New("disk full")
}

func TestMultiTickLogger_WritesAll(t *testing.T) {
	a, b := &failingTicks{}, &failingTicks{}
	m := MultiTickLogger{a, nil, b}
	if err := m.WriteTick(garden.TickLogEntry{}); err == nil {
		t.Fatalf("expected first error")
	}
	if a.n != 1 || b.n != 1 {
		t.Fatalf("calls a=%d b=%d", a.n, b.n)
	}
}
