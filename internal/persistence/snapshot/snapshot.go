package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

// Header is written as a plain JSON line ahead of the gob body so tools can read it without
// decoding the whole snapshot.
type Header struct {
	Version int    `json:"version"`
	FieldID string `json:"field_id"`
	RunID   string `json:"run_id,omitempty"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed          int64   `json:"seed"`
	TickRate      int     `json:"tick_rate_hz"`
	Radius        float64 `json:"radius"`
	CrystalTarget int     `json:"crystal_target"`
	RespawnTicks  int     `json:"respawn_ticks"`

	Tier     int     `json:"tier"`
	Coins    int64   `json:"coins"`
	CoinFrac float64 `json:"coin_frac,omitempty"`

	Crystals []CrystalV1 `json:"crystals"`
	Pets     []PetV1     `json:"pets"`
	Respawns []uint64    `json:"respawns,omitempty"`

	Counters CountersV1 `json:"counters"`
}

type CrystalV1 struct {
	ID          string     `json:"id"`
	Pos         [3]float64 `json:"pos"`
	HP          float64    `json:"hp"`
	MaxHP       float64    `json:"max_hp"`
	SpawnedTick uint64     `json:"spawned_tick"`
}

type PetV1 struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Pos            [3]float64 `json:"pos"`
	Speed          float64    `json:"speed"`
	Reach          float64    `json:"reach"`
	HarvestPerTick float64    `json:"harvest_per_tick"`
	Harvested      float64    `json:"harvested"`
	TargetID       string     `json:"target_id,omitempty"`
}

type CountersV1 struct {
	NextCrystal uint64 `json:"next_crystal"`
	NextPet     uint64 `json:"next_pet"`
}

// FileName is the snapshot file name for a tick. Zero padding keeps lexical and numeric order equal.
func FileName(tick uint64) string { return fmt.Sprintf("%012d.snap.zst", tick) }

// WriteSnapshot writes to a temp file and renames it into place so readers never see a partial file.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

var ErrNoSnapshot = errors.New("no snapshot found")

// Latest returns the path of the highest-tick snapshot in dir.
func Latest(dir string) (string, uint64, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, ErrNoSnapshot
		}
		return "", 0, err
	}
	type cand struct {
		name string
		tick uint64
	}
	var cands []cand
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		cands = append(cands, cand{name: name, tick: tick})
	}
	if len(cands) == 0 {
		return "", 0, ErrNoSnapshot
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].tick > cands[j].tick })
	return filepath.Join(dir, cands[0].name), cands[0].tick, nil
}
