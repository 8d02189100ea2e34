package tuning

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int   `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int   `yaml:"snapshot_every_ticks"`
	StartingCoins      int64 `yaml:"starting_coins"`

	Field       Field       `yaml:"field"`
	Pets        Pets        `yaml:"pets"`
	Progression Progression `yaml:"progression"`
}

type Field struct {
	Seed          int64   `yaml:"seed"`
	Radius        float64 `yaml:"radius"`
	CrystalTarget int     `yaml:"crystal_target"`
	RespawnTicks  int     `yaml:"respawn_ticks"`
}

type Pets struct {
	Initial        int     `yaml:"initial"`
	Speed          float64 `yaml:"speed"`
	Reach          float64 `yaml:"reach"`
	HarvestPerTick float64 `yaml:"harvest_per_tick"`
	CoinsPerHP     float64 `yaml:"coins_per_hp"`
}

type Progression struct {
	CapacityBase float64 `yaml:"capacity_base"`
	CostBase     float64 `yaml:"cost_base"`
	Growth       float64 `yaml:"growth"`
	// MaxTier caps shop upgrades; 0 means uncapped.
	MaxTier int `yaml:"max_tier"`
}

// Overrides are read from the environment after the YAML file; unset variables leave the file
// values alone.
type Overrides struct {
	TickRateHz    *int     `env:"CP_TICK_RATE_HZ"`
	Seed          *int64   `env:"CP_FIELD_SEED"`
	CrystalTarget *int     `env:"CP_CRYSTAL_TARGET"`
	InitialPets   *int     `env:"CP_INITIAL_PETS"`
	StartingCoins *int64   `env:"CP_STARTING_COINS"`
	Growth        *float64 `env:"CP_GROWTH"`
	MaxTier       *int     `env:"CP_MAX_TIER"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "0.1",
		TickRateHz:         10,
		SnapshotEveryTicks: 3000,
		StartingCoins:      0,
		Field: Field{
			Seed:          1337,
			Radius:        32,
			CrystalTarget: 12,
			RespawnTicks:  50,
		},
		Pets: Pets{
			Initial:        4,
			Speed:          0.5,
			Reach:          1.5,
			HarvestPerTick: 5,
			CoinsPerHP:     0.2,
		},
		Progression: Progression{
			CapacityBase: 100,
			CostBase:     100,
			Growth:       1.5,
		},
	}
}

// Load reads a tuning file on top of Defaults and applies environment overrides.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.ApplyEnv(); err != nil {
		return t, err
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) ApplyEnv() error {
	var o Overrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.TickRateHz != nil {
		t.TickRateHz = *o.TickRateHz
	}
	if o.Seed != nil {
		t.Field.Seed = *o.Seed
	}
	if o.CrystalTarget != nil {
		t.Field.CrystalTarget = *o.CrystalTarget
	}
	if o.InitialPets != nil {
		t.Pets.Initial = *o.InitialPets
	}
	if o.StartingCoins != nil {
		t.StartingCoins = *o.StartingCoins
	}
	if o.Growth != nil {
		t.Progression.Growth = *o.Growth
	}
	if o.MaxTier != nil {
		t.Progression.MaxTier = *o.MaxTier
	}
	return nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return errors.New("tick_rate_hz must be > 0")
	}
	if t.Field.Radius <= 0 {
		return errors.New("field.radius must be > 0")
	}
	if t.Field.CrystalTarget < 0 || t.Pets.Initial < 0 {
		return errors.New("field.crystal_target and pets.initial must be >= 0")
	}
	if t.Pets.Speed <= 0 || t.Pets.Reach <= 0 || t.Pets.HarvestPerTick <= 0 {
		return errors.New("pets.speed, pets.reach and pets.harvest_per_tick must be > 0")
	}
	if t.Progression.Growth != 0 && t.Progression.Growth < 1 {
		return fmt.Errorf("progression.growth must be >= 1, got %v", t.Progression.Growth)
	}
	if t.Progression.MaxTier < 0 {
		return errors.New("progression.max_tier must be >= 0")
	}
	return nil
}
