// Package config provides configuration loading and access for the
// simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Grid        GridConfig        `yaml:"grid"`
	Breeding    BreedingConfig    `yaml:"breeding"`
	Fitness     FitnessConfig     `yaml:"fitness"`
	Settlement  SettlementConfig  `yaml:"settlement"`
	Environment EnvironmentConfig `yaml:"environment"`
	Species     SpeciesConfig     `yaml:"species"`
	Run         RunConfig         `yaml:"run"`
}

// GridConfig holds the population array dimensions.
type GridConfig struct {
	X              int `yaml:"x"`
	Y              int `yaml:"y"`
	SlotsPerSquare int `yaml:"slots_per_square"`
}

// BreedingConfig holds the reproduction parameters.
type BreedingConfig struct {
	StartAge       uint8 `yaml:"start_age"`
	BreedThreshold uint8 `yaml:"breed_threshold"` // age at which breeding becomes possible
	BreedCost      int32 `yaml:"breed_cost"`
	Lifespan       uint8 `yaml:"lifespan"` // 0 disables the age cap
	Mutate         uint8 `yaml:"mutate"`   // per-bit flip probability out of 256
	MaxDifference  int   `yaml:"max_difference"`
	Asexual        bool  `yaml:"asexual"`
	Sexual         bool  `yaml:"sexual"`
	BreedSpecies   bool  `yaml:"breed_species"` // partners must share a species id
	BreedDiffer    bool  `yaml:"breed_differ"`  // partners max_difference or more bits apart fail
}

// FitnessConfig holds the metabolism parameters.
type FitnessConfig struct {
	Food            int32 `yaml:"food"`
	SettleTolerance int   `yaml:"settle_tolerance"`
	Target          int   `yaml:"target"`
	Recalculate     bool  `yaml:"recalculate"` // recompute fitness each tick
}

// SettlementConfig holds offspring dispersal parameters.
type SettlementConfig struct {
	Dispersal  uint8 `yaml:"dispersal"` // dispersal index divisor, 1 = maximum spread
	NonSpatial bool  `yaml:"non_spatial"`
	Toroidal   bool  `yaml:"toroidal"`
}

// EnvironmentConfig holds the colour field parameters.
type EnvironmentConfig struct {
	ChangeRate     int    `yaml:"change_rate"` // ticks per keyframe
	Mode           string `yaml:"mode"`        // static | once | loop | bounce
	Interpolate    bool   `yaml:"interpolate"`
	NoiseKeyframes int    `yaml:"noise_keyframes"` // procedural keyframes when no frames are supplied
}

// SpeciesConfig holds the identifier parameters.
type SpeciesConfig struct {
	Mode                   string `yaml:"mode"`      // off | basic | phylogeny | phylogeny+metrics
	Algorithm              string `yaml:"algorithm"` // genealogical | modal
	Interval               int    `yaml:"interval"`  // ticks between identifier runs
	Samples                int    `yaml:"samples"`   // slots sampled per cell by the modal identifier, 0 = all
	Sensitivity            int    `yaml:"sensitivity"`
	TimeSliceConnect       int    `yaml:"time_slice_connect"`
	MinTreeSize            uint32 `yaml:"min_tree_size"` // newick pruning threshold
	ExcludeWithDescendants bool   `yaml:"exclude_with_descendants"`
}

// RunConfig holds orchestration parameters.
type RunConfig struct {
	Threads      int    `yaml:"threads"` // 0 = hardware parallelism
	ReseedKnown  bool   `yaml:"reseed_known"`
	ReseedGenome uint64 `yaml:"reseed_genome"`
	Logging      bool   `yaml:"logging"`
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if
// path is empty. Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the cross-field constraints the packages downstream rely
// on.
func (c *Config) Validate() error {
	if c.Grid.X < 1 || c.Grid.Y < 1 || c.Grid.SlotsPerSquare < 1 {
		return fmt.Errorf("grid dimensions must be positive: %dx%dx%d", c.Grid.X, c.Grid.Y, c.Grid.SlotsPerSquare)
	}
	if c.Settlement.Dispersal < 1 {
		return fmt.Errorf("dispersal index must be at least 1")
	}
	if c.Environment.ChangeRate < 1 {
		return fmt.Errorf("environment change rate must be at least 1")
	}
	if c.Species.Interval < 1 {
		return fmt.Errorf("species interval must be at least 1")
	}
	switch c.Species.Algorithm {
	case "genealogical", "modal":
	default:
		return fmt.Errorf("unknown species algorithm %q", c.Species.Algorithm)
	}
	if !c.Breeding.Asexual && !c.Breeding.Sexual {
		return fmt.Errorf("at least one of asexual and sexual breeding must be enabled")
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
