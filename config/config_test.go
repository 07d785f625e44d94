package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Grid.X != 100 || cfg.Grid.Y != 100 || cfg.Grid.SlotsPerSquare != 100 {
		t.Errorf("grid defaults = %dx%dx%d", cfg.Grid.X, cfg.Grid.Y, cfg.Grid.SlotsPerSquare)
	}
	if cfg.Breeding.BreedCost != 500 {
		t.Errorf("breed cost = %d", cfg.Breeding.BreedCost)
	}
	if cfg.Environment.Mode != "loop" {
		t.Errorf("environment mode = %q", cfg.Environment.Mode)
	}
	if cfg.Species.Algorithm != "genealogical" {
		t.Errorf("species algorithm = %q", cfg.Species.Algorithm)
	}
	if !cfg.Run.Logging {
		t.Error("logging default off")
	}
}

func TestLoadMergesUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	userYAML := `
grid:
  x: 20
  y: 30
breeding:
  mutate: 0
`
	if err := os.WriteFile(path, []byte(userYAML), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Grid.X != 20 || cfg.Grid.Y != 30 {
		t.Errorf("user grid not applied: %dx%d", cfg.Grid.X, cfg.Grid.Y)
	}
	// Unspecified keys keep their defaults.
	if cfg.Grid.SlotsPerSquare != 100 {
		t.Errorf("slots default lost: %d", cfg.Grid.SlotsPerSquare)
	}
	if cfg.Breeding.Mutate != 0 {
		t.Errorf("mutate override lost: %d", cfg.Breeding.Mutate)
	}
	if cfg.Breeding.BreedCost != 500 {
		t.Errorf("breed cost default lost: %d", cfg.Breeding.BreedCost)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero grid", func(c *Config) { c.Grid.X = 0 }},
		{"zero dispersal", func(c *Config) { c.Settlement.Dispersal = 0 }},
		{"zero change rate", func(c *Config) { c.Environment.ChangeRate = 0 }},
		{"bad algorithm", func(c *Config) { c.Species.Algorithm = "psychic" }},
		{"no breeding mode", func(c *Config) { c.Breeding.Asexual = false; c.Breeding.Sexual = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("validation accepted bad config")
			}
		})
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Grid.X = 64
	cfg.Run.ReseedKnown = true
	cfg.Run.ReseedGenome = 0xdeadbeefcafebabe

	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatal(err)
	}

	back, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Grid.X != 64 {
		t.Errorf("grid x = %d after round trip", back.Grid.X)
	}
	if back.Run.ReseedGenome != 0xdeadbeefcafebabe {
		t.Errorf("reseed genome = %#x after round trip", back.Run.ReseedGenome)
	}
}
