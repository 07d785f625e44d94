package telemetry

import (
	"log/slog"

	"gonum.org/v1/gonum/stat"
)

// GenStats holds aggregated statistics for one species-snapshot window.
type GenStats struct {
	WindowStart uint64 `csv:"-"`
	Iteration   uint64 `csv:"iteration"`

	// Census at window end
	AliveCount   int `csv:"alive"`
	SpeciesCount int `csv:"species"`

	// Events during window
	Births        int `csv:"births"`
	Kills         int `csv:"kills"`
	BreedAttempts int `csv:"breed_attempts"`
	BreedFails    int `csv:"breed_fails"`
	Settles       int `csv:"settles"`
	SettleFails   int `csv:"settle_fails"`

	// Population fitness distribution (sampled at window end)
	MeanFitness float64 `csv:"mean_fitness"`
	StdFitness  float64 `csv:"std_fitness"`
}

// FitnessStats computes the mean and standard deviation of the live
// population's fitness values.
func FitnessStats(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean = stat.Mean(values, nil)
	if len(values) > 1 {
		std = stat.StdDev(values, nil)
	}
	return mean, std
}

// LogValue implements slog.LogValuer for structured logging.
func (s GenStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_start", s.WindowStart),
		slog.Uint64("iteration", s.Iteration),
		slog.Int("alive", s.AliveCount),
		slog.Int("species", s.SpeciesCount),
		slog.Int("births", s.Births),
		slog.Int("kills", s.Kills),
		slog.Int("breed_attempts", s.BreedAttempts),
		slog.Int("breed_fails", s.BreedFails),
		slog.Int("settles", s.Settles),
		slog.Int("settle_fails", s.SettleFails),
		slog.Float64("mean_fitness", s.MeanFitness),
		slog.Float64("std_fitness", s.StdFitness),
	)
}

// LogStats logs the window stats using slog.
func (s GenStats) LogStats() {
	slog.Info("stats",
		"iteration", s.Iteration,
		"alive", s.AliveCount,
		"species", s.SpeciesCount,
		"births", s.Births,
		"kills", s.Kills,
		"breed_attempts", s.BreedAttempts,
		"breed_fails", s.BreedFails,
		"settles", s.Settles,
		"settle_fails", s.SettleFails,
		"mean_fitness", s.MeanFitness,
		"std_fitness", s.StdFitness,
	)
}
