// Package telemetry accumulates per-tick event counts and writes the run's
// CSV logs: per-generation population stats and the species log consumed by
// external analysis tools.
package telemetry

// Collector accumulates events between species snapshots and produces
// GenStats. Workers report aggregated deltas at phase joins, so the
// collector itself is single-threaded.
type Collector struct {
	windowStart uint64

	births        int
	kills         int
	breedAttempts int
	breedFails    int
	settles       int
	settleFails   int
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// AddBirths records settled offspring.
func (c *Collector) AddBirths(n int) { c.births += n }

// AddKills records in-place deaths (age cap or fitness collapse).
func (c *Collector) AddKills(n int) { c.kills += n }

// AddBreedAttempts records breeding attempts.
func (c *Collector) AddBreedAttempts(n int) { c.breedAttempts += n }

// AddBreedFails records failed breeding attempts.
func (c *Collector) AddBreedFails(n int) { c.breedFails += n }

// AddSettles records successful settlements.
func (c *Collector) AddSettles(n int) { c.settles += n }

// AddSettleFails records settlement failures (off grid, full cell, or
// non-viable genome).
func (c *Collector) AddSettleFails(n int) { c.settleFails += n }

// Flush produces a GenStats for the window ending at the given iteration and
// resets the counters. The caller supplies the census values sampled at the
// window end.
func (c *Collector) Flush(iteration uint64, alive int, speciesCount int, fitness []float64) GenStats {
	stats := GenStats{
		WindowStart: c.windowStart,
		Iteration:   iteration,

		AliveCount:   alive,
		SpeciesCount: speciesCount,

		Births:        c.births,
		Kills:         c.kills,
		BreedAttempts: c.breedAttempts,
		BreedFails:    c.breedFails,
		Settles:       c.settles,
		SettleFails:   c.settleFails,
	}
	stats.MeanFitness, stats.StdFitness = FitnessStats(fitness)

	c.windowStart = iteration
	c.births = 0
	c.kills = 0
	c.breedAttempts = 0
	c.breedFails = 0
	c.settles = 0
	c.settleFails = 0

	return stats
}
