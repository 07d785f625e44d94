// Package sim drives the simulation: setup and reseeding, the parallel
// fork-join tick loop, offspring settlement, and the species identification
// cadence.
package sim

import (
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pthm-cable/strata/config"
	"github.com/pthm-cable/strata/env"
	"github.com/pthm-cable/strata/genome"
	"github.com/pthm-cable/strata/grid"
	"github.com/pthm-cable/strata/phylo"
	"github.com/pthm-cable/strata/species"
	"github.com/pthm-cable/strata/telemetry"
)

// maxThreads bounds the worker pool.
const maxThreads = 256

// maxSeedAttempts bounds the random search for a viable founder genome.
const maxSeedAttempts = 1_000_000

// speciesWarnAfter is the identifier elapsed time that trips the one-shot
// slow-identification warning.
const speciesWarnAfter = 5 * time.Second

// Options configures a simulation.
type Options struct {
	Config *config.Config
	Seed   int64

	// Frames supplies the environment keyframes. Nil selects the procedural
	// noise source.
	Frames env.FrameSource

	// Output receives CSV logs when set.
	Output *telemetry.OutputManager

	// LogStats emits generation stats through slog.
	LogStats bool

	// Status receives user-facing progress and warning messages.
	Status func(msg string)
}

// Simulation owns the full simulation context: grid, environment, lookup
// tables, species state, and the worker pool. All mutable state funnels
// through here; worker goroutines receive disjoint-region handles.
type Simulation struct {
	cfg      *config.Config
	tables   *genome.Tables
	grid     *grid.Grid
	environ  *env.Environment
	settings grid.Settings

	threads  int
	baseSeed int64
	rng      *rand.Rand

	iteration  uint64
	aliveCount int64

	nursery []grid.Offspring
	stride  int

	speciesMode species.Mode
	identifier  species.Identifier
	tree        *phylo.Tree
	ids         *species.IDSource
	speciesList []species.Species

	collector *telemetry.Collector
	output    *telemetry.OutputManager
	logStats  bool
	status    func(string)

	warningFired bool

	pool *workerPool
}

// New builds a simulation from options. Call Setup before Iterate.
func New(opts Options) (*Simulation, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("sim: nil config")
	}

	threads := cfg.Run.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if threads < 1 {
		threads = 1
	}
	if threads > maxThreads {
		threads = maxThreads
	}

	g, err := grid.New(cfg.Grid.X, cfg.Grid.Y, cfg.Grid.SlotsPerSquare)
	if err != nil {
		return nil, err
	}

	mode, err := env.ParseMode(cfg.Environment.Mode)
	if err != nil {
		return nil, err
	}
	src := opts.Frames
	if src == nil {
		src = env.NewNoiseSource(opts.Seed, cfg.Grid.X, cfg.Grid.Y, cfg.Environment.NoiseKeyframes)
	}
	frames, err := env.Load(src, cfg.Grid.X, cfg.Grid.Y)
	if err != nil {
		return nil, fmt.Errorf("loading environment frames: %w", err)
	}
	environ, err := env.New(frames, cfg.Grid.X, cfg.Grid.Y, mode, cfg.Environment.ChangeRate, cfg.Environment.Interpolate)
	if err != nil {
		return nil, err
	}

	spMode, err := species.ParseMode(cfg.Species.Mode)
	if err != nil {
		return nil, err
	}

	nurserySize := cfg.Grid.X * cfg.Grid.Y * cfg.Grid.SlotsPerSquare * 2
	s := &Simulation{
		cfg:      cfg,
		tables:   genome.NewTables(opts.Seed),
		grid:     g,
		environ:  environ,
		threads:  threads,
		baseSeed: opts.Seed,
		rng:      rand.New(rand.NewSource(opts.Seed)),

		nursery: make([]grid.Offspring, nurserySize),
		stride:  nurserySize / threads,

		speciesMode: spMode,
		collector:   telemetry.NewCollector(),
		output:      opts.Output,
		logStats:    opts.LogStats,
		status:      opts.Status,

		pool: newWorkerPool(threads, cfg.Grid.SlotsPerSquare),
	}
	s.settings = grid.Settings{
		StartAge:        cfg.Breeding.StartAge,
		BreedThreshold:  cfg.Breeding.BreedThreshold,
		BreedCost:       cfg.Breeding.BreedCost,
		Lifespan:        cfg.Breeding.Lifespan,
		Target:          cfg.Fitness.Target,
		SettleTolerance: cfg.Fitness.SettleTolerance,
		Mutate:          cfg.Breeding.Mutate,
		MaxDifference:   cfg.Breeding.MaxDifference,
		Sexual:          cfg.Breeding.Sexual,
		BreedDiffer:     cfg.Breeding.BreedDiffer,
		BreedSpecies:    cfg.Breeding.BreedSpecies,
		DispersalIndex:  cfg.Settlement.Dispersal,
	}
	return s, nil
}

// Setup seeds the grid centre with a viable founder population and resets
// all run state. It can be called again to reseed.
func (s *Simulation) Setup() error {
	s.grid.Reset()
	s.iteration = 0
	s.aliveCount = 0
	s.warningFired = false

	s.tree = phylo.NewTree()
	s.ids = species.NewIDSource(1)
	switch s.cfg.Species.Algorithm {
	case "modal":
		s.identifier = &species.Modal{
			Tables:           s.tables,
			MaxDifference:    s.cfg.Breeding.MaxDifference,
			Sensitivity:      s.cfg.Species.Sensitivity,
			TimeSliceConnect: s.cfg.Species.TimeSliceConnect,
			SampleSlots:      s.cfg.Species.Samples,
			IDs:              s.ids,
		}
	default:
		s.identifier = &species.Genealogical{
			Tables:        s.tables,
			MaxDifference: s.cfg.Breeding.MaxDifference,
			Mode:          s.speciesMode,
			Tree:          s.tree,
			IDs:           s.ids,
		}
	}

	cx, cy := s.grid.X/2, s.grid.Y/2
	envColor := s.environ.At(cx, cy)

	var founder genome.Genome
	if s.cfg.Run.ReseedKnown {
		founder = genome.Genome(s.cfg.Run.ReseedGenome)
		if s.tables.Fitness(founder, envColor, s.settings.Target, s.settings.SettleTolerance) == 0 {
			return fmt.Errorf("reseed genome %016x not viable at seed cell (%d,%d)", uint64(founder), cx, cy)
		}
	} else {
		found := false
		for i := 0; i < maxSeedAttempts; i++ {
			g := genome.Genome(s.rng.Uint64())
			if s.tables.Fitness(g, envColor, s.settings.Target, s.settings.SettleTolerance) > 0 {
				founder = g
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("no viable genome found for seed cell (%d,%d) after %d attempts", cx, cy, maxSeedAttempts)
		}
	}

	sid := s.ids.Next()
	slots := s.grid.CellSlots(cx, cy)
	for i := range slots {
		if slots[i].Initialise(founder, envColor, sid, s.tables, &s.settings) > 0 {
			// Jitter ages so the founding cohort doesn't breed in lockstep.
			slots[i].Age = s.settings.StartAge + uint8(s.rng.Intn(10))
		}
	}
	s.grid.RecomputeAggregates(cx, cy)
	alive := s.grid.AliveInCell(cx, cy)
	s.aliveCount = int64(alive)

	sp := species.Species{
		ID:         sid,
		TypeGenome: founder,
		Size:       int32(alive),
		LogNode:    -1,
	}
	if s.speciesMode >= species.ModePhylogeny {
		item := phylo.DataItem{Size: uint32(alive), SampleGenome: founder}
		root, err := s.tree.CreateRoot(sid, 0, item)
		if err != nil {
			return err
		}
		sp.LogNode = root
	}
	s.speciesList = []species.Species{sp}

	slog.Info("seeded",
		"genome", fmt.Sprintf("%016x", uint64(founder)),
		"cell_x", cx,
		"cell_y", cy,
		"alive", alive,
	)
	return nil
}

// Iterate runs one full tick: environment advance, parallel metabolise and
// breed, settlement, and (on cadence) species identification. The halt flag
// is raised when a once-mode environment runs out.
func (s *Simulation) Iterate() (halt bool, err error) {
	s.iteration++
	halt = s.environ.Advance()

	if !s.pool.running {
		s.pool.start(s)
	}

	s.runTickPhase()
	s.runSettlePhase()

	if s.speciesMode != species.ModeOff &&
		(s.iteration == 1 || s.iteration%uint64(s.cfg.Species.Interval) == 0) {
		if err := s.runSpecies(); err != nil {
			return halt, err
		}
	}
	return halt, nil
}

// runTickPhase partitions the x range into column strips and joins on the
// metabolise/breed pass.
func (s *Simulation) runTickPhase() {
	chunks := make([]workChunk, 0, s.threads)
	for w := 0; w < s.threads; w++ {
		x0 := w * s.grid.X / s.threads
		x1 := (w + 1) * s.grid.X / s.threads
		s.pool.results[w] = workerResult{nurseryEnd: w * s.stride}
		if x0 >= x1 {
			continue
		}
		chunks = append(chunks, workChunk{kind: chunkTick, worker: w, x0: x0, x1: x1})
	}
	s.pool.run(chunks)

	for w := 0; w < s.threads; w++ {
		res := &s.pool.results[w]
		s.aliveCount -= int64(res.kills)
		s.collector.AddKills(res.kills)
		s.collector.AddBreedAttempts(res.breedAttempts)
		s.collector.AddBreedFails(res.breedFails)
	}
}

// runSettlePhase drains each worker's nursery segment in parallel and joins.
func (s *Simulation) runSettlePhase() {
	ends := make([]int, s.threads)
	for w := 0; w < s.threads; w++ {
		ends[w] = s.pool.results[w].nurseryEnd
	}

	chunks := make([]workChunk, 0, s.threads)
	for w := 0; w < s.threads; w++ {
		start := w * s.stride
		s.pool.results[w] = workerResult{}
		if start >= ends[w] {
			continue
		}
		chunks = append(chunks, workChunk{kind: chunkSettle, worker: w, start: start, end: ends[w]})
	}
	s.pool.run(chunks)

	for w := 0; w < s.threads; w++ {
		res := &s.pool.results[w]
		s.aliveCount += int64(res.births)
		s.collector.AddBirths(res.births)
		s.collector.AddSettles(res.settles)
		s.collector.AddSettleFails(res.settleFails)
	}
}

// runSpecies invokes the identifier, refreshes the species list, and flushes
// the telemetry window.
func (s *Simulation) runSpecies() error {
	start := time.Now()
	world := &species.World{Grid: s.grid, Env: s.environ.Current()}
	newList, err := s.identifier.Identify(world, s.speciesList, s.iteration)
	if err != nil {
		return fmt.Errorf("species identification at iteration %d: %w", s.iteration, err)
	}
	s.speciesList = newList

	if elapsed := time.Since(start); elapsed > speciesWarnAfter && !s.warningFired {
		s.warningFired = true
		msg := fmt.Sprintf("species identification over %s critters took %s; consider turning species mode off",
			humanize.Comma(s.aliveCount), elapsed.Round(time.Millisecond))
		slog.Warn("species identification slow", "elapsed", elapsed, "alive", s.aliveCount)
		if s.status != nil {
			s.status(msg)
		}
	}

	if s.cfg.Run.Logging {
		stats := s.collector.Flush(s.iteration, int(s.aliveCount), len(newList), s.fitnessSample())
		if s.logStats {
			stats.LogStats()
		}
		if err := s.output.WriteGeneration(stats); err != nil {
			return err
		}
		if err := s.output.WriteSpeciesLog(s.speciesLogRows()); err != nil {
			return err
		}
	}
	return nil
}

// speciesLogRows renders the current species list as log records, ordered by
// id within this snapshot so the file stays deterministic.
func (s *Simulation) speciesLogRows() []telemetry.SpeciesLogRow {
	rows := make([]telemetry.SpeciesLogRow, 0, len(s.speciesList))
	for _, sp := range s.speciesList {
		rows = append(rows, telemetry.SpeciesLogRow{
			Time:          s.iteration,
			SpeciesID:     sp.ID,
			OriginTime:    sp.OriginTime,
			ParentID:      sp.ParentID,
			CurrentSize:   sp.Size,
			CurrentGenome: fmt.Sprintf("%016x", uint64(sp.TypeGenome)),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SpeciesID < rows[j].SpeciesID })
	return rows
}

// fitnessSample collects the live population's fitness values for the
// generation stats.
func (s *Simulation) fitnessSample() []float64 {
	values := make([]float64, 0, s.aliveCount)
	for y := 0; y < s.grid.Y; y++ {
		for x := 0; x < s.grid.X; x++ {
			cell := s.grid.Cell(x, y)
			if cell.TotalFitness == 0 {
				continue
			}
			slots := s.grid.CellSlots(x, y)
			for i := 0; i <= int(cell.MaxUsed); i++ {
				if slots[i].Age > 0 {
					values = append(values, float64(slots[i].Fitness))
				}
			}
		}
	}
	return values
}

// cursorSeed derives a worker's private random-byte cursor position from the
// base seed, worker id, iteration, and phase, keeping runs reproducible for
// a fixed thread count.
func (s *Simulation) cursorSeed(worker, phase int) uint16 {
	h := uint64(s.baseSeed) + s.iteration*0x9e37 + uint64(worker)*7919 + uint64(phase)*331
	return uint16(h)
}

// Close stops the worker pool.
func (s *Simulation) Close() {
	s.pool.stop()
}

// Iteration returns the current iteration count.
func (s *Simulation) Iteration() uint64 { return s.iteration }

// AliveCount returns the live critter total.
func (s *Simulation) AliveCount() int64 { return s.aliveCount }

// SpeciesList returns the current working species list.
func (s *Simulation) SpeciesList() []species.Species { return s.speciesList }

// Tree returns the phylogeny.
func (s *Simulation) Tree() *phylo.Tree { return s.tree }

// Grid exposes the population grid for read-only inspection between ticks.
func (s *Simulation) Grid() *grid.Grid { return s.grid }

// Environment exposes the environment for read-only inspection between
// ticks.
func (s *Simulation) Environment() *env.Environment { return s.environ }

// Tables exposes the lookup tables.
func (s *Simulation) Tables() *genome.Tables { return s.tables }

// MeanFitness returns the live population's mean fitness.
func (s *Simulation) MeanFitness() float64 {
	mean, _ := telemetry.FitnessStats(s.fitnessSample())
	return mean
}

// Threads returns the worker count in use.
func (s *Simulation) Threads() int { return s.threads }
