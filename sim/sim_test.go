package sim

import (
	"testing"

	"github.com/pthm-cable/strata/config"
	"github.com/pthm-cable/strata/env"
	"github.com/pthm-cable/strata/genome"
	"github.com/pthm-cable/strata/grid"
)

// gridOffspringAtOrigin is a nursery record launched from (0,0).
func gridOffspringAtOrigin(dispersalIndex uint8) grid.Offspring {
	return grid.Offspring{DispersalIndex: dispersalIndex}
}

// gridOffspringWith is a corner-launched record carrying a real genome.
func gridOffspringWith(g genome.Genome, dispersalIndex uint8) grid.Offspring {
	return grid.Offspring{Genome: g, DispersalIndex: dispersalIndex, SpeciesID: 1}
}

const testSeed = 42

// testConfig returns a small deterministic configuration: one worker, a
// 10x10x10 grid, static environment.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Grid.X = 10
	cfg.Grid.Y = 10
	cfg.Grid.SlotsPerSquare = 10
	cfg.Run.Threads = 1
	cfg.Environment.Mode = "static"
	cfg.Breeding.Asexual = true
	cfg.Breeding.Sexual = false
	cfg.Breeding.Mutate = 0
	return cfg
}

// redSource is a single all-red keyframe.
func redSource() env.FrameSource {
	return &env.StaticSource{
		W: 10, H: 10,
		Frames: []env.Frame{env.Uniform(10, 10, [3]uint8{255, 0, 0})},
	}
}

// viableRedGenome finds a genome viable under the red environment for the
// test seed's tables.
func viableRedGenome(t *testing.T, cfg *config.Config) genome.Genome {
	t.Helper()
	tab := genome.NewTables(testSeed)
	envColor := [3]uint8{255, 0, 0}
	for i := uint64(0); i < 1_000_000; i++ {
		g := genome.Genome(i * 0x9e3779b97f4a7c15)
		if tab.Fitness(g, envColor, cfg.Fitness.Target, cfg.Fitness.SettleTolerance) > 0 {
			return g
		}
	}
	t.Fatal("no viable genome for red environment")
	return 0
}

func newTestSim(t *testing.T, cfg *config.Config) *Simulation {
	t.Helper()
	s, err := New(Options{Config: cfg, Seed: testSeed, Frames: redSource()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	if err := s.Setup(); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSoloViability(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.ReseedKnown = true
	cfg.Run.ReseedGenome = uint64(viableRedGenome(t, cfg))

	s := newTestSim(t, cfg)

	if s.AliveCount() != 10 {
		t.Errorf("alive after setup = %d, want slots_per_square = 10", s.AliveCount())
	}
	if got := s.Grid().AliveInCell(5, 5); got != 10 {
		t.Errorf("centre cell occupancy = %d, want 10", got)
	}
	if got := s.Grid().Alive(); got != 10 {
		t.Errorf("grid-wide alive = %d, want 10", got)
	}
	if len(s.SpeciesList()) != 1 {
		t.Errorf("species after setup = %d, want 1", len(s.SpeciesList()))
	}
}

func TestReseedNonViableGenomeFails(t *testing.T) {
	cfg := testConfig(t)
	tab := genome.NewTables(testSeed)
	envColor := [3]uint8{255, 0, 0}
	for i := uint64(0); i < 1_000_000; i++ {
		g := genome.Genome(i*0x2545f4914f6cdd1d + 7)
		if tab.Fitness(g, envColor, cfg.Fitness.Target, cfg.Fitness.SettleTolerance) == 0 {
			cfg.Run.ReseedKnown = true
			cfg.Run.ReseedGenome = uint64(g)
			break
		}
	}
	if !cfg.Run.ReseedKnown {
		t.Fatal("no non-viable genome found")
	}

	s, err := New(Options{Config: cfg, Seed: testSeed, Frames: redSource()})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Setup(); err == nil {
		t.Error("setup accepted non-viable reseed genome")
	}
}

func TestStableCensus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.ReseedKnown = true
	cfg.Run.ReseedGenome = uint64(viableRedGenome(t, cfg))

	s := newTestSim(t, cfg)

	prev := s.AliveCount()
	for i := 0; i < 100; i++ {
		halt, err := s.Iterate()
		if err != nil {
			t.Fatal(err)
		}
		if halt {
			t.Fatal("static environment halted")
		}
		if s.AliveCount() < prev {
			t.Fatalf("alive count dropped at tick %d: %d -> %d", i+1, prev, s.AliveCount())
		}
		prev = s.AliveCount()

		if got := int64(s.Grid().Alive()); got != s.AliveCount() {
			t.Fatalf("tick %d: aliveCount %d != grid census %d", i+1, s.AliveCount(), got)
		}
	}

	if len(s.SpeciesList()) != 1 {
		t.Errorf("species count = %d, want 1 with mutate=0", len(s.SpeciesList()))
	}
	root := s.Tree().Node(s.Tree().Root())
	if root.TLast != 100 {
		t.Errorf("root t_last = %d, want 100", root.TLast)
	}
	if err := s.Grid().CheckAggregates(); err != nil {
		t.Errorf("aggregates after run: %v", err)
	}
	if err := s.Tree().Check(); err != nil {
		t.Errorf("tree invariants: %v", err)
	}
}

func TestEnvironmentHaltStopsRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.ReseedKnown = true
	cfg.Run.ReseedGenome = uint64(viableRedGenome(t, cfg))
	cfg.Environment.Mode = "once"
	cfg.Environment.ChangeRate = 5
	cfg.Environment.Interpolate = false

	src := &env.StaticSource{
		W: 10, H: 10,
		Frames: []env.Frame{
			env.Uniform(10, 10, [3]uint8{255, 0, 0}),
			env.Uniform(10, 10, [3]uint8{255, 0, 0}),
		},
	}
	s, err := New(Options{Config: cfg, Seed: testSeed, Frames: src})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Setup(); err != nil {
		t.Fatal(err)
	}

	for tick := 1; tick <= 9; tick++ {
		halt, err := s.Iterate()
		if err != nil {
			t.Fatal(err)
		}
		if halt {
			t.Fatalf("halted early at tick %d", tick)
		}
	}
	halt, err := s.Iterate()
	if err != nil {
		t.Fatal(err)
	}
	if !halt {
		t.Error("once-mode environment did not halt at tick 10")
	}
}

func TestDispersalBoundsNonToroidal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Settlement.Dispersal = 1
	s, err := New(Options{Config: cfg, Seed: testSeed, Frames: redSource()})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	rnd := genome.NewByteCursor(s.Tables(), 0)
	offGrid := 0
	for i := 0; i < 10_000; i++ {
		record := gridOffspringAtOrigin(1)
		tx, ty, ok := s.settleTarget(&record, &rnd)
		if !ok {
			offGrid++
			continue
		}
		if tx < 0 || ty < 0 || tx >= 10 || ty >= 10 {
			t.Fatalf("settle target (%d,%d) outside bounded grid", tx, ty)
		}
	}
	if offGrid == 0 {
		t.Error("no off-grid draws from the corner with dispersal_index 1")
	}
}

func TestDispersalToroidalWraps(t *testing.T) {
	cfg := testConfig(t)
	cfg.Settlement.Dispersal = 1
	cfg.Settlement.Toroidal = true
	s, err := New(Options{Config: cfg, Seed: testSeed, Frames: redSource()})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	rnd := genome.NewByteCursor(s.Tables(), 0)
	for i := 0; i < 10_000; i++ {
		record := gridOffspringAtOrigin(1)
		tx, ty, ok := s.settleTarget(&record, &rnd)
		if !ok {
			t.Fatal("toroidal dispersal reported off-grid")
		}
		if tx < 0 || ty < 0 || tx >= 10 || ty >= 10 {
			t.Fatalf("toroidal target (%d,%d) outside grid", tx, ty)
		}
	}
}

func TestSettleFailsCountedWithoutWrites(t *testing.T) {
	cfg := testConfig(t)
	cfg.Settlement.Dispersal = 1
	cfg.Run.ReseedKnown = true
	cfg.Run.ReseedGenome = uint64(viableRedGenome(t, cfg))

	s := newTestSim(t, cfg)

	// Hand-plant a nursery burst launched from the corner and settle it.
	g := genome.Genome(cfg.Run.ReseedGenome)
	n := 0
	for ; n < 200; n++ {
		s.nursery[n] = gridOffspringWith(g, 1)
	}
	s.pool.results[0] = workerResult{}
	s.settleSlice(0, 0, n)

	res := s.pool.results[0]
	if res.settles+res.settleFails != n {
		t.Errorf("settles %d + fails %d != %d records", res.settles, res.settleFails, n)
	}
	if res.settleFails == 0 {
		t.Error("corner burst produced no off-grid failures")
	}

	// Aggregates stay consistent after locked insertions.
	if err := s.Grid().CheckAggregates(); err != nil {
		t.Errorf("aggregates after settlement: %v", err)
	}
	if got := s.Grid().Alive(); got != 10+res.settles {
		t.Errorf("grid alive = %d, want %d", got, 10+res.settles)
	}
}

func TestDeterministicForFixedSeedAndThreads(t *testing.T) {
	run := func() (int64, uint64) {
		cfg := testConfig(t)
		cfg.Breeding.Mutate = 10
		s := newTestSim(t, cfg)
		for i := 0; i < 30; i++ {
			if _, err := s.Iterate(); err != nil {
				t.Fatal(err)
			}
		}
		var sum uint64
		for y := 0; y < 10; y++ {
			for x := 0; x < 10; x++ {
				for _, c := range s.Grid().CellSlots(x, y) {
					if c.Age > 0 {
						sum ^= uint64(c.Genome) * (uint64(c.SpeciesID) + 1)
					}
				}
			}
		}
		return s.AliveCount(), sum
	}

	alive1, sum1 := run()
	alive2, sum2 := run()
	if alive1 != alive2 || sum1 != sum2 {
		t.Errorf("runs diverged: alive %d/%d, checksum %#x/%#x", alive1, alive2, sum1, sum2)
	}
}

func TestSpeciesReferencedByCrittersExist(t *testing.T) {
	cfg := testConfig(t)
	cfg.Breeding.Mutate = 40 // aggressive mutation to force splits
	cfg.Species.Interval = 10
	s := newTestSim(t, cfg)

	for i := 0; i < 50; i++ {
		if _, err := s.Iterate(); err != nil {
			t.Fatal(err)
		}
	}

	listed := map[uint64]bool{}
	for _, sp := range s.SpeciesList() {
		listed[sp.ID] = true
	}
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			for _, c := range s.Grid().CellSlots(x, y) {
				if c.Age > 0 && !listed[c.SpeciesID] {
					t.Fatalf("live critter references unlisted species %d", c.SpeciesID)
				}
			}
		}
	}
	if err := s.Tree().Check(); err != nil {
		t.Errorf("tree invariants: %v", err)
	}
}

func TestMultiThreadRunStaysConsistent(t *testing.T) {
	cfg := testConfig(t)
	cfg.Grid.X = 24
	cfg.Grid.Y = 24
	cfg.Run.Threads = 4
	cfg.Settlement.Toroidal = true

	s, err := New(Options{Config: cfg, Seed: testSeed, Frames: &env.StaticSource{
		W: 24, H: 24,
		Frames: []env.Frame{env.Uniform(24, 24, [3]uint8{255, 0, 0})},
	}})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Setup(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 40; i++ {
		if _, err := s.Iterate(); err != nil {
			t.Fatal(err)
		}
		if got := int64(s.Grid().Alive()); got != s.AliveCount() {
			t.Fatalf("tick %d: aliveCount %d != census %d", i+1, s.AliveCount(), got)
		}
	}
	if err := s.Grid().CheckAggregates(); err != nil {
		t.Errorf("aggregates after multi-thread run: %v", err)
	}
}
