package grid

import "github.com/pthm-cable/strata/genome"

// Critter is one slot's occupant. Age 0 means the slot is empty.
type Critter struct {
	Genome    genome.Genome
	Age       uint8
	Energy    int32
	Fitness   uint8
	SpeciesID uint64
}

// Settings carries the per-run biological parameters the critter mechanics
// read. Values come from config; grid stays config-agnostic.
type Settings struct {
	StartAge        uint8
	BreedThreshold  uint8 // age at which breeding becomes possible
	BreedCost       int32
	Lifespan        uint8 // 0 disables the age cap
	Target          int
	SettleTolerance int
	Mutate          uint8
	MaxDifference   int
	Sexual          bool
	BreedDiffer     bool
	BreedSpecies    bool
	DispersalIndex  uint8
}

// initialEnergyScale converts a fitness score into a starting energy budget.
const initialEnergyScale = 10

// Alive reports whether the slot is occupied.
func (c *Critter) Alive() bool {
	return c.Age > 0
}

// Kill empties the slot in place.
func (c *Critter) Kill() {
	c.Age = 0
}

// Initialise settles a genome into this slot. Returns the fitness score; a
// zero return means the genome was not viable in this environment and the
// slot stays empty.
func (c *Critter) Initialise(g genome.Genome, env [3]uint8, speciesID uint64, tab *genome.Tables, s *Settings) int {
	f := tab.Fitness(g, env, s.Target, s.SettleTolerance)
	if f == 0 {
		c.Age = 0
		return 0
	}
	c.Genome = g
	c.Age = s.StartAge
	c.Energy = int32(f) * initialEnergyScale
	c.Fitness = uint8(f)
	c.SpeciesID = speciesID
	return f
}

// Tick metabolises one iteration: energy is credited in proportion to the
// cell's food share and the critter's own fitness, age advances, and the
// critter reports whether it is ready to breed. A true kill return means the
// slot was emptied this tick (age cap exceeded).
func (c *Critter) Tick(addFood int32, s *Settings) (breeder, killed bool) {
	if c.Age == 0 {
		return false, false
	}
	c.Energy += int32(c.Fitness) * addFood
	if c.Age < 255 {
		c.Age++
	}
	if s.Lifespan > 0 && c.Age > s.Lifespan {
		c.Age = 0
		return false, true
	}
	return c.Age >= s.BreedThreshold && c.Energy >= s.BreedCost, false
}

// Breed synthesises a child from this critter and a mate (which may be the
// critter itself in asexual mode), deducting the breed cost from both
// parents. On failure the cost is refunded and ok is false.
func (c *Critter) Breed(mate *Critter, x, y int, tab *genome.Tables, rnd *genome.ByteCursor, s *Settings) (Offspring, bool) {
	c.Energy -= s.BreedCost
	if mate != c {
		mate.Energy -= s.BreedCost
	}

	if mate != c {
		refund := false
		if s.BreedSpecies && mate.SpeciesID != c.SpeciesID {
			refund = true
		}
		// Partner too distant.
		if s.BreedDiffer && !tab.WithinDistance(c.Genome, mate.Genome, s.MaxDifference-1) {
			refund = true
		}
		if refund {
			c.Energy += s.BreedCost
			mate.Energy += s.BreedCost
			return Offspring{}, false
		}
	}

	var child genome.Genome
	if s.Sexual && mate != c {
		mask := tab.GeneExchange[rnd.Next16()]
		child = genome.Splice(c.Genome, mate.Genome, mask)
	} else {
		child = c.Genome
	}
	child = tab.Mutate(child, s.Mutate, rnd)

	return Offspring{
		Genome:         child,
		OriginX:        int16(x),
		OriginY:        int16(y),
		DispersalIndex: s.DispersalIndex,
		SpeciesID:      c.SpeciesID,
	}, true
}
