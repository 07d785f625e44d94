// Package grid holds the spatial population state: a fixed-capacity 3D array
// of critter slots with per-cell aggregates and locks.
package grid

import (
	"fmt"
	"sync"

	"github.com/pthm-cable/strata/genome"
)

// Compile-time upper bounds. Position packing (x*65536 + y*256 + slot)
// depends on Y and slot counts staying within a byte range.
const (
	MaxGridX = 256
	MaxGridY = 256
	MaxSlots = 256
)

// Cell aggregates for one (x,y) location. TotalFitness and MaxUsed are
// maintained by whichever phase currently owns the cell; the mutex guards
// settlement's cross-strip insertions only.
type Cell struct {
	TotalFitness uint32
	MaxUsed      int16 // highest occupied slot index, -1 when empty

	BreedAttempts uint32
	BreedFails    uint32
	Settles       uint32
	SettleFails   uint32

	mu sync.Mutex
}

// Lock acquires the cell's settlement lock.
func (c *Cell) Lock() { c.mu.Lock() }

// Unlock releases the cell's settlement lock.
func (c *Cell) Unlock() { c.mu.Unlock() }

// Grid is the full population array: X*Y cells of Slots critter slots each.
type Grid struct {
	X, Y, Slots int

	cells    []Cell
	critters []Critter
}

// New allocates a grid, validating against the compile-time bounds.
func New(x, y, slots int) (*Grid, error) {
	if x < 1 || x > MaxGridX || y < 1 || y > MaxGridY {
		return nil, fmt.Errorf("grid dimensions %dx%d outside [1,%d]x[1,%d]", x, y, MaxGridX, MaxGridY)
	}
	if slots < 1 || slots > MaxSlots {
		return nil, fmt.Errorf("slots per square %d outside [1,%d]", slots, MaxSlots)
	}
	g := &Grid{
		X:        x,
		Y:        y,
		Slots:    slots,
		cells:    make([]Cell, x*y),
		critters: make([]Critter, x*y*slots),
	}
	g.Reset()
	return g, nil
}

// Reset empties every slot and zeroes all aggregates.
func (g *Grid) Reset() {
	for i := range g.critters {
		g.critters[i] = Critter{}
	}
	for i := range g.cells {
		g.cells[i] = Cell{MaxUsed: -1}
	}
}

// Cell returns the aggregate record at (x,y).
func (g *Grid) Cell(x, y int) *Cell {
	return &g.cells[y*g.X+x]
}

// Critter returns the critter at (x, y, slot).
func (g *Grid) Critter(x, y, slot int) *Critter {
	return &g.critters[(y*g.X+x)*g.Slots+slot]
}

// CellSlots returns the slots at (x,y) as one slice.
func (g *Grid) CellSlots(x, y int) []Critter {
	base := (y*g.X + x) * g.Slots
	return g.critters[base : base+g.Slots]
}

// PackPos packs a slot address for the species identifier's write-back lists.
func PackPos(x, y, slot int) uint32 {
	return uint32(x)*65536 + uint32(y)*256 + uint32(slot)
}

// UnpackPos reverses PackPos.
func UnpackPos(p uint32) (x, y, slot int) {
	return int(p / 65536), int(p % 65536 / 256), int(p % 256)
}

// AliveInCell counts occupied slots at (x,y).
func (g *Grid) AliveInCell(x, y int) int {
	n := 0
	for _, c := range g.CellSlots(x, y) {
		if c.Age > 0 {
			n++
		}
	}
	return n
}

// Alive counts every occupied slot. Used by invariant checks and tests; the
// running total during a simulation is kept by the orchestrator.
func (g *Grid) Alive() int {
	n := 0
	for i := range g.critters {
		if g.critters[i].Age > 0 {
			n++
		}
	}
	return n
}

// RecomputeAggregates rebuilds TotalFitness and MaxUsed for one cell from
// its slots.
func (g *Grid) RecomputeAggregates(x, y int) {
	cell := g.Cell(x, y)
	cell.TotalFitness = 0
	cell.MaxUsed = -1
	for i, c := range g.CellSlots(x, y) {
		if c.Age > 0 {
			cell.TotalFitness += uint32(c.Fitness)
			cell.MaxUsed = int16(i)
		}
	}
}

// CheckAggregates verifies the per-cell invariants, returning the first
// violation found.
func (g *Grid) CheckAggregates() error {
	for y := 0; y < g.Y; y++ {
		for x := 0; x < g.X; x++ {
			cell := g.Cell(x, y)
			var total uint32
			maxUsed := int16(-1)
			for i, c := range g.CellSlots(x, y) {
				if c.Age > 0 {
					total += uint32(c.Fitness)
					maxUsed = int16(i)
				}
			}
			if total != cell.TotalFitness {
				return fmt.Errorf("cell (%d,%d): total fitness %d, aggregates say %d", x, y, total, cell.TotalFitness)
			}
			if maxUsed != cell.MaxUsed {
				return fmt.Errorf("cell (%d,%d): max used %d, aggregates say %d", x, y, maxUsed, cell.MaxUsed)
			}
		}
	}
	return nil
}

// Offspring is one nursery record: a bred child genome waiting for
// settlement.
type Offspring struct {
	Genome         genome.Genome
	OriginX        int16
	OriginY        int16
	DispersalIndex uint8
	SpeciesID      uint64
}
