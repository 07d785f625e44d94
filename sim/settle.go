package sim

import (
	"github.com/pthm-cable/strata/genome"
	"github.com/pthm-cable/strata/grid"
)

// settleSlice drains one nursery segment. Offspring may target any cell, so
// each insertion happens under that cell's mutex; only one lock is ever held
// at a time.
func (s *Simulation) settleSlice(worker, start, end int) {
	res := &s.pool.results[worker]
	rnd := genome.NewByteCursor(s.tables, s.cursorSeed(worker, 1))

	for i := start; i < end; i++ {
		off := &s.nursery[i]

		tx, ty, onGrid := s.settleTarget(off, &rnd)
		if !onGrid {
			// Off-grid dispersal: charge the failure to the origin cell.
			origin := s.grid.Cell(int(off.OriginX), int(off.OriginY))
			origin.Lock()
			origin.SettleFails++
			origin.Unlock()
			res.settleFails++
			continue
		}

		cell := s.grid.Cell(tx, ty)
		cell.Lock()
		slot := -1
		slots := s.grid.CellSlots(tx, ty)
		for j := range slots {
			if slots[j].Age == 0 {
				slot = j
				break
			}
		}
		if slot == -1 {
			cell.SettleFails++
			res.settleFails++
			cell.Unlock()
			continue
		}

		f := slots[slot].Initialise(off.Genome, s.environ.At(tx, ty), off.SpeciesID, s.tables, &s.settings)
		if f > 0 {
			cell.TotalFitness += uint32(f)
			if int16(slot) > cell.MaxUsed {
				cell.MaxUsed = int16(slot)
			}
			cell.Settles++
			res.settles++
			res.births++
		} else {
			cell.SettleFails++
			res.settleFails++
		}
		cell.Unlock()
	}
}

// settleTarget picks the destination cell for one offspring: a uniform
// random cell in non-spatial mode, otherwise the origin displaced by a
// table-sampled dispersal vector scaled down by the dispersal index.
// Toroidal grids wrap; bounded grids report off-grid targets.
func (s *Simulation) settleTarget(off *grid.Offspring, rnd *genome.ByteCursor) (int, int, bool) {
	if s.cfg.Settlement.NonSpatial {
		tx := int(rnd.Next()) * s.grid.X / 256
		ty := int(rnd.Next()) * s.grid.Y / 256
		return tx, ty, true
	}

	v := s.tables.Dispersal[rnd.Next()][rnd.Next()]
	div := int(off.DispersalIndex)
	if div < 1 {
		div = 1
	}
	tx := int(off.OriginX) + int(v.DX)/div
	ty := int(off.OriginY) + int(v.DY)/div

	if s.cfg.Settlement.Toroidal {
		tx = wrap(tx, s.grid.X)
		ty = wrap(ty, s.grid.Y)
		return tx, ty, true
	}
	if tx < 0 || tx >= s.grid.X || ty < 0 || ty >= s.grid.Y {
		return 0, 0, false
	}
	return tx, ty, true
}

// wrap maps v onto [0, n) with toroidal arithmetic.
func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}
