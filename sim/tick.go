package sim

import "github.com/pthm-cable/strata/genome"

// tickStrip runs the metabolise/breed pass over the columns [x0, x1). The
// strip is owned by this worker for the whole phase: no other goroutine
// reads or writes its cells, so no locks are taken.
func (s *Simulation) tickStrip(worker, x0, x1 int) {
	res := &s.pool.results[worker]
	rnd := genome.NewByteCursor(s.tables, s.cursorSeed(worker, 0))

	pos := worker * s.stride
	segEnd := pos + s.stride
	breeders := s.pool.breeders[worker]

	for x := x0; x < x1; x++ {
		for y := 0; y < s.grid.Y; y++ {
			cell := s.grid.Cell(x, y)
			envColor := s.environ.At(x, y)
			slots := s.grid.CellSlots(x, y)

			if s.cfg.Fitness.Recalculate {
				var total uint32
				maxUsed := int16(-1)
				for i := 0; i <= int(cell.MaxUsed); i++ {
					c := &slots[i]
					if c.Age == 0 {
						continue
					}
					f := s.tables.Fitness(c.Genome, envColor, s.settings.Target, s.settings.SettleTolerance)
					if f == 0 {
						c.Kill()
						res.kills++
						continue
					}
					c.Fitness = uint8(f)
					total += uint32(f)
					maxUsed = int16(i)
				}
				cell.TotalFitness = total
				cell.MaxUsed = maxUsed
			}

			if cell.TotalFitness == 0 {
				continue
			}
			addFood := 1 + s.cfg.Fitness.Food/int32(cell.TotalFitness)

			breeders = breeders[:0]
			tickKills := 0
			for i := 0; i <= int(cell.MaxUsed); i++ {
				c := &slots[i]
				if c.Age == 0 {
					continue
				}
				breeder, killed := c.Tick(addFood, &s.settings)
				if killed {
					res.kills++
					tickKills++
					continue
				}
				if breeder {
					breeders = append(breeders, i)
				}
			}

			if nb := len(breeders); nb >= 1 {
				div := 255 / nb
				if div == 0 {
					div = 1
				}
				for bi, ci := range breeders {
					p := bi
					if !s.cfg.Breeding.Asexual {
						p = int(rnd.Next()) / div
					}

					res.breedAttempts++
					cell.BreedAttempts++
					if p >= nb {
						// Partner draw landed outside the breeder list.
						res.breedFails++
						cell.BreedFails++
						continue
					}

					self := &slots[ci]
					mate := &slots[breeders[p]]
					off, ok := self.Breed(mate, x, y, s.tables, &rnd, &s.settings)
					if !ok {
						res.breedFails++
						cell.BreedFails++
						continue
					}
					if pos >= segEnd {
						// Nursery segment full; the burst is lost.
						res.breedFails++
						cell.BreedFails++
						continue
					}
					s.nursery[pos] = off
					pos++
				}
			}

			if tickKills > 0 {
				s.grid.RecomputeAggregates(x, y)
			}
		}
	}

	s.pool.breeders[worker] = breeders
	res.nurseryEnd = pos
}
