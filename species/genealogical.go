package species

import (
	"fmt"
	"sort"

	"github.com/pthm-cable/strata/genome"
	"github.com/pthm-cable/strata/grid"
	"github.com/pthm-cable/strata/phylo"
)

// MaxGenomeCount caps the distinct genomes one species may carry into a
// single identification pass.
const MaxGenomeCount = 65536

// Genealogical is the primary identifier: within each extant species it
// unions genomes connected by Hamming distance and splits off every group
// beyond the most diverse one, preserving genealogical continuity.
type Genealogical struct {
	Tables        *genome.Tables
	MaxDifference int
	Mode          Mode
	Tree          *phylo.Tree
	IDs           *IDSource

	// Progress, when set, is called once per species processed.
	Progress func(done, total int)
}

// speciesData is the per-species census gathered from the grid: every
// distinct genome with all slot positions holding it, and the occupancy
// count.
type speciesData struct {
	positions map[genome.Genome][]uint32
	size      int32
}

// Identify runs one identification pass, rewriting critter species ids for
// split-off groups and returning the replacement species list.
func (a *Genealogical) Identify(w *World, oldList []Species, iteration uint64) ([]Species, error) {
	g := w.Grid

	data := map[uint64]*speciesData{}
	for y := 0; y < g.Y; y++ {
		for x := 0; x < g.X; x++ {
			cell := g.Cell(x, y)
			if cell.TotalFitness == 0 {
				continue
			}
			slots := g.CellSlots(x, y)
			for slot := 0; slot <= int(cell.MaxUsed); slot++ {
				c := &slots[slot]
				if c.Age == 0 {
					continue
				}
				d := data[c.SpeciesID]
				if d == nil {
					d = &speciesData{positions: map[genome.Genome][]uint32{}}
					data[c.SpeciesID] = d
				}
				d.positions[c.Genome] = append(d.positions[c.Genome], grid.PackPos(x, y, slot))
				d.size++
			}
		}
	}

	// Occupancy per species id; split-off groups move their share to the
	// fresh id as they are carved out.
	sizes := map[uint64]int32{}
	ids := make([]uint64, 0, len(data))
	for sid, d := range data {
		ids = append(ids, sid)
		sizes[sid] = d.size
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var newList []Species
	for done, sid := range ids {
		if a.Progress != nil {
			a.Progress(done, len(ids))
		}
		d := data[sid]

		logNode := -1
		if a.Mode >= ModePhylogeny {
			idx, ok := a.Tree.ByID(sid)
			if !ok {
				return nil, fmt.Errorf("species %d missing from phylogeny lookup", sid)
			}
			logNode = idx
		}

		genomes := make([]genome.Genome, 0, len(d.positions))
		for gn := range d.positions {
			genomes = append(genomes, gn)
		}
		if len(genomes) > MaxGenomeCount {
			return nil, fmt.Errorf("species %d has %d distinct genomes, over the %d cap", sid, len(genomes), MaxGenomeCount)
		}
		sort.Slice(genomes, func(i, j int) bool { return genomes[i] < genomes[j] })

		groups := a.group(genomes)

		// Distinct-genome counts per group; the most diverse group keeps the
		// parent id (ties broken toward the lowest group code).
		counts := map[int32]int32{}
		for _, gc := range groups {
			counts[gc]++
		}
		codes := make([]int32, 0, len(counts))
		for gc := range counts {
			codes = append(codes, gc)
		}
		sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
		winner := codes[0]
		for _, gc := range codes {
			if counts[gc] > counts[winner] {
				winner = gc
			}
		}

		groupNodes := map[int32]int{}
		for _, gc := range codes {
			if gc != winner {
				newID := a.IDs.Next()
				var size int32
				var sample genome.Genome
				for i, code := range groups {
					if code != gc {
						continue
					}
					posList := d.positions[genomes[i]]
					size += int32(len(posList))
					for _, p := range posList {
						px, py, slot := grid.UnpackPos(p)
						g.Critter(px, py, slot).SpeciesID = newID
					}
					sample = genomes[i]
				}
				sizes[newID] = size
				sizes[sid] -= size

				sp := Species{
					ID:         newID,
					ParentID:   sid,
					TypeGenome: sample,
					OriginTime: iteration,
					LogNode:    -1,
				}
				if a.Mode >= ModePhylogeny {
					item := phylo.DataItem{Iteration: iteration, Size: uint32(size)}
					child := a.Tree.RegisterChild(logNode, newID, iteration, item)
					sp.LogNode = child
					groupNodes[gc] = child
				}
				newList = append(newList, sp)
				continue
			}

			// The continuing species: carry the old record forward with a
			// fresh sample genome.
			sp := Species{ID: sid, LogNode: logNode}
			for _, old := range oldList {
				if old.ID == sid {
					sp = old
					break
				}
			}
			for i, code := range groups {
				if code == gc {
					sp.TypeGenome = genomes[i]
					break
				}
			}
			if a.Mode >= ModePhylogeny {
				a.Tree.Touch(logNode, iteration, phylo.DataItem{Iteration: iteration})
				groupNodes[gc] = logNode
				sp.LogNode = logNode
			}
			newList = append(newList, sp)
		}

		if a.Mode == ModePhylogenyMetrics {
			for _, gc := range codes {
				a.fillMetrics(w, d, genomes, groups, gc, groupNodes[gc])
			}
		}
	}

	for i := range newList {
		newList[i].Size = sizes[newList[i].ID]
		if a.Mode >= ModePhylogeny && newList[i].LogNode != -1 {
			a.Tree.BumpMaxSize(newList[i].LogNode, uint32(newList[i].Size))
		}
	}
	return newList, nil
}

// group runs disjoint-set union over the dense genome vector, returning a
// canonical group code per genome. Codes are merged through an indirection
// table rather than rewritten; compression always points toward roots, and
// roots are the only self-loops, so root walks terminate.
func (a *Genealogical) group(genomes []genome.Genome) []int32 {
	n := len(genomes)
	groups := make([]int32, n)
	look := make([]int32, n)
	for i := range groups {
		groups[i] = -1
		look[i] = int32(i)
	}
	next := int32(0)

	root := func(c int32) int32 {
		for look[c] != c {
			c = look[c]
		}
		return c
	}

	for first := 0; first < n-1; first++ {
		if groups[first] == -1 {
			groups[first] = next
			next++
		}
		fg := root(groups[first])
		groups[first] = fg

		for second := first + 1; second < n; second++ {
			gcs := groups[second]
			if gcs != -1 {
				r := root(gcs)
				look[gcs] = r
				gcs = r
				if gcs == fg {
					continue
				}
			}
			if a.Tables.WithinDistance(genomes[first], genomes[second], a.MaxDifference) {
				if gcs == -1 {
					groups[second] = fg
				} else {
					// Merge the second genome's whole group into first's.
					look[gcs] = fg
				}
			}
		}
	}

	for i := range groups {
		if groups[i] == -1 {
			groups[i] = next
			next++
			continue
		}
		groups[i] = root(groups[i])
	}
	return groups
}

// fillMetrics computes the per-snapshot metrics for one group and writes
// them into the group's latest data item.
func (a *Genealogical) fillMetrics(w *World, d *speciesData, genomes []genome.Genome, groups []int32, gc int32, node int) {
	item := a.Tree.LastData(node)
	if item == nil {
		return
	}

	g := w.Grid
	var size, sumFit uint64
	var sumX, sumY uint64
	var sample genome.Genome
	diversity := uint32(0)
	cells := map[uint16]bool{}

	minCol := [3]int{256, 256, 256}
	maxCol := [3]int{-1, -1, -1}
	var sumCol [3]uint64
	minX, minY := 256, 256
	maxX, maxY := -1, -1

	for i, code := range groups {
		if code != gc {
			continue
		}
		diversity++
		for _, p := range d.positions[genomes[i]] {
			x, y, slot := grid.UnpackPos(p)
			size++
			sumX += uint64(x)
			sumY += uint64(y)
			if x < minX {
				minX = x
			}
			if y < minY {
				minY = y
			}
			if x > maxX {
				maxX = x
			}
			if y > maxY {
				maxY = y
			}
			sumFit += uint64(g.Critter(x, y, slot).Fitness)
			cells[uint16(x)*256+uint16(y)] = true

			col := w.Env[y*g.X+x]
			for c := 0; c < 3; c++ {
				v := int(col[c])
				if v < minCol[c] {
					minCol[c] = v
				}
				if v > maxCol[c] {
					maxCol[c] = v
				}
				sumCol[c] += uint64(col[c])
			}
		}
		sample = genomes[i]
	}
	if size == 0 {
		return
	}

	item.Size = uint32(size)
	item.GenomicDiversity = diversity
	item.SampleGenome = sample
	item.CellsOccupied = uint16(len(cells))
	item.MeanFitness = uint16(sumFit * 1000 / size)
	item.CentroidX = uint8(sumX / size)
	item.CentroidY = uint8(sumY / size)
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeY > rangeX {
		rangeX = rangeY
	}
	item.GeographicalRange = uint8(rangeX)
	for c := 0; c < 3; c++ {
		item.MinEnv[c] = uint8(minCol[c])
		item.MaxEnv[c] = uint8(maxCol[c])
		item.MeanEnv[c] = uint8(sumCol[c] / size)
	}
}
