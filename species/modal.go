package species

import (
	"sort"

	"github.com/pthm-cable/strata/genome"
	"github.com/pthm-cable/strata/grid"
)

// Modal is the legacy identifier: it seeds species from modal genomes in
// descending occurrence order and matches the resulting groups against
// recent species lists by closest modal genome.
type Modal struct {
	Tables           *genome.Tables
	MaxDifference    int
	Sensitivity      int // percent of the smaller population needed to merge
	TimeSliceConnect int // how many past lists to match against
	SampleSlots      int // slots sampled per cell, 0 = all
	IDs              *IDSource

	archived [][]Species
}

// Identify runs one legacy pass and returns the replacement species list.
// Critter species ids are rewritten from the persistent ids assigned to each
// censused genome.
func (m *Modal) Identify(w *World, oldList []Species, iteration uint64) ([]Species, error) {
	g := w.Grid

	census := &Census{}
	positions := map[genome.Genome][]uint32{}
	sample := g.Slots
	if m.SampleSlots > 0 && m.SampleSlots < sample {
		sample = m.SampleSlots
	}
	for y := 0; y < g.Y; y++ {
		for x := 0; x < g.X; x++ {
			slots := g.CellSlots(x, y)
			for slot := 0; slot < sample; slot++ {
				c := &slots[slot]
				if c.Age == 0 {
					continue
				}
				census.Add(c.Genome)
				positions[c.Genome] = append(positions[c.Genome], grid.PackPos(x, y, slot))
			}
		}
	}

	assigned, sizes, types := m.groupModal(census)

	var newList []Species
	for k := 1; k < len(sizes); k++ {
		if sizes[k] > 0 {
			newList = append(newList, Species{
				TypeGenome: census.Genomes[types[k]],
				InternalID: int32(k),
				Size:       sizes[k],
				LogNode:    -1,
			})
		}
	}

	oldCombined := m.combineWithArchive(oldList)
	m.matchAgainst(newList, oldCombined, iteration)

	// Translate internal ids to persistent ids and write them back to every
	// censused slot.
	persistent := make([]uint64, len(sizes))
	for _, sp := range newList {
		persistent[sp.InternalID] = sp.ID
	}
	for i, gn := range census.Genomes {
		id := persistent[assigned[i]]
		if id == 0 {
			continue
		}
		for _, p := range positions[gn] {
			px, py, slot := grid.UnpackPos(p)
			g.Critter(px, py, slot).SpeciesID = id
		}
	}

	// Archive the outgoing list for future time-slice matching.
	if len(oldList) > 0 && m.TimeSliceConnect > 1 {
		m.archived = append([][]Species{oldList}, m.archived...)
		if len(m.archived) > m.TimeSliceConnect-1 {
			m.archived = m.archived[:m.TimeSliceConnect-1]
		}
	}

	return newList, nil
}

// groupModal assigns every censused genome an internal species id. Seeds are
// picked by descending occurrence count; a seed absorbs everything within
// the distance threshold, and an already-assigned neighbour species merges
// in only when the linking occurrences reach the sensitivity fraction of the
// smaller of the two populations.
func (m *Modal) groupModal(census *Census) (assigned []int32, sizes []int32, types []int) {
	n := len(census.Genomes)
	assigned = make([]int32, n)
	sizes = []int32{0}
	types = []int{0}
	next := int32(1)

	for {
		largest := int32(-1)
		largestIdx := -1
		for i := 0; i < n; i++ {
			if assigned[i] == 0 && census.Counts[i] > largest {
				largest = census.Counts[i]
				largestIdx = i
			}
		}
		if largest == -1 {
			break
		}

		seed := census.Genomes[largestIdx]
		mergeLinks := map[int32]int32{}
		var thisSize int32
		for i := 0; i < n; i++ {
			if !m.Tables.WithinDistance(seed, census.Genomes[i], m.MaxDifference) {
				continue
			}
			if assigned[i] > 0 {
				mergeLinks[assigned[i]] += census.Counts[i]
			} else {
				thisSize += census.Counts[i]
				assigned[i] = next
			}
		}

		highestCount := largest
		highestIdx := largestIdx
		linked := make([]int32, 0, len(mergeLinks))
		for k := range mergeLinks {
			linked = append(linked, k)
		}
		sort.Slice(linked, func(i, j int) bool { return linked[i] < linked[j] })
		for _, toMerge := range linked {
			// Ratio of link occurrences to the smaller of the two populations.
			useSize := thisSize
			if sizes[toMerge] < useSize {
				useSize = sizes[toMerge]
			}
			if useSize < 1 {
				continue
			}
			if int(mergeLinks[toMerge])*100/int(useSize) < m.Sensitivity {
				continue
			}
			if census.Counts[types[toMerge]] > highestCount {
				highestCount = census.Counts[types[toMerge]]
				highestIdx = types[toMerge]
			}
			thisSize += sizes[toMerge]
			sizes[toMerge] = 0
			for i := 0; i < n; i++ {
				if assigned[i] == toMerge {
					assigned[i] = next
				}
			}
		}

		types = append(types, highestIdx)
		sizes = append(sizes, thisSize)
		next++
	}
	return assigned, sizes, types
}

// combineWithArchive unions the current species list with the archived
// lists, skipping ids already present in a more recent slice.
func (m *Modal) combineWithArchive(oldList []Species) []Species {
	combined := append([]Species(nil), oldList...)
	seen := map[uint64]bool{}
	for _, sp := range oldList {
		seen[sp.ID] = true
	}
	for l := 0; l < m.TimeSliceConnect-1 && l < len(m.archived); l++ {
		for _, sp := range m.archived[l] {
			if !seen[sp.ID] {
				seen[sp.ID] = true
				combined = append(combined, sp)
			}
		}
	}
	return combined
}

// matchAgainst links the new species to the combined old lists by closest
// modal genome. Each old species' primary child (closest in size) carries
// its id forward; orphaned groups receive fresh ids with the closest old
// species as parent.
func (m *Modal) matchAgainst(newList []Species, oldCombined []Species, iteration uint64) {
	if len(oldCombined) == 0 {
		for i := range newList {
			newList[i].ID = m.IDs.Next()
			newList[i].OriginTime = iteration
		}
		return
	}

	parents := make([]int, len(newList))
	type childLink struct {
		primary  int
		sizeDiff int32
		count    int
	}
	children := map[int]*childLink{}

	for i := range newList {
		bestDistance := 999
		closestOld := -1
		bestSize := int32(-1)
		for j := range oldCombined {
			d := m.Tables.Distance(oldCombined[j].TypeGenome, newList[i].TypeGenome)
			if d == bestDistance && oldCombined[j].Size > bestSize {
				closestOld = j
				bestSize = oldCombined[j].Size
			}
			if d < bestDistance {
				bestDistance = d
				closestOld = j
				bestSize = oldCombined[j].Size
			}
		}
		parents[i] = closestOld

		diff := bestSize - newList[i].Size
		if diff < 0 {
			diff = -diff
		}
		if link, ok := children[closestOld]; ok {
			if diff < link.sizeDiff {
				link.primary = i
				link.sizeDiff = diff
			}
			link.count++
		} else {
			children[closestOld] = &childLink{primary: i, sizeDiff: diff, count: 1}
		}
	}

	// Primary children inherit their old species' identity.
	for j := range oldCombined {
		if link, ok := children[j]; ok {
			newList[link.primary].ID = oldCombined[j].ID
			newList[link.primary].ParentID = oldCombined[j].ParentID
			newList[link.primary].OriginTime = oldCombined[j].OriginTime
		}
	}

	// Everything else is a fresh species descending from its closest match.
	for i := range newList {
		if newList[i].ID == 0 {
			newList[i].ID = m.IDs.Next()
			newList[i].ParentID = oldCombined[parents[i]].ID
			newList[i].OriginTime = iteration
		}
	}

	// Anagenetic descendants inherit lineage data not filled above.
	for i := range newList {
		if newList[i].ParentID == 0 {
			newList[i].ParentID = oldCombined[parents[i]].ParentID
		}
	}
}
