package species

import (
	"sort"

	"github.com/pthm-cable/strata/genome"
)

// Census is a sorted genome list with occurrence counts, the input to the
// legacy modal identifier.
type Census struct {
	Genomes []genome.Genome
	Counts  []int32
	Total   int64
}

// insertionIndex locates g in the sorted genome list, returning the index
// where it sits or should be inserted and whether it is already present.
func insertionIndex(genomes []genome.Genome, g genome.Genome) (int, bool) {
	i := sort.Search(len(genomes), func(i int) bool { return genomes[i] >= g })
	return i, i < len(genomes) && genomes[i] == g
}

// Add records one occurrence of g, keeping the list sorted.
func (c *Census) Add(g genome.Genome) {
	c.Total++
	c.insert(g)
}

func (c *Census) insert(g genome.Genome) (int, bool) {
	i, found := insertionIndex(c.Genomes, g)
	if found {
		c.Counts[i]++
		return i, true
	}
	c.Genomes = append(c.Genomes, 0)
	copy(c.Genomes[i+1:], c.Genomes[i:])
	c.Genomes[i] = g

	c.Counts = append(c.Counts, 0)
	copy(c.Counts[i+1:], c.Counts[i:])
	c.Counts[i] = 1
	return i, false
}

// Index returns the census position of g, or -1 if absent.
func (c *Census) Index(g genome.Genome) int {
	i, found := insertionIndex(c.Genomes, g)
	if !found {
		return -1
	}
	return i
}
