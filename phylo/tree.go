// Package phylo maintains the phylogeny: a tree of log-species nodes, each
// recording one species' entire temporal existence with per-snapshot data
// items.
package phylo

import (
	"fmt"

	"github.com/pthm-cable/strata/genome"
)

// DataItem is one per-snapshot metrics record for a species.
type DataItem struct {
	Iteration         uint64
	Size              uint32
	GenomicDiversity  uint32
	CellsOccupied     uint16
	SampleGenome      genome.Genome
	GeographicalRange uint8
	CentroidX         uint8
	CentroidY         uint8
	MeanFitness       uint16 // mean fitness x1000
	MinEnv            [3]uint8
	MaxEnv            [3]uint8
	MeanEnv           [3]uint8
}

// Node is one log-species. Nodes are arena-allocated with stable indices;
// children hold child indices, parent holds the parent index, the root's
// parent is -1.
type Node struct {
	ID       uint64
	Parent   int
	Children []int
	TFirst   uint64
	TLast    uint64
	MaxSize  uint32
	Data     []DataItem
}

// Tree is the phylogeny arena plus an id lookup kept in sync on every
// insertion. Nodes are never removed during a run.
type Tree struct {
	nodes []Node
	byID  map[uint64]int
}

// NewTree returns an empty phylogeny.
func NewTree() *Tree {
	return &Tree{byID: make(map[uint64]int)}
}

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node at arena index i.
func (t *Tree) Node(i int) *Node {
	return &t.nodes[i]
}

// Root returns the arena index of the founder, or -1 on an empty tree.
func (t *Tree) Root() int {
	if len(t.nodes) == 0 {
		return -1
	}
	return 0
}

// ByID looks a node up by species id.
func (t *Tree) ByID(id uint64) (int, bool) {
	i, ok := t.byID[id]
	return i, ok
}

// CreateRoot registers the founder species. The tree must be empty.
func (t *Tree) CreateRoot(id uint64, iteration uint64, item DataItem) (int, error) {
	if len(t.nodes) != 0 {
		return -1, fmt.Errorf("phylogeny already has a root")
	}
	t.nodes = append(t.nodes, Node{
		ID:      id,
		Parent:  -1,
		TFirst:  iteration,
		TLast:   iteration,
		MaxSize: item.Size,
		Data:    []DataItem{item},
	})
	t.byID[id] = 0
	return 0, nil
}

// RegisterChild appends a new species split off from parent at the given
// iteration and links it into the tree.
func (t *Tree) RegisterChild(parent int, id uint64, iteration uint64, item DataItem) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, Node{
		ID:      id,
		Parent:  parent,
		TFirst:  iteration,
		TLast:   iteration,
		MaxSize: item.Size,
		Data:    []DataItem{item},
	})
	t.nodes[parent].Children = append(t.nodes[parent].Children, idx)
	t.byID[id] = idx
	return idx
}

// Touch extends a node's lifetime to the given iteration and appends a data
// item, tracking the maximum observed size.
func (t *Tree) Touch(idx int, iteration uint64, item DataItem) {
	n := &t.nodes[idx]
	n.TLast = iteration
	n.Data = append(n.Data, item)
	if item.Size > n.MaxSize {
		n.MaxSize = item.Size
	}
}

// LastData returns the most recent data item of a node for in-place metric
// fills, or nil if the node has none.
func (t *Tree) LastData(idx int) *DataItem {
	n := &t.nodes[idx]
	if len(n.Data) == 0 {
		return nil
	}
	return &n.Data[len(n.Data)-1]
}

// BumpMaxSize raises a node's max size if the given size exceeds it.
func (t *Tree) BumpMaxSize(idx int, size uint32) {
	if size > t.nodes[idx].MaxSize {
		t.nodes[idx].MaxSize = size
	}
}

// Check verifies the structural invariants: a single root, acyclic parent
// pointers, t_last >= t_first, and parents no younger than their children.
func (t *Tree) Check() error {
	roots := 0
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.Parent == -1 {
			roots++
		} else {
			p := &t.nodes[n.Parent]
			if p.TFirst > n.TFirst {
				return fmt.Errorf("species %d appears before its parent %d", n.ID, p.ID)
			}
		}
		if n.TLast < n.TFirst {
			return fmt.Errorf("species %d: t_last %d < t_first %d", n.ID, n.TLast, n.TFirst)
		}

		// Walk to the root; the arena grows append-only with parents created
		// first, so parent indices always decrease and any cycle would stall.
		seen := 0
		for p := n.Parent; p != -1; p = t.nodes[p].Parent {
			seen++
			if seen > len(t.nodes) {
				return fmt.Errorf("species %d: parent chain does not terminate", n.ID)
			}
		}
	}
	if len(t.nodes) > 0 && roots != 1 {
		return fmt.Errorf("phylogeny has %d roots, want 1", roots)
	}
	return nil
}
