// Package species groups genomes into species by Hamming-distance
// connectivity and tracks their identity through time. Two identifier
// variants share the same inputs and outputs: the genealogical splitter
// (primary) and the legacy modal-genome grouper.
package species

import (
	"fmt"

	"github.com/pthm-cable/strata/env"
	"github.com/pthm-cable/strata/genome"
	"github.com/pthm-cable/strata/grid"
)

// Mode selects how much species machinery runs.
type Mode int

const (
	ModeOff Mode = iota
	ModeBasic
	ModePhylogeny
	ModePhylogenyMetrics
)

// ParseMode maps a config string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "off":
		return ModeOff, nil
	case "basic":
		return ModeBasic, nil
	case "phylogeny":
		return ModePhylogeny, nil
	case "phylogeny+metrics":
		return ModePhylogenyMetrics, nil
	}
	return ModeOff, fmt.Errorf("unknown species mode %q", s)
}

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeBasic:
		return "basic"
	case ModePhylogeny:
		return "phylogeny"
	case ModePhylogenyMetrics:
		return "phylogeny+metrics"
	}
	return "unknown"
}

// Species is one working record in the extant species list.
type Species struct {
	ID         uint64
	ParentID   uint64
	TypeGenome genome.Genome
	Size       int32
	OriginTime uint64
	InternalID int32
	LogNode    int // phylo arena index, -1 when phylogeny is off
}

// World is the surface the identifiers read and write: the population grid
// and the environment colours in effect at identification time.
type World struct {
	Grid *grid.Grid
	Env  env.Frame
}

// Identifier is the capability shared by both algorithm variants.
type Identifier interface {
	Identify(w *World, oldList []Species, iteration uint64) ([]Species, error)
}

// IDSource hands out persistent species ids. The zero id is reserved for
// "unassigned".
type IDSource struct {
	next uint64
}

// NewIDSource starts issuing ids at first.
func NewIDSource(first uint64) *IDSource {
	return &IDSource{next: first}
}

// Next returns a fresh species id.
func (s *IDSource) Next() uint64 {
	id := s.next
	s.next++
	return id
}

// Peek returns the id the next call to Next will issue.
func (s *IDSource) Peek() uint64 {
	return s.next
}
