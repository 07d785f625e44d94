// Package genome holds the 64-bit genome representation and the precomputed
// lookup tables the hot paths run on: popcounts, fitness XOR masks, dispersal
// vectors, gene-exchange masks, and pre-rolled random bytes.
package genome

import (
	"math"
	"math/bits"
	"math/rand"
)

// Table dimensions. Dispersal and xormask tables are indexed by a byte;
// gene-exchange and random tables by a 16-bit cursor.
const (
	ByteRange   = 256
	CursorRange = 65536
)

// Channel indices into per-cell environment colours.
const (
	ChannelR = 0
	ChannelG = 1
	ChannelB = 2
)

// Vec is one dispersal offset in cell units.
type Vec struct {
	DX, DY int16
}

// Tables is the full set of startup lookup tables. Built once from a seeded
// PRNG and read-only afterwards, so it is safe to share across workers.
type Tables struct {
	Popcount16   [CursorRange]uint8
	Bit64        [64]uint64
	XORMasks     [ByteRange][3]uint32
	Dispersal    [ByteRange][ByteRange]Vec
	GeneExchange [CursorRange]uint64
	Rand8        [CursorRange]uint8
	Colors       [ByteRange]Color
}

// thetaScale divides a byte angle index down to radians, spreading the 256
// steps around a full circle.
const thetaScale = 40.5845

// NewTables builds every lookup table from the given seed.
func NewTables(seed int64) *Tables {
	t := &Tables{}
	rng := rand.New(rand.NewSource(seed))

	for i := range t.Popcount16 {
		t.Popcount16[i] = uint8(bits.OnesCount16(uint16(i)))
	}

	for i := range t.Bit64 {
		t.Bit64[i] = uint64(1) << uint(i)
	}

	// Fitness masks evolve by single-bit flips from a random seed value, one
	// independent walk per colour channel. Adjacent environment values thus
	// score adjacent fitness landscapes.
	for c := 0; c < 3; c++ {
		m := rng.Uint32()
		t.XORMasks[0][c] = m
		for v := 1; v < ByteRange; v++ {
			m ^= uint32(1) << uint(rng.Intn(32))
			t.XORMasks[v][c] = m
		}
	}

	for d := 0; d < ByteRange; d++ {
		r := math.Sqrt(float64(CursorRange)/float64(d+1)) - 16
		if r < 0 {
			r = 0
		}
		for theta := 0; theta < ByteRange; theta++ {
			a := float64(theta) / thetaScale
			t.Dispersal[d][theta] = Vec{
				DX: int16(r * math.Sin(a)),
				DY: int16(r * math.Cos(a)),
			}
		}
	}

	for i := range t.GeneExchange {
		t.GeneExchange[i] = rng.Uint64()
	}

	for i := range t.Rand8 {
		t.Rand8[i] = uint8(rng.Intn(ByteRange))
	}

	t.Colors = speciesColors()

	return t
}

// Popcount32 counts set bits in v through the 16-bit table, two lookups per
// word as the comparison hot path does.
func (t *Tables) Popcount32(v uint32) int {
	return int(t.Popcount16[v>>16]) + int(t.Popcount16[v&0xffff])
}

// Popcount64 counts set bits in v, four table lookups.
func (t *Tables) Popcount64(v uint64) int {
	return t.Popcount32(uint32(v>>32)) + t.Popcount32(uint32(v))
}

// ByteCursor is a rolling 16-bit cursor into the pre-rolled random bytes.
// Each worker owns a private cursor; the position wraps naturally.
type ByteCursor struct {
	tables *Tables
	pos    uint16
}

// NewByteCursor returns a cursor over t starting at pos.
func NewByteCursor(t *Tables, pos uint16) ByteCursor {
	return ByteCursor{tables: t, pos: pos}
}

// Next returns the next pre-rolled byte and advances the cursor.
func (c *ByteCursor) Next() uint8 {
	v := c.tables.Rand8[c.pos]
	c.pos++
	return v
}

// Next16 returns the next pre-rolled 16-bit value (two bytes).
func (c *ByteCursor) Next16() uint16 {
	return uint16(c.Next())<<8 | uint16(c.Next())
}

// Pos returns the current cursor position.
func (c *ByteCursor) Pos() uint16 {
	return c.pos
}
