package genome

// Genome is one 64-bit genotype. The lower 32 bits are the coding half read
// by the fitness function; the upper 32 bits are non-coding and only
// distinguish genomes for species identification.
type Genome uint64

// Coding returns the fitness-relevant lower half.
func (g Genome) Coding() uint32 {
	return uint32(g)
}

// Distance returns the Hamming distance between two genomes over all 64 bits.
func (t *Tables) Distance(a, b Genome) int {
	x := uint64(a ^ b)
	return t.Popcount32(uint32(x)) + t.Popcount32(uint32(x>>32))
}

// WithinDistance reports whether a and b differ by at most maxDifference
// bits. The lower half is counted first so distant pairs exit early.
func (t *Tables) WithinDistance(a, b Genome, maxDifference int) bool {
	x := uint64(a ^ b)
	d := t.Popcount32(uint32(x))
	if d > maxDifference {
		return false
	}
	d += t.Popcount32(uint32(x >> 32))
	return d <= maxDifference
}

// Fitness scores the coding half of g against an environment colour. Each
// channel's mask is XORed with the coding bits and the set bits summed; the
// summed distance is mapped onto [0, settleTolerance] around target. Zero
// means not viable.
func (t *Tables) Fitness(g Genome, env [3]uint8, target, settleTolerance int) int {
	coding := g.Coding()
	d := 0
	for c := 0; c < 3; c++ {
		d += t.Popcount32(coding ^ t.XORMasks[env[c]][c])
	}
	f := d - target
	if f < 0 {
		f = -f
	}
	f = settleTolerance - f
	if f < 0 {
		return 0
	}
	return f
}

// Mutate flips each of the 64 bits independently with probability
// rate/256, consuming one pre-rolled byte per bit.
func (t *Tables) Mutate(g Genome, rate uint8, rnd *ByteCursor) Genome {
	if rate == 0 {
		return g
	}
	for i := 0; i < 64; i++ {
		if rnd.Next() < rate {
			g ^= Genome(t.Bit64[i])
		}
	}
	return g
}

// Splice builds a child genome from two parents using a gene-exchange mask:
// set mask bits come from a, clear bits from b.
func Splice(a, b Genome, mask uint64) Genome {
	return Genome(uint64(a)&mask | uint64(b)&^mask)
}
