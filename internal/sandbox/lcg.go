package sandbox

// Source produces pseudo-random values in [0,1).
type Source interface {
	Next() float64
}

// LCG parameters (Numerical Recipes).
const (
	lcgA = 1664525
	lcgC = 1013904223
)

// LCG is a 32-bit linear congruential generator: state = a*state + c mod 2^32.
// Not safe for concurrent use; create one per run.
type LCG struct {
	state uint32
}

// NewLCG returns a generator seeded with seed.
func NewLCG(seed uint32) *LCG {
	return &LCG{state: seed}
}

// Next advances the generator and returns state / 2^32.
func (g *LCG) Next() float64 {
	g.state = lcgA*g.state + lcgC // wraps mod 2^32
	return float64(g.state) / 4294967296.0
}
