package prng

// weyl is the golden-ratio increment. It is odd, so stepping the state
// visits all 2^32 values before repeating and no state maps to itself.
const weyl = 0x9E3779B9

// State is a caller-owned generator state. It holds no hidden data: the
// whole generator is the 32-bit value, so copying a State forks the
// sequence and storing it resumes the sequence later.
//
// A State is not safe for concurrent use; callers sharing one must
// synchronize themselves.
type State uint32

// Next advances s by one step and returns the new state together with a
// uniformly distributed 32-bit draw. It is a pure function of s and is
// defined for every value, including 0 and 0xFFFFFFFF.
func Next(s State) (State, uint32) {
	s += weyl
	return s, mix32(uint32(s))
}

// mix32 is the murmur3 finalizer. It is a bijection on uint32, so distinct
// states always produce distinct draws.
func mix32(x uint32) uint32 {
	x ^= x >> 16
	x *= 0x85ebca6b
	x ^= x >> 13
	x *= 0xc2b2ae35
	x ^= x >> 16
	return x
}

// Step advances the state in place and returns the draw.
func (s *State) Step() uint32 {
	var draw uint32
	*s, draw = Next(*s)
	return draw
}

// IntN advances the state once and returns a value in [0, n).
// It returns 0 without advancing when n <= 0.
func (s *State) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return Scale(s.Step(), n)
}

// Float64 advances the state once and returns a value in [0, 1).
func (s *State) Float64() float64 {
	return float64(s.Step()) / (1 << 32)
}

// Scale maps a 32-bit draw onto [0, n) using a multiply-high reduction.
// See https://lemire.me/blog/2016/06/27/a-fast-alternative-to-the-modulo-reduction
func Scale(draw uint32, n int) int {
	if n <= 0 {
		return 0
	}
	return int((uint64(draw) * uint64(n)) >> 32)
}
