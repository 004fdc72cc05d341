package prng

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// SplitMix is a 64-bit splitmix64 source. It backs generators whose state
// is owned by the library rather than by the caller, and seeds short-lived
// walkers from a single caller draw.
type SplitMix struct {
	state uint64
}

// NewSplitMix returns a source seeded with seed.
func NewSplitMix(seed uint64) *SplitMix {
	return &SplitMix{state: seed}
}

// Seed resets the source to seed.
func (m *SplitMix) Seed(seed uint64) {
	m.state = seed
}

// Reseed folds seed into the current state. Unlike Seed, two sources that
// diverged keep diverging after the same Reseed.
func (m *SplitMix) Reseed(seed uint64) {
	m.state ^= seed
	m.Uint64()
}

// Uint64 returns the next 64-bit value.
func (m *SplitMix) Uint64() uint64 {
	m.state += 0x9E3779B97F4A7C15
	z := m.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// IntN returns a value in [0, n), or 0 when n <= 0.
func (m *SplitMix) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return Scale(uint32(m.Uint64()>>32), n)
}

// Float64 returns a value in [0, 1).
func (m *SplitMix) Float64() float64 {
	return float64(m.Uint64()>>11) / (1 << 53)
}

// Read fills p with the output stream, eight bytes per step, so a seeded
// SplitMix can stand in for an entropy source. It never fails.
func (m *SplitMix) Read(p []byte) (int, error) {
	var b [8]byte
	for i := 0; i < len(p); i += 8 {
		binary.LittleEndian.PutUint64(b[:], m.Uint64())
		copy(p[i:], b[:])
	}
	return len(p), nil
}

// NewSeed reads a 64-bit seed from r. A nil reader uses crypto/rand.
func NewSeed(r io.Reader) (uint64, error) {
	if r == nil {
		r = crand.Reader
	}
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
