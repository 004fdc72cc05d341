package prng

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitMixDeterministic(t *testing.T) {
	a, b := NewSplitMix(1), NewSplitMix(1)
	for i := 0; i < 50; i++ {
		require.Equal(t, a.Uint64(), b.Uint64(), "step %d", i)
	}
}

func TestSplitMixSeedResets(t *testing.T) {
	m := NewSplitMix(9)
	first := m.Uint64()
	m.Uint64()
	m.Seed(9)
	require.Equal(t, first, m.Uint64())
}

func TestSplitMixReseedDiverges(t *testing.T) {
	a, b := NewSplitMix(1), NewSplitMix(1)
	b.Reseed(0xDEADBEEF)

	same := 0
	for i := 0; i < 32; i++ {
		if a.Uint64() == b.Uint64() {
			same++
		}
	}
	require.Less(t, same, 2, "reseeded source kept producing the old sequence")
}

func TestSplitMixRanges(t *testing.T) {
	m := NewSplitMix(0)
	for i := 0; i < 1000; i++ {
		v := m.IntN(10)
		require.True(t, v >= 0 && v < 10, "IntN out of range: %d", v)
		f := m.Float64()
		require.True(t, f >= 0 && f < 1, "Float64 out of range: %v", f)
	}
	require.Equal(t, 0, m.IntN(0))
}

func TestNewSeed(t *testing.T) {
	seed, err := NewSeed(bytes.NewReader([]byte{1, 0, 0, 0, 0, 0, 0, 0}))
	require.NoError(t, err)
	require.Equal(t, uint64(1), seed)

	_, err = NewSeed(bytes.NewReader([]byte{1, 2, 3}))
	require.Error(t, err)

	_, err = NewSeed(nil)
	require.NoError(t, err)
}

func TestSplitMixRead(t *testing.T) {
	a, b := NewSplitMix(5), NewSplitMix(5)

	p := make([]byte, 13)
	n, err := a.Read(p)
	require.NoError(t, err)
	require.Equal(t, 13, n)

	seed, err := NewSeed(b)
	require.NoError(t, err)
	require.Equal(t, seed, NewSplitMix(5).Uint64())

	first, err := NewSeed(bytes.NewReader(p[:8]))
	require.NoError(t, err)
	require.Equal(t, seed, first)
}
