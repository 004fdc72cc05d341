package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CTAG07/typegen/pkg/corpus"
	"github.com/CTAG07/typegen/pkg/prng"
	"github.com/CTAG07/typegen/pkg/textgen"
)

// initTestLib initializes the process-wide library for one test.
func initTestLib(t *testing.T) {
	t.Helper()
	setup()
	require.NoError(t, initLib())
	t.Cleanup(func() {
		require.NoError(t, deinitLib())
	})
}

func TestGenN(t *testing.T) {
	initTestLib(t)

	testCases := []struct {
		name      string
		n         uint16
		id        uint8
		wantNull  bool
		wantWords int
	}{
		{"words", 3, uint8(corpus.WordsAlpha), false, 3},
		{"sentence", 7, uint8(corpus.Sentence), false, 7},
		{"markov word corpus", 4, uint8(corpus.WordMarkov), false, 4},
		{"empty", 0, uint8(corpus.WordsAlpha), false, 0},
		{"unknown id", 3, 9, true, 0},
		{"unknown id, empty", 0, 200, true, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			before := issued.Len()
			state := uint32(42)

			s, err := genN(&state, tc.n, tc.id)
			require.NoError(t, err)

			if tc.wantNull {
				require.Nil(t, s.ptr)
				require.Zero(t, s.len)
				require.Equal(t, uint32(42), state, "state must not move on failure")
				require.Equal(t, before, issued.Len())
				return
			}

			require.NotNil(t, s.ptr, "a successful call never returns NULL")
			require.Len(t, strings.Fields(string(s.bytes())), tc.wantWords)
			require.Equal(t, before+1, issued.Len())

			want := prng.State(42)
			for i := 0; i < int(tc.n); i++ {
				want.Step()
			}
			require.Equal(t, uint32(want), state)

			require.NoError(t, freeString(s))
			require.Equal(t, before, issued.Len())
		})
	}
}

func TestGenNMatchesLibrary(t *testing.T) {
	initTestLib(t)

	state := uint32(7)
	s, err := genN(&state, 5, uint8(corpus.WordsNonAlpha))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, freeString(s))
	}()

	goState := prng.State(7)
	gs, err := lib.GenN(&goState, 5, corpus.WordsNonAlpha)
	require.NoError(t, err)
	require.Equal(t, gs.String(), string(s.bytes()))
	require.Equal(t, uint32(goState), state)
	require.NoError(t, lib.FreeString(gs))
}

func TestContractViolations(t *testing.T) {
	setup()

	state := uint32(1)
	_, err := genN(&state, 1, 0)
	require.ErrorIs(t, err, textgen.ErrNotInitialized)
	_, err = genWordMarkov()
	require.ErrorIs(t, err, textgen.ErrNotInitialized)
	require.ErrorIs(t, rollWordMarkov(), textgen.ErrNotInitialized)
	require.ErrorIs(t, deinitLib(), textgen.ErrNotInitialized)

	initTestLib(t)
	require.ErrorIs(t, initLib(), textgen.ErrAlreadyInitialized)

	_, err = genN(nil, 1, 0)
	require.ErrorIs(t, err, textgen.ErrNilState)
}

func TestFreeString(t *testing.T) {
	initTestLib(t)

	require.NoError(t, freeString(cString{}), "freeing {NULL, 0} is a no-op")

	state := uint32(3)
	s, err := genN(&state, 2, 0)
	require.NoError(t, err)

	mismatched := s
	mismatched.len++
	require.Error(t, freeString(mismatched))

	require.NoError(t, freeString(s))
	require.ErrorIs(t, freeString(s), errUnknownPointer)
}

func TestFreeAfterDeinit(t *testing.T) {
	setup()
	require.NoError(t, initLib())

	state := uint32(5)
	s, err := genN(&state, 2, 0)
	require.NoError(t, err)

	// Outstanding strings do not fail deinit and stay freeable.
	require.NoError(t, deinitLib())
	require.NoError(t, freeString(s))
	require.ErrorIs(t, freeString(s), errUnknownPointer)
}

func TestMarkovExports(t *testing.T) {
	initTestLib(t)

	for i := 0; i < 20; i++ {
		s, err := genWordMarkov()
		require.NoError(t, err)
		require.NotNil(t, s.ptr)
		require.NotZero(t, s.len)
		require.NotContains(t, string(s.bytes()), " ")
		require.NoError(t, freeString(s))
	}
	require.NoError(t, rollWordMarkov())
}
