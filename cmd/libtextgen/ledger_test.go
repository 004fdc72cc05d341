package main

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CTAG07/typegen/pkg/corpus"
	"github.com/CTAG07/typegen/pkg/textgen"
)

func TestLedger(t *testing.T) {
	l := newLedger()
	l.add(0x1000, 5)
	l.add(0x2000, 0)
	require.Equal(t, 2, l.Len())

	require.Error(t, l.remove(0x1000, 4), "length mismatch must be rejected")
	require.Equal(t, 2, l.Len())

	require.NoError(t, l.remove(0x1000, 5))
	require.ErrorIs(t, l.remove(0x1000, 5), errUnknownPointer)
	require.ErrorIs(t, l.remove(0x3000, 1), errUnknownPointer)

	require.NoError(t, l.remove(0x2000, 0))
	require.Zero(t, l.Len())
}

func TestLedgerConcurrent(t *testing.T) {
	l := newLedger()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(base uintptr) {
			defer wg.Done()
			for i := uintptr(0); i < 100; i++ {
				l.add(base+i, uint32(i))
				if err := l.remove(base+i, uint32(i)); err != nil {
					t.Error(err)
				}
			}
		}(uintptr(g+1) << 16)
	}
	wg.Wait()
	require.Zero(t, l.Len())
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		err  error
		want outcome
	}{
		{nil, outcomeOK},
		{textgen.ErrNotInitialized, outcomeAbort},
		{textgen.ErrAlreadyInitialized, outcomeAbort},
		{textgen.ErrNilState, outcomeAbort},
		{textgen.ErrDoubleFree, outcomeAbort},
		{fmt.Errorf("wrapped: %w", errUnknownPointer), outcomeAbort},
		{fmt.Errorf("%w: corpus(9)", corpus.ErrUnknownID), outcomeNull},
		{textgen.ErrStringTooLong, outcomeNull},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.want, classify(tc.err), "%v", tc.err)
	}
}
