package main

import (
	"errors"
	"fmt"
	"sync"
)

var errUnknownPointer = errors.New("pointer was not returned by textgen or was already freed")

// ledger tracks the C allocations handed to the caller, so that a double
// free is caught instead of corrupting the C heap.
type ledger struct {
	mu   sync.Mutex
	live map[uintptr]uint32
}

func newLedger() *ledger {
	return &ledger{live: make(map[uintptr]uint32)}
}

func (l *ledger) add(p uintptr, n uint32) {
	l.mu.Lock()
	l.live[p] = n
	l.mu.Unlock()
}

// remove forgets p. The length must match the one p was issued with.
func (l *ledger) remove(p uintptr, n uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	want, ok := l.live[p]
	if !ok {
		return fmt.Errorf("%w: %#x", errUnknownPointer, p)
	}
	if want != n {
		return fmt.Errorf("string %#x freed with length %d, issued with %d", p, n, want)
	}
	delete(l.live, p)
	return nil
}

func (l *ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}
