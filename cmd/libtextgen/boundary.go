package main

/*
#include <stdlib.h>

// C.malloc from Go never returns NULL, it crashes instead.
static inline void *textgen_alloc(size_t n) { return malloc(n); }
*/
import "C"

import (
	"context"
	"unsafe"

	"go.uber.org/multierr"

	"github.com/CTAG07/typegen/pkg/corpus"
	"github.com/CTAG07/typegen/pkg/prng"
	"github.com/CTAG07/typegen/pkg/textgen"
)

// cString is a C allocation handed to the caller, the Go side of a
// StringStruct.
type cString struct {
	ptr unsafe.Pointer
	len uint32
}

func (s cString) bytes() []byte {
	if s.ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(s.ptr), s.len)
}

// The functions below back the tg_* exports. They return an error only when
// the caller broke the contract; the exports abort on it.

func initLib() error {
	return lib.Init(context.Background())
}

func deinitLib() error {
	err := lib.Deinit()
	if classify(err) == outcomeAbort {
		return err
	}
	if err != nil {
		logger.Error("Call failed", "call", "tg_deinit", "error", err)
	}
	if n := issued.Len(); n > 0 {
		// They stay valid and can still be freed.
		logger.Warn("Strings not freed at deinit", "count", n)
	}
	return nil
}

// genN writes the advanced state back only when it returns text.
func genN(state *uint32, n uint16, id uint8) (cString, error) {
	if state == nil {
		return cString{}, textgen.ErrNilState
	}
	st := prng.State(*state)
	s, err := lib.GenN(&st, n, corpus.ID(id))
	if err == nil {
		*state = uint32(st)
	}
	return exportString("tg_genN", s, err)
}

func genWordMarkov() (cString, error) {
	s, err := lib.GenWordMarkov()
	return exportString("tg_genWordMarkov", s, err)
}

func rollWordMarkov() error {
	err := lib.RollWordMarkov()
	if classify(err) == outcomeNull {
		logger.Error("Call failed", "call", "tg_rollWordMarkov", "error", err)
		return nil
	}
	return err
}

// freeString works outside init ... deinit too, so strings outstanding at
// deinit can still be released. Freeing {NULL, 0} is a no-op.
func freeString(s cString) error {
	if s.ptr == nil {
		return nil
	}
	if err := issued.remove(uintptr(s.ptr), s.len); err != nil {
		return err
	}
	C.free(s.ptr)
	return nil
}

// exportString moves s into C memory. Errors that are not contract
// violations are logged and give {NULL, 0}.
func exportString(call string, s *textgen.String, err error) (cString, error) {
	switch classify(err) {
	case outcomeAbort:
		return cString{}, err
	case outcomeNull:
		logger.Error("Call failed", "call", call, "error", err)
		return cString{}, nil
	}
	out := export(s.Bytes())
	if err = lib.FreeString(s); err != nil {
		return cString{}, multierr.Append(err, freeString(out))
	}
	return out, nil
}

// export copies b into C memory and records the allocation. n = 0 still
// gets a one byte allocation so that the pointer is never NULL on success.
func export(b []byte) cString {
	size := len(b)
	if size == 0 {
		size = 1
	}
	p := C.textgen_alloc(C.size_t(size))
	if p == nil {
		logger.Error("Out of memory", "bytes", size)
		return cString{}
	}
	copy(unsafe.Slice((*byte)(p), size), b)
	issued.add(uintptr(p), uint32(len(b)))
	return cString{ptr: p, len: uint32(len(b))}
}
