// Command libtextgen exposes the word engine as a C shared library. See
// textgen.h for the interface.
package main

/*
#include <stdint.h>
#include <stdlib.h>

#ifndef TEXTGEN_STRING_STRUCT
#define TEXTGEN_STRING_STRUCT
typedef struct StringStruct {
	uint8_t *ptr;
	uint32_t len;
} StringStruct;
#endif
*/
import "C"

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"github.com/CTAG07/typegen/pkg/textgen"
)

var (
	lib     *textgen.Library
	logger  *slog.Logger
	libOnce sync.Once
	issued  = newLedger()
)

func main() {}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "textgen: "+format+"\n", args...)
	C.abort()
}

func must(call string, err error) {
	if err != nil {
		fatal("%s: %v", call, err)
	}
}

func toC(call string, s cString, err error) C.StringStruct {
	must(call, err)
	return C.StringStruct{ptr: (*C.uint8_t)(s.ptr), len: C.uint32_t(s.len)}
}

func setup() {
	libOnce.Do(func() {
		cfg, err := loadConfig()
		if err != nil {
			fatal("tg_init: %v", err)
		}
		logger = newLogger(cfg.LogLevel)
		lib = textgen.New(
			textgen.WithConfig(cfg.Engine),
			textgen.WithLogger(logger),
		)
	})
}

//export tg_init
func tg_init() {
	setup()
	must("tg_init", initLib())
}

//export tg_deinit
func tg_deinit() {
	setup()
	must("tg_deinit", deinitLib())
}

//export tg_genN
func tg_genN(state *C.uint32_t, n C.uint16_t, id C.uint8_t) C.StringStruct {
	setup()
	s, err := genN((*uint32)(unsafe.Pointer(state)), uint16(n), uint8(id))
	return toC("tg_genN", s, err)
}

//export tg_genWordMarkov
func tg_genWordMarkov() C.StringStruct {
	setup()
	s, err := genWordMarkov()
	return toC("tg_genWordMarkov", s, err)
}

//export tg_rollWordMarkov
func tg_rollWordMarkov() {
	setup()
	must("tg_rollWordMarkov", rollWordMarkov())
}

//export tg_freeString
func tg_freeString(s C.StringStruct) {
	must("tg_freeString", freeString(cString{ptr: unsafe.Pointer(s.ptr), len: uint32(s.len)}))
}
