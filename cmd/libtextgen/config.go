package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/CTAG07/typegen/pkg/textgen"
)

// libConfig is read from TEXTGEN_* environment variables when the library
// is first initialized, using the same names as the textgen server.
type libConfig struct {
	LogLevel string         `env:"LOG_LEVEL" envDefault:"warn"`
	Engine   textgen.Config `envPrefix:"ENGINE_"`
}

func loadConfig() (libConfig, error) {
	cfg := libConfig{Engine: textgen.DefaultConfig()}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "TEXTGEN_"}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// outcome is what the C boundary does with the result of an engine call.
type outcome int

const (
	outcomeOK outcome = iota
	// outcomeNull returns {NULL, 0} and carries on.
	outcomeNull
	// outcomeAbort ends the process: the caller broke the contract.
	outcomeAbort
)

func classify(err error) outcome {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, textgen.ErrNotInitialized),
		errors.Is(err, textgen.ErrAlreadyInitialized),
		errors.Is(err, textgen.ErrNilState),
		errors.Is(err, textgen.ErrDoubleFree),
		errors.Is(err, textgen.ErrForeignString),
		errors.Is(err, errUnknownPointer):
		return outcomeAbort
	default:
		return outcomeNull
	}
}
