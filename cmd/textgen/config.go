package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/natefinch/atomic"

	"github.com/CTAG07/typegen/pkg/textgen"
)

// envPrefix is put in front of every environment override, e.g.
// TEXTGEN_SERVER_LOG_LEVEL or TEXTGEN_ENGINE_MAX_WORD_LENGTH.
const envPrefix = "TEXTGEN_"

// ServerConfig holds the configuration for the HTTP servers.
type ServerConfig struct {
	PublicAddr     string `json:"public_addr" env:"PUBLIC_ADDR"`
	AdminAddr      string `json:"admin_addr" env:"ADMIN_ADDR"`
	LogLevel       string `json:"log_level" env:"LOG_LEVEL"`
	MaxMarkovWords int    `json:"max_markov_words" env:"MAX_MARKOV_WORDS"`

	// AuthDatabasePath holds the admin API keys. Empty leaves the admin
	// listener unauthenticated.
	AuthDatabasePath string `json:"auth_database_path" env:"AUTH_DATABASE_PATH"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server *ServerConfig   `json:"server_config" envPrefix:"SERVER_"`
	Engine *textgen.Config `json:"engine_config" envPrefix:"ENGINE_"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		PublicAddr:     ":7277",
		AdminAddr:      "127.0.0.1:7278",
		LogLevel:       "info",
		MaxMarkovWords: 1000,
	}
}

// DefaultConfig returns the full configuration with default values.
func DefaultConfig() *Config {
	engine := textgen.DefaultConfig()
	return &Config{
		Server: DefaultServerConfig(),
		Engine: &engine,
	}
}

// LoadConfig reads the configuration from a JSON file at the given path and
// applies environment overrides on top. If the file doesn't exist, it
// creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		var data []byte
		data, err = json.MarshalIndent(config, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal default config: %w", err)
		}
		if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
			// The defaults still work, so this is not fatal.
			fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err = json.Unmarshal(file, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// A file that sets a section to null still gets the defaults.
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Engine == nil {
		engine := textgen.DefaultConfig()
		config.Engine = &engine
	}

	if err = env.ParseWithOptions(config, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	return config, nil
}

// SaveConfig writes config to path, replacing the file atomically.
func SaveConfig(path string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(config *Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(config.Server.LogLevel)}))
}
