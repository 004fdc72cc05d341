package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CTAG07/typegen/pkg/textgen"
)

// Server wires the engine to its two listeners: the public one serves
// generated text, the admin one maintains the stored Markov models.
type Server struct {
	config    *Config
	logger    *slog.Logger
	lib       *textgen.Library
	genAPI    *GenAPI
	authAPI   *AuthAPI
	markovAPI *MarkovAPI
	serverAPI *ServerAPI
	publicMux *http.ServeMux
	adminMux  *http.ServeMux
}

// NewServer builds the handlers around an initialized Library. authDB holds
// the admin API keys; nil leaves the admin listener unauthenticated.
func NewServer(config *Config, logger *slog.Logger, lib *textgen.Library, authDB *sql.DB, actionChan chan string) (*Server, error) {
	if !lib.Ready() {
		return nil, errors.New("word engine is not initialized")
	}
	store, err := lib.Store()
	if err != nil {
		return nil, fmt.Errorf("failed to get markov store: %w", err)
	}

	initMetrics()

	server := &Server{
		config:    config,
		logger:    logger,
		lib:       lib,
		genAPI:    NewGenAPI(lib, config.Server.MaxMarkovWords, logger),
		authAPI:   NewAuthAPI(authDB, logger),
		markovAPI: NewMarkovAPI(store, logger),
		serverAPI: NewServerAPI(config, lib, actionChan, logger),
		publicMux: http.NewServeMux(),
		adminMux:  http.NewServeMux(),
	}

	server.genAPI.RegisterRoutes(server.publicMux)
	server.publicMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.publicMux.Handle("/metrics", promhttp.Handler())

	adminAPI := http.NewServeMux()
	server.authAPI.RegisterRoutes(adminAPI)
	server.markovAPI.RegisterRoutes(adminAPI)
	server.serverAPI.RegisterRoutes(adminAPI)

	// The health check stays open so that probes need no key.
	server.adminMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.adminMux.Handle("/api/", server.authAPI.Authenticate(adminAPI))

	return server, nil
}
