package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/CTAG07/typegen/pkg/textgen"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func currentVersion() VersionInfo {
	return VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	}
}

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           "textgen",
		Short:         "Procedural word and sentence generator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve generated text over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			v := currentVersion()
			fmt.Fprintf(cmd.OutOrStdout(), "textgen %s (commit %s, built %s)\n", v.Version, v.Commit, v.BuildDate)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "./config.json", "path to the JSON config file")
	rootCmd.AddCommand(serveCmd, versionCmd)
	registerGenCommands(rootCmd)
	registerModelCommands(rootCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// engine is an initialized Library together with the model database the
// command opened for it, if any.
type engine struct {
	lib *textgen.Library
	db  *sql.DB
}

// openEngine initializes a Library from config. When a model database is
// configured it is opened here, with the driver picked at build time.
func openEngine(ctx context.Context, config *Config, logger *slog.Logger, opts ...textgen.Option) (*engine, error) {
	e := &engine{}
	opts = append([]textgen.Option{
		textgen.WithConfig(*config.Engine),
		textgen.WithLogger(logger),
	}, opts...)

	if path := config.Engine.ModelDatabasePath; path != "" {
		db, err := initDB(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open model database: %w", err)
		}
		e.db = db
		opts = append(opts, textgen.WithDB(db))
	}

	e.lib = textgen.New(opts...)
	if err := e.lib.Init(ctx); err != nil {
		if e.db != nil {
			err = multierr.Append(err, e.db.Close())
		}
		return nil, fmt.Errorf("failed to initialize word engine: %w", err)
	}
	return e, nil
}

func (e *engine) Close() error {
	err := e.lib.Deinit()
	if e.db != nil {
		err = multierr.Append(err, e.db.Close())
	}
	return err
}

func closeIfOpen(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

func runServe(cmd *cobra.Command, _ []string) error {
	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(cmd.Context(), actionChan)
		if err != nil {
			baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
			return err
		}
		if action != actionRestart {
			break
		}
		baseLogger.Info("--- Server Restarting ---")
	}

	baseLogger.Info("textgen has shut down.")
	return nil
}

// run hosts both servers, and returns whenever the server is shut down or restarted.
func run(ctx context.Context, actionChan chan string) (string, error) {
	config, err := LoadConfig(cfgFile)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(config)
	logger.Info("Starting server cycle...")

	e, err := openEngine(ctx, config, logger)
	if err != nil {
		return "", err
	}

	var authDB *sql.DB
	if path := config.Server.AuthDatabasePath; path != "" {
		if authDB, err = initDB(path); err == nil {
			err = setupAuthSchema(authDB)
		}
		if err != nil {
			err = multierr.Combine(err, closeIfOpen(authDB), e.Close())
			return "", fmt.Errorf("failed to initialize auth database: %w", err)
		}
	} else {
		logger.Warn("No auth database configured, the admin API is unauthenticated", "address", config.Server.AdminAddr)
	}

	server, err := NewServer(config, logger, e.lib, authDB, actionChan)
	if err != nil {
		err = multierr.Combine(err, closeIfOpen(authDB), e.Close())
		return "", fmt.Errorf("failed to create server object: %w", err)
	}

	publicHttpServer := &http.Server{Addr: config.Server.PublicAddr, Handler: server.publicMux}
	adminHttpServer := &http.Server{Addr: config.Server.AdminAddr, Handler: server.adminMux}

	go func() {
		logger.Info("Starting admin server", "address", adminHttpServer.Addr)
		if err := adminHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Admin server failed", "error", err)
		}
	}()

	go func() {
		logger.Info("Starting public server", "address", publicHttpServer.Addr)
		if err := publicHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Public server failed", "error", err)
		}
	}()

	action := <-actionChan

	logger.Info("Stopping servers for " + action + "...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = adminHttpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Admin server shutdown failed", "error", err)
	}
	if err = publicHttpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Public server shutdown failed", "error", err)
	}
	logger.Info("HTTP servers stopped.")

	if err = e.Close(); err != nil {
		logger.Error("Failed to shut down word engine", "error", err)
	}
	if err = closeIfOpen(authDB); err != nil {
		logger.Error("Failed to close auth database", "error", err)
	}

	return action, nil
}
