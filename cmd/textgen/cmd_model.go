package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/CTAG07/typegen/pkg/markov"
	"github.com/CTAG07/typegen/pkg/textgen"
)

var errNoModelDatabase = errors.New("no model database configured (set engine_config.model_database_path or TEXTGEN_ENGINE_MODEL_DATABASE_PATH)")

func registerModelCommands(root *cobra.Command) {
	modelCmd := &cobra.Command{
		Use:   "model",
		Short: "Maintain the stored Markov models",
	}

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train the configured models that are missing from the model database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireModelDatabase(); err != nil {
				return err
			}
			return withEngine(cmd, func(lib *textgen.Library) error {
				store, err := lib.Store()
				if err != nil {
					return err
				}
				return printStats(cmd, store)
			})
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print statistics of the model database as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(func(store *markov.Store) error {
				return printStats(cmd, store)
			})
		},
	}

	var out string
	exportCmd := &cobra.Command{
		Use:   "export <model>",
		Short: "Export a model as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *markov.Store) error {
				model, err := store.GetModelInfo(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if out == "" {
					return store.ExportModel(cmd.Context(), model, cmd.OutOrStdout())
				}
				var buf bytes.Buffer
				if err = store.ExportModel(cmd.Context(), model, &buf); err != nil {
					return err
				}
				return atomic.WriteFile(out, &buf)
			})
		},
	}
	exportCmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")

	importCmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Import a model exported with 'model export'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *markov.Store) (err error) {
				var r io.Reader = cmd.InOrStdin()
				if args[0] != "-" {
					f, openErr := os.Open(args[0])
					if openErr != nil {
						return openErr
					}
					defer func() {
						err = multierr.Append(err, f.Close())
					}()
					r = f
				}
				return store.ImportModel(cmd.Context(), r)
			})
		},
	}

	var minFreq int
	pruneCmd := &cobra.Command{
		Use:   "prune <model>",
		Short: "Remove transitions seen fewer than --min-freq times from a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *markov.Store) error {
				model, err := store.GetModelInfo(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				removed, err := store.PruneModel(cmd.Context(), model, minFreq)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d transitions from %s\n", removed, model.Name)
				return nil
			})
		},
	}
	pruneCmd.Flags().IntVar(&minFreq, "min-freq", 2, "minimum frequency to keep")

	var vocabMinFreq int
	pruneVocabCmd := &cobra.Command{
		Use:   "prune-vocabulary",
		Short: "Remove tokens used fewer than --min-freq times across all models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(func(store *markov.Store) error {
				removed, err := store.VocabularyPrune(cmd.Context(), vocabMinFreq)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d tokens\n", removed)
				return nil
			})
		},
	}
	pruneVocabCmd.Flags().IntVar(&vocabMinFreq, "min-freq", 2, "minimum frequency to keep")

	modelCmd.AddCommand(trainCmd, statsCmd, exportCmd, importCmd, pruneCmd, pruneVocabCmd)
	root.AddCommand(modelCmd)
}

func requireModelDatabase() error {
	config, err := LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	if config.Engine.ModelDatabasePath == "" {
		return errNoModelDatabase
	}
	return nil
}

// withStore opens the configured model database directly, without
// compiling any chains, and runs fn against it.
func withStore(fn func(store *markov.Store) error) (err error) {
	config, err := LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	if config.Engine.ModelDatabasePath == "" {
		return errNoModelDatabase
	}

	db, err := initDB(config.Engine.ModelDatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open model database: %w", err)
	}
	defer func(db *sql.DB) {
		err = multierr.Append(err, db.Close())
	}(db)

	if err = markov.SetupSchema(db); err != nil {
		return fmt.Errorf("failed to setup markov schema: %w", err)
	}
	store, err := markov.NewStore(db, markov.NewWordTokenizer())
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, store.Close())
	}()
	return fn(store)
}

func printStats(cmd *cobra.Command, store *markov.Store) error {
	stats, err := store.GetStats(cmd.Context())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
