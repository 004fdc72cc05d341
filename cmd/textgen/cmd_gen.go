package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/CTAG07/typegen/pkg/corpus"
	"github.com/CTAG07/typegen/pkg/prng"
	"github.com/CTAG07/typegen/pkg/textgen"
)

type genFlags struct {
	state uint32
	count uint16
	id    uint8
}

type wordFlags struct {
	count  int
	reroll bool
	seed   uint64
}

func registerGenCommands(root *cobra.Command) {
	var gf genFlags
	genCmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate words from a corpus with an explicit generator state",
		Long: "Generate --count words from corpus --id starting at --state. The new\n" +
			"state is printed on the first line, so feeding it back continues the\n" +
			"sequence.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGen(cmd, gf)
		},
	}
	genCmd.Flags().Uint32Var(&gf.state, "state", 1, "generator state")
	genCmd.Flags().Uint16Var(&gf.count, "count", 10, "number of words")
	genCmd.Flags().Uint8Var(&gf.id, "id", uint8(corpus.WordsAlpha), "corpus id (see 'textgen corpora')")

	var wf wordFlags
	wordCmd := &cobra.Command{
		Use:   "word",
		Short: "Synthesize words with the character level Markov chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWord(cmd, wf)
		},
	}
	wordCmd.Flags().IntVar(&wf.count, "count", 1, "number of words")
	wordCmd.Flags().BoolVar(&wf.reroll, "reroll", false, "re-roll the Markov cursor before generating")
	wordCmd.Flags().Uint64Var(&wf.seed, "seed", 0, "seed for reproducible output (0 uses system entropy)")

	corporaCmd := &cobra.Command{
		Use:   "corpora",
		Short: "List the registered corpus ids",
		Args:  cobra.NoArgs,
		RunE:  runCorpora,
	}

	var write bool
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			if write {
				return SaveConfig(cfgFile, config)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(config)
		},
	}
	configCmd.Flags().BoolVar(&write, "write", false, "write the effective configuration, environment overrides included, back to the config file")

	root.AddCommand(genCmd, wordCmd, corporaCmd, configCmd)
}

// withEngine runs fn against an engine built from the config file. Engine
// logs go to stderr so that stdout carries only the generated text.
func withEngine(cmd *cobra.Command, fn func(lib *textgen.Library) error, opts ...textgen.Option) (err error) {
	config, err := LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: parseLogLevel(config.Server.LogLevel)}))

	e, err := openEngine(cmd.Context(), config, logger, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, e.Close())
	}()
	return fn(e.lib)
}

func runGen(cmd *cobra.Command, f genFlags) error {
	return withEngine(cmd, func(lib *textgen.Library) error {
		state := prng.State(f.state)
		s, err := lib.GenN(&state, f.count, corpus.ID(f.id))
		if err != nil {
			return err
		}
		defer func() {
			_ = lib.FreeString(s)
		}()
		return writeGenerated(cmd.OutOrStdout(), state, s.Bytes())
	})
}

func writeGenerated(w io.Writer, state prng.State, text []byte) error {
	if _, err := fmt.Fprintf(w, "%d\n", uint32(state)); err != nil {
		return err
	}
	if _, err := w.Write(text); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func runWord(cmd *cobra.Command, f wordFlags) error {
	var opts []textgen.Option
	if f.seed != 0 {
		opts = append(opts, textgen.WithEntropy(prng.NewSplitMix(f.seed)))
	}
	return withEngine(cmd, func(lib *textgen.Library) error {
		words, err := lib.GenWordsMarkov(f.count, f.reroll)
		if err != nil {
			return err
		}
		for _, word := range words {
			if _, err = fmt.Fprintln(cmd.OutOrStdout(), word); err != nil {
				return err
			}
		}
		return nil
	}, opts...)
}

func runCorpora(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(lib *textgen.Library) error {
		infos, err := lib.Corpora()
		if err != nil {
			return err
		}
		for _, info := range infos {
			if info.Words > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%d words\n", info.ID, info.Name, info.Words)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\tgenerated\n", info.ID, info.Name)
			}
		}
		return nil
	})
}
