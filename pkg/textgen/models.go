package textgen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/CTAG07/typegen/pkg/corpus"
	"github.com/CTAG07/typegen/pkg/markov"
)

// modelSet owns the database connection and the two stores the Markov
// chains are compiled from.
type modelSet struct {
	db     *sql.DB
	ownDB  bool
	word   *markov.Store
	char   *markov.Store
	config Config
	logger *slog.Logger
}

// OpenDB opens the SQLite database at path with the pure Go driver, or a
// private in-memory database when path is empty.
func OpenDB(path string) (*sql.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open model database: %w", err)
	}
	if path == "" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func openModels(ctx context.Context, cfg Config, db *sql.DB, logger *slog.Logger) (*modelSet, error) {
	wordTokenizer, err := newWordTokenizer(cfg)
	if err != nil {
		return nil, err
	}

	m := &modelSet{db: db, config: cfg, logger: logger}
	if m.db == nil {
		if m.db, err = OpenDB(cfg.ModelDatabasePath); err != nil {
			return nil, err
		}
		m.ownDB = true
	}

	if err = markov.SetupSchema(m.db); err != nil {
		return nil, multierr.Append(err, m.Close())
	}
	if m.word, err = markov.NewStore(m.db, wordTokenizer); err != nil {
		return nil, multierr.Append(err, m.Close())
	}
	m.word.SetLogger(logger)
	if m.char, err = markov.NewStore(m.db, markov.NewCharTokenizer(markov.WithLowercase(true))); err != nil {
		return nil, multierr.Append(err, m.Close())
	}
	m.char.SetLogger(logger)

	logger.DebugContext(ctx, "Model database ready",
		slog.String("path", cfg.ModelDatabasePath),
		slog.Bool("owned", m.ownDB),
	)
	return m, nil
}

func newWordTokenizer(cfg Config) (*markov.WordTokenizer, error) {
	var opts []markov.Option
	if cfg.MarkovSplitRegex != "" {
		if _, err := regexp.Compile(cfg.MarkovSplitRegex); err != nil {
			return nil, fmt.Errorf("invalid markov split regex: %w", err)
		}
		opts = append(opts, markov.WithSeparatorRegex(cfg.MarkovSplitRegex))
	}
	if cfg.MarkovEocRegex != "" {
		if _, err := regexp.Compile(cfg.MarkovEocRegex); err != nil {
			return nil, fmt.Errorf("invalid markov eoc regex: %w", err)
		}
		opts = append(opts, markov.WithEOCRegex(cfg.MarkovEocRegex))
	}
	return markov.NewWordTokenizer(opts...), nil
}

// compile returns the word and character chains, training whichever model
// is missing or empty first.
func (m *modelSet) compile(ctx context.Context) (word, char *markov.Chain, err error) {
	word, err = m.chain(ctx, m.word, m.config.WordModelName, m.config.WordModelOrder, m.config.WordTrainingFiles)
	if err != nil {
		return nil, nil, err
	}
	char, err = m.chain(ctx, m.char, m.config.CharModelName, m.config.CharModelOrder, m.config.CharTrainingFiles)
	if err != nil {
		return nil, nil, err
	}
	return word, char, nil
}

func (m *modelSet) chain(ctx context.Context, store *markov.Store, name string, order int, files []string) (*markov.Chain, error) {
	model, created, err := store.EnsureModel(ctx, name, order)
	if err != nil {
		return nil, err
	}
	if created {
		if err = m.train(ctx, store, model, files); err != nil {
			return nil, err
		}
	}

	chain, err := store.Compile(ctx, model)
	if errors.Is(err, markov.ErrEmptyModel) && !created {
		// Left empty by an interrupted run.
		m.logger.WarnContext(ctx, "Stored model is empty, retraining",
			slog.String("model_name", name),
		)
		if err = m.train(ctx, store, model, files); err != nil {
			return nil, err
		}
		chain, err = store.Compile(ctx, model)
	}
	if err != nil {
		return nil, err
	}
	return chain, nil
}

func (m *modelSet) train(ctx context.Context, store *markov.Store, model markov.ModelInfo, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("no training files configured for model '%s'", model.Name)
	}
	for _, file := range files {
		rc, err := corpus.Open(m.config.CorpusDir, file)
		if err != nil {
			return fmt.Errorf("could not open training file %s: %w", file, err)
		}
		err = store.Train(ctx, model, rc)
		_ = rc.Close()
		if err != nil {
			return fmt.Errorf("could not train '%s' on %s: %w", model.Name, file, err)
		}
	}
	return nil
}

// Close releases the stores and, if it was opened here, the database.
func (m *modelSet) Close() error {
	var err error
	if m.word != nil {
		err = multierr.Append(err, m.word.Close())
	}
	if m.char != nil {
		err = multierr.Append(err, m.char.Close())
	}
	if m.ownDB {
		err = multierr.Append(err, m.db.Close())
	}
	return err
}
