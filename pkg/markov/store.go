package markov

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"go.uber.org/multierr"
)

const (
	// SOCTokenID is the reserved ID for the Start-Of-Chain token.
	SOCTokenID = 0
	// EOCTokenID is the reserved ID for the End-Of-Chain token.
	EOCTokenID = 1
	// SOCTokenText is the reserved text for the Start-Of-Chain token.
	SOCTokenText = "<SOC>"
	// EOCTokenText is the reserved text for the End-Of-Chain token.
	EOCTokenText = "<EOC>"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS markov_vocabulary (
    token_id INTEGER PRIMARY KEY,
    token_text TEXT NOT NULL UNIQUE
);`,
	`CREATE TABLE IF NOT EXISTS markov_prefixes (
    prefix_id INTEGER PRIMARY KEY,
    prefix_text TEXT NOT NULL UNIQUE
);`,
	`CREATE TABLE IF NOT EXISTS markov_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    model_order INTEGER NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS markov_chains (
    model_id INTEGER NOT NULL,
    prefix_id INTEGER NOT NULL,
    next_token_id INTEGER NOT NULL,
    frequency INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (model_id, prefix_id, next_token_id)
);`,
	fmt.Sprintf(`INSERT OR IGNORE INTO markov_vocabulary (token_id, token_text) VALUES (%d, '%s');`, SOCTokenID, SOCTokenText),
	fmt.Sprintf(`INSERT OR IGNORE INTO markov_vocabulary (token_id, token_text) VALUES (%d, '%s');`, EOCTokenID, EOCTokenText),
}

// SetupSchema creates the markov tables and the reserved vocabulary entries.
// It is idempotent, so it is safe to run against a database that already
// holds trained models.
func SetupSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, stmt := range schema {
		if _, err = tx.Exec(stmt); err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store is the persistent side of the markov package: it owns the SQL
// statements used to train, inspect and maintain models. Generation does
// not go through the Store; Compile turns a stored model into an in-memory
// Chain first.
type Store struct {
	db        *sql.DB
	tokenizer Tokenizer
	logger    *slog.Logger

	stmtGetModelInfo      *sql.Stmt
	stmtGetModels         *sql.Stmt
	stmtAddModel          *sql.Stmt
	stmtPruneModel        *sql.Stmt
	stmtModelChains       *sql.Stmt
	stmtModelStarters     *sql.Stmt
	stmtModelFreq         *sql.Stmt
	stmtInsertLink        *sql.Stmt
	stmtGetTokenID        *sql.Stmt
	stmtGetPrefixID       *sql.Stmt
	stmtGetTokenText      *sql.Stmt
	stmtGetChain          *sql.Stmt
	stmtGetVocabLen       *sql.Stmt
	stmtGetPrefixLen      *sql.Stmt
	stmtInsertVocab       *sql.Stmt
	stmtGetOrInsertPrefix *sql.Stmt
}

// NewStore prepares every statement the Store needs against db. The
// tokenizer decides how training text is split and is copied into every
// Chain compiled from this Store.
func NewStore(db *sql.DB, tokenizer Tokenizer) (*Store, error) {
	s := &Store{
		db:        db,
		tokenizer: tokenizer,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, p := range []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtGetModelInfo, `SELECT model_id, model_order FROM markov_models WHERE model_name = ?;`},
		{&s.stmtGetModels, `SELECT model_id, model_name, model_order FROM markov_models;`},
		{&s.stmtAddModel, `INSERT INTO markov_models (model_name, model_order) VALUES (?, ?);`},
		{&s.stmtPruneModel, `DELETE FROM markov_chains WHERE model_id = ? AND frequency <= ?;`},
		{&s.stmtModelChains, `SELECT COUNT(*) FROM markov_chains WHERE model_id = ?;`},
		{&s.stmtModelStarters, `SELECT COUNT(*) FROM markov_chains WHERE model_id = ? AND prefix_id = ?;`},
		{&s.stmtModelFreq, `SELECT coalesce(SUM(frequency), 0) FROM markov_chains WHERE model_id = ?;`},
		{&s.stmtInsertLink, `INSERT INTO markov_chains (model_id, prefix_id, next_token_id) VALUES (?, ?, ?) ON CONFLICT DO UPDATE SET frequency = frequency + 1;`},
		{&s.stmtGetTokenID, `SELECT token_id FROM markov_vocabulary WHERE token_text = ?;`},
		{&s.stmtGetPrefixID, `SELECT prefix_id FROM markov_prefixes WHERE prefix_text = ?;`},
		{&s.stmtGetTokenText, `SELECT token_text FROM markov_vocabulary WHERE token_id = ?;`},
		{&s.stmtGetChain, `SELECT next_token_id, frequency FROM markov_chains WHERE model_id = ? AND prefix_id = ? ORDER BY next_token_id;`},
		{&s.stmtGetVocabLen, `SELECT COUNT(*) FROM markov_vocabulary;`},
		{&s.stmtGetPrefixLen, `SELECT COUNT(*) FROM markov_prefixes;`},
		{&s.stmtInsertVocab, `INSERT INTO markov_vocabulary (token_text) VALUES (?) ON CONFLICT(token_text) DO UPDATE SET token_text=excluded.token_text RETURNING token_id;`},
		{&s.stmtGetOrInsertPrefix, `INSERT INTO markov_prefixes (prefix_text) VALUES (?) ON CONFLICT(prefix_text) DO UPDATE SET prefix_text=excluded.prefix_text RETURNING prefix_id;`},
	} {
		stmt, err := db.Prepare(p.query)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("could not prepare statement: %w", err)
		}
		*p.dst = stmt
	}

	return s, nil
}

// Close releases every prepared statement. The database itself belongs to
// the caller and stays open.
func (s *Store) Close() error {
	var err error
	for _, stmt := range []*sql.Stmt{
		s.stmtGetModelInfo,
		s.stmtGetModels,
		s.stmtAddModel,
		s.stmtPruneModel,
		s.stmtModelChains,
		s.stmtModelStarters,
		s.stmtModelFreq,
		s.stmtInsertLink,
		s.stmtGetTokenID,
		s.stmtGetPrefixID,
		s.stmtGetTokenText,
		s.stmtGetChain,
		s.stmtGetVocabLen,
		s.stmtGetPrefixLen,
		s.stmtInsertVocab,
		s.stmtGetOrInsertPrefix,
	} {
		if stmt != nil {
			err = multierr.Append(err, stmt.Close())
		}
	}
	return err
}

// Tokenizer returns the tokenizer the Store trains with.
func (s *Store) Tokenizer() Tokenizer {
	return s.tokenizer
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}
