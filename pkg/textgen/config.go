package textgen

import (
	"database/sql"
	"io"
	"log/slog"

	"github.com/CTAG07/typegen/pkg/corpus"
)

// Config holds the options that shape a Library. Changes take effect at the
// next Init.
type Config struct {
	// CorpusDir is searched for corpus and training files before the bundled
	// copies. Empty means bundled data only.
	CorpusDir string `json:"corpus_dir" env:"CORPUS_DIR"`

	// ModelDatabasePath is a SQLite file that keeps trained models between
	// runs. Models already present are reused, missing ones are trained and
	// stored. Empty means models are trained into a private in-memory database
	// on every Init.
	ModelDatabasePath string `json:"model_database_path" env:"MODEL_DATABASE_PATH"`

	// WordModelName and WordModelOrder identify the word level model behind
	// the Sentence and WordMarkov corpora.
	WordModelName  string `json:"word_model_name" env:"WORD_MODEL_NAME"`
	WordModelOrder int    `json:"word_model_order" env:"WORD_MODEL_ORDER"`
	// WordTrainingFiles are read, in order, to train a new word model.
	WordTrainingFiles []string `json:"word_training_files" env:"WORD_TRAINING_FILES"`

	// CharModelName and CharModelOrder identify the character level model
	// behind GenWordMarkov and the CharMarkov corpus.
	CharModelName  string `json:"char_model_name" env:"CHAR_MODEL_NAME"`
	CharModelOrder int    `json:"char_model_order" env:"CHAR_MODEL_ORDER"`
	// CharTrainingFiles are read, in order, to train a new character model.
	CharTrainingFiles []string `json:"char_training_files" env:"CHAR_TRAINING_FILES"`

	// MaxWordLength bounds a synthesized word, in runes.
	MaxWordLength int `json:"max_word_length" env:"MAX_WORD_LENGTH"`
	// MaxSentenceLength bounds a sentence from the word model, in words.
	MaxSentenceLength int `json:"max_sentence_length" env:"MAX_SENTENCE_LENGTH"`

	// Temperature and TopK tune Markov sampling, see markov.WithTemperature
	// and markov.WithTopK.
	Temperature float64 `json:"temperature" env:"TEMPERATURE"`
	TopK        int     `json:"top_k" env:"TOP_K"`

	// MarkovSplitRegex and MarkovEocRegex override how word training text is
	// split into tokens and which tokens end a sentence.
	MarkovSplitRegex string `json:"markov_split_regex" env:"MARKOV_SPLIT_REGEX"`
	MarkovEocRegex   string `json:"markov_eoc_regex" env:"MARKOV_EOC_REGEX"`
}

// DefaultConfig returns a Config with safe default values.
func DefaultConfig() Config {
	return Config{
		WordModelName:     "markov.word",
		WordModelOrder:    1,
		WordTrainingFiles: []string{corpus.FileSentences},
		CharModelName:     "markov.char",
		CharModelOrder:    2,
		CharTrainingFiles: []string{corpus.FileWordsAlpha},
		MaxWordLength:     24,
		MaxSentenceLength: 32,
		Temperature:       1.0,
		TopK:              0,
		MarkovSplitRegex:  `[\w'-]+|[.!?]`,
		MarkovEocRegex:    `^[.!?]$`,
	}
}

// Option configures a Library.
type Option func(*Library)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(l *Library) {
		l.config = cfg
	}
}

// WithLogger sets the logger. By default, all logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Library) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithDB makes the Library keep its models in db instead of opening its own
// database. The Library never closes a database it was given.
func WithDB(db *sql.DB) Option {
	return func(l *Library) {
		l.db = db
	}
}

// WithEntropy sets where Init and RollWordMarkov read seeds for the Markov
// cursor. The default is crypto/rand. A seeded *prng.SplitMix gives
// reproducible runs.
func WithEntropy(r io.Reader) Option {
	return func(l *Library) {
		l.entropy = r
	}
}

// WithWordList replaces the word list registered under id, which must be
// corpus.WordsAlpha or corpus.WordsNonAlpha.
func WithWordList(id corpus.ID, words []string) Option {
	return func(l *Library) {
		if l.wordLists == nil {
			l.wordLists = make(map[corpus.ID][]string)
		}
		l.wordLists[id] = words
	}
}
