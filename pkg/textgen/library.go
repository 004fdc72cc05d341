package textgen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/CTAG07/typegen/pkg/corpus"
	"github.com/CTAG07/typegen/pkg/markov"
	"github.com/CTAG07/typegen/pkg/prng"
)

var (
	// ErrNotInitialized is returned by every operation called outside the
	// Init ... Deinit window.
	ErrNotInitialized = errors.New("textgen: library not initialized")
	// ErrAlreadyInitialized is returned by Init on a Library that is
	// initialized or in the middle of Init or Deinit.
	ErrAlreadyInitialized = errors.New("textgen: library already initialized")
	// ErrOutstandingStrings is returned by Deinit when strings handed out
	// were never freed. Teardown still completes.
	ErrOutstandingStrings = errors.New("textgen: strings still outstanding at deinit")
	// ErrNilState is returned by GenN when no state is passed.
	ErrNilState = errors.New("textgen: nil generator state")
)

type stage int32

const (
	stageUninitialized stage = iota
	stageInitializing
	stageReady
	stageDeinitializing
)

// Library is one instance of the word engine. The zero value is not usable;
// create one with New, then call Init before any other method.
//
// Corpora and chains are read-only between Init and Deinit, so GenN may run
// concurrently with distinct states. The Markov cursor used by GenWordMarkov
// and RollWordMarkov is a single shared resource: callers serialize those
// calls themselves. FreeString may run concurrently with anything.
type Library struct {
	logger    *slog.Logger
	config    Config
	db        *sql.DB
	entropy   io.Reader
	wordLists map[corpus.ID][]string

	stage atomic.Int32

	// Valid while Ready.
	registry  *corpus.Registry
	charChain *markov.Chain
	wordChain *markov.Chain
	charOpts  []markov.GenerateOption
	cursor    *prng.SplitMix
	models    *modelSet

	strMu      sync.Mutex
	live       map[uint64]struct{}
	nextHandle uint64
}

// New returns an uninitialized Library.
func New(opts ...Option) *Library {
	l := &Library{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the configuration the Library was built with.
func (l *Library) Config() Config {
	return l.config
}

// Init loads the corpora, trains or loads the Markov models and seeds the
// Markov cursor. On failure the Library stays uninitialized and Init may
// be retried. A Library that was shut down with Deinit can be initialized
// again.
func (l *Library) Init(ctx context.Context) error {
	if !l.stage.CompareAndSwap(int32(stageUninitialized), int32(stageInitializing)) {
		return ErrAlreadyInitialized
	}
	if err := l.init(ctx); err != nil {
		l.stage.Store(int32(stageUninitialized))
		return err
	}
	l.stage.Store(int32(stageReady))
	return nil
}

func (l *Library) init(ctx context.Context) error {
	alpha, err := l.loadWordList(corpus.WordsAlpha, corpus.FileWordsAlpha)
	if err != nil {
		return err
	}
	nonAlpha, err := l.loadWordList(corpus.WordsNonAlpha, corpus.FileWordsNonAlpha)
	if err != nil {
		return err
	}

	models, err := openModels(ctx, l.config, l.db, l.logger)
	if err != nil {
		return err
	}
	wordChain, charChain, err := models.compile(ctx)
	if err != nil {
		return multierr.Append(err, models.Close())
	}

	charOpts := []markov.GenerateOption{
		markov.WithMaxLength(l.config.MaxWordLength),
		markov.WithTemperature(l.config.Temperature),
		markov.WithTopK(l.config.TopK),
	}
	wordOpts := []markov.GenerateOption{
		markov.WithMaxLength(l.config.MaxSentenceLength),
		markov.WithTemperature(l.config.Temperature),
		markov.WithTopK(l.config.TopK),
	}

	registry, err := corpus.NewRegistry(map[corpus.ID]corpus.Source{
		corpus.WordsAlpha:    alpha,
		corpus.WordsNonAlpha: nonAlpha,
		corpus.Sentence:      &sentenceSource{chain: wordChain, opts: wordOpts},
		corpus.CharMarkov:    &charWordSource{chain: charChain, opts: charOpts},
		corpus.WordMarkov:    &wordChainSource{chain: wordChain, opts: wordOpts},
	})
	if err != nil {
		return multierr.Append(err, models.Close())
	}

	seed, err := prng.NewSeed(l.entropy)
	if err != nil {
		return multierr.Append(fmt.Errorf("could not seed markov cursor: %w", err), models.Close())
	}

	l.registry = registry
	l.wordChain = wordChain
	l.charChain = charChain
	l.charOpts = charOpts
	l.cursor = prng.NewSplitMix(seed)
	l.models = models

	l.strMu.Lock()
	l.live = make(map[uint64]struct{})
	l.strMu.Unlock()

	l.logger.InfoContext(ctx, "Word engine initialized",
		slog.Int("corpora", registry.Len()),
		slog.Int("words_alpha", alpha.Len()),
		slog.Int("words_nonalpha", nonAlpha.Len()),
		slog.Int("word_prefixes", wordChain.Len()),
		slog.Int("char_prefixes", charChain.Len()),
	)
	return nil
}

func (l *Library) loadWordList(id corpus.ID, file string) (*corpus.WordList, error) {
	if words, ok := l.wordLists[id]; ok {
		wl, err := corpus.NewWordList(words)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		return wl, nil
	}
	wl, err := corpus.LoadWordList(l.config.CorpusDir, file)
	if err != nil {
		return nil, fmt.Errorf("could not load %s: %w", id, err)
	}
	return wl, nil
}

// Deinit releases everything Init created. It must not overlap any other
// call. Strings still outstanding are reported with ErrOutstandingStrings
// and can no longer be freed; the Library is uninitialized either way.
func (l *Library) Deinit() error {
	if !l.stage.CompareAndSwap(int32(stageReady), int32(stageDeinitializing)) {
		return ErrNotInitialized
	}

	var err error
	l.strMu.Lock()
	if n := len(l.live); n > 0 {
		err = fmt.Errorf("%w: %d", ErrOutstandingStrings, n)
	}
	l.live = nil
	l.strMu.Unlock()

	err = multierr.Append(err, l.models.Close())

	l.registry = nil
	l.wordChain = nil
	l.charChain = nil
	l.charOpts = nil
	l.cursor = nil
	l.models = nil

	l.stage.Store(int32(stageUninitialized))
	l.logger.Info("Word engine shut down")
	return err
}

func (l *Library) ready() error {
	if stage(l.stage.Load()) != stageReady {
		return ErrNotInitialized
	}
	return nil
}

// Ready reports whether the Library is between Init and Deinit.
func (l *Library) Ready() bool {
	return l.ready() == nil
}

// CorpusInfo describes one registered corpus.
type CorpusInfo struct {
	ID    corpus.ID `json:"id"`
	Name  string    `json:"name"`
	Words int       `json:"words,omitempty"` // 0 for generated corpora
}

// Corpora lists the registered corpora in id order.
func (l *Library) Corpora() ([]CorpusInfo, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	out := make([]CorpusInfo, 0, l.registry.Len())
	for _, id := range l.registry.IDs() {
		info := CorpusInfo{ID: id, Name: id.String()}
		src, _ := l.registry.Lookup(id)
		if wl, ok := src.(*corpus.WordList); ok {
			info.Words = wl.Len()
		}
		out = append(out, info)
	}
	return out, nil
}

// Store returns the Markov store the models were loaded from, for
// inspection and maintenance. Changes reach the compiled chains only at
// the next Init.
func (l *Library) Store() (*markov.Store, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.models.word, nil
}
