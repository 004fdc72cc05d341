package textgen

import (
	"fmt"
	"log/slog"

	"github.com/CTAG07/typegen/pkg/corpus"
	"github.com/CTAG07/typegen/pkg/prng"
)

// GenN draws n words from corpus id and joins them with single spaces. The
// caller's state advances exactly once per word, so equal (state, n, id)
// inputs always give equal text and an equal resulting state. n = 0 gives
// an empty String. An unknown id returns an error wrapping
// corpus.ErrUnknownID and leaves state untouched.
func (l *Library) GenN(state *prng.State, n uint16, id corpus.ID) (*String, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrNilState
	}
	src, err := l.registry.Lookup(id)
	if err != nil {
		return nil, err
	}

	sampler := src.Sampler()
	buf := getBuf()
	for i := 0; i < int(n); i++ {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = sampler.AppendWord(buf, state.Step())
	}
	return l.newString(buf)
}

// GenWordMarkov synthesizes one complete word from the character chain,
// advancing the Library's Markov cursor. The word is never empty and has
// at most Config.MaxWordLength runes.
func (l *Library) GenWordMarkov() (*String, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	word := l.charChain.Generate(l.cursor, l.charOpts...)
	return l.newString(append(getBuf(), word...))
}

// RollWordMarkov re-seeds the Markov cursor from the entropy source. The
// trained chains are not touched.
func (l *Library) RollWordMarkov() error {
	if err := l.ready(); err != nil {
		return err
	}
	seed, err := prng.NewSeed(l.entropy)
	if err != nil {
		return fmt.Errorf("could not re-roll markov cursor: %w", err)
	}
	l.cursor.Reseed(seed)
	l.logger.Debug("Markov cursor re-rolled")
	return nil
}

// GenWordsMarkov returns n words from GenWordMarkov's sequence as plain Go
// strings, re-rolling the cursor first when reroll is set.
func (l *Library) GenWordsMarkov(n int, reroll bool) ([]string, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("textgen: negative word count %d", n)
	}
	if reroll {
		if err := l.RollWordMarkov(); err != nil {
			return nil, err
		}
	}
	words := make([]string, n)
	for i := range words {
		words[i] = l.charChain.Generate(l.cursor, l.charOpts...)
	}
	l.logger.Debug("Markov words generated",
		slog.Int("count", n),
		slog.Bool("reroll", reroll),
	)
	return words, nil
}
