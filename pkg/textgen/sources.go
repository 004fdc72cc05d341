package textgen

import (
	"unicode"
	"unicode/utf8"

	"github.com/CTAG07/typegen/pkg/corpus"
	"github.com/CTAG07/typegen/pkg/markov"
	"github.com/CTAG07/typegen/pkg/prng"
)

// The Markov backed corpora turn each caller draw into the seed of a short
// lived SplitMix, so a word may take any number of chain steps while the
// caller's state still advances exactly once per word.

func walker(draw uint32) *prng.SplitMix {
	return prng.NewSplitMix(uint64(draw))
}

// charWordSource synthesizes every word from scratch with the character
// chain. It needs no state between words.
type charWordSource struct {
	chain *markov.Chain
	opts  []markov.GenerateOption
}

func (s *charWordSource) Sampler() corpus.Sampler { return s }

func (s *charWordSource) AppendWord(dst []byte, draw uint32) []byte {
	return append(dst, s.chain.Generate(walker(draw), s.opts...)...)
}

// wordChainSource walks the word chain across word boundaries, skipping the
// ends of sentences.
type wordChainSource struct {
	chain *markov.Chain
	opts  []markov.GenerateOption
}

func (s *wordChainSource) Sampler() corpus.Sampler {
	return &wordChainSampler{cur: s.chain.NewCursor(s.opts...)}
}

type wordChainSampler struct {
	cur *markov.Cursor
}

func (s *wordChainSampler) AppendWord(dst []byte, draw uint32) []byte {
	rng := walker(draw)
	word, ok := s.cur.Next(rng)
	if !ok {
		// The cursor is back at the start, which always yields a word.
		word, _ = s.cur.Next(rng)
	}
	return append(dst, word...)
}

// sentenceSource strings words from the word chain into sentences: the
// first word of a sentence is capitalized and the last carries the end
// mark. Whether a word is the last one is only known after drawing the next
// token, so that token is kept for the following word.
type sentenceSource struct {
	chain *markov.Chain
	opts  []markov.GenerateOption
}

func (s *sentenceSource) Sampler() corpus.Sampler {
	return &sentenceSampler{chain: s.chain, cur: s.chain.NewCursor(s.opts...)}
}

type sentenceSampler struct {
	chain   *markov.Chain
	cur     *markov.Cursor
	pending string
}

func (s *sentenceSampler) AppendWord(dst []byte, draw uint32) []byte {
	rng := walker(draw)

	word := s.pending
	first := word == ""
	if first {
		word, _ = s.cur.Next(rng)
	}

	var ok bool
	s.pending, ok = s.cur.Next(rng)

	if first {
		dst = appendCapitalized(dst, word)
	} else {
		dst = append(dst, word...)
	}
	if !ok {
		dst = append(dst, s.chain.EOC(word)...)
	}
	return dst
}

func appendCapitalized(dst []byte, word string) []byte {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return append(dst, word...)
	}
	dst = utf8.AppendRune(dst, unicode.ToUpper(r))
	return append(dst, word[size:]...)
}
