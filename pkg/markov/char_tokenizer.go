package markov

import (
	"bufio"
	"io"
	"unicode"
)

// CharTokenizer turns every rune of the input into its own token, so a model
// trained with it synthesizes words letter by letter. Whitespace ends the
// current word and is reported as an EOC token. Generated tokens are joined
// with nothing in between and nothing after.
type CharTokenizer struct {
	lower  bool
	filter func(rune) bool
}

// CharOption configures a CharTokenizer.
type CharOption func(*CharTokenizer)

// WithLowercase folds every rune to lower case before it becomes a token.
func WithLowercase(lower bool) CharOption {
	return func(t *CharTokenizer) {
		t.lower = lower
	}
}

// WithRuneFilter sets which non-space runes are kept. Rejected runes are
// dropped without ending the word. Default: letters, apostrophes and hyphens.
func WithRuneFilter(keep func(rune) bool) CharOption {
	return func(t *CharTokenizer) {
		t.filter = keep
	}
}

// NewCharTokenizer creates a CharTokenizer.
func NewCharTokenizer(opts ...CharOption) *CharTokenizer {
	t := &CharTokenizer{
		filter: func(r rune) bool {
			return unicode.IsLetter(r) || r == '\'' || r == '-'
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *CharTokenizer) Separator(_, _ string) string { return "" }

func (t *CharTokenizer) EOC(_ string) string { return "" }

// NewStream Returns the stream processor.
func (t *CharTokenizer) NewStream(r io.Reader) StreamTokenizer {
	return &charStream{reader: bufio.NewReader(r), tok: t}
}

type charStream struct {
	reader *bufio.Reader
	tok    *CharTokenizer
	// inWord is set once a rune of the current word has been emitted, so a
	// run of whitespace yields a single EOC.
	inWord bool
}

func (s *charStream) Next() (*Token, error) {
	for {
		r, _, err := s.reader.ReadRune()
		if err != nil {
			if err == io.EOF && s.inWord {
				s.inWord = false
				return &Token{Text: EOCTokenText, EOC: true}, nil
			}
			return nil, err
		}
		if unicode.IsSpace(r) {
			if s.inWord {
				s.inWord = false
				return &Token{Text: EOCTokenText, EOC: true}, nil
			}
			continue
		}
		if !s.tok.filter(r) {
			continue
		}
		if s.tok.lower {
			r = unicode.ToLower(r)
		}
		s.inWord = true
		return &Token{Text: string(r)}, nil
	}
}
