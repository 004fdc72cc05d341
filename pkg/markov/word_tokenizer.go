package markov

import (
	"bufio"
	"io"
	"regexp"
)

// WordTokenizer splits text into words and punctuation using regular
// expressions, and treats sentence-ending punctuation as End-Of-Chain (EOC)
// tokens. Its behavior can be customized with functional options.
type WordTokenizer struct {
	separator         string
	eoc               string
	separatorRegex    *regexp.Regexp
	eocRegex          *regexp.Regexp
	separatorExcRegex *regexp.Regexp
	eocExcRegex       *regexp.Regexp
}

// Option Is a function that configures a WordTokenizer.
type Option func(*WordTokenizer)

// WithSeparator Sets the string used for joining tokens during generation.
// Default: " "
func WithSeparator(sep string) Option {
	return func(t *WordTokenizer) {
		t.separator = sep
	}
}

// WithEOC Sets the string to use in final output for an EOC token.
// Default: "."
func WithEOC(eoc string) Option {
	return func(t *WordTokenizer) {
		t.eoc = eoc
	}
}

// WithSeparatorRegex sets the regex used to find tokens in input text.
// Default: `[\w'-]+|[.,!?;]`
func WithSeparatorRegex(splitRegex string) Option {
	return func(t *WordTokenizer) {
		t.separatorRegex = regexp.MustCompile(splitRegex)
	}
}

// WithEOCRegex sets the regex deciding whether a token is an EOC token.
// Default: `^[.!?]$`
func WithEOCRegex(eocRegex string) Option {
	return func(t *WordTokenizer) {
		t.eocRegex = regexp.MustCompile(eocRegex)
	}
}

// WithSeparatorExcRegex sets the regex matching tokens that get no separator before them.
func WithSeparatorExcRegex(splitExcRegex string) Option {
	return func(t *WordTokenizer) {
		t.separatorExcRegex = regexp.MustCompile(splitExcRegex)
	}
}

// WithEOCExcRegex sets the regex matching last tokens that get no EOC string after them.
func WithEOCExcRegex(eocRegex string) Option {
	return func(t *WordTokenizer) {
		t.eocExcRegex = regexp.MustCompile(eocRegex)
	}
}

// NewWordTokenizer creates a new tokenizer with default settings, which can be
// overridden by providing one or more Option functions.
func NewWordTokenizer(opts ...Option) *WordTokenizer {
	t := &WordTokenizer{
		separator: " ",
		eoc:       ".",
		// Runs of word characters, apostrophes and hyphens, or single
		// punctuation marks.
		separatorRegex:    regexp.MustCompile(`[\w'-]+|[.,!?;]`),
		eocRegex:          regexp.MustCompile(`^[.!?]$`),
		separatorExcRegex: regexp.MustCompile(`^[.,!?;]`),
		eocExcRegex:       regexp.MustCompile(`^[.,!?;]`),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Separator Returns the configured separator string.
func (t *WordTokenizer) Separator(_, next string) string {
	if t.separatorExcRegex.MatchString(next) {
		return ""
	}
	return t.separator
}

// EOC Returns the configured end-of-chain replacement string.
func (t *WordTokenizer) EOC(last string) string {
	if t.eocExcRegex.MatchString(last) {
		return ""
	}
	return t.eoc
}

// NewStream Returns the stream processor.
func (t *WordTokenizer) NewStream(r io.Reader) StreamTokenizer {
	return &wordStream{
		scanner:    bufio.NewScanner(r),
		splitRegex: t.separatorRegex,
		eocRegex:   t.eocRegex,
	}
}

type wordStream struct {
	scanner    *bufio.Scanner
	buffer     []string
	splitRegex *regexp.Regexp
	eocRegex   *regexp.Regexp
}

// Next returns the next token, or io.EOF once the stream is exhausted.
func (s *wordStream) Next() (*Token, error) {
	for len(s.buffer) == 0 {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		s.buffer = s.splitRegex.FindAllString(s.scanner.Text(), -1)
	}

	word := s.buffer[0]
	s.buffer = s.buffer[1:]

	return &Token{Text: word, EOC: s.eocRegex.MatchString(word)}, nil
}
