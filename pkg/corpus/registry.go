package corpus

import (
	"errors"
	"fmt"
	"strconv"
)

// ID selects one registered source.
type ID uint8

// Ids of the sources registered by the word engine. The numbering is part
// of the external interface and must not change.
const (
	// WordsAlpha picks from a list of plain alphabetic words.
	WordsAlpha ID = iota
	// WordsNonAlpha picks from words that may contain digits or punctuation,
	// e.g. "tick-tock".
	WordsNonAlpha
	// Sentence produces sentence shaped runs of words.
	Sentence
	// CharMarkov synthesizes words character by character.
	CharMarkov
	// WordMarkov walks a word level Markov chain.
	WordMarkov
)

var idNames = [...]string{
	WordsAlpha:    "words_alpha",
	WordsNonAlpha: "words_nonalpha",
	Sentence:      "sentence",
	CharMarkov:    "markov_char",
	WordMarkov:    "markov_word",
}

// String returns the name of a known id, or its number.
func (id ID) String() string {
	if int(id) < len(idNames) {
		return idNames[id]
	}
	return "corpus(" + strconv.Itoa(int(id)) + ")"
}

// ErrUnknownID is returned when looking up an id that was not registered.
var ErrUnknownID = errors.New("corpus: unknown corpus id")

// Source is anything the N-word sampler can draw words from.
type Source interface {
	// Sampler returns the sampler to use for one run of words. Stateless
	// sources may return themselves.
	Sampler() Sampler
}

// Sampler turns one draw into one word.
type Sampler interface {
	// AppendWord appends a single non-empty word without whitespace to dst.
	AppendWord(dst []byte, draw uint32) []byte
}

// Registry is a fixed, densely numbered set of sources. It is immutable
// after construction and safe for concurrent use.
type Registry struct {
	sources []Source
}

// NewRegistry builds a registry. Ids must be dense, starting at zero.
func NewRegistry(sources map[ID]Source) (*Registry, error) {
	if len(sources) == 0 {
		return nil, errors.New("corpus: registry needs at least one source")
	}
	list := make([]Source, len(sources))
	for id, src := range sources {
		if int(id) >= len(list) {
			return nil, fmt.Errorf("corpus: ids must be dense from 0, got %s with %d sources", id, len(sources))
		}
		if src == nil {
			return nil, fmt.Errorf("corpus: nil source for %s", id)
		}
		list[id] = src
	}
	return &Registry{sources: list}, nil
}

// Lookup returns the source registered under id.
func (r *Registry) Lookup(id ID) (Source, error) {
	if int(id) >= len(r.sources) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrUnknownID, id, len(r.sources))
	}
	return r.sources[id], nil
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	return len(r.sources)
}

// IDs returns the registered ids in order.
func (r *Registry) IDs() []ID {
	ids := make([]ID, len(r.sources))
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}
