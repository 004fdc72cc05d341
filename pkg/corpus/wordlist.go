package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/CTAG07/typegen/pkg/prng"
)

// ErrEmptyCorpus is returned when a word list would contain no words.
var ErrEmptyCorpus = errors.New("corpus: word list is empty")

// WordList is an immutable, ordered list of words. The words are packed
// into a single buffer and addressed through an offsets index, so picking
// a word is O(1) and a list costs two allocations regardless of its size.
// A WordList is safe for concurrent use.
type WordList struct {
	data    []byte
	offsets []uint32 // len(offsets) == Len()+1
	index   map[string]int
}

// NewWordList builds a WordList from words. Each entry is split on
// whitespace, so an entry never yields a word containing a space, and blank
// entries are dropped. It returns ErrEmptyCorpus if nothing remains.
func NewWordList(words []string) (*WordList, error) {
	var fields []string
	size := 0
	for _, w := range words {
		for _, f := range strings.Fields(w) {
			fields = append(fields, f)
			size += len(f)
		}
	}
	if len(fields) == 0 {
		return nil, ErrEmptyCorpus
	}

	wl := &WordList{
		data:    make([]byte, 0, size),
		offsets: make([]uint32, 1, len(fields)+1),
		index:   make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		wl.data = append(wl.data, f...)
		wl.offsets = append(wl.offsets, uint32(len(wl.data)))
		if _, ok := wl.index[f]; !ok {
			wl.index[f] = i
		}
	}
	return wl, nil
}

// ReadWordList reads whitespace separated words from r.
func ReadWordList(r io.Reader) (*WordList, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	var words []string
	for scanner.Scan() {
		words = append(words, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read word list: %w", err)
	}
	return NewWordList(words)
}

// LoadWordListFile reads a word list from the file at path.
func LoadWordListFile(path string) (*WordList, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	wl, err := ReadWordList(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wl, nil
}

// Len returns the number of words in the list.
func (w *WordList) Len() int {
	return len(w.offsets) - 1
}

// Word returns the i-th word.
func (w *WordList) Word(i int) string {
	return string(w.word(i))
}

func (w *WordList) word(i int) []byte {
	return w.data[w.offsets[i]:w.offsets[i+1]]
}

// Words returns a copy of every word in order.
func (w *WordList) Words() []string {
	out := make([]string, w.Len())
	for i := range out {
		out[i] = w.Word(i)
	}
	return out
}

// Contains reports whether word is in the list.
func (w *WordList) Contains(word string) bool {
	_, ok := w.index[word]
	return ok
}

// Sampler returns the list itself; picking from a word list needs no
// per-call state.
func (w *WordList) Sampler() Sampler {
	return w
}

// AppendWord appends the word selected by draw to dst.
func (w *WordList) AppendWord(dst []byte, draw uint32) []byte {
	return append(dst, w.word(prng.Scale(draw, w.Len()))...)
}
