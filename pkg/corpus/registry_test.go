package corpus

import (
	"errors"
	"testing"
)

func TestRegistryLookup(t *testing.T) {
	a, _ := NewWordList([]string{"a"})
	b, _ := NewWordList([]string{"b"})
	r, err := NewRegistry(map[ID]Source{WordsAlpha: a, WordsNonAlpha: b})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	src, err := r.Lookup(WordsNonAlpha)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if src != Source(b) {
		t.Error("Lookup returned the wrong source")
	}

	for _, id := range []ID{2, 3, 255} {
		if _, err = r.Lookup(id); !errors.Is(err, ErrUnknownID) {
			t.Errorf("Lookup(%d) error = %v, want ErrUnknownID", id, err)
		}
	}
}

func TestRegistryRequiresDenseIDs(t *testing.T) {
	a, _ := NewWordList([]string{"a"})
	if _, err := NewRegistry(map[ID]Source{WordsAlpha: a, Sentence: a}); err == nil {
		t.Error("expected an error for a gap in ids")
	}
	if _, err := NewRegistry(nil); err == nil {
		t.Error("expected an error for an empty registry")
	}
	if _, err := NewRegistry(map[ID]Source{WordsAlpha: nil}); err == nil {
		t.Error("expected an error for a nil source")
	}
}

func TestIDString(t *testing.T) {
	if CharMarkov.String() != "markov_char" {
		t.Errorf("CharMarkov.String() = %q", CharMarkov.String())
	}
	if ID(200).String() != "corpus(200)" {
		t.Errorf("ID(200).String() = %q", ID(200).String())
	}
}
