package markov

import (
	"errors"
	"io"
	"strings"
	"testing"
	"unicode"
)

func collectTokens(t *testing.T, tokenizer Tokenizer, input string) []Token {
	t.Helper()
	stream := tokenizer.NewStream(strings.NewReader(input))
	var out []Token
	for {
		tok, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next() failed: %v", err)
		}
		out = append(out, *tok)
	}
}

func TestWordTokenizer(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Token
	}{
		{"simple sentence", "Hello world.", []Token{{"Hello", false}, {"world", false}, {".", true}}},
		{"hyphen and apostrophe", "tick-tock o'clock!", []Token{{"tick-tock", false}, {"o'clock", false}, {"!", true}}},
		{"comma is not eoc", "a, b?", []Token{{"a", false}, {",", false}, {"b", false}, {"?", true}}},
		{"multiple lines", "one\ntwo", []Token{{"one", false}, {"two", false}}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collectTokens(t, NewWordTokenizer(), tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token %d: got %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestWordTokenizerOptions(t *testing.T) {
	tok := NewWordTokenizer(
		WithSeparator("_"),
		WithEOC("!"),
		WithSeparatorRegex(`[a-z]+|;`),
		WithEOCRegex(`^;$`),
		WithSeparatorExcRegex(`^;`),
		WithEOCExcRegex(`^;`),
	)

	got := collectTokens(t, tok, "Ab cd; ef")
	want := []Token{{"b", false}, {"cd", false}, {";", true}, {"ef", false}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("token %d: got %+v, want %+v", i, got[i], want[i])
		}
	}

	if sep := tok.Separator("a", "b"); sep != "_" {
		t.Errorf("Separator() = %q", sep)
	}
	if sep := tok.Separator("a", ";"); sep != "" {
		t.Errorf("Separator() before excluded token = %q", sep)
	}
	if eoc := tok.EOC("word"); eoc != "!" {
		t.Errorf("EOC() = %q", eoc)
	}
	if eoc := tok.EOC(";"); eoc != "" {
		t.Errorf("EOC() after excluded token = %q", eoc)
	}
}

func TestCharTokenizer(t *testing.T) {
	eoc := Token{EOCTokenText, true}
	tests := []struct {
		name  string
		tok   *CharTokenizer
		input string
		want  []Token
	}{
		{"words", NewCharTokenizer(), "ab  c", []Token{{"a", false}, {"b", false}, eoc, {"c", false}, eoc}},
		{"filtered runes", NewCharTokenizer(), "a1b\t", []Token{{"a", false}, {"b", false}, eoc}},
		{"lowercase", NewCharTokenizer(WithLowercase(true)), "ÀB", []Token{{"à", false}, {"b", false}, eoc}},
		{"custom filter", NewCharTokenizer(WithRuneFilter(unicode.IsDigit)), "a1 2", []Token{{"1", false}, eoc, {"2", false}, eoc}},
		{"only spaces", NewCharTokenizer(), " \n ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collectTokens(t, tt.tok, tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token %d: got %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}

	tok := NewCharTokenizer()
	if tok.Separator("a", "b") != "" || tok.EOC("b") != "" {
		t.Error("char tokens join with nothing")
	}
}
