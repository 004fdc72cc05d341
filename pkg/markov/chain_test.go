package markov

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/CTAG07/typegen/pkg/prng"
)

const colourCorpus = `the red fox runs. the blue fox sleeps. a green bird sings loudly.
the yellow sun rises! a red bird runs quickly. the green fox sings?`

func compileTestChain(t *testing.T, tokenizer Tokenizer, order int, data string) *Chain {
	t.Helper()
	_, s := setupTestStore(t, tokenizer)
	model := trainModel(t, s, "chain_test", order, data)
	chain, err := s.Compile(context.Background(), model)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return chain
}

func TestCompileEmptyModel(t *testing.T) {
	_, s := setupTestStore(t, nil)
	ctx := context.Background()
	model, _, err := s.EnsureModel(ctx, "untrained", 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = s.Compile(ctx, model); !errors.Is(err, ErrEmptyModel) {
		t.Errorf("expected ErrEmptyModel, got %v", err)
	}
}

func TestCompileDropsStartToEOC(t *testing.T) {
	_, s := setupTestStore(t, nil)
	ctx := context.Background()
	model := trainModel(t, s, "start_eoc", 1, "word.")
	if err := s.InsertToken(ctx, model, "0", EOCTokenID); err != nil {
		t.Fatalf("InsertToken failed: %v", err)
	}

	chain, err := s.Compile(ctx, model)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	for _, tok := range chain.next["0"].tokens {
		if tok.Id == EOCTokenID {
			t.Fatal("start transitions must not contain EOC")
		}
	}
	if got := chain.Generate(prng.NewSplitMix(1)); got != "word." {
		t.Errorf("Generate() = %q, want %q", got, "word.")
	}
}

func TestGenerateDeterministic(t *testing.T) {
	chain := compileTestChain(t, nil, 1, colourCorpus)

	for seed := uint64(0); seed < 20; seed++ {
		a := chain.Generate(prng.NewSplitMix(seed))
		b := chain.Generate(prng.NewSplitMix(seed))
		if a != b {
			t.Fatalf("seed %d: %q != %q", seed, a, b)
		}
	}
}

func TestGenerateVaries(t *testing.T) {
	chain := compileTestChain(t, nil, 1, colourCorpus)

	seen := make(map[string]struct{})
	for seed := uint64(0); seed < 50; seed++ {
		seen[chain.Generate(prng.NewSplitMix(seed))] = struct{}{}
	}
	if len(seen) < 2 {
		t.Errorf("expected varied output over 50 seeds, got %v", seen)
	}
}

func TestGenerateTerminates(t *testing.T) {
	// "a a a ..." forms a loop that only ends through the length limit.
	chain := compileTestChain(t, nil, 1, "a a a a a a a a.")

	for _, max := range []int{1, 5, 20} {
		out := chain.Generate(prng.NewSplitMix(3), WithMaxLength(max))
		words := strings.Fields(strings.TrimSuffix(out, "."))
		if len(words) == 0 || len(words) > max {
			t.Errorf("max %d: got %d words in %q", max, len(words), out)
		}
		if !strings.HasSuffix(out, ".") {
			t.Errorf("max %d: output %q does not end with EOC", max, out)
		}
	}
}

func TestGenerateTopKAndTemperature(t *testing.T) {
	// After "x", "y" is seen three times and "z" once.
	chain := compileTestChain(t, nil, 1, "x y. x y. x y. x z.")

	for seed := uint64(0); seed < 30; seed++ {
		if got := chain.Generate(prng.NewSplitMix(seed), WithTopK(1)); got != "x y." {
			t.Fatalf("top-1 seed %d: got %q", seed, got)
		}
		if got := chain.Generate(prng.NewSplitMix(seed), WithTemperature(0)); got != "x y." {
			t.Fatalf("temperature 0 seed %d: got %q", seed, got)
		}
	}

	counts := map[string]int{}
	for seed := uint64(0); seed < 400; seed++ {
		counts[chain.Generate(prng.NewSplitMix(seed), WithTemperature(3))]++
	}
	if counts["x z."] == 0 || counts["x y."] == 0 {
		t.Errorf("high temperature should still reach both endings, got %v", counts)
	}
}

func TestGenerateCharWords(t *testing.T) {
	chain := compileTestChain(t, NewCharTokenizer(WithLowercase(true)), 2,
		"Apple apricot banana bandana cabana canal panama pajama")

	for seed := uint64(0); seed < 100; seed++ {
		word := chain.Generate(prng.NewSplitMix(seed), WithMaxLength(12))
		n := utf8.RuneCountInString(word)
		if n == 0 || n > 12 {
			t.Fatalf("seed %d: bad word %q", seed, word)
		}
		if strings.ContainsAny(word, " \t\n") || word != strings.ToLower(word) {
			t.Fatalf("seed %d: word %q is not a single lowercase word", seed, word)
		}
	}
}

func TestCursor(t *testing.T) {
	chain := compileTestChain(t, nil, 2, "one two three.")
	cur := chain.NewCursor()

	if !cur.AtStart() {
		t.Fatal("new cursor should be at the start")
	}
	rng := prng.NewSplitMix(9)
	for round := 0; round < 3; round++ {
		var words []string
		for {
			w, ok := cur.Next(rng)
			if !ok {
				break
			}
			words = append(words, w)
		}
		if got := strings.Join(words, " "); got != "one two three" {
			t.Fatalf("round %d: got %q", round, got)
		}
		if !cur.AtStart() {
			t.Fatal("cursor should restart after EOC")
		}
	}

	cur.Next(rng)
	if cur.AtStart() {
		t.Fatal("cursor moved but still reports the start")
	}
	if got := cur.String(); got != "<SOC> one" {
		t.Errorf("String() = %q", got)
	}
	cur.Reset()
	if !cur.AtStart() {
		t.Error("Reset() should return to the start")
	}
}

func TestChainConcurrentWalks(t *testing.T) {
	chain := compileTestChain(t, nil, 1, colourCorpus)
	want := make([]string, 8)
	for i := range want {
		want[i] = chain.Generate(prng.NewSplitMix(uint64(i)), WithTopK(2))
	}

	var wg sync.WaitGroup
	for i := range want {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if got := chain.Generate(prng.NewSplitMix(uint64(i)), WithTopK(2)); got != want[i] {
					t.Errorf("walker %d: %q != %q", i, got, want[i])
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestChooseNextTokenKeepsChoicesIntact(t *testing.T) {
	choices := []ChainToken{{Id: 2, Freq: 1}, {Id: 3, Freq: 5}, {Id: 4, Freq: 2}}
	opts := defaultGenerateOptions()
	opts.topK = 2

	got := chooseNextToken(choices, 8, &opts, &fixedRand{vals: []int{0}})
	if got != 3 {
		t.Errorf("expected the most frequent token first, got %d", got)
	}
	if choices[0].Id != 2 || choices[1].Id != 3 || choices[2].Id != 4 {
		t.Errorf("choices were reordered: %+v", choices)
	}
}

func BenchmarkGenerate(b *testing.B) {
	_, s := setupTestStore(b, nil)
	model := trainModel(b, s, "bench_generate", 2, createBenchmarkCorpus())
	chain, err := s.Compile(context.Background(), model)
	if err != nil {
		b.Fatalf("Compile failed: %v", err)
	}
	rng := prng.NewSplitMix(1)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = chain.Generate(rng, WithMaxLength(50))
	}
}
