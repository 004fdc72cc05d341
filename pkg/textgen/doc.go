/*
Package textgen is the word engine: a Library handle that owns the corpora
and Markov chains between Init and Deinit and hands out generated text as
Strings that the caller frees exactly once.

Two generators share the Library. GenN is driven entirely by a
caller-owned prng.State and is reproducible. GenWordMarkov draws from a
cursor inside the Library that only RollWordMarkov can re-seed.

	lib := textgen.New()
	if err := lib.Init(ctx); err != nil {
		return err
	}
	defer lib.Deinit()

	state := prng.State(42)
	s, err := lib.GenN(&state, 3, corpus.WordsAlpha)
	if err != nil {
		return err
	}
	fmt.Println(s.String())
	_ = lib.FreeString(s)
*/
package textgen
