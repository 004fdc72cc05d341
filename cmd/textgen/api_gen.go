package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/CTAG07/typegen/pkg/corpus"
	"github.com/CTAG07/typegen/pkg/prng"
	"github.com/CTAG07/typegen/pkg/textgen"
)

// rerollState in the state header asks for a fresh random state.
const rerollState = math.MaxUint32

// maxGenCount is the largest count header /gen accepts. GenN takes at most
// math.MaxUint16 words, so a count of 1<<16 yields one word fewer.
const maxGenCount = 1 << 16

// GenAPI holds the dependencies for the public generation handlers.
type GenAPI struct {
	lib      *textgen.Library
	maxWords int
	logger   *slog.Logger

	// The Markov cursor is shared by every request.
	markovMu sync.Mutex
}

// NewGenAPI creates a new instance of the GenAPI.
func NewGenAPI(lib *textgen.Library, maxWords int, logger *slog.Logger) *GenAPI {
	return &GenAPI{
		lib:      lib,
		maxWords: maxWords,
		logger:   logger,
	}
}

// RegisterRoutes sets up the routing for the public endpoints.
func (g *GenAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/gen", g.handleGen)
	mux.HandleFunc("/api/markov/words", g.handleMarkovWords)
	mux.HandleFunc("/api/markov/roll", g.handleMarkovRoll)
	mux.HandleFunc("/api/corpora", g.handleCorpora)
}

func headerUint(r *http.Request, name string, bits int) (uint64, error) {
	raw := r.Header.Get(name)
	if raw == "" {
		return 0, fmt.Errorf("missing '%s' header", name)
	}
	v, err := strconv.ParseUint(raw, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid '%s' header: must be an unsigned %d-bit integer", name, bits)
	}
	return v, nil
}

// handleGen answers GET /gen. The request carries the corpus id, word count
// and generator state in headers; the body of the response is the new state
// on the first line followed by the words.
func (g *GenAPI) handleGen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id, err := headerUint(r, "id", 8)
	if err == nil {
		var count, state uint64
		if count, err = headerUint(r, "count", 32); err == nil && count > maxGenCount {
			err = fmt.Errorf("invalid 'count' header: must be at most %d", maxGenCount)
		}
		if err == nil {
			if state, err = headerUint(r, "state", 32); err == nil {
				g.gen(w, corpus.ID(id), uint16(min(count, math.MaxUint16)), uint32(state))
				return
			}
		}
	}
	rejectedRequests.WithLabelValues("bad_header").Inc()
	respondWithError(w, http.StatusBadRequest, err.Error())
}

func (g *GenAPI) gen(w http.ResponseWriter, id corpus.ID, count uint16, seed uint32) {
	if seed == rerollState {
		fresh, err := prng.NewSeed(nil)
		if err != nil {
			g.logger.Error("Failed to draw a fresh state", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to draw a fresh state")
			return
		}
		seed = uint32(fresh)
	}

	start := time.Now()
	state := prng.State(seed)
	s, err := g.lib.GenN(&state, count, id)
	if err != nil {
		if errors.Is(err, corpus.ErrUnknownID) {
			rejectedRequests.WithLabelValues("unknown_corpus").Inc()
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		g.logger.Error("Failed to generate words", "corpus", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Generation failed: %v", err))
		return
	}
	defer func() {
		if err := g.lib.FreeString(s); err != nil {
			g.logger.Error("Failed to free generated text", "error", err)
		}
	}()

	generateDuration.WithLabelValues(id.String()).Observe(time.Since(start).Seconds())
	generatedWords.WithLabelValues(id.String()).Add(float64(count))
	g.logger.Debug("Generated words", "corpus", id, "count", count, "state", uint32(state))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "%d\n", uint32(state))
	_, _ = w.Write(s.Bytes())
}

// handleMarkovWords returns ?count words from the Markov cursor, re-rolling
// it first when ?reroll is true.
func (g *GenAPI) handleMarkovWords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	count := 1
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > g.maxWords {
			rejectedRequests.WithLabelValues("bad_count").Inc()
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("count must be between 0 and %d", g.maxWords))
			return
		}
		count = n
	}
	reroll := false
	if raw := r.URL.Query().Get("reroll"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "reroll must be a boolean")
			return
		}
		reroll = b
	}

	start := time.Now()
	g.markovMu.Lock()
	words, err := g.lib.GenWordsMarkov(count, reroll)
	g.markovMu.Unlock()
	if err != nil {
		g.logger.Error("Failed to generate markov words", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Generation failed: %v", err))
		return
	}

	if reroll {
		markovRerolls.Inc()
	}
	generateDuration.WithLabelValues("markov").Observe(time.Since(start).Seconds())
	generatedWords.WithLabelValues("markov").Add(float64(count))
	respondWithJSON(w, http.StatusOK, words)
}

// handleMarkovRoll re-seeds the Markov cursor.
func (g *GenAPI) handleMarkovRoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	g.markovMu.Lock()
	err := g.lib.RollWordMarkov()
	g.markovMu.Unlock()
	if err != nil {
		g.logger.Error("Failed to re-roll markov cursor", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Re-roll failed: %v", err))
		return
	}
	markovRerolls.Inc()
	w.WriteHeader(http.StatusNoContent)
}

// handleCorpora lists the registered corpus ids.
func (g *GenAPI) handleCorpora(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	infos, err := g.lib.Corpora()
	if err != nil {
		g.logger.Error("Failed to list corpora", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list corpora: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, infos)
}
