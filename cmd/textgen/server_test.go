package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CTAG07/typegen/pkg/markov"
	"github.com/CTAG07/typegen/pkg/prng"
	"github.com/CTAG07/typegen/pkg/textgen"
)

func newTestServer(t *testing.T) (*Server, chan string) {
	t.Helper()
	return newAuthTestServer(t, nil)
}

func newAuthTestServer(t *testing.T, authDB *sql.DB) (*Server, chan string) {
	t.Helper()
	config := DefaultConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	lib := textgen.New(
		textgen.WithConfig(*config.Engine),
		textgen.WithLogger(logger),
		textgen.WithEntropy(prng.NewSplitMix(1)),
	)
	require.NoError(t, lib.Init(context.Background()))
	t.Cleanup(func() {
		_ = lib.Deinit()
	})

	actionChan := make(chan string, 1)
	server, err := NewServer(config, logger, lib, authDB, actionChan)
	require.NoError(t, err)
	return server, actionChan
}

func doRequest(t *testing.T, mux *http.ServeMux, method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func genHeaders(id, count, state string) map[string]string {
	return map[string]string{"id": id, "count": count, "state": state}
}

func TestHandleGen(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server.publicMux, http.MethodGet, "/gen", nil, genHeaders("0", "5", "42"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))

	stateLine, text, ok := strings.Cut(rr.Body.String(), "\n")
	require.True(t, ok)
	require.Len(t, strings.Fields(text), 5)

	want := prng.State(42)
	for i := 0; i < 5; i++ {
		want.Step()
	}
	require.Equal(t, strconv.FormatUint(uint64(want), 10), stateLine)

	// Same request, same answer.
	again := doRequest(t, server.publicMux, http.MethodGet, "/gen", nil, genHeaders("0", "5", "42"))
	require.Equal(t, rr.Body.String(), again.Body.String())

	// Feeding the state back continues the sequence.
	next := doRequest(t, server.publicMux, http.MethodGet, "/gen", nil, genHeaders("0", "5", stateLine))
	require.Equal(t, http.StatusOK, next.Code)
	whole := doRequest(t, server.publicMux, http.MethodGet, "/gen", nil, genHeaders("0", "10", "42"))
	_, nextText, _ := strings.Cut(next.Body.String(), "\n")
	_, wholeText, _ := strings.Cut(whole.Body.String(), "\n")
	require.Equal(t, wholeText, text+" "+nextText)

	require.Zero(t, server.lib.Outstanding())
}

func TestHandleGenFullCount(t *testing.T) {
	server, _ := newTestServer(t)

	// 1<<16 is the largest count a client may ask for; it is served as the
	// most words a single String can carry.
	rr := doRequest(t, server.publicMux, http.MethodGet, "/gen", nil, genHeaders("0", "65536", "42"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	stateLine, text, ok := strings.Cut(rr.Body.String(), "\n")
	require.True(t, ok)
	require.Len(t, strings.Fields(text), math.MaxUint16)

	capped := doRequest(t, server.publicMux, http.MethodGet, "/gen", nil, genHeaders("0", "65535", "42"))
	require.Equal(t, rr.Body.String(), capped.Body.String())

	_, err := strconv.ParseUint(stateLine, 10, 32)
	require.NoError(t, err)
	require.Zero(t, server.lib.Outstanding())
}

func TestHandleGenReroll(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server.publicMux, http.MethodGet, "/gen", nil, genHeaders("1", "3", "4294967295"))
	require.Equal(t, http.StatusOK, rr.Code)
	stateLine, text, _ := strings.Cut(rr.Body.String(), "\n")
	_, err := strconv.ParseUint(stateLine, 10, 32)
	require.NoError(t, err)
	require.Len(t, strings.Fields(text), 3)
}

func TestHandleGenBadRequests(t *testing.T) {
	server, _ := newTestServer(t)

	testCases := []struct {
		name    string
		method  string
		headers map[string]string
		code    int
	}{
		{"missing id", http.MethodGet, map[string]string{"count": "1", "state": "1"}, http.StatusBadRequest},
		{"missing count", http.MethodGet, map[string]string{"id": "0", "state": "1"}, http.StatusBadRequest},
		{"missing state", http.MethodGet, map[string]string{"id": "0", "count": "1"}, http.StatusBadRequest},
		{"count too large", http.MethodGet, genHeaders("0", "65537", "1"), http.StatusBadRequest},
		{"negative state", http.MethodGet, genHeaders("0", "1", "-1"), http.StatusBadRequest},
		{"id too large", http.MethodGet, genHeaders("256", "1", "1"), http.StatusBadRequest},
		{"unknown id", http.MethodGet, genHeaders("9", "1", "1"), http.StatusBadRequest},
		{"wrong method", http.MethodPost, genHeaders("0", "1", "1"), http.StatusMethodNotAllowed},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, server.publicMux, tc.method, "/gen", nil, tc.headers)
			require.Equal(t, tc.code, rr.Code, rr.Body.String())
			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.NotEmpty(t, body["error"])
		})
	}
	require.Zero(t, server.lib.Outstanding())
}

func TestHandleMarkovWords(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server.publicMux, http.MethodGet, "/api/markov/words?count=7", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var words []string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &words))
	require.Len(t, words, 7)
	for _, w := range words {
		require.NotEmpty(t, w)
	}

	rr = doRequest(t, server.publicMux, http.MethodGet, "/api/markov/words?count=2&reroll=true", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	for _, target := range []string{
		"/api/markov/words?count=-1",
		"/api/markov/words?count=abc",
		"/api/markov/words?count=1001",
		"/api/markov/words?reroll=maybe",
	} {
		rr = doRequest(t, server.publicMux, http.MethodGet, target, nil, nil)
		require.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestHandleMarkovRoll(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server.publicMux, http.MethodPost, "/api/markov/roll", nil, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doRequest(t, server.publicMux, http.MethodGet, "/api/markov/roll", nil, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	require.Equal(t, "POST", rr.Header().Get("Allow"))
}

func TestHandleCorporaAndHealth(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server.publicMux, http.MethodGet, "/api/corpora", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var infos []textgen.CorpusInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &infos))
	require.Len(t, infos, 5)
	require.Equal(t, "words_alpha", infos[0].Name)

	for _, mux := range []*http.ServeMux{server.publicMux, server.adminMux} {
		rr = doRequest(t, mux, http.MethodGet, "/api/health", nil, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	}

	require.NoError(t, server.lib.Deinit())
	rr = doRequest(t, server.publicMux, http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	doRequest(t, server.publicMux, http.MethodGet, "/gen", nil, genHeaders("0", "3", "1"))
	rr := doRequest(t, server.publicMux, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "textgen_generated_words_total")
}

func TestMarkovAdminAPI(t *testing.T) {
	server, _ := newTestServer(t)
	engine := server.config.Engine

	rr := doRequest(t, server.adminMux, http.MethodGet, "/api/markov/models", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var models []markov.ModelInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &models))
	require.Len(t, models, 2)
	require.Equal(t, engine.WordModelName, models[0].Name)
	require.Equal(t, engine.CharModelName, models[1].Name)

	rr = doRequest(t, server.adminMux, http.MethodGet, "/api/markov/models/"+engine.WordModelName, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(t, server.adminMux, http.MethodGet, "/api/markov/models/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	// Export the word model, rename it and import it as a new model.
	rr = doRequest(t, server.adminMux, http.MethodGet, "/api/markov/models/"+engine.WordModelName+"/export", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var exported markov.ExportedModel
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &exported))
	require.Equal(t, engine.WordModelOrder, exported.Order)
	require.NotEmpty(t, exported.Chains)

	exported.Name = "copy"
	data, err := json.Marshal(exported)
	require.NoError(t, err)
	rr = doRequest(t, server.adminMux, http.MethodPost, "/api/markov/import", bytes.NewReader(data), nil)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	rr = doRequest(t, server.adminMux, http.MethodPost, "/api/markov/import", strings.NewReader("{"), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, server.adminMux, http.MethodGet, "/api/markov/stats", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var stats markov.DBStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.Len(t, stats.Models, 3)

	rr = doRequest(t, server.adminMux, http.MethodPost, "/api/markov/models/copy/prune", strings.NewReader(`{"minFreq": 1000000}`), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var pruned PruneResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pruned))
	require.Equal(t, int64(len(exported.Chains)), pruned.Removed)

	rr = doRequest(t, server.adminMux, http.MethodPost, "/api/markov/models/copy/unknown", nil, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(t, server.adminMux, http.MethodDelete, "/api/markov/models/copy", nil, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doRequest(t, server.adminMux, http.MethodPost, "/api/markov/vocabulary/prune", strings.NewReader(`{"minFreq": 1}`), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	// Maintenance never touches the running chains.
	rr = doRequest(t, server.publicMux, http.MethodGet, "/gen", nil, genHeaders("4", "3", "1"))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestServerControlAPI(t *testing.T) {
	server, actionChan := newTestServer(t)

	rr := doRequest(t, server.adminMux, http.MethodGet, "/api/server/version", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var info VersionInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	require.Equal(t, Version, info.Version)

	rr = doRequest(t, server.adminMux, http.MethodGet, "/api/server/config", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "engine_config")

	rr = doRequest(t, server.adminMux, http.MethodPost, "/api/server/restart", nil, nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, actionRestart, <-actionChan)

	rr = doRequest(t, server.adminMux, http.MethodPost, "/api/server/shutdown", nil, nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, actionShutdown, <-actionChan)

	// Admin routes are not reachable on the public listener.
	rr = doRequest(t, server.publicMux, http.MethodPost, "/api/server/shutdown", nil, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}
