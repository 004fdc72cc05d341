package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/CTAG07/typegen/pkg/markov"
)

// MarkovAPI holds the dependencies for the Markov model maintenance handlers.
// Changes made here reach the running engine at the next restart.
type MarkovAPI struct {
	store  *markov.Store
	logger *slog.Logger
}

// NewMarkovAPI creates a new instance of the MarkovAPI.
func NewMarkovAPI(store *markov.Store, logger *slog.Logger) *MarkovAPI {
	return &MarkovAPI{
		store:  store,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/markov maintenance endpoints.
func (m *MarkovAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/markov/models", requireScope(scopeMarkovRead, m.handleListModels))
	mux.HandleFunc("/api/markov/models/", m.handleModelByName)
	mux.HandleFunc("/api/markov/import", requireScope(scopeMarkovWrite, m.handleImport))
	mux.HandleFunc("/api/markov/vocabulary/prune", requireScope(scopeMarkovWrite, m.handleVocabPrune))
	mux.HandleFunc("/api/markov/stats", requireScope(scopeMarkovRead, m.handleStats))
}

type PruneRequest struct {
	MinFreq int `json:"minFreq"`
}

type PruneResponse struct {
	Removed int64 `json:"removed"`
}

// handleListModels lists the stored models ordered by id.
func (m *MarkovAPI) handleListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	models, err := m.store.GetModelInfos(r.Context())
	if err != nil {
		m.logger.Error("Failed to get model infos", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve models: %v", err))
		return
	}
	modelList := make([]markov.ModelInfo, 0, len(models))
	for _, model := range models {
		modelList = append(modelList, model)
	}
	sort.Slice(modelList, func(i, j int) bool { return modelList[i].Id < modelList[j].Id })
	respondWithJSON(w, http.StatusOK, modelList)
}

// handleModelByName routes actions for a specific model: export, prune and delete.
func (m *MarkovAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {
	scope := scopeMarkovWrite
	if r.Method == http.MethodGet {
		scope = scopeMarkovRead
	}
	if !hasScope(r, scope) {
		respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scope))
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/markov/models/")
	parts := strings.Split(path, "/")
	modelName := parts[0]

	if modelName == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	model, err := m.store.GetModelInfo(r.Context(), modelName)
	if err != nil {
		if errors.Is(err, markov.ErrModelNotFound) {
			respondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		m.logger.Error("Failed to get model info by name", "name", modelName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			respondWithJSON(w, http.StatusOK, model)
		case http.MethodDelete:
			if err = m.store.RemoveModel(r.Context(), model); err != nil {
				m.logger.Error("Failed to remove model", "name", modelName, "error", err)
				respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to remove model: %v", err))
				return
			}
			m.logger.Info("Model removed", "name", modelName)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	switch parts[1] {
	case "prune":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		var req PruneRequest
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		removed, err := m.store.PruneModel(r.Context(), model, req.MinFreq)
		if err != nil {
			m.logger.Error("Failed to prune model", "name", modelName, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Pruning failed: %v", err))
			return
		}
		respondWithJSON(w, http.StatusOK, PruneResponse{Removed: removed})

	case "export":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.json\"", modelName))
		if err = m.store.ExportModel(r.Context(), model, w); err != nil {
			m.logger.Error("Failed to export model", "name", modelName, "error", err)
		}

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// handleImport imports a model from an uploaded JSON export.
func (m *MarkovAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := m.store.ImportModel(r.Context(), r.Body); err != nil {
		m.logger.Error("Failed to import model", "error", err)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleVocabPrune performs a global vocabulary prune.
func (m *MarkovAPI) handleVocabPrune(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req PruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body for minFreq")
		return
	}
	removed, err := m.store.VocabularyPrune(r.Context(), req.MinFreq)
	if err != nil {
		m.logger.Error("Failed to prune vocabulary", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Vocabulary prune failed: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, PruneResponse{Removed: int64(removed)})
}

// handleStats reports database wide and per model statistics.
func (m *MarkovAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stats, err := m.store.GetStats(r.Context())
	if err != nil {
		m.logger.Error("Failed to get markov stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}
