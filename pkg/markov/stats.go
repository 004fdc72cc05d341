package markov

import (
	"context"
	"database/sql"
	"errors"
	"sort"
)

// DBStats holds aggregated statistics for the entire database, including a
// list of all models and their individual stats.
type DBStats struct {
	Models     []ModelInfo        `json:"models"`      // Models ordered by id
	Stats      map[int]ModelStats `json:"stats"`       // Model id -> stats
	VocabSize  int                `json:"vocab_size"`  // Unique tokens across all models, including SOC and EOC
	PrefixSize int                `json:"prefix_size"` // Unique prefixes across all models
}

// ModelStats holds aggregated statistics for a single Markov model.
type ModelStats struct {
	TotalChains    int `json:"total_chains"`    // Unique prefix -> next_token links.
	TotalFrequency int `json:"total_frequency"` // Sum of all link frequencies.
	StartingTokens int `json:"starting_tokens"` // Unique tokens that can follow the start prefix.
}

// GetStats returns a snapshot of statistics for the entire database,
// including global counts and per-model stats.
func (s *Store) GetStats(ctx context.Context) (*DBStats, error) {
	modelInfos, err := s.GetModelInfos(ctx)
	if err != nil {
		return nil, err
	}

	var vocabLen, prefixLen int
	if err = s.stmtGetVocabLen.QueryRowContext(ctx).Scan(&vocabLen); err != nil {
		return nil, err
	}
	if err = s.stmtGetPrefixLen.QueryRowContext(ctx).Scan(&prefixLen); err != nil {
		return nil, err
	}

	models := make([]ModelInfo, 0, len(modelInfos))
	for _, v := range modelInfos {
		models = append(models, v)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Id < models[j].Id })

	modelStats := make(map[int]ModelStats, len(models))
	for _, v := range models {
		stats, err := s.modelStats(ctx, v)
		if err != nil {
			return nil, err
		}
		modelStats[v.Id] = stats
	}

	return &DBStats{
		Models:     models,
		Stats:      modelStats,
		VocabSize:  vocabLen,
		PrefixSize: prefixLen,
	}, nil
}

func (s *Store) modelStats(ctx context.Context, model ModelInfo) (ModelStats, error) {
	var stats ModelStats
	if err := s.stmtModelChains.QueryRowContext(ctx, model.Id).Scan(&stats.TotalChains); err != nil {
		return ModelStats{}, err
	}
	if err := s.stmtModelFreq.QueryRowContext(ctx, model.Id).Scan(&stats.TotalFrequency); err != nil {
		return ModelStats{}, err
	}

	startKey := string(appendPrefixKey(nil, make([]int, model.Order)))
	var startID int
	err := s.stmtGetPrefixID.QueryRowContext(ctx, startKey).Scan(&startID)
	if errors.Is(err, sql.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return ModelStats{}, err
	}
	if err = s.stmtModelStarters.QueryRowContext(ctx, model.Id, startID).Scan(&stats.StartingTokens); err != nil {
		return ModelStats{}, err
	}
	return stats, nil
}
