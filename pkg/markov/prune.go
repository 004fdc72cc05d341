package markov

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// PruneModel removes every link of model seen at most minFreq times and
// returns how many links were removed. Pruning can remove every start
// transition, after which the model no longer compiles.
func (s *Store) PruneModel(ctx context.Context, model ModelInfo, minFreq int) (int64, error) {
	res, err := s.stmtPruneModel.ExecContext(ctx, model.Id, minFreq)
	if err != nil {
		return 0, fmt.Errorf("could not prune model %d: %w", model.Id, err)
	}
	rowsAffected, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Model pruned",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("min_frequency", minFreq),
		slog.Int64("chains_removed", rowsAffected),
	)
	return rowsAffected, nil
}

// VocabularyPrune removes, across all models, tokens that appear fewer than
// minFrequency times as a transition target, together with every link and
// prefix that refers to them. It returns the number of tokens removed.
// SOC and EOC are never pruned.
func (s *Store) VocabularyPrune(ctx context.Context, minFrequency int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction for pruning: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	rareTokenIDs, err := queryInts(ctx, tx,
		`SELECT next_token_id FROM markov_chains GROUP BY next_token_id HAVING SUM(frequency) < ? AND next_token_id NOT IN (?, ?)`,
		minFrequency, SOCTokenID, EOCTokenID)
	if err != nil {
		return 0, fmt.Errorf("failed to query for rare tokens: %w", err)
	}
	if len(rareTokenIDs) == 0 {
		s.logger.InfoContext(ctx, "No vocabulary to prune",
			slog.Int("min_frequency", minFrequency),
		)
		return 0, tx.Commit()
	}
	rare := make(map[int]struct{}, len(rareTokenIDs))
	for _, id := range rareTokenIDs {
		rare[id] = struct{}{}
	}

	// Prefix texts are checked here rather than with LIKE patterns, which
	// would also match ids that merely share digits.
	affectedPrefixIDs, err := prefixesContaining(ctx, tx, rare)
	if err != nil {
		return 0, err
	}

	// Chains first, then prefixes, then vocabulary.
	for _, del := range []struct {
		table, column string
		ids           []int
	}{
		{"markov_chains", "next_token_id", rareTokenIDs},
		{"markov_chains", "prefix_id", affectedPrefixIDs},
		{"markov_prefixes", "prefix_id", affectedPrefixIDs},
		{"markov_vocabulary", "token_id", rareTokenIDs},
	} {
		if err = batchDelete(ctx, tx, del.table, del.column, del.ids); err != nil {
			return 0, fmt.Errorf("failed to prune %s by %s: %w", del.table, del.column, err)
		}
	}

	s.logger.InfoContext(ctx, "Vocabulary pruned successfully",
		slog.Int("min_frequency", minFrequency),
		slog.Int("tokens_removed", len(rareTokenIDs)),
		slog.Int("prefixes_affected", len(affectedPrefixIDs)),
	)

	return len(rareTokenIDs), tx.Commit()
}

func queryInts(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]int, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var out []int
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func prefixesContaining(ctx context.Context, tx *sql.Tx, tokens map[int]struct{}) ([]int, error) {
	rows, err := tx.QueryContext(ctx, `SELECT prefix_id, prefix_text FROM markov_prefixes`)
	if err != nil {
		return nil, fmt.Errorf("failed to query all prefixes for checking: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var affected []int
	for rows.Next() {
		var prefixID int
		var prefixText string
		if err = rows.Scan(&prefixID, &prefixText); err != nil {
			return nil, fmt.Errorf("failed to scan prefix row: %w", err)
		}
		for _, idStr := range strings.Split(prefixText, " ") {
			id, _ := strconv.Atoi(idStr)
			if _, ok := tokens[id]; ok {
				affected = append(affected, prefixID)
				break
			}
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error after iterating prefix rows: %w", err)
	}
	return affected, nil
}

// batchDelete deletes the rows of table whose column is in ids, in batches
// small enough for SQLite's bound variable limit.
func batchDelete(ctx context.Context, tx *sql.Tx, table, column string, ids []int) error {
	const batchSize = 500

	for i := 0; i < len(ids); i += batchSize {
		batch := ids[i:min(i+batchSize, len(ids))]
		args := make([]any, len(batch))
		for j, id := range batch {
			args[j] = id
		}

		query := fmt.Sprintf("DELETE FROM %s WHERE %s IN (?%s)", table, column, strings.Repeat(",?", len(batch)-1))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}
