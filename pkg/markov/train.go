package markov

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// chainLink Is a struct used for batching chain inserts.
type chainLink struct {
	prefixID    int
	nextTokenID int
}

// InsertToken provides a low-level way to insert or increment a single
// chain link (`prefix -> token`) for a given model. The prefix must already
// exist. For bulk data use Train.
func (s *Store) InsertToken(ctx context.Context, model ModelInfo, prefix string, token int) error {
	var prefixID int
	err := s.stmtGetPrefixID.QueryRowContext(ctx, prefix).Scan(&prefixID)
	if err != nil {
		return fmt.Errorf("could not get prefix ID for '%s': %w", prefix, err)
	}
	_, err = s.stmtInsertLink.ExecContext(ctx, model.Id, prefixID, token)
	if err != nil {
		return fmt.Errorf("could not insert token for '%s': %w", prefix, err)
	}
	return nil
}

// Train reads data through the Store's tokenizer and adds every observed
// transition to model. Each run of non-EOC tokens is one chain: it is
// framed by Order start tokens and a closing EOC. Empty chains are skipped,
// so a model never learns the SOC -> EOC transition. The whole stream is
// trained in a single transaction.
func (s *Store) Train(ctx context.Context, model ModelInfo, data io.Reader) error {
	// maxChainLength caps the memory held for one unterminated chain.
	const maxChainLength = 4096
	// chainBatchSize is how many links are buffered before being written.
	const chainBatchSize = 1000

	if model.Order < 1 {
		return fmt.Errorf("model '%s' has invalid order %d", model.Name, model.Order)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// Statements bound to tx are closed by Commit or Rollback.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	vocabCache := make(map[string]int)
	prefixCache := make(map[string]int)
	chainBatch := make([]chainLink, 0, chainBatchSize)

	var chainCount int64

	stmtInsertVocab := tx.StmtContext(ctx, s.stmtInsertVocab)
	stmtGetOrInsertPrefix := tx.StmtContext(ctx, s.stmtGetOrInsertPrefix)
	stmtInsertChainBatch, err := tx.PrepareContext(ctx, `INSERT INTO markov_chains (model_id, prefix_id, next_token_id, frequency) VALUES (?, ?, ?, 1) ON CONFLICT(model_id, prefix_id, next_token_id) DO UPDATE SET frequency = frequency + 1;`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch chain insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertChainBatch)

	flush := func() error {
		for _, link := range chainBatch {
			if _, err := stmtInsertChainBatch.ExecContext(ctx, model.Id, link.prefixID, link.nextTokenID); err != nil {
				return fmt.Errorf("failed during batch insert of chain link (%d -> %d): %w", link.prefixID, link.nextTokenID, err)
			}
		}
		chainBatch = chainBatch[:0]
		return nil
	}

	stream := s.tokenizer.NewStream(data)
	var current []int

	for {
		token, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("tokenizer error: %w", err)
		}

		if !token.EOC && len(current) < maxChainLength {
			tokenID, ok := vocabCache[token.Text]
			if !ok {
				if err = stmtInsertVocab.QueryRowContext(ctx, token.Text).Scan(&tokenID); err != nil {
					return fmt.Errorf("sql insert vocabulary error for token '%s': %w", token.Text, err)
				}
				vocabCache[token.Text] = tokenID
			}
			current = append(current, tokenID)
			continue
		}

		if len(current) > 0 {
			if err = processSentence(ctx, model, current, prefixCache, &chainBatch, stmtGetOrInsertPrefix); err != nil {
				return fmt.Errorf("chain processing error: %w", err)
			}
			chainCount++
			current = current[:0]
		}
		if len(chainBatch) >= chainBatchSize {
			if err = ctx.Err(); err != nil {
				return err
			}
			if err = flush(); err != nil {
				return err
			}
		}
	}

	if len(current) > 0 {
		if err := processSentence(ctx, model, current, prefixCache, &chainBatch, stmtGetOrInsertPrefix); err != nil {
			return fmt.Errorf("final chain processing error: %w", err)
		}
		chainCount++
	}

	if err := flush(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Training completed",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int64("chains_processed", chainCount),
		slog.Int("vocabulary_seen", len(vocabCache)),
	)

	return tx.Commit()
}

// processSentence turns one chain of token ids into links, resolving each
// prefix to its id through prefixCache.
func processSentence(ctx context.Context, model ModelInfo, sentence []int, prefixCache map[string]int, chainBatch *[]chainLink, stmtGetOrInsertPrefix *sql.Stmt) error {
	if len(sentence) == 0 {
		return nil
	}

	// SOC padding is the zero value.
	fullSlice := make([]int, len(sentence)+model.Order+1)
	copy(fullSlice[model.Order:len(fullSlice)-1], sentence)
	fullSlice[len(fullSlice)-1] = EOCTokenID

	var keyBuf []byte
	for i := 0; i < len(sentence)+1; i++ {
		prefixSlice := fullSlice[i : i+model.Order]
		nextToken := fullSlice[i+model.Order]

		keyBuf = appendPrefixKey(keyBuf[:0], prefixSlice)
		prefixKey := string(keyBuf)

		prefixID, ok := prefixCache[prefixKey]
		if !ok {
			if err := stmtGetOrInsertPrefix.QueryRowContext(ctx, prefixKey).Scan(&prefixID); err != nil {
				return fmt.Errorf("failed to get or insert prefix '%s': %w", prefixKey, err)
			}
			prefixCache[prefixKey] = prefixID
		}

		*chainBatch = append(*chainBatch, chainLink{prefixID: prefixID, nextTokenID: nextToken})
	}
	return nil
}
