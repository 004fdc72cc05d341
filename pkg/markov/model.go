package markov

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// ModelInfo holds the essential metadata for a Markov model, including its
// unique ID, name, and the order of the chain (the number of preceding tokens
// used to predict the next one).
type ModelInfo struct {
	Id    int    `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// ExportedModel is the serializable representation of a trained model,
// used for JSON-based import and export.
type ExportedModel struct {
	Name       string          `json:"name"`
	Order      int             `json:"order"`
	Vocabulary map[string]int  `json:"vocabulary"` // token_text -> token_id
	Prefixes   map[string]int  `json:"prefixes"`   // prefix_text -> prefix_id
	Chains     []ExportedChain `json:"chains"`
}

// ExportedChain is the serializable representation of a single link
// in a Markov chain, used within an ExportedModel.
type ExportedChain struct {
	PrefixID    int `json:"prefix_id"`
	NextTokenID int `json:"next_token_id"`
	Frequency   int `json:"frequency"`
}

// ErrModelNotFound is returned when a named model does not exist.
var ErrModelNotFound = errors.New("markov: model not found")

// GetModelInfos retrieves metadata for all models currently in the database,
// returning them in a map keyed by model name.
func (s *Store) GetModelInfos(ctx context.Context) (map[string]ModelInfo, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	models := make(map[string]ModelInfo)
	for rows.Next() {
		var model ModelInfo
		if err = rows.Scan(&model.Id, &model.Name, &model.Order); err != nil {
			return nil, err
		}
		models[model.Name] = model
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// GetModelInfo retrieves the metadata for a single model specified by name.
// A missing model is reported as ErrModelNotFound.
func (s *Store) GetModelInfo(ctx context.Context, modelName string) (ModelInfo, error) {
	var modelId, modelOrder int
	err := s.stmtGetModelInfo.QueryRowContext(ctx, modelName).Scan(&modelId, &modelOrder)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ModelInfo{}, fmt.Errorf("%w: %s", ErrModelNotFound, modelName)
		}
		return ModelInfo{}, err
	}
	return ModelInfo{
		Id:    modelId,
		Name:  modelName,
		Order: modelOrder,
	}, nil
}

// InsertModel creates a new model entry in the database.
func (s *Store) InsertModel(ctx context.Context, model ModelInfo) error {
	if model.Order < 1 {
		return fmt.Errorf("model '%s' has invalid order %d", model.Name, model.Order)
	}
	_, err := s.stmtAddModel.ExecContext(ctx, model.Name, model.Order)
	return err
}

// EnsureModel returns the model called name, creating it with the given
// order when it does not exist yet. created reports whether it was created.
// An existing model with a different order is an error.
func (s *Store) EnsureModel(ctx context.Context, name string, order int) (info ModelInfo, created bool, err error) {
	info, err = s.GetModelInfo(ctx, name)
	switch {
	case err == nil:
		if info.Order != order {
			return ModelInfo{}, false, fmt.Errorf("model '%s' exists with order %d, want %d", name, info.Order, order)
		}
		return info, false, nil
	case !errors.Is(err, ErrModelNotFound):
		return ModelInfo{}, false, err
	}

	if err = s.InsertModel(ctx, ModelInfo{Name: name, Order: order}); err != nil {
		return ModelInfo{}, false, fmt.Errorf("could not create model '%s': %w", name, err)
	}
	info, err = s.GetModelInfo(ctx, name)
	if err != nil {
		return ModelInfo{}, false, err
	}
	s.logger.InfoContext(ctx, "Model created",
		slog.String("model_name", name),
		slog.Int("model_id", info.Id),
		slog.Int("model_order", order),
	)
	return info, true, nil
}

// RemoveModel deletes a model and all of its associated chain data from the
// database. The operation is performed within a transaction.
func (s *Store) RemoveModel(ctx context.Context, model ModelInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_chains WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove chains for model %d: %w", model.Id, err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_models WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", model.Id, err)
	}

	s.logger.InfoContext(ctx, "Model removed successfully",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
	)

	return tx.Commit()
}

// ExportModel serializes a given model into a JSON format and writes it to the
// provided io.Writer. This is useful for backups or for transferring models.
func (s *Store) ExportModel(ctx context.Context, modelInfo ModelInfo, w io.Writer) error {
	rows, err := s.db.QueryContext(ctx, "SELECT prefix_id, next_token_id, frequency FROM markov_chains WHERE model_id = ?", modelInfo.Id)
	if err != nil {
		return fmt.Errorf("could not query chains for export: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	// Make maps for all prefixes and tokens the model uses
	var exportedChains []ExportedChain
	prefixIDs := make(map[int]struct{})
	tokenIDs := make(map[int]struct{})

	for rows.Next() {
		var chain ExportedChain
		if err := rows.Scan(&chain.PrefixID, &chain.NextTokenID, &chain.Frequency); err != nil {
			return err
		}
		exportedChains = append(exportedChains, chain)
		prefixIDs[chain.PrefixID] = struct{}{}
		tokenIDs[chain.NextTokenID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// Release the connection before the lookups below.
	_ = rows.Close()

	prefixIDToText, err := s.textsByID(ctx, "SELECT prefix_id, prefix_text FROM markov_prefixes WHERE prefix_id IN (?%s)", prefixIDs)
	if err != nil {
		return fmt.Errorf("could not load prefixes for export: %w", err)
	}
	for text := range prefixIDToText {
		for _, idStr := range strings.Split(text, " ") {
			tokenID, err := strconv.Atoi(idStr)
			if err != nil {
				return fmt.Errorf("malformed prefix '%s': %w", text, err)
			}
			tokenIDs[tokenID] = struct{}{}
		}
	}

	tokenIDToText, err := s.textsByID(ctx, "SELECT token_id, token_text FROM markov_vocabulary WHERE token_id IN (?%s)", tokenIDs)
	if err != nil {
		return fmt.Errorf("could not load vocabulary for export: %w", err)
	}

	exported := ExportedModel{
		Name:       modelInfo.Name,
		Order:      modelInfo.Order,
		Vocabulary: tokenIDToText,
		Prefixes:   prefixIDToText,
		Chains:     exportedChains,
	}

	s.logger.InfoContext(ctx, "Model exported",
		slog.String("model_name", modelInfo.Name),
		slog.Int("model_id", modelInfo.Id),
		slog.Int("vocab_items_exported", len(tokenIDToText)),
		slog.Int("prefixes_exported", len(prefixIDToText)),
		slog.Int("chains_exported", len(exportedChains)),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// textsByID runs query, which selects (id, text) pairs and has one IN
// list placeholder, for every id in ids. The result maps text to id.
func (s *Store) textsByID(ctx context.Context, query string, ids map[int]struct{}) (map[string]int, error) {
	// SQLite limits bound variables per statement.
	const batchSize = 500

	out := make(map[string]int, len(ids))
	args := make([]interface{}, 0, batchSize)
	run := func() error {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(query, strings.Repeat(",?", len(args)-1)), args...)
		if err != nil {
			return err
		}
		defer func(rows *sql.Rows) {
			_ = rows.Close()
		}(rows)
		for rows.Next() {
			var id int
			var text string
			if err = rows.Scan(&id, &text); err != nil {
				return err
			}
			out[text] = id
		}
		return rows.Err()
	}

	for id := range ids {
		args = append(args, id)
		if len(args) == batchSize {
			if err := run(); err != nil {
				return nil, err
			}
			args = args[:0]
		}
	}
	if len(args) > 0 {
		if err := run(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ImportModel reads a JSON representation of a model from an io.Reader and
// merges its data into the database. If the model name already exists, the
// new chain data is merged with the existing data (frequencies are added).
// If the model does not exist, it is created. The entire operation is
// transactional and handles re-mapping of vocabulary and prefix IDs.
func (s *Store) ImportModel(ctx context.Context, r io.Reader) error {
	var imported ExportedModel
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return fmt.Errorf("failed to decode json model: %w", err)
	}
	if imported.Name == "" || imported.Order < 1 {
		return fmt.Errorf("invalid model header: name %q, order %d", imported.Name, imported.Order)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for import: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var modelID, modelOrder int
	err = tx.QueryRowContext(ctx, "SELECT model_id, model_order FROM markov_models WHERE model_name = ?", imported.Name).Scan(&modelID, &modelOrder)
	if err == nil && modelOrder != imported.Order {
		return fmt.Errorf("cannot merge order %d data into model '%s' of order %d", imported.Order, imported.Name, modelOrder)
	}
	if errors.Is(err, sql.ErrNoRows) {
		res, err := tx.ExecContext(ctx, "INSERT INTO markov_models (model_name, model_order) VALUES (?, ?)", imported.Name, imported.Order)
		if err != nil {
			return fmt.Errorf("failed to insert new model '%s': %w", imported.Name, err)
		}
		newID, _ := res.LastInsertId()
		modelID = int(newID)
	} else if err != nil {
		return fmt.Errorf("failed to query for model '%s': %w", imported.Name, err)
	}

	stmtInsertVocab := tx.StmtContext(ctx, s.stmtInsertVocab)
	stmtGetOrInsertPrefix := tx.StmtContext(ctx, s.stmtGetOrInsertPrefix)

	vocabIDMap := map[int]int{ // old_id -> new_id
		SOCTokenID: SOCTokenID,
		EOCTokenID: EOCTokenID,
	}

	for text, oldID := range imported.Vocabulary {
		if text == SOCTokenText || text == EOCTokenText {
			continue
		}
		var newID int
		if err := stmtInsertVocab.QueryRowContext(ctx, text).Scan(&newID); err != nil {
			return fmt.Errorf("failed to get/insert vocab '%s': %w", text, err)
		}
		vocabIDMap[oldID] = newID
	}

	// Prefixes need to be re-made with the new VocabID's
	prefixIDMap := make(map[int]int) // old_id -> new_id
	newPrefix := make([]int, 0, imported.Order)
	var keyBuf []byte

	for oldPrefixText, oldPrefixID := range imported.Prefixes {
		newPrefix = newPrefix[:0]
		for _, oldTokenIDStr := range strings.Split(oldPrefixText, " ") {
			oldTokenID, err := strconv.Atoi(oldTokenIDStr)
			if err != nil {
				return fmt.Errorf("malformed prefix '%s': %w", oldPrefixText, err)
			}
			newTokenID, ok := vocabIDMap[oldTokenID]
			if !ok {
				return fmt.Errorf("consistency error: old token id %d in prefix not found in vocab map", oldTokenID)
			}
			newPrefix = append(newPrefix, newTokenID)
		}
		if len(newPrefix) != imported.Order {
			return fmt.Errorf("prefix '%s' does not match model order %d", oldPrefixText, imported.Order)
		}

		keyBuf = appendPrefixKey(keyBuf[:0], newPrefix)
		newPrefixText := string(keyBuf)

		var newPrefixID int
		if err := stmtGetOrInsertPrefix.QueryRowContext(ctx, newPrefixText).Scan(&newPrefixID); err != nil {
			return fmt.Errorf("failed to get/insert rebuilt prefix '%s': %w", newPrefixText, err)
		}
		prefixIDMap[oldPrefixID] = newPrefixID
	}

	// Merging adds the imported frequency instead of counting one more.
	stmtInsertChain, err := tx.PrepareContext(ctx, `
		INSERT INTO markov_chains (model_id, prefix_id, next_token_id, frequency) VALUES (?, ?, ?, ?)
		ON CONFLICT(model_id, prefix_id, next_token_id) DO UPDATE SET frequency = frequency + excluded.frequency;
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chain insert statement: %w", err)
	}
	defer func(stmtInsertChain *sql.Stmt) {
		_ = stmtInsertChain.Close()
	}(stmtInsertChain)

	for _, chain := range imported.Chains {
		newPrefixID, ok := prefixIDMap[chain.PrefixID]
		if !ok {
			return fmt.Errorf("import consistency error: old prefix id %d not found in prefix map", chain.PrefixID)
		}
		newNextTokenID, ok := vocabIDMap[chain.NextTokenID]
		if !ok {
			return fmt.Errorf("import consistency error: old token id %d not found in vocab map", chain.NextTokenID)
		}

		if chain.Frequency < 1 {
			return fmt.Errorf("import consistency error: chain link (%d -> %d) has frequency %d", chain.PrefixID, chain.NextTokenID, chain.Frequency)
		}
		_, err = stmtInsertChain.ExecContext(ctx, modelID, newPrefixID, newNextTokenID, chain.Frequency)
		if err != nil {
			return fmt.Errorf("failed to insert chain link (%d -> %d): %w", newPrefixID, newNextTokenID, err)
		}
	}

	s.logger.InfoContext(ctx, "Model imported successfully",
		slog.String("model_name", imported.Name),
		slog.Int("target_model_id", modelID),
		slog.Int("vocab_items_merged", len(imported.Vocabulary)),
		slog.Int("prefixes_merged", len(imported.Prefixes)),
		slog.Int("chains_merged", len(imported.Chains)),
	)

	return tx.Commit()
}
