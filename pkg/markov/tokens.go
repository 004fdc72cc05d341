package markov

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Token represents a single tokenized unit of text. It contains the text itself
// and a boolean flag indicating if it marks the end of a chain (e.g., a sentence
// or a word).
type Token struct {
	Text string
	EOC  bool
}

// Tokenizer splits training text into tokens and knows how to glue
// generated tokens back together.
type Tokenizer interface {
	// NewStream returns a stateful StreamTokenizer for processing an io.Reader.
	NewStream(io.Reader) StreamTokenizer
	// Separator returns the string placed between the previous and current
	// tokens in generated output.
	Separator(prev, current string) string
	// EOC returns the string that closes generated output, given the last
	// token in the sequence.
	EOC(last string) string
}

// StreamTokenizer is an interface for a stateful tokenizer that processes a
// stream of data, returning one token at a time.
type StreamTokenizer interface {
	// Next returns the next token from the stream. It returns io.EOF as the
	// error when the stream is fully consumed.
	Next() (*Token, error)
}

// ChainToken is a possible next token after some prefix, with the number
// of times that transition was seen in training.
type ChainToken struct {
	Id   int
	Freq int
}

// appendPrefixKey renders a prefix of token ids in the form stored in
// markov_prefixes: decimal ids joined by single spaces.
func appendPrefixKey(dst []byte, prefix []int) []byte {
	for j, tokenID := range prefix {
		if j > 0 {
			dst = append(dst, ' ')
		}
		dst = strconv.AppendInt(dst, int64(tokenID), 10)
	}
	return dst
}

// GetNextTokens retrieves all possible subsequent tokens for a given prefix key
// from a specific model, ordered by token id. It returns the tokens, the sum
// of their frequencies, and any error that occurred. An unknown prefix yields
// a nil slice and a total frequency of 0.
func (s *Store) GetNextTokens(ctx context.Context, model ModelInfo, prefix string) ([]ChainToken, int, error) {
	var prefixID int
	err := s.stmtGetPrefixID.QueryRowContext(ctx, prefix).Scan(&prefixID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("could not get prefix ID for '%s': %w", prefix, err)
	}

	rows, err := s.stmtGetChain.QueryContext(ctx, model.Id, prefixID)
	if err != nil {
		return nil, 0, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var tokens []ChainToken
	var totalFreq int
	for rows.Next() {
		var token ChainToken
		if err = rows.Scan(&token.Id, &token.Freq); err != nil {
			return nil, 0, err
		}
		tokens = append(tokens, token)
		totalFreq += token.Freq
	}

	if err = rows.Err(); err != nil {
		return nil, 0, err
	}

	return tokens, totalFreq, nil
}

// VocabStr looks up a token string in the vocabulary and returns its corresponding ID.
// It returns an error if the token is not found.
func (s *Store) VocabStr(ctx context.Context, token string) (int, error) {
	var tokenId int
	err := s.stmtGetTokenID.QueryRowContext(ctx, token).Scan(&tokenId)
	if err != nil {
		return 0, err
	}
	return tokenId, nil
}

// VocabInt looks up a token ID in the vocabulary and returns its corresponding text.
// It returns an error if the ID is not found.
func (s *Store) VocabInt(ctx context.Context, id int) (string, error) {
	var tokenText string
	err := s.stmtGetTokenText.QueryRowContext(ctx, id).Scan(&tokenText)
	if err != nil {
		return "", err
	}
	return tokenText, nil
}
