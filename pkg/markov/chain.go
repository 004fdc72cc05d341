package markov

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// ErrEmptyModel is returned by Compile for a model that has no way to start
// a chain, such as an untrained or fully pruned one.
var ErrEmptyModel = errors.New("markov: model has no start transitions")

type transitions struct {
	tokens []ChainToken // sorted by token id
	total  int
}

// Chain is an immutable in-memory snapshot of one trained model. Any number
// of goroutines may walk a Chain at the same time, each with its own Rand.
type Chain struct {
	model     ModelInfo
	tokenizer Tokenizer
	next      map[string]transitions // prefix key -> transitions
	text      map[int]string
}

// Compile loads every transition of model into a Chain. Transitions from the
// start prefix straight to EOC are dropped, so a walk always yields at least
// one token. Compile fails with ErrEmptyModel when nothing is left to start
// from.
func (s *Store) Compile(ctx context.Context, model ModelInfo) (*Chain, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.prefix_text, c.next_token_id, c.frequency
		FROM markov_chains c JOIN markov_prefixes p ON p.prefix_id = c.prefix_id
		WHERE c.model_id = ?
		ORDER BY p.prefix_text, c.next_token_id;`, model.Id)
	if err != nil {
		return nil, fmt.Errorf("could not load chains of model '%s': %w", model.Name, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	startKey := string(appendPrefixKey(nil, make([]int, model.Order)))
	next := make(map[string]transitions)
	tokenIDs := make(map[int]struct{})
	links := 0

	for rows.Next() {
		var prefix string
		var token ChainToken
		if err = rows.Scan(&prefix, &token.Id, &token.Freq); err != nil {
			return nil, err
		}
		if token.Freq < 1 || (prefix == startKey && token.Id == EOCTokenID) {
			continue
		}
		t := next[prefix]
		t.tokens = append(t.tokens, token)
		t.total += token.Freq
		next[prefix] = t
		links++
		if token.Id != EOCTokenID {
			tokenIDs[token.Id] = struct{}{}
		}
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	if _, ok := next[startKey]; !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrEmptyModel, model.Name)
	}

	byText, err := s.textsByID(ctx, "SELECT token_id, token_text FROM markov_vocabulary WHERE token_id IN (?%s)", tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("could not load vocabulary of model '%s': %w", model.Name, err)
	}
	text := make(map[int]string, len(byText))
	for t, id := range byText {
		text[id] = t
	}
	for id := range tokenIDs {
		if _, ok := text[id]; !ok {
			return nil, fmt.Errorf("model '%s' refers to unknown token %d", model.Name, id)
		}
	}

	s.logger.DebugContext(ctx, "Model compiled",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("prefixes", len(next)),
		slog.Int("links", links),
		slog.Int("tokens", len(text)),
	)

	return &Chain{
		model:     model,
		tokenizer: s.tokenizer,
		next:      next,
		text:      text,
	}, nil
}

// Model returns the metadata of the model the Chain was compiled from.
func (c *Chain) Model() ModelInfo {
	return c.model
}

// Len returns the number of distinct prefixes in the Chain.
func (c *Chain) Len() int {
	return len(c.next)
}

// EOC returns the text the tokenizer closes a chain with after last.
func (c *Chain) EOC(last string) string {
	return c.tokenizer.EOC(last)
}

// Generate walks one chain from the start context and joins the tokens with
// the tokenizer's separator and end string. The walk stops on EOC, on a
// context with no recorded transitions, or at the maximum length. The
// result is never empty.
func (c *Chain) Generate(rng Rand, opts ...GenerateOption) string {
	cur := c.NewCursor(opts...)

	var b strings.Builder
	last := SOCTokenText
	for {
		text, ok := cur.Next(rng)
		if !ok {
			break
		}
		if last != SOCTokenText {
			b.WriteString(c.tokenizer.Separator(last, text))
		}
		b.WriteString(text)
		last = text
	}
	b.WriteString(c.tokenizer.EOC(last))
	return b.String()
}

// Cursor steps through a Chain one token at a time. When a chain ends the
// Cursor starts over from the start context, so it can produce an unbounded
// sequence of chains. A Cursor is not safe for concurrent use.
type Cursor struct {
	chain  *Chain
	opts   generateOptions
	prefix []int
	key    []byte
	length int
}

// NewCursor returns a Cursor positioned at the start context.
func (c *Chain) NewCursor(opts ...GenerateOption) *Cursor {
	o := defaultGenerateOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Cursor{
		chain:  c,
		opts:   o,
		prefix: make([]int, c.model.Order),
	}
}

// Next draws the next token of the current chain. It returns false when the
// chain ends, in which case the Cursor is back at the start context. Called
// at the start context, Next always returns a token.
func (cur *Cursor) Next(rng Rand) (string, bool) {
	if cur.length >= cur.opts.maxLength {
		cur.Reset()
		return "", false
	}

	cur.key = appendPrefixKey(cur.key[:0], cur.prefix)
	t, ok := cur.chain.next[string(cur.key)]
	if !ok {
		cur.Reset()
		return "", false
	}

	id := chooseNextToken(t.tokens, t.total, &cur.opts, rng)
	if id == EOCTokenID {
		cur.Reset()
		return "", false
	}

	copy(cur.prefix, cur.prefix[1:])
	cur.prefix[len(cur.prefix)-1] = id
	cur.length++
	return cur.chain.text[id], true
}

// Reset moves the Cursor back to the start context.
func (cur *Cursor) Reset() {
	clear(cur.prefix)
	cur.length = 0
}

// AtStart reports whether the next token begins a new chain.
func (cur *Cursor) AtStart() bool {
	return cur.length == 0
}

// String renders the current prefix, mainly for logs.
func (cur *Cursor) String() string {
	parts := make([]string, len(cur.prefix))
	for i, id := range cur.prefix {
		if id == SOCTokenID {
			parts[i] = SOCTokenText
			continue
		}
		if t, ok := cur.chain.text[id]; ok {
			parts[i] = t
		} else {
			parts[i] = strconv.Itoa(id)
		}
	}
	return strings.Join(parts, " ")
}
