package executor

import (
	"github.com/samcharles93/kiln/internal/errdefs"
)

// TokenData holds a token id and, when a backend precomputes them, the
// embeddings that go with it. The id is fixed at construction.
type TokenData struct {
	id int32

	// Embedding optionally holds the dense embedding for the token.
	Embedding []float32

	// PerLayerEmbedding optionally holds the per-layer embedding for the
	// token.
	PerLayerEmbedding []float32
}

// NewTokenData returns a TokenData carrying only an id.
func NewTokenData(id int32) *TokenData {
	return &TokenData{id: id}
}

// ID returns the token id.
func (t *TokenData) ID() int32 { return t.id }

// ProcessedTokens tracks the tokens consumed by the model for one generation
// context. It records the committed sequence plus at most one "pending" input
// token: a token that is logically part of the context but has not been fed
// to the model yet, used by backends whose decode step takes an explicit
// input token.
type ProcessedTokens struct {
	tokens  []int32
	pending *TokenData
}

// TokenCount returns the number of tokens in the context, inclusive of the
// pending input token, if any.
func (p *ProcessedTokens) TokenCount() int {
	n := len(p.tokens)
	if p.pending != nil {
		n++
	}
	return n
}

// NextUnprocessed returns the pending input token (nil if none) and its step,
// which is the index after the last committed token.
func (p *ProcessedTokens) NextUnprocessed() (step int, tok *TokenData) {
	return len(p.tokens), p.pending
}

// AddProcessedTokens appends ids to the committed sequence in order.
func (p *ProcessedTokens) AddProcessedTokens(ids []int32) {
	p.tokens = append(p.tokens, ids...)
}

// AddPendingInputToken stores tok as the pending input token. It is an error
// to call this while another pending token exists.
func (p *ProcessedTokens) AddPendingInputToken(tok *TokenData) error {
	if p.pending != nil {
		return errdefs.Internalf("AddPendingInputToken called with an existing pending token")
	}
	p.pending = tok
	return nil
}

// RollBackToStep reverts the context to newStep tokens. newStep must be in
// [0, TokenCount()]. Any pending input token is dropped. The state is
// unchanged when an error is returned.
func (p *ProcessedTokens) RollBackToStep(newStep int) error {
	if newStep < 0 {
		return errdefs.Internalf("new step must be non-negative, got %d", newStep)
	}
	if newStep > p.TokenCount() {
		return errdefs.Internalf("new step must be at most TokenCount(), got %d vs %d", newStep, p.TokenCount())
	}
	if newStep == p.TokenCount() {
		return nil
	}
	p.pending = nil
	p.tokens = p.tokens[:newStep]
	return nil
}

// TokenAtStep returns the id at the given step. The pending input token sits
// at the step right after the committed tokens. ok is false when the step is
// out of range.
func (p *ProcessedTokens) TokenAtStep(step int) (id int32, ok bool) {
	if step < 0 || step >= p.TokenCount() {
		return 0, false
	}
	if step == len(p.tokens) {
		return p.pending.ID(), true
	}
	return p.tokens[step], true
}

// MarkPendingInputTokenAsProcessed commits the pending input token. It is an
// error to call this when no pending token exists.
func (p *ProcessedTokens) MarkPendingInputTokenAsProcessed() error {
	if p.pending == nil {
		return errdefs.Internalf("MarkPendingInputTokenAsProcessed called with no pending token")
	}
	p.tokens = append(p.tokens, p.pending.ID())
	p.pending = nil
	return nil
}

// CopyOfTokens returns a copy of the full context, inclusive of the pending
// input token, if any.
func (p *ProcessedTokens) CopyOfTokens() []int32 {
	out := append([]int32(nil), p.tokens...)
	if p.pending != nil {
		out = append(out, p.pending.ID())
	}
	return out
}

// TokensUnsafe returns the committed tokens without copying. It does not
// include the pending input token and MUST NOT be used with backends that
// set one; callers are expected to know no pending token exists. Misuse is a
// programming error and panics.
func (p *ProcessedTokens) TokensUnsafe() []int32 {
	if p.pending != nil {
		panic("executor: TokensUnsafe called with a pending input token")
	}
	return p.tokens
}

// InvalidatePendingInputToken drops the pending input token, if any.
func (p *ProcessedTokens) InvalidatePendingInputToken() {
	p.pending = nil
}
