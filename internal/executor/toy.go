package executor

import (
	"math/rand"

	"github.com/samcharles93/kiln/internal/errdefs"
	"github.com/samcharles93/kiln/internal/tensor"
)

// ToyConfig configures a ToyExecutor.
type ToyConfig struct {
	Vocab         int
	Hidden        int
	NumCandidates int
	MaxTokens     int
	Seed          int64
}

// ToyExecutor is a deterministic stand-in for a real model backend. It
// projects a random embedding table through a random weight matrix to produce
// logits, so generation is reproducible for a given seed but has no meaning.
// It exists so the CLI, the server and the integration-style tests can drive
// the full pipeline without loading a model.
type ToyExecutor struct {
	cfg ToyConfig

	emb []float32 // [Vocab x Hidden]
	w   []float32 // [Hidden x Vocab]

	// last consumed token per candidate, seeding the next step.
	last []int32

	processed ProcessedTokens
	step      int
}

// NewToyExecutor constructs a toy backend. Embeddings and weights are filled
// deterministically from the seed.
func NewToyExecutor(cfg ToyConfig) *ToyExecutor {
	if cfg.Vocab <= 0 {
		cfg.Vocab = 256
	}
	if cfg.Hidden <= 0 {
		cfg.Hidden = 16
	}
	if cfg.NumCandidates <= 0 {
		cfg.NumCandidates = 1
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	e := &ToyExecutor{
		cfg:  cfg,
		emb:  make([]float32, cfg.Vocab*cfg.Hidden),
		w:    make([]float32, cfg.Hidden*cfg.Vocab),
		last: make([]int32, cfg.NumCandidates),
	}
	rng := rand.New(rand.NewSource(cfg.Seed + 11))
	for i := range e.emb {
		e.emb[i] = rng.Float32()*2 - 1
	}
	rng = rand.New(rand.NewSource(cfg.Seed + 23))
	for i := range e.w {
		e.w[i] = rng.Float32()*2 - 1
	}
	return e
}

func (e *ToyExecutor) Settings() (Settings, error) {
	return Settings{MaxTokens: e.cfg.MaxTokens}, nil
}

func (e *ToyExecutor) CurrentStep() int { return e.step }

// Processed exposes the context bookkeeping for inspection.
func (e *ToyExecutor) Processed() *ProcessedTokens { return &e.processed }

func (e *ToyExecutor) Prefill(inputs Inputs, params PrefillParams) error {
	if inputs.Text == nil || inputs.Text.TokenIDs == nil {
		return errdefs.Internalf("prefill inputs missing text data")
	}
	ids, err := inputs.Text.TokenIDs.Int32s()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return errdefs.Internalf("prefill token ids are empty")
	}
	e.processed.AddProcessedTokens(ids)
	for i := range e.last {
		e.last[i] = ids[len(ids)-1]
	}
	e.step = e.processed.TokenCount()
	return nil
}

// Decode advances one step with internal (greedy) sampling, writing one next
// token id per candidate into out.
func (e *ToyExecutor) Decode(out *tensor.Buffer) error {
	ids, err := out.Int32s()
	if err != nil {
		return err
	}
	if len(ids) != e.cfg.NumCandidates {
		return errdefs.Internalf("decode output holds %d slots, want %d", len(ids), e.cfg.NumCandidates)
	}
	for i := range ids {
		logits := e.forward(e.last[i], int32(i))
		next := argmax32(logits)
		ids[i] = next
		e.last[i] = next
	}
	e.processed.AddProcessedTokens(ids[:1])
	e.step = e.processed.TokenCount()
	return nil
}

// DecodeLogits advances one step using the caller-provided input tokens and
// returns the raw logits for all candidates. The input token for the first
// candidate moves through the pending-token bookkeeping, matching backends
// that take an explicit input token per decode.
func (e *ToyExecutor) DecodeLogits(inputs Inputs) (*tensor.Buffer, error) {
	if inputs.Text == nil || inputs.Text.TokenIDs == nil {
		return nil, errdefs.Internalf("decode inputs missing text data")
	}
	ids, err := inputs.Text.TokenIDs.Int32s()
	if err != nil {
		return nil, err
	}
	if len(ids) != e.cfg.NumCandidates {
		return nil, errdefs.Internalf("decode input holds %d tokens, want %d", len(ids), e.cfg.NumCandidates)
	}
	if err := e.processed.AddPendingInputToken(NewTokenData(ids[0])); err != nil {
		return nil, err
	}
	out := tensor.NewFloat32(e.cfg.NumCandidates, e.cfg.Vocab)
	logits, _ := out.Float32s()
	for i, id := range ids {
		row := e.forward(id, int32(i))
		copy(logits[i*e.cfg.Vocab:(i+1)*e.cfg.Vocab], row)
		e.last[i] = id
	}
	if err := e.processed.MarkPendingInputTokenAsProcessed(); err != nil {
		return nil, err
	}
	e.step = e.processed.TokenCount()
	return out, nil
}

// forward computes logits for one token. The candidate index perturbs the
// hidden state so candidates diverge.
func (e *ToyExecutor) forward(tok, candidate int32) []float32 {
	v := int(tok) % e.cfg.Vocab
	if v < 0 {
		v += e.cfg.Vocab
	}
	h := e.emb[v*e.cfg.Hidden : (v+1)*e.cfg.Hidden]
	logits := make([]float32, e.cfg.Vocab)
	for j := 0; j < e.cfg.Vocab; j++ {
		var sum float32
		for i := 0; i < e.cfg.Hidden; i++ {
			sum += h[i] * e.w[i*e.cfg.Vocab+j]
		}
		logits[j] = sum + float32(candidate)*0.1*e.w[(j*7+13)%len(e.w)]
	}
	return logits
}

func argmax32(v []float32) int32 {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return int32(best)
}
