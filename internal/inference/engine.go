// Package inference assembles an executor, a tokenizer, a sampler and a stop
// detector into a generation engine with a prompt-in text-out surface. The
// CLI and the HTTP server both sit on top of it.
package inference

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/samcharles93/kiln/internal/benchmark"
	"github.com/samcharles93/kiln/internal/errdefs"
	"github.com/samcharles93/kiln/internal/executor"
	"github.com/samcharles93/kiln/internal/logits"
	"github.com/samcharles93/kiln/internal/pipeline"
	"github.com/samcharles93/kiln/internal/stoptoken"
	"github.com/samcharles93/kiln/internal/tensor"
	"github.com/samcharles93/kiln/internal/tokenizer"
)

// StreamFunc receives text deltas for the first candidate as they are
// generated.
type StreamFunc func(delta string)

// Stats summarises one generation call.
type Stats struct {
	PromptTokens    int
	TokensGenerated int

	PrefillDuration time.Duration
	DecodeDuration  time.Duration
	PrefillTPS      float64
	DecodeTPS       float64
}

// Result is the outcome of one generation call.
type Result struct {
	// Texts holds one generated string per candidate.
	Texts []string
	// Scores holds per-candidate mean log probabilities. Empty in
	// streaming mode.
	Scores []float32
	// FinishReason is "stop" when a stop sequence ended generation and
	// "length" when the token budget or the context limit did.
	FinishReason string

	Stats Stats
}

// Config configures an Engine.
type Config struct {
	// Vocab is the token table. Empty selects the raw byte vocabulary.
	Vocab []string
	// Hidden is the toy backend's hidden dimension.
	Hidden int
	// MaxContext bounds prompt plus generated tokens.
	MaxContext int
	// Seed fixes the toy backend's weights.
	Seed int64
}

// Engine produces text from prompts. It is stateless across calls: every
// Generate builds a fresh executor so requests cannot observe each other's
// kv-cache.
type Engine struct {
	cfg Config
	tok *tokenizer.Vocab
}

func NewEngine(cfg Config) *Engine {
	if cfg.Hidden <= 0 {
		cfg.Hidden = 16
	}
	if cfg.MaxContext <= 0 {
		cfg.MaxContext = 4096
	}
	tok := tokenizer.ByteVocab()
	if len(cfg.Vocab) > 0 {
		tok = tokenizer.NewVocab(cfg.Vocab)
	}
	return &Engine{cfg: cfg, tok: tok}
}

// Tokenizer returns the engine's token table.
func (e *Engine) Tokenizer() *tokenizer.Vocab { return e.tok }

// MaxContext returns the configured context limit.
func (e *Engine) MaxContext() int { return e.cfg.MaxContext }

// Generate runs prefill plus a decode loop for one request. When stream is
// non-nil, deltas for the first candidate are forwarded as they appear and
// Result.Scores stays empty.
func (e *Engine) Generate(ctx context.Context, req *Request, stream StreamFunc) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	promptIDs, err := e.tok.Encode(req.Prompt)
	if err != nil {
		return nil, err
	}
	if len(promptIDs) == 0 {
		return nil, errdefs.InvalidArgumentf("prompt must not be empty")
	}

	maxTokens := e.cfg.MaxContext
	if req.Steps > 0 && len(promptIDs)+req.Steps < maxTokens {
		maxTokens = len(promptIDs) + req.Steps
	}

	exec := executor.NewToyExecutor(executor.ToyConfig{
		Vocab:         e.tok.Size(),
		Hidden:        e.cfg.Hidden,
		NumCandidates: req.Candidates,
		MaxTokens:     maxTokens,
		Seed:          e.cfg.Seed,
	})

	detector := stoptoken.NewDetector(req.Candidates)
	for _, stop := range req.Stop {
		ids, err := e.tok.Encode(stop)
		if err != nil {
			return nil, err
		}
		if err := detector.AddStopSequence(ids); err != nil {
			return nil, err
		}
	}

	seed := req.Seed
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	sampler := logits.NewSampler(logits.SamplerConfig{
		Seed:        seed,
		Temperature: float32(req.Temperature),
		TopK:        req.TopK,
		TopP:        float32(req.TopP),
	})

	var cancelFlag atomic.Bool
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			cancelFlag.Store(true)
		case <-watchDone:
		}
	}()

	bench := benchmark.NewInfo(benchmark.Params{})
	inputs := executor.Inputs{
		Text: &executor.TextData{TokenIDs: tensor.FromInt32(promptIDs, 1, len(promptIDs))},
	}
	lastToken, err := pipeline.Prefill(exec, inputs, true, bench)
	if err != nil {
		return nil, err
	}

	decodedIDs := tensor.NewInt32(req.Candidates, 1)
	ids, _ := decodedIDs.Int32s()
	for i := range ids {
		ids[i] = lastToken
	}

	result := &Result{}
	if stream == nil {
		responses, err := pipeline.DecodeCustomSampling(exec, e.tok, detector,
			req.Candidates, sampler, decodedIDs, bench, &cancelFlag)
		if err != nil {
			return nil, e.mapCancel(ctx, err)
		}
		result.Texts = responses.Texts
		result.Scores = responses.Scores
	} else {
		obs := &streamBridge{stream: stream, texts: make([]string, req.Candidates)}
		err := pipeline.DecodeCustomSamplingStreaming(exec, e.tok, detector,
			req.Candidates, sampler, decodedIDs, bench, obs, &cancelFlag)
		if err != nil {
			return nil, e.mapCancel(ctx, err)
		}
		result.Texts = obs.texts
	}

	if exec.CurrentStep() >= maxTokens {
		result.FinishReason = "length"
	} else {
		result.FinishReason = "stop"
	}
	result.Stats = statsFrom(bench, len(promptIDs))
	return result, nil
}

// mapCancel surfaces the context error when the decode loop was cancelled
// through the flag the engine set on the context's behalf.
func (e *Engine) mapCancel(ctx context.Context, err error) error {
	if errors.Is(err, errdefs.ErrCancelled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func statsFrom(bench *benchmark.Info, promptTokens int) Stats {
	stats := Stats{PromptTokens: promptTokens}
	if turns := bench.PrefillTurns(); len(turns) > 0 {
		stats.PrefillDuration = turns[0].Duration
		stats.PrefillTPS = turns[0].TokensPerSecond()
	}
	if turns := bench.DecodeTurns(); len(turns) > 0 {
		stats.TokensGenerated = turns[0].Tokens
		stats.DecodeDuration = turns[0].Duration
		stats.DecodeTPS = turns[0].TokensPerSecond()
	}
	return stats
}

// streamBridge adapts the observer callbacks to a StreamFunc while
// accumulating the full text of every candidate. A terminal error is kept
// rather than forwarded: the decode loop reports context exhaustion that
// way, and the engine expresses it as FinishReason "length" instead.
type streamBridge struct {
	stream StreamFunc
	texts  []string
	err    error
	done   bool
}

func (b *streamBridge) OnNext(res pipeline.Responses) {
	for i, text := range res.Texts {
		if text == "" {
			continue
		}
		b.texts[i] += text
		if i == 0 {
			b.stream(text)
		}
	}
}

func (b *streamBridge) OnError(err error) { b.err = err }
func (b *streamBridge) OnDone()           { b.done = true }
