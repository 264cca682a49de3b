package executor

import (
	"github.com/samcharles93/kiln/internal/tensor"
)

// Settings exposes the executor limits the pipeline needs to respect.
type Settings struct {
	// MaxTokens is the maximum context length (kv-cache capacity) in
	// tokens. Prefill rejects prompts at or beyond this limit and the
	// decode loop stops when the current step reaches it.
	MaxTokens int
}

// TextData carries the token ids of a text input.
type TextData struct {
	TokenIDs *tensor.Buffer
}

// Inputs bundles everything submitted to the executor for one prefill or
// decode request. Vision and audio slots mirror the text slot but are unused
// by this runtime's pipeline.
type Inputs struct {
	Text *TextData
}

// PrefillParams controls how a prefill request is executed.
type PrefillParams struct {
	// WaitForCompletion forces the call to block until the executor has
	// fully consumed the prompt. When false the executor may pipeline the
	// prefill with the first decode step.
	WaitForCompletion bool
}

// Executor is the numeric model runner consumed by the decode pipeline. The
// pipeline treats every call as a synchronous procedure call; implementations
// may pipeline work internally as long as results are visible when the call
// returns.
type Executor interface {
	// Settings returns the executor limits. Implementations that cannot
	// report limits should return an error; the pipeline falls back to a
	// default context length.
	Settings() (Settings, error)

	// CurrentStep is the absolute position in the context, i.e. the number
	// of tokens the executor has consumed so far.
	CurrentStep() int

	// Prefill feeds prompt tokens into the model.
	Prefill(inputs Inputs, params PrefillParams) error

	// Decode advances one step and samples internally, writing one next
	// token id per candidate into out (dims: [numCandidates, 1]).
	Decode(out *tensor.Buffer) error

	// DecodeLogits advances one step using the provided input tokens and
	// returns raw logits (dims: [numCandidates, vocabSize]) for an external
	// sampler.
	DecodeLogits(inputs Inputs) (*tensor.Buffer, error)
}
