// Package pipeline drives token-by-token generation: it feeds the prompt to
// the executor, then repeatedly decodes, samples, detokenizes and
// stop-checks until a stop condition fires, streaming or accumulating the
// text produced along the way. The executor, tokenizer, sampler and stop
// detector are collaborators consumed through narrow contracts; the pipeline
// owns only the control flow and the bookkeeping around it.
package pipeline

import (
	"math"
	"sync/atomic"

	"github.com/samcharles93/kiln/internal/benchmark"
	"github.com/samcharles93/kiln/internal/errdefs"
	"github.com/samcharles93/kiln/internal/executor"
	"github.com/samcharles93/kiln/internal/logger"
	"github.com/samcharles93/kiln/internal/stoptoken"
	"github.com/samcharles93/kiln/internal/tensor"
	"github.com/samcharles93/kiln/internal/tokenizer"
)

// defaultMaxTokens caps the context for executors that cannot report their
// own limit.
const defaultMaxTokens = 4096

// maxNumTokens asks the executor for its context limit, falling back to the
// default when settings are unavailable.
func maxNumTokens(exec executor.Executor) int {
	settings, err := exec.Settings()
	if err != nil {
		logger.Default().Warn("executor settings unavailable, using default max tokens",
			"error", err, "default", defaultMaxTokens)
		return defaultMaxTokens
	}
	return settings.MaxTokens
}

// shouldStop evaluates the loop stop policy. The conditions are independent;
// whichever becomes true first ends the loop.
func shouldStop(allDone bool, benchTarget, stepsDone, currentStep, maxTokens int) bool {
	switch {
	case allDone && benchTarget == 0:
		// Every candidate hit a stop sequence and no fixed decode count
		// was requested.
		return true
	case benchTarget > 0 && stepsDone >= benchTarget:
		// A benchmark requested an exact number of decode steps.
		return true
	case currentStep >= maxTokens:
		// Context (kv-cache) capacity reached.
		return true
	}
	return false
}

// Prefill validates the prompt and submits it to the executor. It returns
// the id of the last prompt token, which seeds the first decode step on the
// external sampling path.
func Prefill(exec executor.Executor, inputs executor.Inputs, waitForCompletion bool, bench *benchmark.Info) (int32, error) {
	maxTokens := maxNumTokens(exec)
	if inputs.Text == nil || inputs.Text.TokenIDs == nil {
		return 0, errdefs.Internalf("prefill inputs missing text data")
	}
	ids, err := inputs.Text.TokenIDs.Int32s()
	if err != nil {
		return 0, err
	}
	if len(ids) >= maxTokens {
		return 0, errdefs.InvalidArgumentf("input token ids are too long: %d >= maximum of %d", len(ids), maxTokens)
	}
	if len(ids) == 0 {
		return 0, errdefs.Internalf("input token ids are empty")
	}
	lastToken := ids[len(ids)-1]

	if bench != nil {
		if err := bench.TimePrefillTurnStart(); err != nil {
			return 0, err
		}
	}
	if err := exec.Prefill(inputs, executor.PrefillParams{WaitForCompletion: waitForCompletion}); err != nil {
		return 0, err
	}
	if bench != nil {
		if err := bench.TimePrefillTurnEnd(len(ids)); err != nil {
			return 0, err
		}
	}
	return lastToken, nil
}

// loopConfig gathers everything one decode call needs. The four public entry
// points are fixed configurations of this struct.
type loopConfig struct {
	exec          executor.Executor
	tok           tokenizer.Tokenizer
	detector      *stoptoken.Detector
	numCandidates int
	bench         *benchmark.Info
	sampler       Sampler        // nil selects internal sampling
	decodedIDs    *tensor.Buffer // required with an external sampler
	observer      Observable     // nil selects blocking mode
	cancel        *atomic.Bool   // nil means not cancellable
}

// decodeLoop runs decode steps until the stop policy fires. In streaming
// mode all text is pushed through the observer and the returned Responses is
// empty; in blocking mode the accumulated Responses is returned.
func decodeLoop(cfg loopConfig) (Responses, error) {
	isStreaming := cfg.observer != nil
	isCustom := cfg.sampler != nil

	fail := func(err error) (Responses, error) {
		if isStreaming {
			cfg.observer.OnError(err)
		}
		return Responses{}, err
	}

	benchTarget := 0
	if cfg.bench != nil {
		benchTarget = cfg.bench.Params().NumDecodeTokens
		if err := cfg.bench.TimeDecodeTurnStart(); err != nil {
			return fail(err)
		}
	}

	final := NewResponses(cfg.numCandidates)
	accumulatedScores := make([]float32, cfg.numCandidates)
	numDecodedTokens := make([]int, cfg.numCandidates)

	var strategy samplingStrategy
	if isCustom {
		strategy = newExternalSampling(cfg.exec, cfg.sampler, cfg.decodedIDs, cfg.numCandidates)
	} else {
		strategy = newInternalSampling(cfg.exec, cfg.numCandidates)
	}

	maxTokens := maxNumTokens(cfg.exec)
	step := newDecodeOneStep(cfg.tok, cfg.numCandidates, cfg.detector.Clone(), cfg.bench, strategy)

	numSteps := 0
	for {
		// Cooperative cancellation, observed once per iteration; an
		// in-flight executor call is never interrupted.
		if cfg.cancel != nil && cfg.cancel.Load() {
			return fail(errdefs.Cancelledf("decode cancelled"))
		}

		allDone, err := step.run()
		if err != nil {
			return fail(err)
		}
		numSteps++

		stepResponses := NewResponses(cfg.numCandidates)
		anyUpdate := false
		for j := 0; j < cfg.numCandidates; j++ {
			text := step.stepText(j)
			if text == "" {
				// Nothing surfaced: early stop, an unfinished
				// multi-byte fragment, or a possible partial stop
				// match being held back.
				continue
			}
			anyUpdate = true
			text = tokenizer.ReplaceSpaceMarkers(text)
			if isStreaming {
				stepResponses.Texts[j] = text
				if isCustom {
					stepResponses.Scores[j] = step.scores()[j]
				}
			} else {
				final.Texts[j] += text
				if isCustom {
					accumulatedScores[j] += step.scores()[j]
					numDecodedTokens[j]++
				}
			}
		}

		if isStreaming && anyUpdate && !allDone {
			cfg.observer.OnNext(stepResponses)
		}

		if shouldStop(allDone, benchTarget, numSteps, cfg.exec.CurrentStep(), maxTokens) {
			break
		}
	}

	if cfg.bench != nil {
		if err := cfg.bench.TimeDecodeTurnEnd(numSteps * cfg.numCandidates); err != nil {
			return fail(err)
		}
	}

	// Candidates that never resolved their buffered partial-stop text get
	// it back: the loop ended for another reason, so the fragments are
	// ordinary output. Flushed before any terminal event is signalled.
	flushed := NewResponses(cfg.numCandidates)
	anyFlushed := false
	for j, stopped := range step.stopFound() {
		if stopped {
			continue
		}
		if rem := step.flushPending(j); rem != "" {
			rem = tokenizer.ReplaceSpaceMarkers(rem)
			anyFlushed = true
			if isStreaming {
				flushed.Texts[j] = rem
			} else {
				final.Texts[j] += rem
			}
		}
	}

	if isStreaming {
		if anyFlushed {
			cfg.observer.OnNext(flushed)
		}
		if cfg.exec.CurrentStep() >= maxTokens {
			cfg.observer.OnError(errdefs.Internalf("maximum context length of %d reached", maxTokens))
		} else {
			cfg.observer.OnDone()
		}
		return NewResponses(0), nil
	}

	if isCustom {
		for j := 0; j < cfg.numCandidates; j++ {
			if numDecodedTokens[j] > 0 {
				final.Scores[j] = accumulatedScores[j] / float32(numDecodedTokens[j])
			} else {
				// The candidate produced no tokens, e.g. it matched a
				// stop sequence immediately.
				final.Scores[j] = float32(math.Inf(-1))
			}
		}
	}
	return final, nil
}

// Decode generates a single candidate with executor-internal sampling,
// blocking until a stop condition fires.
func Decode(exec executor.Executor, tok tokenizer.Tokenizer, detector *stoptoken.Detector,
	bench *benchmark.Info, cancel *atomic.Bool) (Responses, error) {
	return decodeLoop(loopConfig{
		exec:          exec,
		tok:           tok,
		detector:      detector,
		numCandidates: 1,
		bench:         bench,
		cancel:        cancel,
	})
}

// DecodeStreaming generates a single candidate with executor-internal
// sampling, pushing per-step deltas to the observer.
func DecodeStreaming(exec executor.Executor, tok tokenizer.Tokenizer, detector *stoptoken.Detector,
	bench *benchmark.Info, observer Observable, cancel *atomic.Bool) error {
	if observer == nil {
		return errdefs.InvalidArgumentf("observer must not be nil for streaming")
	}
	_, err := decodeLoop(loopConfig{
		exec:          exec,
		tok:           tok,
		detector:      detector,
		numCandidates: 1,
		bench:         bench,
		observer:      observer,
		cancel:        cancel,
	})
	return err
}

// DecodeCustomSampling generates numCandidates candidates using an external
// sampler, blocking until a stop condition fires. decodedIDs must hold one
// seed token per candidate (normally the last prompt token returned by
// Prefill) and is rewritten with the sampled ids every step.
func DecodeCustomSampling(exec executor.Executor, tok tokenizer.Tokenizer, detector *stoptoken.Detector,
	numCandidates int, sampler Sampler, decodedIDs *tensor.Buffer,
	bench *benchmark.Info, cancel *atomic.Bool) (Responses, error) {
	return decodeLoop(loopConfig{
		exec:          exec,
		tok:           tok,
		detector:      detector,
		numCandidates: numCandidates,
		bench:         bench,
		sampler:       sampler,
		decodedIDs:    decodedIDs,
		cancel:        cancel,
	})
}

// DecodeCustomSamplingStreaming generates numCandidates candidates using an
// external sampler, pushing per-step deltas to the observer.
func DecodeCustomSamplingStreaming(exec executor.Executor, tok tokenizer.Tokenizer, detector *stoptoken.Detector,
	numCandidates int, sampler Sampler, decodedIDs *tensor.Buffer,
	bench *benchmark.Info, observer Observable, cancel *atomic.Bool) error {
	if observer == nil {
		return errdefs.InvalidArgumentf("observer must not be nil for streaming")
	}
	_, err := decodeLoop(loopConfig{
		exec:          exec,
		tok:           tok,
		detector:      detector,
		numCandidates: numCandidates,
		bench:         bench,
		sampler:       sampler,
		decodedIDs:    decodedIDs,
		observer:      observer,
		cancel:        cancel,
	})
	return err
}
