package pipeline

import (
	"github.com/samcharles93/kiln/internal/benchmark"
	"github.com/samcharles93/kiln/internal/stoptoken"
	"github.com/samcharles93/kiln/internal/tokenizer"
)

// decodeOneStep runs a single decode+sample+detokenize+stop-check cycle for
// every candidate. One instance serves a whole multi-step decode call: its
// buffers are allocated once, and the carried-over state below survives from
// step to step.
type decodeOneStep struct {
	tok           tokenizer.Tokenizer
	numCandidates int
	strategy      samplingStrategy
	detector      *stoptoken.Detector
	bench         *benchmark.Info

	// resultText holds the text each candidate may surface this step.
	// Reset at the top of every run.
	resultText []string

	// bpeCarry holds token ids whose text was an unfinished multi-byte
	// unit; they are merged into the next step's ids instead of being
	// surfaced.
	bpeCarry [][]int32

	// pendingStop queues text fragments that could still complete a stop
	// sequence. Bounded per step by the detector's longest open partial
	// match; anything beyond that bound is released to resultText.
	pendingStop [][]string
}

func newDecodeOneStep(tok tokenizer.Tokenizer, numCandidates int,
	detector *stoptoken.Detector, bench *benchmark.Info, strategy samplingStrategy) *decodeOneStep {
	return &decodeOneStep{
		tok:           tok,
		numCandidates: numCandidates,
		strategy:      strategy,
		detector:      detector,
		bench:         bench,
		resultText:    make([]string, numCandidates),
		bpeCarry:      make([][]int32, numCandidates),
		pendingStop:   make([][]string, numCandidates),
	}
}

// run advances every candidate by one token and reports whether all
// candidates have hit a stop sequence.
func (d *decodeOneStep) run() (allDone bool, err error) {
	next, err := d.strategy.decodeAndSample(d.bench)
	if err != nil {
		return false, err
	}

	tokenIDs, err := d.tok.BufferToTokenIDs(next)
	if err != nil {
		return false, err
	}

	// Prepend any carried-over partial-fragment ids before detokenizing.
	merged, err := d.tok.MergeTokenIDs(d.bpeCarry, tokenIDs)
	if err != nil {
		return false, err
	}

	// The detector always sees the raw new tokens, carried-over or not.
	flat, err := next.Int32s()
	if err != nil {
		return false, err
	}
	if err := d.detector.ProcessTokens(flat); err != nil {
		return false, err
	}

	texts, err := d.tok.TokenIDsToTexts(d.numCandidates, merged)
	if err != nil {
		return false, err
	}

	stops := d.detector.StopFound()
	for i := 0; i < d.numCandidates; i++ {
		d.resultText[i] = ""
		switch {
		case tokenizer.IsIncompleteSequence(texts[i]):
			// Hold the ids back until the fragment completes.
			d.bpeCarry[i] = merged[i]
		case !stops[i]:
			d.bpeCarry[i] = nil

			maxLen := d.detector.MaxPartialStopTokenLength(i)
			if maxLen > 0 {
				d.pendingStop[i] = append(d.pendingStop[i], texts[i])
			}
			// Fragments older than the longest open partial match can
			// no longer belong to a stop sequence; release them.
			for len(d.pendingStop[i]) > maxLen {
				d.resultText[i] += d.pendingStop[i][0]
				d.pendingStop[i] = d.pendingStop[i][1:]
			}
			if maxLen == 0 {
				d.resultText[i] += texts[i]
			}
		default:
			// Candidate already stopped: the buffered fragments were
			// part of the stop sequence, nothing is surfaced.
		}
	}

	return d.detector.AllDone(), nil
}

// stepText returns the text candidate i may surface this step.
func (d *decodeOneStep) stepText(i int) string { return d.resultText[i] }

// scores returns the per-candidate scores of the latest step (external
// sampling only).
func (d *decodeOneStep) scores() []float32 { return d.strategy.scores() }

// stopFound reports per-candidate stop state.
func (d *decodeOneStep) stopFound() []bool { return d.detector.StopFound() }

// flushPending drains candidate i's pending-stop queue and returns the
// buffered text. Used at loop finalization for candidates whose buffered
// fragments never resolved into a confirmed stop match.
func (d *decodeOneStep) flushPending(i int) string {
	var out string
	for _, frag := range d.pendingStop[i] {
		out += frag
	}
	d.pendingStop[i] = nil
	return out
}
