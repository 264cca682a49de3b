// Package stoptoken implements incremental stop-sequence matching over token
// ids. One Detector tracks every output candidate of a decode call; each
// decode step feeds it the newly sampled token per candidate and asks whether
// a configured stop sequence has completed or could still complete.
package stoptoken

import (
	"github.com/samcharles93/kiln/internal/errdefs"
)

// Detector matches configured stop token sequences against each candidate's
// token stream. It assumes it sees every decoded token exactly once, in step
// order.
type Detector struct {
	sequences [][]int32
	maxSeqLen int

	// recent holds the trailing window of tokens per candidate, capped at
	// the longest stop sequence.
	recent  [][]int32
	stopped []bool
}

// NewDetector returns a detector tracking numCandidates parallel streams.
func NewDetector(numCandidates int) *Detector {
	d := &Detector{
		recent:  make([][]int32, numCandidates),
		stopped: make([]bool, numCandidates),
	}
	return d
}

// AddStopSequence registers a stop token sequence. Empty sequences are
// rejected.
func (d *Detector) AddStopSequence(ids []int32) error {
	if len(ids) == 0 {
		return errdefs.InvalidArgumentf("stop sequence must not be empty")
	}
	d.sequences = append(d.sequences, append([]int32(nil), ids...))
	if len(ids) > d.maxSeqLen {
		d.maxSeqLen = len(ids)
	}
	return nil
}

// NumCandidates returns the number of tracked candidate streams.
func (d *Detector) NumCandidates() int { return len(d.recent) }

// Clone returns a deep copy so a decode call can own private match state.
func (d *Detector) Clone() *Detector {
	dup := &Detector{
		sequences: d.sequences, // append-only after setup, safe to share
		maxSeqLen: d.maxSeqLen,
		recent:    make([][]int32, len(d.recent)),
		stopped:   append([]bool(nil), d.stopped...),
	}
	for i := range d.recent {
		dup.recent[i] = append([]int32(nil), d.recent[i]...)
	}
	return dup
}

// ProcessTokens feeds one step's tokens for all candidates. The flat span
// holds the same number of tokens per candidate, candidate-major; its length
// must divide evenly by the candidate count. Candidates already stopped
// ignore further tokens.
func (d *Detector) ProcessTokens(flat []int32) error {
	n := len(d.recent)
	if n == 0 {
		return errdefs.Internalf("detector has no candidates")
	}
	if len(flat)%n != 0 {
		return errdefs.Internalf("token span of %d does not divide across %d candidates", len(flat), n)
	}
	perCand := len(flat) / n
	for i := 0; i < n; i++ {
		if d.stopped[i] {
			continue
		}
		for _, tok := range flat[i*perCand : (i+1)*perCand] {
			d.push(i, tok)
			if d.matchComplete(i) {
				d.stopped[i] = true
				break
			}
		}
	}
	return nil
}

// StopFound reports, per candidate, whether a stop sequence has completed.
// The returned slice is the detector's own state and must not be modified.
func (d *Detector) StopFound() []bool { return d.stopped }

// MaxPartialStopTokenLength returns the length in tokens of the longest
// still-open partial stop sequence match for candidate i, i.e. how many
// trailing tokens could yet turn out to belong to a stop sequence. Zero means
// the trailing tokens cannot extend into any stop sequence.
func (d *Detector) MaxPartialStopTokenLength(i int) int {
	if i < 0 || i >= len(d.recent) || d.stopped[i] {
		return 0
	}
	window := d.recent[i]
	best := 0
	for _, seq := range d.sequences {
		// Longest proper prefix of seq equal to a suffix of the window.
		limit := min(len(seq)-1, len(window))
		for l := limit; l > best; l-- {
			if suffixEquals(window, seq[:l]) {
				best = l
				break
			}
		}
	}
	return best
}

// AllDone reports whether every candidate has hit a stop sequence.
func (d *Detector) AllDone() bool {
	for _, s := range d.stopped {
		if !s {
			return false
		}
	}
	return true
}

func (d *Detector) push(i int, tok int32) {
	if d.maxSeqLen == 0 {
		return
	}
	w := append(d.recent[i], tok)
	if len(w) > d.maxSeqLen {
		w = w[len(w)-d.maxSeqLen:]
	}
	d.recent[i] = w
}

func (d *Detector) matchComplete(i int) bool {
	for _, seq := range d.sequences {
		if suffixEquals(d.recent[i], seq) {
			return true
		}
	}
	return false
}

func suffixEquals(window, seq []int32) bool {
	if len(seq) > len(window) {
		return false
	}
	off := len(window) - len(seq)
	for j := range seq {
		if window[off+j] != seq[j] {
			return false
		}
	}
	return true
}
