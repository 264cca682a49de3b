// Package benchmark accumulates timing statistics for the decode pipeline:
// labelled time marks around executor and sampler calls, and per-turn prefill
// and decode durations. Totals are also exported as Prometheus metrics.
package benchmark

import (
	"time"

	"github.com/samcharles93/kiln/internal/errdefs"
)

// Params requests benchmark-specific behaviour from the decode loop.
type Params struct {
	// NumDecodeTokens, when positive, forces the decode loop to run exactly
	// this many steps regardless of stop sequences.
	NumDecodeTokens int
}

// TurnStats describes one prefill or decode turn.
type TurnStats struct {
	Tokens   int
	Duration time.Duration
}

// TokensPerSecond returns the turn throughput, or zero for an instant turn.
func (t TurnStats) TokensPerSecond() float64 {
	if t.Duration <= 0 {
		return 0
	}
	return float64(t.Tokens) / t.Duration.Seconds()
}

// Info collects benchmark timings for one session. It is not safe for
// concurrent use; each decode call drives it from a single goroutine.
type Info struct {
	params Params

	now func() time.Time

	created      time.Time
	prefillStart time.Time
	decodeStart  time.Time
	decodeOpen   bool

	prefillTurns []TurnStats
	decodeTurns  []TurnStats

	openMarks  map[string]time.Time
	markTotals map[string]time.Duration
}

// NewInfo returns an Info with the given parameters.
func NewInfo(params Params) *Info {
	now := time.Now()
	return &Info{
		params:     params,
		now:        time.Now,
		created:    now,
		openMarks:  make(map[string]time.Time),
		markTotals: make(map[string]time.Duration),
	}
}

// Params returns the benchmark parameters.
func (b *Info) Params() Params { return b.params }

// TimeMarkDelta opens a labelled mark on the first call and closes it on the
// second, accumulating the elapsed time under the label. Calls come in pairs
// around the section being measured.
func (b *Info) TimeMarkDelta(label string) error {
	if label == "" {
		return errdefs.InvalidArgumentf("time mark label must not be empty")
	}
	if start, open := b.openMarks[label]; open {
		d := b.now().Sub(start)
		b.markTotals[label] += d
		markDuration.WithLabelValues(label).Observe(d.Seconds())
		delete(b.openMarks, label)
		return nil
	}
	b.openMarks[label] = b.now()
	return nil
}

// TimePrefillTurnStart marks the beginning of a prefill turn. When never
// called, the turn is measured from Info creation.
func (b *Info) TimePrefillTurnStart() error {
	b.prefillStart = b.now()
	return nil
}

// TimePrefillTurnEnd closes the current prefill turn covering numTokens
// prompt tokens.
func (b *Info) TimePrefillTurnEnd(numTokens int) error {
	start := b.prefillStart
	if start.IsZero() {
		start = b.created
	}
	turn := TurnStats{Tokens: numTokens, Duration: b.now().Sub(start)}
	b.prefillTurns = append(b.prefillTurns, turn)
	b.prefillStart = time.Time{}
	prefillTokensTotal.Add(float64(numTokens))
	prefillTurnDuration.Observe(turn.Duration.Seconds())
	return nil
}

// TimeDecodeTurnStart marks the beginning of a decode turn.
func (b *Info) TimeDecodeTurnStart() error {
	if b.decodeOpen {
		return errdefs.Internalf("decode turn already started")
	}
	b.decodeStart = b.now()
	b.decodeOpen = true
	return nil
}

// TimeDecodeTurnEnd closes the current decode turn covering numTokens
// decoded tokens (steps times candidates).
func (b *Info) TimeDecodeTurnEnd(numTokens int) error {
	if !b.decodeOpen {
		return errdefs.Internalf("decode turn ended without a start")
	}
	turn := TurnStats{Tokens: numTokens, Duration: b.now().Sub(b.decodeStart)}
	b.decodeTurns = append(b.decodeTurns, turn)
	b.decodeOpen = false
	decodeTokensTotal.Add(float64(numTokens))
	decodeTurnDuration.Observe(turn.Duration.Seconds())
	return nil
}

// PrefillTurns returns the recorded prefill turns in order.
func (b *Info) PrefillTurns() []TurnStats { return b.prefillTurns }

// DecodeTurns returns the recorded decode turns in order.
func (b *Info) DecodeTurns() []TurnStats { return b.decodeTurns }

// MarkTotals returns accumulated durations per mark label.
func (b *Info) MarkTotals() map[string]time.Duration { return b.markTotals }
