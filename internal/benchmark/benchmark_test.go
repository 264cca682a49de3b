package benchmark

import (
	"errors"
	"testing"
	"time"

	"github.com/samcharles93/kiln/internal/errdefs"
)

// fakeClock advances a fixed amount on every reading.
type fakeClock struct {
	t    time.Time
	tick time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.tick)
	return c.t
}

func newTestInfo(params Params, tick time.Duration) *Info {
	info := NewInfo(params)
	clock := &fakeClock{t: info.created, tick: tick}
	info.now = clock.now
	return info
}

func TestTimeMarkDeltaPairs(t *testing.T) {
	t.Parallel()

	info := newTestInfo(Params{}, 10*time.Millisecond)

	if err := info.TimeMarkDelta("executor_decode"); err != nil {
		t.Fatalf("open mark: %v", err)
	}
	if err := info.TimeMarkDelta("executor_decode"); err != nil {
		t.Fatalf("close mark: %v", err)
	}
	if err := info.TimeMarkDelta("executor_decode"); err != nil {
		t.Fatalf("reopen mark: %v", err)
	}
	if err := info.TimeMarkDelta("executor_decode"); err != nil {
		t.Fatalf("reclose mark: %v", err)
	}

	total := info.MarkTotals()["executor_decode"]
	if total != 20*time.Millisecond {
		t.Fatalf("mark total = %v, want 20ms", total)
	}

	if err := info.TimeMarkDelta(""); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("empty label = %v, want invalid argument", err)
	}
}

func TestDecodeTurnAccounting(t *testing.T) {
	t.Parallel()

	info := newTestInfo(Params{NumDecodeTokens: 5}, time.Millisecond)

	if got := info.Params().NumDecodeTokens; got != 5 {
		t.Fatalf("Params().NumDecodeTokens = %d, want 5", got)
	}

	if err := info.TimeDecodeTurnEnd(1); !errors.Is(err, errdefs.ErrInternal) {
		t.Fatalf("TurnEnd without start = %v, want internal error", err)
	}
	if err := info.TimeDecodeTurnStart(); err != nil {
		t.Fatalf("TimeDecodeTurnStart: %v", err)
	}
	if err := info.TimeDecodeTurnStart(); !errors.Is(err, errdefs.ErrInternal) {
		t.Fatalf("double TurnStart = %v, want internal error", err)
	}
	if err := info.TimeDecodeTurnEnd(12); err != nil {
		t.Fatalf("TimeDecodeTurnEnd: %v", err)
	}

	turns := info.DecodeTurns()
	if len(turns) != 1 || turns[0].Tokens != 12 {
		t.Fatalf("DecodeTurns() = %+v, want one turn of 12 tokens", turns)
	}
	if turns[0].Duration <= 0 {
		t.Fatalf("decode turn duration = %v, want > 0", turns[0].Duration)
	}
}

func TestPrefillTurnFallsBackToCreation(t *testing.T) {
	t.Parallel()

	info := newTestInfo(Params{}, time.Millisecond)

	if err := info.TimePrefillTurnEnd(100); err != nil {
		t.Fatalf("TimePrefillTurnEnd: %v", err)
	}
	turns := info.PrefillTurns()
	if len(turns) != 1 || turns[0].Tokens != 100 || turns[0].Duration <= 0 {
		t.Fatalf("PrefillTurns() = %+v", turns)
	}
}

func TestTokensPerSecond(t *testing.T) {
	t.Parallel()

	turn := TurnStats{Tokens: 50, Duration: 2 * time.Second}
	if got := turn.TokensPerSecond(); got != 25 {
		t.Fatalf("TokensPerSecond() = %f, want 25", got)
	}
	if got := (TurnStats{Tokens: 10}).TokensPerSecond(); got != 0 {
		t.Fatalf("zero-duration TokensPerSecond() = %f, want 0", got)
	}
}
