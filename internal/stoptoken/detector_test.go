package stoptoken

import (
	"errors"
	"testing"

	"github.com/samcharles93/kiln/internal/errdefs"
)

func feed(t *testing.T, d *Detector, tokens ...int32) {
	t.Helper()
	for _, tok := range tokens {
		if err := d.ProcessTokens([]int32{tok}); err != nil {
			t.Fatalf("ProcessTokens(%d): %v", tok, err)
		}
	}
}

func TestSingleTokenStop(t *testing.T) {
	t.Parallel()

	d := NewDetector(1)
	if err := d.AddStopSequence([]int32{2}); err != nil {
		t.Fatalf("AddStopSequence: %v", err)
	}

	feed(t, d, 5, 7)
	if d.StopFound()[0] || d.AllDone() {
		t.Fatal("stopped before the stop token arrived")
	}
	feed(t, d, 2)
	if !d.StopFound()[0] || !d.AllDone() {
		t.Fatal("single-token stop sequence not detected")
	}
}

func TestMultiTokenStopAndPartials(t *testing.T) {
	t.Parallel()

	d := NewDetector(1)
	if err := d.AddStopSequence([]int32{10, 11, 12}); err != nil {
		t.Fatalf("AddStopSequence: %v", err)
	}

	feed(t, d, 10)
	if got := d.MaxPartialStopTokenLength(0); got != 1 {
		t.Fatalf("partial length after first stop token = %d, want 1", got)
	}
	feed(t, d, 11)
	if got := d.MaxPartialStopTokenLength(0); got != 2 {
		t.Fatalf("partial length after second stop token = %d, want 2", got)
	}

	// A mismatch abandons the partial match.
	feed(t, d, 99)
	if got := d.MaxPartialStopTokenLength(0); got != 0 {
		t.Fatalf("partial length after mismatch = %d, want 0", got)
	}
	if d.StopFound()[0] {
		t.Fatal("stop reported without a complete match")
	}

	feed(t, d, 10, 11, 12)
	if !d.StopFound()[0] {
		t.Fatal("full stop sequence not detected")
	}
	if got := d.MaxPartialStopTokenLength(0); got != 0 {
		t.Fatalf("partial length after stop = %d, want 0", got)
	}
}

func TestPartialRestartsOnOverlap(t *testing.T) {
	t.Parallel()

	d := NewDetector(1)
	if err := d.AddStopSequence([]int32{10, 10, 11}); err != nil {
		t.Fatalf("AddStopSequence: %v", err)
	}

	// 10 10 10 keeps a two-token partial alive: the last two tokens are
	// still a prefix of the sequence.
	feed(t, d, 10, 10, 10)
	if got := d.MaxPartialStopTokenLength(0); got != 2 {
		t.Fatalf("partial length = %d, want 2", got)
	}
	feed(t, d, 11)
	if !d.StopFound()[0] {
		t.Fatal("overlapping stop sequence not detected")
	}
}

func TestMultipleCandidates(t *testing.T) {
	t.Parallel()

	d := NewDetector(2)
	if err := d.AddStopSequence([]int32{3, 4}); err != nil {
		t.Fatalf("AddStopSequence: %v", err)
	}

	// Candidate 0 emits the stop pair, candidate 1 does not.
	if err := d.ProcessTokens([]int32{3, 9}); err != nil {
		t.Fatalf("ProcessTokens: %v", err)
	}
	if err := d.ProcessTokens([]int32{4, 3}); err != nil {
		t.Fatalf("ProcessTokens: %v", err)
	}

	stops := d.StopFound()
	if !stops[0] || stops[1] {
		t.Fatalf("StopFound() = %v, want [true false]", stops)
	}
	if d.AllDone() {
		t.Fatal("AllDone with a live candidate")
	}
	if got := d.MaxPartialStopTokenLength(1); got != 1 {
		t.Fatalf("candidate 1 partial length = %d, want 1", got)
	}

	if err := d.ProcessTokens([]int32{99, 4}); err != nil {
		t.Fatalf("ProcessTokens: %v", err)
	}
	if !d.AllDone() {
		t.Fatal("AllDone not reported after every candidate stopped")
	}
}

func TestCloneIsolatesState(t *testing.T) {
	t.Parallel()

	base := NewDetector(1)
	if err := base.AddStopSequence([]int32{1, 2}); err != nil {
		t.Fatalf("AddStopSequence: %v", err)
	}
	feed(t, base, 1)

	clone := base.Clone()
	feed(t, clone, 2)
	if !clone.StopFound()[0] {
		t.Fatal("clone did not complete the match")
	}
	if base.StopFound()[0] {
		t.Fatal("feeding the clone mutated the original")
	}
}

func TestProcessTokensValidation(t *testing.T) {
	t.Parallel()

	d := NewDetector(2)
	if err := d.AddStopSequence([]int32{1}); err != nil {
		t.Fatalf("AddStopSequence: %v", err)
	}
	if err := d.ProcessTokens([]int32{1, 2, 3}); !errors.Is(err, errdefs.ErrInternal) {
		t.Fatalf("ProcessTokens with odd span = %v, want internal error", err)
	}
	if err := d.AddStopSequence(nil); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("AddStopSequence(nil) = %v, want invalid argument", err)
	}
}
