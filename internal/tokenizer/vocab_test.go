package tokenizer

import (
	"testing"

	"github.com/samcharles93/kiln/internal/tensor"
)

func TestVocabEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	v := NewVocab([]string{"▁hello", "▁world", "!", "<0xE2>", "<0x82>", "<0xAC>"})

	ids, err := v.Encode("▁hello▁world!")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []int32{0, 1, 2}
	if len(ids) != len(want) {
		t.Fatalf("Encode = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Encode = %v, want %v", ids, want)
		}
	}

	text, err := v.Decode(ids)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if text != "▁hello▁world!" {
		t.Fatalf("Decode = %q", text)
	}
	if got := ReplaceSpaceMarkers(text); got != " hello world!" {
		t.Fatalf("ReplaceSpaceMarkers = %q, want %q", got, " hello world!")
	}
}

func TestVocabByteFallback(t *testing.T) {
	t.Parallel()

	v := NewVocab([]string{"a", "<0xE2>", "<0x82>", "<0xAC>"})

	// "€" is E2 82 AC; it is not in the table so it round-trips through
	// byte fallback tokens.
	ids, err := v.Encode("a€")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) != 4 {
		t.Fatalf("Encode = %v, want 4 ids", ids)
	}

	full, err := v.Decode(ids)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if full != "a€" {
		t.Fatalf("Decode = %q, want %q", full, "a€")
	}
	if IsIncompleteSequence(full) {
		t.Fatal("complete text flagged incomplete")
	}

	// Dropping the trailing byte leaves an unfinished rune.
	partial, err := v.Decode(ids[:3])
	if err != nil {
		t.Fatalf("Decode partial: %v", err)
	}
	if !IsIncompleteSequence(partial) {
		t.Fatalf("partial byte sequence %q not flagged incomplete", partial)
	}
}

func TestBufferToTokenIDs(t *testing.T) {
	t.Parallel()

	v := ByteVocab()

	buf := tensor.FromInt32([]int32{1, 2, 3, 4, 5, 6}, 2, 3)
	got, err := v.BufferToTokenIDs(buf)
	if err != nil {
		t.Fatalf("BufferToTokenIDs: %v", err)
	}
	if len(got) != 2 || len(got[0]) != 3 || got[0][0] != 1 || got[1][2] != 6 {
		t.Fatalf("BufferToTokenIDs = %v", got)
	}
}

func TestMergeTokenIDs(t *testing.T) {
	t.Parallel()

	v := ByteVocab()

	carry := [][]int32{{10, 11}, nil}
	next := [][]int32{{12}, {20}}
	got, err := v.MergeTokenIDs(carry, next)
	if err != nil {
		t.Fatalf("MergeTokenIDs: %v", err)
	}
	if len(got) != 2 || len(got[0]) != 3 || got[0][0] != 10 || got[0][2] != 12 || got[1][0] != 20 {
		t.Fatalf("MergeTokenIDs = %v", got)
	}

	if _, err := v.MergeTokenIDs([][]int32{nil}, next); err == nil {
		t.Fatal("MergeTokenIDs accepted mismatched candidate counts")
	}
}

func TestIsIncompleteSequence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want bool
	}{
		{name: "empty", text: "", want: false},
		{name: "ascii", text: "hello", want: false},
		{name: "complete-multibyte", text: "café", want: false},
		{name: "truncated-rune", text: "caf\xc3", want: true},
		{name: "lone-continuation", text: "\x82", want: true},
		{name: "replacement-tail", text: "abc�", want: true},
	}
	for _, tc := range cases {
		if got := IsIncompleteSequence(tc.text); got != tc.want {
			t.Errorf("%s: IsIncompleteSequence(%q) = %t, want %t", tc.name, tc.text, got, tc.want)
		}
	}
}
