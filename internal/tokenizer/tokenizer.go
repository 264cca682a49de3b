package tokenizer

import (
	"strings"
	"unicode/utf8"

	"github.com/samcharles93/kiln/internal/tensor"
)

// Tokenizer is the contract the decode pipeline consumes. Implementations own
// the vocabulary tables; the pipeline only moves ids and text around.
type Tokenizer interface {
	Encode(text string) ([]int32, error)

	// Decode converts token ids to text. Decoding a sequence whose tail is
	// an unfinished multi-byte unit yields text for which
	// IsIncompleteSequence reports true.
	Decode(ids []int32) (string, error)

	// BufferToTokenIDs splits a [numCandidates, k] id buffer into one id
	// list per candidate.
	BufferToTokenIDs(buf *tensor.Buffer) ([][]int32, error)

	// MergeTokenIDs prepends each candidate's carried-over ids (from a
	// previous step that decoded to an incomplete unit) to its new ids.
	MergeTokenIDs(carry, next [][]int32) ([][]int32, error)

	// TokenIDsToTexts decodes each of the n candidates' id lists.
	TokenIDsToTexts(n int, ids [][]int32) ([]string, error)
}

// IsIncompleteSequence reports whether decoded text ends mid way through a
// multi-byte unit and must not be surfaced yet. Byte-fallback vocabularies
// emit one token per UTF-8 byte, so a single token of a multi-byte rune
// decodes to a replacement rune.
func IsIncompleteSequence(text string) bool {
	if text == "" {
		return false
	}
	if !utf8.ValidString(text) {
		return true
	}
	// Decoders substitute U+FFFD for bytes they could not complete.
	return strings.HasSuffix(text, string(utf8.RuneError))
}

// Whitespace marker used by sentencepiece-style vocabularies.
const spaceMarker = "▁"

// ReplaceSpaceMarkers rewrites sentencepiece whitespace markers as spaces in
// text destined for the caller.
func ReplaceSpaceMarkers(text string) string {
	return strings.ReplaceAll(text, spaceMarker, " ")
}
