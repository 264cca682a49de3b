package tokenizer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samcharles93/kiln/internal/errdefs"
	"github.com/samcharles93/kiln/internal/tensor"
)

// Vocab is a table-driven tokenizer: ids index directly into a token string
// table. Encoding is greedy longest-match with byte-fallback tokens
// (`<0xNN>`) for anything not in the table. It implements the full pipeline
// contract and backs the toy executor path and the tests.
type Vocab struct {
	tokens  []string
	index   map[string]int32
	byteID  [256]int32
	maxLen  int
	hasByte bool
}

// NewVocab builds a tokenizer from a token string table.
func NewVocab(tokens []string) *Vocab {
	v := &Vocab{
		tokens: append([]string(nil), tokens...),
		index:  make(map[string]int32, len(tokens)),
	}
	for i := range v.byteID {
		v.byteID[i] = -1
	}
	for i, t := range tokens {
		v.index[t] = int32(i)
		if len(t) > v.maxLen {
			v.maxLen = len(t)
		}
		if b, ok := parseByteFallback(t); ok {
			v.byteID[b] = int32(i)
			v.hasByte = true
		}
	}
	return v
}

// ByteVocab returns a vocabulary with one token per byte value, useful for
// exercising the pipeline without real model tables.
func ByteVocab() *Vocab {
	tokens := make([]string, 256)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("<0x%02X>", i)
	}
	return NewVocab(tokens)
}

func (v *Vocab) Encode(text string) ([]int32, error) {
	var ids []int32
	for i := 0; i < len(text); {
		matched := false
		limit := min(v.maxLen, len(text)-i)
		for l := limit; l > 0; l-- {
			if id, ok := v.index[text[i:i+l]]; ok {
				ids = append(ids, id)
				i += l
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if !v.hasByte || v.byteID[text[i]] < 0 {
			return nil, fmt.Errorf("tokenizer: no token or byte fallback for %q", text[i:i+1])
		}
		ids = append(ids, v.byteID[text[i]])
		i++
	}
	return ids, nil
}

func (v *Vocab) Decode(ids []int32) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || int(id) >= len(v.tokens) {
			return "", fmt.Errorf("tokenizer: token id %d out of range (vocab %d)", id, len(v.tokens))
		}
		tok := v.tokens[id]
		if b, ok := parseByteFallback(tok); ok {
			sb.WriteByte(b)
			continue
		}
		sb.WriteString(tok)
	}
	return sb.String(), nil
}

// Size returns the number of entries in the table.
func (v *Vocab) Size() int { return len(v.tokens) }

// TokenString returns the raw table entry for an id, or "" when out of range.
func (v *Vocab) TokenString(id int32) string {
	if id < 0 || int(id) >= len(v.tokens) {
		return ""
	}
	return v.tokens[id]
}

func (v *Vocab) BufferToTokenIDs(buf *tensor.Buffer) ([][]int32, error) {
	ids, err := buf.Int32s()
	if err != nil {
		return nil, err
	}
	dims := buf.Dims()
	if len(dims) == 0 {
		return nil, errdefs.Internalf("token id buffer has no dimensions")
	}
	n := dims[0]
	if n <= 0 || len(ids)%n != 0 {
		return nil, errdefs.Internalf("token id buffer length %d does not split into %d candidates", len(ids), n)
	}
	perCand := len(ids) / n
	out := make([][]int32, n)
	for i := 0; i < n; i++ {
		out[i] = append([]int32(nil), ids[i*perCand:(i+1)*perCand]...)
	}
	return out, nil
}

func (v *Vocab) MergeTokenIDs(carry, next [][]int32) ([][]int32, error) {
	if len(carry) != len(next) {
		return nil, errdefs.Internalf("carry-over holds %d candidates, new ids hold %d", len(carry), len(next))
	}
	out := make([][]int32, len(next))
	for i := range next {
		out[i] = append(append([]int32(nil), carry[i]...), next[i]...)
	}
	return out, nil
}

func (v *Vocab) TokenIDsToTexts(n int, ids [][]int32) ([]string, error) {
	if len(ids) != n {
		return nil, errdefs.Internalf("want %d candidates, got %d", n, len(ids))
	}
	texts := make([]string, n)
	for i := range ids {
		text, err := v.Decode(ids[i])
		if err != nil {
			return nil, err
		}
		texts[i] = text
	}
	return texts, nil
}

// parseByteFallback recognises sentencepiece byte tokens like <0x0D>.
func parseByteFallback(tok string) (byte, bool) {
	if len(tok) != 6 || tok[0] != '<' || tok[1] != '0' || tok[2] != 'x' || tok[5] != '>' {
		return 0, false
	}
	n, err := strconv.ParseUint(tok[3:5], 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(n), true
}
