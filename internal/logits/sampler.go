// Package logits selects next tokens from raw model logits. It implements
// the external sampling path of the decode pipeline: the executor produces
// logits, the sampler writes sampled ids and their scores back into the
// pipeline's tensor buffers.
package logits

import (
	"math"
	"math/rand"
	"sort"

	"github.com/samcharles93/kiln/internal/errdefs"
	"github.com/samcharles93/kiln/internal/tensor"
)

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Seed        int64
	Temperature float32
	TopK        int
	TopP        float32
}

// Sampler draws token ids from logits rows. Scratch buffers are reused
// across calls; a Sampler must not be shared between concurrent decode
// calls.
type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	greedy bool

	topIdx []int
	topVal []float32
	prob   []float64
}

// NewSampler returns a sampler with the provided configuration. A
// non-positive temperature selects greedy decoding.
func NewSampler(cfg SamplerConfig) *Sampler {
	greedy := cfg.Temperature <= 0
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 40
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	return &Sampler{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		cfg:    cfg,
		greedy: greedy,
	}
}

// SampleToIDAndScoreBuffer samples one next token per candidate from a
// [numCandidates, vocab] logits buffer, writing ids into the ids buffer and
// the log-probability of each pick into scores. The ids buffer doubles as
// the executor input for the following step, so candidate order is
// preserved.
func (s *Sampler) SampleToIDAndScoreBuffer(logits, ids, scores *tensor.Buffer) error {
	lv, err := logits.Float32s()
	if err != nil {
		return err
	}
	iv, err := ids.Int32s()
	if err != nil {
		return err
	}
	sv, err := scores.Float32s()
	if err != nil {
		return err
	}
	n := len(iv)
	if n == 0 || len(sv) != n {
		return errdefs.Internalf("sampler buffers disagree: %d id slots vs %d score slots", n, len(sv))
	}
	if len(lv)%n != 0 {
		return errdefs.Internalf("logits length %d does not split into %d candidates", len(lv), n)
	}
	vocab := len(lv) / n
	if vocab == 0 {
		return errdefs.Internalf("logits row is empty")
	}
	for i := 0; i < n; i++ {
		id, logProb := s.sampleRow(lv[i*vocab : (i+1)*vocab])
		iv[i] = int32(id)
		sv[i] = float32(logProb)
	}
	return nil
}

// sampleRow picks one index from a logits row and returns it with its
// log-probability under the truncated, renormalised distribution.
func (s *Sampler) sampleRow(row []float32) (int, float64) {
	if s.greedy {
		idx := argmax(row)
		return idx, 0 // greedy picks with certainty
	}

	invTemp := 1.0 / s.cfg.Temperature
	k := min(s.cfg.TopK, len(row))
	s.topK(row, k, invTemp)

	// Softmax over the shortlist, shifted by the max for stability.
	maxv := s.topVal[0]
	if cap(s.prob) < len(s.topVal) {
		s.prob = make([]float64, len(s.topVal))
	}
	prob := s.prob[:len(s.topVal)]
	var sum float64
	for i, v := range s.topVal {
		e := math.Exp(float64(v - maxv))
		prob[i] = e
		sum += e
	}
	if sum == 0 {
		return s.topIdx[0], 0
	}
	for i := range prob {
		prob[i] /= sum
	}

	// Nucleus truncation: keep the smallest prefix reaching TopP.
	cut := len(prob)
	if s.cfg.TopP < 1 {
		var c float64
		for i := range prob {
			c += prob[i]
			if float32(c) >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
	}
	var mass float64
	for i := 0; i < cut; i++ {
		mass += prob[i]
	}

	r := s.rng.Float64() * mass
	var c float64
	for i := 0; i < cut; i++ {
		c += prob[i]
		if r <= c {
			return s.topIdx[i], math.Log(prob[i] / mass)
		}
	}
	return s.topIdx[cut-1], math.Log(prob[cut-1] / mass)
}

// topK fills s.topIdx/s.topVal with the indices and temperature-scaled
// values of the k largest logits, sorted descending.
func (s *Sampler) topK(row []float32, k int, invTemp float32) {
	if cap(s.topIdx) < len(row) {
		s.topIdx = make([]int, len(row))
		s.topVal = make([]float32, len(row))
	}
	idx := s.topIdx[:len(row)]
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return row[idx[a]] > row[idx[b]] })

	s.topIdx = idx[:k]
	val := s.topVal[:k]
	for i := 0; i < k; i++ {
		val[i] = row[idx[i]] * invTemp
	}
	s.topVal = val
}

// argmax returns the index of the maximum value in the slice. It panics on
// an empty slice.
func argmax(x []float32) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return best
}
