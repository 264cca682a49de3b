package pipeline

import (
	"github.com/samcharles93/kiln/internal/benchmark"
	"github.com/samcharles93/kiln/internal/errdefs"
	"github.com/samcharles93/kiln/internal/executor"
	"github.com/samcharles93/kiln/internal/tensor"
)

// Sampler selects next tokens from executor logits. It is only consulted on
// the external sampling path; logits.Sampler is the canonical implementation.
type Sampler interface {
	SampleToIDAndScoreBuffer(logits, ids, scores *tensor.Buffer) error
}

// samplingStrategy is chosen once per decode call and never changes
// mid-loop. Both implementations own their tensor buffers and reuse them
// across steps.
type samplingStrategy interface {
	// decodeAndSample advances the executor one step and returns the
	// buffer holding one next-token id per candidate.
	decodeAndSample(bench *benchmark.Info) (*tensor.Buffer, error)

	// scores returns the per-candidate scores of the latest step, or nil
	// when the strategy does not score.
	scores() []float32
}

// internalSampling lets the executor pick next tokens itself.
type internalSampling struct {
	exec executor.Executor
	out  *tensor.Buffer // [numCandidates, 1] ids written by the executor
}

func newInternalSampling(exec executor.Executor, numCandidates int) *internalSampling {
	return &internalSampling{
		exec: exec,
		out:  tensor.NewInt32(numCandidates, 1),
	}
}

func (s *internalSampling) decodeAndSample(bench *benchmark.Info) (*tensor.Buffer, error) {
	if bench != nil {
		if err := bench.TimeMarkDelta("executor_decode_and_sample"); err != nil {
			return nil, err
		}
	}
	if err := s.exec.Decode(s.out); err != nil {
		return nil, err
	}
	if bench != nil {
		if err := bench.TimeMarkDelta("executor_decode_and_sample"); err != nil {
			return nil, err
		}
	}
	return s.out, nil
}

func (s *internalSampling) scores() []float32 { return nil }

// externalSampling feeds the previous step's ids back to the executor, takes
// raw logits, and lets a separate sampler write ids and scores. The id
// buffer is supplied by the caller: it seeds the first step with the last
// prompt token and carries sampled ids between steps.
type externalSampling struct {
	exec       executor.Executor
	sampler    Sampler
	ids        *tensor.Buffer // caller-owned, [numCandidates, 1]
	scoreBuf   *tensor.Buffer // [numCandidates]
	scoresView []float32
}

func newExternalSampling(exec executor.Executor, sampler Sampler, ids *tensor.Buffer, numCandidates int) *externalSampling {
	return &externalSampling{
		exec:     exec,
		sampler:  sampler,
		ids:      ids,
		scoreBuf: tensor.NewFloat32(numCandidates),
	}
}

func (s *externalSampling) decodeAndSample(bench *benchmark.Info) (*tensor.Buffer, error) {
	if s.ids == nil {
		return nil, errdefs.Internalf("decoded id buffer must be provided for external sampling")
	}
	// The executor may consume the input buffer asynchronously, so it gets
	// its own copy while the sampler writes into the original.
	inputs := executor.Inputs{Text: &executor.TextData{TokenIDs: s.ids.Duplicate()}}

	if bench != nil {
		if err := bench.TimeMarkDelta("executor_decode"); err != nil {
			return nil, err
		}
	}
	logits, err := s.exec.DecodeLogits(inputs)
	if err != nil {
		return nil, err
	}
	if bench != nil {
		if err := bench.TimeMarkDelta("executor_decode"); err != nil {
			return nil, err
		}
		if err := bench.TimeMarkDelta("sampling"); err != nil {
			return nil, err
		}
	}
	if err := s.sampler.SampleToIDAndScoreBuffer(logits, s.ids, s.scoreBuf); err != nil {
		return nil, err
	}
	if bench != nil {
		if err := bench.TimeMarkDelta("sampling"); err != nil {
			return nil, err
		}
	}
	if s.scoresView == nil {
		s.scoresView, err = s.scoreBuf.Float32s()
		if err != nil {
			return nil, err
		}
	}
	return s.ids, nil
}

func (s *externalSampling) scores() []float32 { return s.scoresView }
