package pipeline

// Responses holds the output of one decode call: one text per candidate and,
// when an external sampler is active, one score per candidate. In streaming
// mode each OnNext carries a Responses with only that step's deltas.
type Responses struct {
	Texts  []string
	Scores []float32
}

// NewResponses returns an empty Responses for n candidates.
func NewResponses(n int) Responses {
	return Responses{
		Texts:  make([]string, n),
		Scores: make([]float32, n),
	}
}

// NumCandidates returns the number of candidate slots.
func (r Responses) NumCandidates() int { return len(r.Texts) }

// Observable receives streaming decode output. OnNext may be called any
// number of times; exactly one of OnError or OnDone terminates the stream.
// Calls arrive from the goroutine driving the decode loop, in step order.
type Observable interface {
	OnNext(res Responses)
	OnError(err error)
	OnDone()
}
