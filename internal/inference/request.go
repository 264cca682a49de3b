package inference

// Request holds fully resolved generation parameters.
type Request struct {
	Prompt string

	Candidates int
	Steps      int // cap on new tokens per candidate, -1 for no cap
	Seed       int64

	Temperature float64
	TopK        int
	TopP        float64

	Stop []string
}

// RequestOptions carries caller-supplied overrides. All fields are pointers
// so an unset option can fall through to the defaults.
type RequestOptions struct {
	Candidates *int
	Steps      *int
	Seed       *int64

	Temperature *float64
	TopK        *int
	TopP        *float64

	Stop []string
}

// GenDefaults are engine-level sampling defaults, typically sourced from a
// config file.
type GenDefaults struct {
	Temperature *float64
	TopK        *int
	TopP        *float64
	Steps       *int
}

// ResolveRequest layers built-in defaults, engine defaults and per-call
// options into a concrete Request.
func ResolveRequest(prompt string, opts RequestOptions, defaults GenDefaults) Request {
	req := Request{
		Prompt:      prompt,
		Candidates:  1,
		Steps:       -1,
		Seed:        -1,
		Temperature: 0.8,
		TopK:        40,
		TopP:        0.95,
	}

	if defaults.Temperature != nil && *defaults.Temperature >= 0 {
		req.Temperature = *defaults.Temperature
	}
	if defaults.TopK != nil && *defaults.TopK > 0 {
		req.TopK = *defaults.TopK
	}
	if defaults.TopP != nil && *defaults.TopP > 0 && *defaults.TopP <= 1 {
		req.TopP = *defaults.TopP
	}
	if defaults.Steps != nil && *defaults.Steps > 0 {
		req.Steps = *defaults.Steps
	}

	if opts.Candidates != nil && *opts.Candidates > 0 {
		req.Candidates = *opts.Candidates
	}
	if opts.Steps != nil {
		req.Steps = *opts.Steps
	}
	if opts.Seed != nil {
		req.Seed = *opts.Seed
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.TopK != nil {
		req.TopK = *opts.TopK
	}
	if opts.TopP != nil {
		req.TopP = *opts.TopP
	}
	if len(opts.Stop) > 0 {
		req.Stop = append([]string(nil), opts.Stop...)
	}

	return req
}
