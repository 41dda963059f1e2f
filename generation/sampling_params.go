package generation

import "fmt"

// SamplingParams holds the generation parameters for one request
type SamplingParams struct {
	MaxNewTokens       int
	NumReturnSequences int
	DoSample           bool
	TopK               int
	TopP               float64
	Temperature        float64
	EOSTokenID         int
	PadTokenID         int
}

// SamplingOption is a functional option for SamplingParams
type SamplingOption func(*SamplingParams)

// NewSamplingParams creates a new SamplingParams with default values.
// It panics on invalid options.
func NewSamplingParams(opts ...SamplingOption) *SamplingParams {
	sp := &SamplingParams{
		MaxNewTokens:       64,
		NumReturnSequences: 1,
		DoSample:           true,
		TopK:               0,
		TopP:               1.0,
		Temperature:        1.0,
		EOSTokenID:         -1,
		PadTokenID:         -1,
	}

	for _, opt := range opts {
		opt(sp)
	}

	if err := sp.Validate(); err != nil {
		panic(err)
	}

	return sp
}

// RecipeSamplingParams returns the parameters the recipe model was tuned for
func RecipeSamplingParams(eosTokenID, padTokenID int, opts ...SamplingOption) *SamplingParams {
	base := []SamplingOption{
		WithMaxNewTokens(350),
		WithNumReturnSequences(1),
		WithDoSample(true),
		WithTopK(50),
		WithTopP(0.95),
		WithTemperature(0.8),
		WithEOSTokenID(eosTokenID),
		WithPadTokenID(padTokenID),
	}
	return NewSamplingParams(append(base, opts...)...)
}

// Validate checks if the sampling parameters are valid
func (sp *SamplingParams) Validate() error {
	if sp.DoSample && sp.Temperature <= 1e-10 {
		return fmt.Errorf("temperature must be positive when sampling")
	}
	if sp.TopP <= 0 || sp.TopP > 1 {
		return fmt.Errorf("top_p must be in (0, 1], got %g", sp.TopP)
	}
	if sp.TopK < 0 {
		return fmt.Errorf("top_k must not be negative")
	}
	if sp.MaxNewTokens < 1 {
		return fmt.Errorf("max_new_tokens must be at least 1")
	}
	if sp.NumReturnSequences < 1 {
		return fmt.Errorf("num_return_sequences must be at least 1")
	}
	return nil
}

// WithMaxNewTokens sets the maximum number of tokens to generate
func WithMaxNewTokens(n int) SamplingOption {
	return func(sp *SamplingParams) {
		sp.MaxNewTokens = n
	}
}

// WithNumReturnSequences sets how many continuations to produce
func WithNumReturnSequences(n int) SamplingOption {
	return func(sp *SamplingParams) {
		sp.NumReturnSequences = n
	}
}

// WithDoSample switches between sampling and greedy decoding
func WithDoSample(b bool) SamplingOption {
	return func(sp *SamplingParams) {
		sp.DoSample = b
	}
}

// WithTopK keeps only the k most likely tokens. Zero disables it.
func WithTopK(k int) SamplingOption {
	return func(sp *SamplingParams) {
		sp.TopK = k
	}
}

// WithTopP sets the nucleus sampling threshold
func WithTopP(p float64) SamplingOption {
	return func(sp *SamplingParams) {
		sp.TopP = p
	}
}

// WithTemperature sets the sampling temperature
func WithTemperature(t float64) SamplingOption {
	return func(sp *SamplingParams) {
		sp.Temperature = t
	}
}

// WithEOSTokenID sets the token that ends a sequence
func WithEOSTokenID(id int) SamplingOption {
	return func(sp *SamplingParams) {
		sp.EOSTokenID = id
	}
}

// WithPadTokenID sets the padding token
func WithPadTokenID(id int) SamplingOption {
	return func(sp *SamplingParams) {
		sp.PadTokenID = id
	}
}
