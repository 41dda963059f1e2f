package generation

import "context"

// ModelRunner computes next-token logits. Implementations share read-only
// weights across sequences and keep anything per-sequence on the Sequence,
// so one runner can serve concurrent requests.
type ModelRunner interface {
	// Run consumes seq.PendingTokenIDs, advances seq.NumCachedTokens and
	// returns the logits for the last position
	Run(ctx context.Context, seq *Sequence) ([]float32, error)

	// Release drops any per-sequence state
	Release(seq *Sequence)

	// Close cleans up resources
	Close() error
}

// Tokenizer converts between text and token IDs
type Tokenizer interface {
	// Encode converts text to token IDs. Special tokens in the text map to
	// their own IDs.
	Encode(text string) ([]int, error)

	// Decode converts token IDs to text, keeping special tokens other than
	// padding
	Decode(tokenIDs []int) (string, error)

	// TokenID looks up the ID of a single token
	TokenID(token string) (int, bool)

	EOSTokenID() int
	PadTokenID() int
	VocabSize() int
}

// Output is one generated sequence
type Output struct {
	// GeneratedText is the prompt followed by the continuation
	GeneratedText string       `json:"generated_text"`
	TokenIDs      []int        `json:"-"`
	FinishReason  FinishReason `json:"finish_reason,omitempty"`
}

// Generator turns a prompt into one or more continuations
type Generator interface {
	Generate(ctx context.Context, prompt string, params *SamplingParams) ([]Output, error)
	Close() error
}
