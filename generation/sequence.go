package generation

import "sync/atomic"

// SequenceStatus represents the status of a sequence
type SequenceStatus int

const (
	StatusWaiting SequenceStatus = iota
	StatusRunning
	StatusFinished
)

// FinishReason records why a sequence stopped
type FinishReason string

const (
	FinishEOS    FinishReason = "eos"
	FinishLength FinishReason = "length"
)

// Sequence is one prompt being extended token by token
type Sequence struct {
	SeqID           int64
	Status          SequenceStatus
	FinishReason    FinishReason
	TokenIDs        []int
	LastToken       int
	NumTokens       int
	NumPromptTokens int

	// NumCachedTokens counts the tokens the runner has already consumed.
	// Runners advance it and keep their per-sequence state in State.
	NumCachedTokens int
	State           any
}

var seqCounter int64 = 0

// NewSequence creates a new sequence from prompt token IDs
func NewSequence(tokenIDs []int) *Sequence {
	seqID := atomic.AddInt64(&seqCounter, 1) - 1

	tokens := make([]int, len(tokenIDs))
	copy(tokens, tokenIDs)

	last := -1
	if len(tokens) > 0 {
		last = tokens[len(tokens)-1]
	}

	return &Sequence{
		SeqID:           seqID,
		Status:          StatusWaiting,
		TokenIDs:        tokens,
		LastToken:       last,
		NumTokens:       len(tokens),
		NumPromptTokens: len(tokens),
	}
}

// Len returns the number of tokens in the sequence
func (s *Sequence) Len() int {
	return s.NumTokens
}

// IsFinished returns true if the sequence has finished generating
func (s *Sequence) IsFinished() bool {
	return s.Status == StatusFinished
}

// NumCompletionTokens returns the number of generated tokens
func (s *Sequence) NumCompletionTokens() int {
	return s.NumTokens - s.NumPromptTokens
}

// PromptTokenIDs returns the prompt token IDs
func (s *Sequence) PromptTokenIDs() []int {
	return s.TokenIDs[:s.NumPromptTokens]
}

// CompletionTokenIDs returns the generated token IDs
func (s *Sequence) CompletionTokenIDs() []int {
	return s.TokenIDs[s.NumPromptTokens:]
}

// PendingTokenIDs returns the tokens the runner has not consumed yet
func (s *Sequence) PendingTokenIDs() []int {
	return s.TokenIDs[s.NumCachedTokens:]
}

// AppendToken appends a token to the sequence
func (s *Sequence) AppendToken(tokenID int) {
	s.TokenIDs = append(s.TokenIDs, tokenID)
	s.LastToken = tokenID
	s.NumTokens++
}

// Finish marks the sequence as finished
func (s *Sequence) Finish(reason FinishReason) {
	s.Status = StatusFinished
	s.FinishReason = reason
}
