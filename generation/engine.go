package generation

import (
	"context"
	"errors"
	"fmt"

	"recipe-gen/metrics"
)

// ErrGenerationFailed wraps failures inside the generation path
var ErrGenerationFailed = errors.New("generation failed")

// ProgressFunc is called after every sampled token
type ProgressFunc func(generated, max int)

// Engine is a local Generator driving a ModelRunner token by token
type Engine struct {
	runner      ModelRunner
	tokenizer   Tokenizer
	sampler     *Sampler
	maxModelLen int
	progress    ProgressFunc
}

// EngineOption is a functional option for Engine
type EngineOption func(*Engine)

// WithSampler replaces the default clock-seeded sampler
func WithSampler(s *Sampler) EngineOption {
	return func(e *Engine) {
		e.sampler = s
	}
}

// WithEngineMaxModelLen caps prompt plus completion length
func WithEngineMaxModelLen(n int) EngineOption {
	return func(e *Engine) {
		e.maxModelLen = n
	}
}

// WithProgress installs a per-token progress callback
func WithProgress(fn ProgressFunc) EngineOption {
	return func(e *Engine) {
		e.progress = fn
	}
}

// NewEngine creates a new engine
func NewEngine(runner ModelRunner, tokenizer Tokenizer, opts ...EngineOption) *Engine {
	e := &Engine{
		runner:    runner,
		tokenizer: tokenizer,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sampler == nil {
		e.sampler = NewSampler(0)
	}
	return e
}

// Close cleans up resources
func (e *Engine) Close() error {
	return e.runner.Close()
}

// Generate produces params.NumReturnSequences continuations of prompt. Each
// output's text is the prompt followed by the decoded continuation, EOS
// token included when the model emitted one.
func (e *Engine) Generate(ctx context.Context, prompt string, params *SamplingParams) ([]Output, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sampling params: %w", err)
	}

	tokenIDs, err := e.tokenizer.Encode(prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode prompt: %w", ErrGenerationFailed, err)
	}
	if len(tokenIDs) == 0 {
		return nil, fmt.Errorf("%w: prompt encoded to no tokens", ErrGenerationFailed)
	}

	outputs := make([]Output, 0, params.NumReturnSequences)
	for i := 0; i < params.NumReturnSequences; i++ {
		seq := NewSequence(tokenIDs)
		err := e.run(ctx, seq, params)
		e.runner.Release(seq)
		if err != nil {
			return nil, err
		}

		text, err := e.tokenizer.Decode(seq.CompletionTokenIDs())
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode tokens: %w", ErrGenerationFailed, err)
		}

		metrics.SequencesFinished.WithLabelValues(string(seq.FinishReason)).Inc()
		outputs = append(outputs, Output{
			GeneratedText: prompt + text,
			TokenIDs:      seq.CompletionTokenIDs(),
			FinishReason:  seq.FinishReason,
		})
	}

	return outputs, nil
}

// run extends seq until EOS or the token budget is spent
func (e *Engine) run(ctx context.Context, seq *Sequence, params *SamplingParams) error {
	maxNew := params.MaxNewTokens
	if e.maxModelLen > 0 && seq.Len()+maxNew > e.maxModelLen {
		maxNew = e.maxModelLen - seq.Len()
	}
	if maxNew <= 0 {
		return fmt.Errorf("%w: prompt of %d tokens leaves no room within %d positions",
			ErrGenerationFailed, seq.Len(), e.maxModelLen)
	}

	seq.Status = StatusRunning
	for seq.NumCompletionTokens() < maxNew {
		if err := ctx.Err(); err != nil {
			return err
		}

		logits, err := e.runner.Run(ctx, seq)
		if err != nil {
			return fmt.Errorf("%w: model inference failed: %w", ErrGenerationFailed, err)
		}

		tokenID := e.sampler.Sample(logits, params)
		seq.AppendToken(tokenID)
		metrics.TokensGenerated.Inc()

		if e.progress != nil {
			e.progress(seq.NumCompletionTokens(), maxNew)
		}

		if tokenID == params.EOSTokenID {
			seq.Finish(FinishEOS)
			return nil
		}
	}

	seq.Finish(FinishLength)
	return nil
}
