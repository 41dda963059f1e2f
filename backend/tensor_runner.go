package backend

import (
	"context"
	"fmt"

	"recipe-gen/backend/gpt2"
	"recipe-gen/generation"
	"recipe-gen/metrics"
)

// TensorRunner runs the pure-Go GPT-2 model. The KV cache of each sequence
// is kept in seq.State.
type TensorRunner struct {
	model  *gpt2.Model
	prefix *gpt2.PrefixCache
}

// NewTensorRunner creates a runner; prefix may be nil to disable prefix reuse
func NewTensorRunner(model *gpt2.Model, prefix *gpt2.PrefixCache) *TensorRunner {
	return &TensorRunner{model: model, prefix: prefix}
}

// Run consumes the pending tokens of seq and returns next-token logits
func (r *TensorRunner) Run(ctx context.Context, seq *generation.Sequence) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if seq.NumPromptTokens == 0 {
		return nil, fmt.Errorf("sequence %d has an empty prompt", seq.SeqID)
	}

	kv, ok := seq.State.(*gpt2.KVCache)
	if !ok {
		kv = r.startSequence(seq)
		seq.State = kv
	}

	// the last prompt token is always fed below so its logits are available
	if r.prefix != nil && seq.NumCachedTokens < seq.NumPromptTokens-1 {
		covered, err := r.prefix.Prefill(r.model, seq.TokenIDs[:seq.NumPromptTokens-1], kv)
		if err != nil {
			return nil, err
		}
		seq.NumCachedTokens = covered
	}

	pending := seq.PendingTokenIDs()
	if len(pending) == 0 {
		return nil, fmt.Errorf("sequence %d has no pending tokens", seq.SeqID)
	}

	logits, err := r.model.Forward(pending, kv)
	if err != nil {
		return nil, err
	}
	seq.NumCachedTokens = seq.Len()

	return logits, nil
}

func (r *TensorRunner) startSequence(seq *generation.Sequence) *gpt2.KVCache {
	seq.NumCachedTokens = 0
	if r.prefix == nil {
		return gpt2.NewKVCache(r.model.Config)
	}

	kv, n := r.prefix.Lookup(seq.TokenIDs[:seq.NumPromptTokens-1])
	if kv == nil {
		metrics.PrefixCacheLookups.WithLabelValues("miss").Inc()
		return gpt2.NewKVCache(r.model.Config)
	}
	metrics.PrefixCacheLookups.WithLabelValues("hit").Inc()
	seq.NumCachedTokens = n
	return kv
}

// Release drops the KV cache of seq
func (r *TensorRunner) Release(seq *generation.Sequence) {
	seq.State = nil
}

// Close stops the prefix cache
func (r *TensorRunner) Close() error {
	if r.prefix != nil {
		r.prefix.Close()
	}
	return nil
}
