package generation

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Sampler picks the next token from logits. It is safe for concurrent use.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler creates a sampler. A zero seed seeds from the clock.
func NewSampler(seed int64) *Sampler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Sample picks a token ID. Without DoSample it is greedy; otherwise it applies
// temperature, then top-k, then top-p over what top-k kept, and draws from
// the renormalized distribution. The logits slice is not modified.
func (s *Sampler) Sample(logits []float32, params *SamplingParams) int {
	if len(logits) == 0 {
		return -1
	}
	if params == nil || !params.DoSample {
		return argmax(logits)
	}

	// Candidates sorted by logit, highest first
	idx := make([]int, len(logits))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return logits[idx[a]] > logits[idx[b]]
	})

	if params.TopK > 0 && params.TopK < len(idx) {
		idx = idx[:params.TopK]
	}

	// Softmax over the kept candidates
	temp := params.Temperature
	maxLogit := float64(logits[idx[0]]) / temp
	probs := make([]float64, len(idx))
	sum := 0.0
	for i, id := range idx {
		probs[i] = math.Exp(float64(logits[id])/temp - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}

	// Nucleus cut, always keeping the most likely token
	if params.TopP < 1.0 {
		cum := 0.0
		cutoff := len(probs)
		for i, p := range probs {
			cum += p
			if cum >= params.TopP {
				cutoff = i + 1
				break
			}
		}
		idx = idx[:cutoff]
		probs = probs[:cutoff]
	}

	total := 0.0
	for _, p := range probs {
		total += p
	}

	s.mu.Lock()
	r := s.rng.Float64() * total
	s.mu.Unlock()

	cum := 0.0
	for i, p := range probs {
		cum += p
		if r < cum {
			return idx[i]
		}
	}
	return idx[len(idx)-1]
}

// argmax returns the index of the largest logit, the first one on ties
func argmax(logits []float32) int {
	maxIdx := 0
	maxVal := logits[0]
	for i := 1; i < len(logits); i++ {
		if logits[i] > maxVal {
			maxVal = logits[i]
			maxIdx = i
		}
	}
	return maxIdx
}
