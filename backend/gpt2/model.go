package gpt2

import (
	"fmt"
	"math/rand"
)

// Model is a GPT-2 language model with its LM head tied to WTE
type Model struct {
	Config *Config

	WTE *Tensor // [vocab, n_embd]
	WPE *Tensor // [n_positions, n_embd]

	Blocks []*Block

	LNFWeight, LNFBias *Tensor
}

// InitModel creates a model with GPT-2 style random weights: normal(0, 0.02)
// projections, zero biases and unit layer norms
func InitModel(cfg *Config, seed int64) *Model {
	r := rand.New(rand.NewSource(seed))
	normal := func(shape ...int) *Tensor {
		t := NewTensor(shape...)
		for i := range t.Data {
			t.Data[i] = float32(r.NormFloat64() * 0.02)
		}
		return t
	}
	ones := func(n int) *Tensor {
		t := NewTensor(n)
		for i := range t.Data {
			t.Data[i] = 1
		}
		return t
	}

	h, inner := cfg.NEmbd, cfg.InnerDim()
	m := &Model{
		Config:    cfg,
		WTE:       normal(cfg.VocabSize, h),
		WPE:       normal(cfg.NPositions, h),
		Blocks:    make([]*Block, cfg.NLayer),
		LNFWeight: ones(h),
		LNFBias:   NewTensor(h),
	}
	for i := range m.Blocks {
		m.Blocks[i] = &Block{
			LN1Weight:    ones(h),
			LN1Bias:      NewTensor(h),
			AttnWeight:   normal(h, 3*h),
			AttnBias:     NewTensor(3 * h),
			ProjWeight:   normal(h, h),
			ProjBias:     NewTensor(h),
			LN2Weight:    ones(h),
			LN2Bias:      NewTensor(h),
			FCWeight:     normal(h, inner),
			FCBias:       NewTensor(inner),
			FCProjWeight: normal(inner, h),
			FCProjBias:   NewTensor(h),
		}
	}
	return m
}

// NumParams returns the parameter count
func (m *Model) NumParams() int {
	n := m.WTE.Size() + m.WPE.Size() + m.LNFWeight.Size() + m.LNFBias.Size()
	for _, b := range m.Blocks {
		for _, t := range []*Tensor{
			b.LN1Weight, b.LN1Bias, b.AttnWeight, b.AttnBias, b.ProjWeight, b.ProjBias,
			b.LN2Weight, b.LN2Bias, b.FCWeight, b.FCBias, b.FCProjWeight, b.FCProjBias,
		} {
			n += t.Size()
		}
	}
	return n
}

// Feed runs tokenIDs through every layer, appending to kv, and returns the
// final hidden states after ln_f
func (m *Model) Feed(tokenIDs []int, kv *KVCache) (*Tensor, error) {
	if len(tokenIDs) == 0 {
		return nil, fmt.Errorf("no tokens to feed")
	}
	if len(kv.Layers) != len(m.Blocks) {
		return nil, fmt.Errorf("kv cache has %d layers, model has %d", len(kv.Layers), len(m.Blocks))
	}

	pastLen := kv.Len
	if pastLen+len(tokenIDs) > m.Config.NPositions {
		return nil, fmt.Errorf("sequence length %d exceeds n_positions %d", pastLen+len(tokenIDs), m.Config.NPositions)
	}

	hidden := m.Config.NEmbd
	x := NewTensor(len(tokenIDs), hidden)
	for t, id := range tokenIDs {
		if id < 0 || id >= m.Config.VocabSize {
			return nil, fmt.Errorf("token id %d out of range for vocab size %d", id, m.Config.VocabSize)
		}
		dst := x.Row(t)
		tok := m.WTE.Row(id)
		pos := m.WPE.Row(pastLen + t)
		for j := range dst {
			dst[j] = tok[j] + pos[j]
		}
	}

	for i, block := range m.Blocks {
		x = block.Forward(x, &kv.Layers[i], pastLen, m.Config)
	}
	kv.Len = pastLen + len(tokenIDs)

	return LayerNorm(x, m.LNFWeight, m.LNFBias, m.Config.LayerNormEps), nil
}

// Forward feeds tokenIDs and returns the logits of the last position
func (m *Model) Forward(tokenIDs []int, kv *KVCache) ([]float32, error) {
	h, err := m.Feed(tokenIDs, kv)
	if err != nil {
		return nil, err
	}
	return m.logits(h.Row(h.Rows() - 1)), nil
}

// logits projects a hidden state onto the vocabulary through the tied
// embedding matrix
func (m *Model) logits(h []float32) []float32 {
	out := make([]float32, m.Config.VocabSize)
	for v := range out {
		row := m.WTE.Row(v)
		sum := float32(0)
		for j, hv := range h {
			sum += hv * row[j]
		}
		out[v] = sum
	}
	return out
}
