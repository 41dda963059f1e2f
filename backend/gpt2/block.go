package gpt2

import "math"

// Block is one pre-norm GPT-2 transformer layer
type Block struct {
	LN1Weight, LN1Bias *Tensor

	// fused query/key/value projection [n_embd, 3*n_embd]
	AttnWeight, AttnBias *Tensor
	ProjWeight, ProjBias *Tensor

	LN2Weight, LN2Bias *Tensor

	FCWeight, FCBias         *Tensor
	FCProjWeight, FCProjBias *Tensor
}

// Forward runs the layer over x [T, n_embd], appending the new keys and
// values to layer and attending causally over past and new positions
func (b *Block) Forward(x *Tensor, layer *LayerKV, pastLen int, cfg *Config) *Tensor {
	h := LayerNorm(x, b.LN1Weight, b.LN1Bias, cfg.LayerNormEps)
	attn := b.attention(h, layer, pastLen, cfg)
	AddInPlace(attn, x)

	h = LayerNorm(attn, b.LN2Weight, b.LN2Bias, cfg.LayerNormEps)
	mlp := Linear(h, b.FCWeight, b.FCBias)
	GELUInPlace(mlp)
	out := Linear(mlp, b.FCProjWeight, b.FCProjBias)
	AddInPlace(out, attn)

	return out
}

func (b *Block) attention(x *Tensor, layer *LayerKV, pastLen int, cfg *Config) *Tensor {
	hidden := cfg.NEmbd
	headDim := cfg.HeadDim()
	seqLen := x.Rows()

	qkv := Linear(x, b.AttnWeight, b.AttnBias)

	// columns are [q | k | v]
	for t := 0; t < seqLen; t++ {
		row := qkv.Row(t)
		layer.Keys = append(layer.Keys, row[hidden:2*hidden]...)
		layer.Values = append(layer.Values, row[2*hidden:]...)
	}

	out := NewTensor(seqLen, hidden)
	scale := float32(1.0 / math.Sqrt(float64(headDim)))
	scores := make([]float32, pastLen+seqLen)

	for t := 0; t < seqLen; t++ {
		q := qkv.Row(t)[:hidden]
		visible := pastLen + t + 1 // absolute positions 0..pastLen+t
		dst := out.Row(t)

		for h := 0; h < cfg.NHead; h++ {
			off := h * headDim
			qh := q[off : off+headDim]
			s := scores[:visible]

			for j := 0; j < visible; j++ {
				k := layer.Keys[j*hidden+off : j*hidden+off+headDim]
				dot := float32(0)
				for d, qv := range qh {
					dot += qv * k[d]
				}
				s[j] = dot * scale
			}
			softmaxInPlace(s)

			acc := dst[off : off+headDim]
			for j, w := range s {
				v := layer.Values[j*hidden+off : j*hidden+off+headDim]
				for d, vv := range v {
					acc[d] += w * vv
				}
			}
		}
	}

	return Linear(out, b.ProjWeight, b.ProjBias)
}
