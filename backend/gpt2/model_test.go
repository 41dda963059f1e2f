package gpt2

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyConfig() *Config {
	return &Config{
		ModelType:    "gpt2",
		VocabSize:    11,
		NPositions:   32,
		NEmbd:        8,
		NLayer:       2,
		NHead:        2,
		LayerNormEps: 1e-5,
		EOSTokenID:   10,
	}
}

func randomTensor(r *rand.Rand, shape ...int) *Tensor {
	t := NewTensor(shape...)
	for i := range t.Data {
		t.Data[i] = r.Float32() - 0.5
	}
	return t
}

func onesTensor(n int) *Tensor {
	t := NewTensor(n)
	for i := range t.Data {
		t.Data[i] = 1
	}
	return t
}

func tinyModel(t *testing.T) *Model {
	t.Helper()
	cfg := tinyConfig()
	r := rand.New(rand.NewSource(1))
	h, inner := cfg.NEmbd, cfg.InnerDim()

	m := &Model{
		Config:    cfg,
		WTE:       randomTensor(r, cfg.VocabSize, h),
		WPE:       randomTensor(r, cfg.NPositions, h),
		LNFWeight: onesTensor(h),
		LNFBias:   NewTensor(h),
	}
	for i := 0; i < cfg.NLayer; i++ {
		m.Blocks = append(m.Blocks, &Block{
			LN1Weight:    onesTensor(h),
			LN1Bias:      NewTensor(h),
			AttnWeight:   randomTensor(r, h, 3*h),
			AttnBias:     randomTensor(r, 3*h),
			ProjWeight:   randomTensor(r, h, h),
			ProjBias:     randomTensor(r, h),
			LN2Weight:    onesTensor(h),
			LN2Bias:      NewTensor(h),
			FCWeight:     randomTensor(r, h, inner),
			FCBias:       randomTensor(r, inner),
			FCProjWeight: randomTensor(r, inner, h),
			FCProjBias:   randomTensor(r, h),
		})
	}
	return m
}

func assertLogitsClose(t *testing.T, want, got []float32) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-4, "logit %d", i)
	}
}

func TestIncrementalDecodingMatchesFullForward(t *testing.T) {
	m := tinyModel(t)
	tokens := []int{1, 4, 2, 7, 3, 9}

	full, err := m.Forward(tokens, NewKVCache(m.Config))
	require.NoError(t, err)

	kv := NewKVCache(m.Config)
	_, err = m.Forward(tokens[:3], kv)
	require.NoError(t, err)
	var step []float32
	for _, id := range tokens[3:] {
		step, err = m.Forward([]int{id}, kv)
		require.NoError(t, err)
	}

	assert.Equal(t, len(tokens), kv.Len)
	assertLogitsClose(t, full, step)
}

func TestCausalMaskIgnoresLaterTokens(t *testing.T) {
	m := tinyModel(t)

	kv := NewKVCache(m.Config)
	h, err := m.Feed([]int{1, 2, 3}, kv)
	require.NoError(t, err)
	first := append([]float32(nil), h.Row(0)...)

	h2, err := m.Feed([]int{1, 9, 9}, NewKVCache(m.Config))
	require.NoError(t, err)
	for i := range first {
		assert.InDelta(t, first[i], h2.Row(0)[i], 1e-6)
	}
}

func TestForwardRejectsBadInput(t *testing.T) {
	m := tinyModel(t)

	_, err := m.Forward(nil, NewKVCache(m.Config))
	assert.Error(t, err)

	_, err = m.Forward([]int{m.Config.VocabSize}, NewKVCache(m.Config))
	assert.Error(t, err)

	long := make([]int, m.Config.NPositions+1)
	_, err = m.Forward(long, NewKVCache(m.Config))
	assert.Error(t, err)
}

func TestKVCacheCloneIsIndependent(t *testing.T) {
	m := tinyModel(t)
	kv := NewKVCache(m.Config)
	_, err := m.Feed([]int{1, 2}, kv)
	require.NoError(t, err)

	clone := kv.Clone()
	_, err = m.Feed([]int{3}, clone)
	require.NoError(t, err)

	assert.Equal(t, 2, kv.Len)
	assert.Equal(t, 3, clone.Len)
	assert.Len(t, kv.Layers[0].Keys, 2*m.Config.NEmbd)
	assert.Positive(t, kv.SizeBytes())
}

func TestLinear(t *testing.T) {
	x := &Tensor{Data: []float32{1, 2}, Shape: []int{1, 2}}
	w := &Tensor{Data: []float32{1, 2, 3, 4, 5, 6}, Shape: []int{2, 3}}
	b := &Tensor{Data: []float32{1, 1, 1}, Shape: []int{3}}

	out := Linear(x, w, b)
	assert.Equal(t, []int{1, 3}, out.Shape)
	assert.Equal(t, []float32{10, 13, 16}, out.Data)

	assert.Panics(t, func() { Linear(w, w, nil) })
}

func TestLayerNormAndGELU(t *testing.T) {
	x := &Tensor{Data: []float32{1, 2, 3, 4}, Shape: []int{1, 4}}
	out := LayerNorm(x, onesTensor(4), NewTensor(4), 1e-5)

	mean := float32(0)
	for _, v := range out.Data {
		mean += v
	}
	assert.InDelta(t, 0, mean/4, 1e-5)

	g := &Tensor{Data: []float32{0, 1, -1}, Shape: []int{3}}
	GELUInPlace(g)
	assert.InDelta(t, 0, g.Data[0], 1e-6)
	assert.InDelta(t, 0.8412, g.Data[1], 1e-3)
	assert.InDelta(t, -0.1588, g.Data[2], 1e-3)
}

func TestFloat16Conversion(t *testing.T) {
	assert.Equal(t, float32(1), float16ToFloat32(0x3C00))
	assert.Equal(t, float32(-2), float16ToFloat32(0xC000))
	assert.Equal(t, float32(0), float16ToFloat32(0x0000))
	assert.InDelta(t, 5.960464e-8, float16ToFloat32(0x0001), 1e-12)
	assert.True(t, math.IsInf(float64(float16ToFloat32(0x7C00)), 1))
}

func encodeSafetensors(t *testing.T, tensors map[string]*Tensor) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteSafetensors(&buf, tensors))
	return buf.Bytes()
}

func TestLoadModelFromSafetensors(t *testing.T) {
	m := tinyModel(t)
	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, SaveModel(path, m))

	loaded, err := LoadModel(path, tinyConfig())
	require.NoError(t, err)
	assert.Equal(t, m.NumParams(), loaded.NumParams())

	tokens := []int{3, 1, 4, 1, 5}
	want, err := m.Forward(tokens, NewKVCache(m.Config))
	require.NoError(t, err)
	got, err := loaded.Forward(tokens, NewKVCache(loaded.Config))
	require.NoError(t, err)
	assertLogitsClose(t, want, got)
}

func TestLoadModelRejectsVocabMismatch(t *testing.T) {
	m := tinyModel(t)
	st, err := ParseSafetensors(encodeSafetensors(t, m.Tensors()))
	require.NoError(t, err)

	cfg := tinyConfig()
	cfg.VocabSize = 50257
	_, err = NewModelFromSafetensors(st, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incompatible vocabulary")
}

func TestParseSafetensorsErrors(t *testing.T) {
	_, err := ParseSafetensors([]byte{1, 2})
	assert.Error(t, err)

	bad := binary.LittleEndian.AppendUint64(nil, 1000)
	_, err = ParseSafetensors(append(bad, '{', '}'))
	assert.Error(t, err)

	st, err := ParseSafetensors(encodeSafetensors(t, map[string]*Tensor{"a": onesTensor(2)}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, st.Names())
	_, err = st.Tensor("missing")
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"model_type":"gpt2","vocab_size":50260,"n_positions":1024,"n_embd":768,"n_layer":12,"n_head":12,"n_inner":null,"eos_token_id":50258}`), 0o644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 50260, cfg.VocabSize)
	assert.Equal(t, 3072, cfg.InnerDim())
	assert.Equal(t, 64, cfg.HeadDim())
	assert.Equal(t, float32(1e-5), cfg.LayerNormEps)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"model_type":"llama"}`), 0o644))
	_, err = LoadConfig(dir)
	assert.Error(t, err)

	_, err = LoadConfig(t.TempDir())
	assert.Error(t, err)
}

func TestInitModel(t *testing.T) {
	cfg := tinyConfig()
	a, b := InitModel(cfg, 3), InitModel(cfg, 3)
	assert.Equal(t, a.WTE.Data, b.WTE.Data)

	logits, err := a.Forward([]int{1, 2}, NewKVCache(cfg))
	require.NoError(t, err)
	assert.Len(t, logits, cfg.VocabSize)
}
