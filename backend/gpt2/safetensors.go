package gpt2

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// TensorInfo describes a tensor in safetensors format
type TensorInfo struct {
	Dtype  string   `json:"dtype"`
	Shape  []int    `json:"shape"`
	Offset [2]int64 `json:"data_offsets"`
}

// Safetensors is a parsed safetensors file held in memory
type Safetensors struct {
	header map[string]TensorInfo
	data   []byte
}

// OpenSafetensors reads and parses a safetensors file
func OpenSafetensors(path string) (*Safetensors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseSafetensors(data)
}

// ParseSafetensors parses an in-memory safetensors blob
func ParseSafetensors(data []byte) (*Safetensors, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("safetensors file too short")
	}

	headerSize := binary.LittleEndian.Uint64(data[:8])
	if headerSize > uint64(len(data)-8) {
		return nil, fmt.Errorf("safetensors header size %d exceeds file size", headerSize)
	}

	var header map[string]TensorInfo
	if err := json.Unmarshal(data[8:8+headerSize], &header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	delete(header, "__metadata__")

	return &Safetensors{header: header, data: data[8+headerSize:]}, nil
}

// Names returns the tensor names in the file
func (s *Safetensors) Names() []string {
	names := make([]string, 0, len(s.header))
	for name := range s.header {
		names = append(names, name)
	}
	return names
}

// Lookup finds a tensor by name, also trying the "transformer." prefix that
// GPT2LMHeadModel checkpoints carry
func (s *Safetensors) Lookup(name string) (TensorInfo, bool) {
	if info, ok := s.header[name]; ok {
		return info, true
	}
	info, ok := s.header["transformer."+name]
	return info, ok
}

// Tensor decodes a tensor to float32
func (s *Safetensors) Tensor(name string) (*Tensor, error) {
	info, ok := s.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("tensor not found: %s (tried: %s, transformer.%s)", name, name, name)
	}

	start, end := info.Offset[0], info.Offset[1]
	if start < 0 || end < start || end > int64(len(s.data)) {
		return nil, fmt.Errorf("tensor %s: offsets [%d,%d] out of range", name, start, end)
	}
	raw := s.data[start:end]
	n := numElements(info.Shape)

	out := make([]float32, n)
	switch info.Dtype {
	case "F32":
		if len(raw) != 4*n {
			return nil, fmt.Errorf("tensor %s: expected %d bytes, got %d", name, 4*n, len(raw))
		}
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case "F16":
		if len(raw) != 2*n {
			return nil, fmt.Errorf("tensor %s: expected %d bytes, got %d", name, 2*n, len(raw))
		}
		for i := range out {
			out[i] = float16ToFloat32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
	case "BF16":
		if len(raw) != 2*n {
			return nil, fmt.Errorf("tensor %s: expected %d bytes, got %d", name, 2*n, len(raw))
		}
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[i*2:])) << 16)
		}
	default:
		return nil, fmt.Errorf("tensor %s: unsupported dtype %s", name, info.Dtype)
	}

	return &Tensor{Data: out, Shape: append([]int(nil), info.Shape...)}, nil
}

func float16ToFloat32(bits uint16) float32 {
	sign := uint32(bits>>15) & 1
	exp := uint32(bits>>10) & 0x1F
	frac := uint32(bits & 0x3FF)

	switch {
	case exp == 0 && frac == 0:
		return math.Float32frombits(sign << 31)
	case exp == 0:
		// subnormal
		exp = 127 - 14
		for frac&0x400 == 0 {
			frac <<= 1
			exp--
		}
		frac &= 0x3FF
	case exp == 0x1F:
		exp = 0xFF
	default:
		exp += 127 - 15
	}

	return math.Float32frombits(sign<<31 | exp<<23 | frac<<13)
}

// LoadModel loads GPT-2 weights from a safetensors file. The LM head is tied
// to the token embedding.
func LoadModel(path string, cfg *Config) (*Model, error) {
	st, err := OpenSafetensors(path)
	if err != nil {
		return nil, err
	}
	return NewModelFromSafetensors(st, cfg)
}

// NewModelFromSafetensors builds a model from parsed weights
func NewModelFromSafetensors(st *Safetensors, cfg *Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hidden := cfg.NEmbd
	inner := cfg.InnerDim()
	load := func(name string, shape ...int) (*Tensor, error) {
		t, err := st.Tensor(name)
		if err != nil {
			return nil, err
		}
		if numElements(shape) != t.Size() {
			return nil, fmt.Errorf("tensor %s: shape %v does not match expected %v", name, t.Shape, shape)
		}
		t.Shape = shape
		return t, nil
	}

	m := &Model{Config: cfg, Blocks: make([]*Block, cfg.NLayer)}

	var err error
	if m.WTE, err = load("wte.weight", cfg.VocabSize, hidden); err != nil {
		return nil, fmt.Errorf("failed to load token embedding (incompatible vocabulary?): %w", err)
	}
	if m.WPE, err = load("wpe.weight", cfg.NPositions, hidden); err != nil {
		return nil, fmt.Errorf("failed to load position embedding: %w", err)
	}

	for i := range m.Blocks {
		p := fmt.Sprintf("h.%d", i)
		b := &Block{}
		specs := []struct {
			dst   **Tensor
			name  string
			shape []int
		}{
			{&b.LN1Weight, ".ln_1.weight", []int{hidden}},
			{&b.LN1Bias, ".ln_1.bias", []int{hidden}},
			{&b.AttnWeight, ".attn.c_attn.weight", []int{hidden, 3 * hidden}},
			{&b.AttnBias, ".attn.c_attn.bias", []int{3 * hidden}},
			{&b.ProjWeight, ".attn.c_proj.weight", []int{hidden, hidden}},
			{&b.ProjBias, ".attn.c_proj.bias", []int{hidden}},
			{&b.LN2Weight, ".ln_2.weight", []int{hidden}},
			{&b.LN2Bias, ".ln_2.bias", []int{hidden}},
			{&b.FCWeight, ".mlp.c_fc.weight", []int{hidden, inner}},
			{&b.FCBias, ".mlp.c_fc.bias", []int{inner}},
			{&b.FCProjWeight, ".mlp.c_proj.weight", []int{inner, hidden}},
			{&b.FCProjBias, ".mlp.c_proj.bias", []int{hidden}},
		}
		for _, s := range specs {
			t, err := load(p+s.name, s.shape...)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			*s.dst = t
		}
		m.Blocks[i] = b
	}

	if m.LNFWeight, err = load("ln_f.weight", hidden); err != nil {
		return nil, err
	}
	if m.LNFBias, err = load("ln_f.bias", hidden); err != nil {
		return nil, err
	}

	return m, nil
}

// WriteSafetensors encodes tensors as F32 in safetensors layout
func WriteSafetensors(w io.Writer, tensors map[string]*Tensor) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := map[string]any{"__metadata__": map[string]string{"format": "pt"}}
	var offset int64
	for _, name := range names {
		size := int64(4 * tensors[name].Size())
		header[name] = TensorInfo{Dtype: "F32", Shape: tensors[name].Shape, Offset: [2]int64{offset, offset + size}}
		offset += size
	}

	hdr, err := json.Marshal(header)
	if err != nil {
		return err
	}

	buf := binary.LittleEndian.AppendUint64(make([]byte, 0, 8+len(hdr)+int(offset)), uint64(len(hdr)))
	buf = append(buf, hdr...)
	for _, name := range names {
		for _, v := range tensors[name].Data {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}

	_, err = w.Write(buf)
	return err
}

// Tensors returns the model weights under their GPT2LMHeadModel names
func (m *Model) Tensors() map[string]*Tensor {
	tensors := map[string]*Tensor{
		"transformer.wte.weight":  m.WTE,
		"transformer.wpe.weight":  m.WPE,
		"transformer.ln_f.weight": m.LNFWeight,
		"transformer.ln_f.bias":   m.LNFBias,
	}
	for i, b := range m.Blocks {
		p := fmt.Sprintf("transformer.h.%d", i)
		tensors[p+".ln_1.weight"] = b.LN1Weight
		tensors[p+".ln_1.bias"] = b.LN1Bias
		tensors[p+".attn.c_attn.weight"] = b.AttnWeight
		tensors[p+".attn.c_attn.bias"] = b.AttnBias
		tensors[p+".attn.c_proj.weight"] = b.ProjWeight
		tensors[p+".attn.c_proj.bias"] = b.ProjBias
		tensors[p+".ln_2.weight"] = b.LN2Weight
		tensors[p+".ln_2.bias"] = b.LN2Bias
		tensors[p+".mlp.c_fc.weight"] = b.FCWeight
		tensors[p+".mlp.c_fc.bias"] = b.FCBias
		tensors[p+".mlp.c_proj.weight"] = b.FCProjWeight
		tensors[p+".mlp.c_proj.bias"] = b.FCProjBias
	}
	return tensors
}

// SaveModel writes the model to path as safetensors
func SaveModel(path string, m *Model) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSafetensors(f, m.Tensors()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
