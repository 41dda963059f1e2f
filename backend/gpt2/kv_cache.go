package gpt2

// LayerKV holds the keys and values of one layer, one row of n_embd floats
// per position with heads laid out side by side
type LayerKV struct {
	Keys   []float32
	Values []float32
}

// KVCache stores the attention keys and values of every consumed position
type KVCache struct {
	Layers []LayerKV
	Len    int
}

// NewKVCache creates an empty cache for the model
func NewKVCache(cfg *Config) *KVCache {
	return &KVCache{Layers: make([]LayerKV, cfg.NLayer)}
}

// Clone returns a deep copy. Cached prefixes are cloned before use so that
// appends never touch shared backing arrays.
func (kv *KVCache) Clone() *KVCache {
	c := &KVCache{Layers: make([]LayerKV, len(kv.Layers)), Len: kv.Len}
	for i, l := range kv.Layers {
		c.Layers[i] = LayerKV{
			Keys:   append([]float32(nil), l.Keys...),
			Values: append([]float32(nil), l.Values...),
		}
	}
	return c
}

// SizeBytes returns the memory held by cached keys and values
func (kv *KVCache) SizeBytes() int {
	n := 0
	for _, l := range kv.Layers {
		n += 4 * (len(l.Keys) + len(l.Values))
	}
	return n
}
