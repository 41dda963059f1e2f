//go:build !hftokenizers

package backend

// HFTokenizerEnabled reports whether the binary links the Rust tokenizers library
const HFTokenizerEnabled = false

// HFTokenizer is unavailable in this build
type HFTokenizer struct{ BPETokenizer }

// NewHFTokenizer always fails without the hftokenizers build tag
func NewHFTokenizer(dir string) (*HFTokenizer, error) {
	return nil, errHFTokenizerDisabled
}

// Close is a no-op
func (t *HFTokenizer) Close() error { return nil }
