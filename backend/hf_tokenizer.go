//go:build hftokenizers

package backend

import (
	"fmt"
	"path/filepath"

	"github.com/daulet/tokenizers"

	"recipe-gen/recipe"
)

// HFTokenizerEnabled reports whether the binary links the Rust tokenizers library
const HFTokenizerEnabled = true

// HFTokenizer wraps a Hugging Face tokenizer.json through the tokenizers
// C bindings
type HFTokenizer struct {
	tk      *tokenizers.Tokenizer
	special recipe.SpecialTokens
	eosID   int
	padID   int
}

// NewHFTokenizer loads tokenizer.json from dir
func NewHFTokenizer(dir string) (*HFTokenizer, error) {
	tk, err := tokenizers.FromFile(filepath.Join(dir, "tokenizer.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer.json: %w", err)
	}

	special, err := LoadSpecialTokens(dir)
	if err != nil {
		tk.Close()
		return nil, err
	}

	t := &HFTokenizer{tk: tk, special: special, eosID: -1}
	if id, ok := t.TokenID(special.EOS); ok {
		t.eosID = id
	}
	t.padID = t.eosID
	if id, ok := t.TokenID(special.Pad); ok {
		t.padID = id
	}

	return t, nil
}

// Encode converts text to token IDs
func (t *HFTokenizer) Encode(text string) ([]int, error) {
	ids, _ := t.tk.Encode(text, false)
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out, nil
}

// Decode converts token IDs to text, keeping special tokens except padding
func (t *HFTokenizer) Decode(tokenIDs []int) (string, error) {
	ids := make([]uint32, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if id < 0 || (id == t.padID && id != t.eosID) {
			continue
		}
		ids = append(ids, uint32(id))
	}
	return t.tk.Decode(ids, false), nil
}

// TokenID returns the ID of token when it encodes to exactly one ID
func (t *HFTokenizer) TokenID(token string) (int, bool) {
	if token == "" {
		return 0, false
	}
	ids, _ := t.tk.Encode(token, false)
	if len(ids) != 1 {
		return 0, false
	}
	return int(ids[0]), true
}

// SpecialTokens returns the special token strings the tokenizer resolved
func (t *HFTokenizer) SpecialTokens() recipe.SpecialTokens {
	return t.special
}

func (t *HFTokenizer) EOSTokenID() int { return t.eosID }
func (t *HFTokenizer) PadTokenID() int { return t.padID }
func (t *HFTokenizer) VocabSize() int  { return int(t.tk.VocabSize()) }

// Close frees the native tokenizer
func (t *HFTokenizer) Close() error {
	return t.tk.Close()
}
