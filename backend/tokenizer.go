package backend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"recipe-gen/generation"
	"recipe-gen/recipe"
)

var errHFTokenizerDisabled = errors.New("tokenizer.json support requires building with -tags hftokenizers")

// Tokenizer is a generation.Tokenizer that knows which special token
// strings it resolved from the checkpoint
type Tokenizer interface {
	generation.Tokenizer
	SpecialTokens() recipe.SpecialTokens
}

// NewTokenizer picks a tokenizer implementation for the files in dir.
// tokenizer.json is preferred when the binary links the tokenizers library;
// otherwise vocab.json and merges.txt are required.
func NewTokenizer(dir string, log *zap.Logger) (Tokenizer, error) {
	hasJSON := fileExists(filepath.Join(dir, "tokenizer.json"))
	hasBPE := fileExists(filepath.Join(dir, "vocab.json")) && fileExists(filepath.Join(dir, "merges.txt"))

	switch {
	case hasJSON && HFTokenizerEnabled:
		log.Debug("Using tokenizer.json", zap.String("dir", dir))
		tok, err := NewHFTokenizer(dir)
		if err != nil {
			return nil, err
		}
		return tok, nil
	case hasBPE:
		log.Debug("Using vocab.json and merges.txt", zap.String("dir", dir))
		tok, err := NewBPETokenizer(dir)
		if err != nil {
			return nil, err
		}
		return tok, nil
	case hasJSON:
		return nil, fmt.Errorf("%s has only tokenizer.json: %w", dir, errHFTokenizerDisabled)
	}

	return nil, fmt.Errorf("no tokenizer files in %s (want vocab.json and merges.txt, or tokenizer.json)", dir)
}

// MissingSpecialTokens returns the special tokens that do not map to a single
// ID. Generation still works without them, only worse.
func MissingSpecialTokens(tok Tokenizer) []string {
	var missing []string
	for _, s := range tok.SpecialTokens().All() {
		if _, ok := tok.TokenID(s); !ok {
			missing = append(missing, s)
		}
	}
	return missing
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
