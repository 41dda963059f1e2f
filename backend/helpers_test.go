package backend

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"recipe-gen/backend/gpt2"
	"recipe-gen/recipe"
)

// Fixture vocabulary: IDs 0..255 are the byte symbols, 256 "ab", 257 "Ġab",
// 258.. the recipe special tokens in recipe.DefaultSpecialTokens order.
const (
	idAB       = 256
	idSpaceAB  = 257
	idBOS      = 258
	idEOS      = 259
	idPad      = 260
	idTitle    = 261
	idIngr     = 262
	idSteps    = 263
	fixtureLen = 264
	idNewline  = 10
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// writeTokenizerFiles writes vocab.json, merges.txt and, when withAdded is
// set, added_tokens.json
func writeTokenizerFiles(t *testing.T, dir string, withAdded bool) {
	t.Helper()

	enc := buildByteEncoder()
	vocab := make(map[string]int, fixtureLen)
	for b, r := range enc {
		vocab[string(r)] = b
	}
	vocab["ab"] = idAB
	vocab["Ġab"] = idSpaceAB
	writeJSON(t, filepath.Join(dir, "vocab.json"), vocab)

	merges := strings.Join([]string{"#version: 0.2", "a b", "Ġ ab"}, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "merges.txt"), []byte(merges), 0o644))

	if withAdded {
		added := map[string]int{}
		for i, tok := range recipe.DefaultSpecialTokens().All() {
			added[tok] = idBOS + i
		}
		writeJSON(t, filepath.Join(dir, "added_tokens.json"), added)
	}
}

// writeModelDir writes a complete tensor-backend checkpoint with a tiny
// randomly initialized GPT-2
func writeModelDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTokenizerFiles(t, dir, true)

	cfg := &gpt2.Config{
		ModelType:    "gpt2",
		VocabSize:    fixtureLen,
		NPositions:   64,
		NEmbd:        8,
		NLayer:       1,
		NHead:        2,
		LayerNormEps: 1e-5,
		EOSTokenID:   idEOS,
	}
	writeJSON(t, filepath.Join(dir, "config.json"), cfg)
	require.NoError(t, gpt2.SaveModel(filepath.Join(dir, "model.safetensors"), gpt2.InitModel(cfg, 1)))

	return dir
}
