package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"recipe-gen/recipe"
)

// tokenName accepts both "<|x|>" and {"content": "<|x|>"} forms used by
// special_tokens_map.json and tokenizer_config.json
type tokenName string

func (n *tokenName) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*n = tokenName(s)
		return nil
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*n = tokenName(obj.Content)
	return nil
}

type specialTokensFile struct {
	BOS        tokenName   `json:"bos_token"`
	EOS        tokenName   `json:"eos_token"`
	Pad        tokenName   `json:"pad_token"`
	Additional []tokenName `json:"additional_special_tokens"`
}

// LoadSpecialTokens resolves the special token strings of a checkpoint.
// tokenizer_config.json is read first and special_tokens_map.json overrides
// it; roles neither file names keep the recipe defaults.
func LoadSpecialTokens(dir string) (recipe.SpecialTokens, error) {
	st := recipe.DefaultSpecialTokens()

	for _, name := range []string{"tokenizer_config.json", "special_tokens_map.json"} {
		var f specialTokensFile
		found, err := readOptionalJSON(filepath.Join(dir, name), &f)
		if err != nil {
			return st, err
		}
		if !found {
			continue
		}
		if f.BOS != "" {
			st.BOS = string(f.BOS)
		}
		if f.EOS != "" {
			st.EOS = string(f.EOS)
		}
		if f.Pad != "" {
			st.Pad = string(f.Pad)
		}
		if len(f.Additional) > 0 {
			st.Additional = st.Additional[:0:0]
			for _, a := range f.Additional {
				st.Additional = append(st.Additional, string(a))
			}
		}
	}

	return st, nil
}

// readOptionalJSON decodes path into v, reporting false if the file does
// not exist
func readOptionalJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
