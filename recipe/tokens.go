// Package recipe builds recipe prompts for the fine-tuned GPT-2 checkpoint and
// turns raw generations back into displayable recipes.
package recipe

// Literal special tokens the checkpoint was fine-tuned with. They must match
// the tokenizer vocabulary exactly; a mismatch does not fail, it only makes
// generations worse.
const (
	BOSToken = "<|startofrecipe|>"
	EOSToken = "<|endofrecipe|>"
	PadToken = "<|pad|>"

	TitleMarker       = "[TITLE]"
	IngredientsMarker = "[INGREDIENTS]"
	StepsMarker       = "[STEPS]"
)

// SpecialTokens maps the symbolic token roles to their literal values
type SpecialTokens struct {
	BOS        string
	EOS        string
	Pad        string
	Additional []string
}

// DefaultSpecialTokens returns the token set used during fine-tuning
func DefaultSpecialTokens() SpecialTokens {
	return SpecialTokens{
		BOS:        BOSToken,
		EOS:        EOSToken,
		Pad:        PadToken,
		Additional: []string{TitleMarker, IngredientsMarker, StepsMarker},
	}
}

// All returns every literal token in the set, BOS first
func (s SpecialTokens) All() []string {
	all := make([]string, 0, 3+len(s.Additional))
	all = append(all, s.BOS, s.EOS, s.Pad)
	return append(all, s.Additional...)
}
