package recipe

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects what the user supplied
type Mode string

const (
	ModeTitle       Mode = "Title"
	ModeIngredients Mode = "Ingredients"
)

var (
	// ErrEmptyInput is returned when the request text is the empty string
	ErrEmptyInput = errors.New("please enter a title or ingredients")
	// ErrUnknownMode is returned for modes other than Title and Ingredients
	ErrUnknownMode = errors.New("unknown input mode")
)

// Modes lists the supported modes in display order
func Modes() []Mode {
	return []Mode{ModeTitle, ModeIngredients}
}

// ParseMode maps a form or API value onto a Mode. Matching ignores case.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes() {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Request is a single generation request from the page or the API
type Request struct {
	Mode Mode
	Text string
}

// Validate rejects unknown modes and the empty string. Whitespace-only text
// is accepted.
func (r Request) Validate() error {
	if r.Mode != ModeTitle && r.Mode != ModeIngredients {
		return fmt.Errorf("%w: %q", ErrUnknownMode, string(r.Mode))
	}
	if r.Text == "" {
		return ErrEmptyInput
	}
	return nil
}

// Prompt returns the prompt for the request after validating it
func (r Request) Prompt() (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return BuildPrompt(r.Mode, r.Text), nil
}

// BuildPrompt formats the prompt the model continues from.
//
// Title mode leaves the model to write ingredients and steps. Ingredients mode
// leaves the title empty and asks only for steps.
func BuildPrompt(mode Mode, text string) string {
	var b strings.Builder
	b.WriteString(BOSToken + "\n")
	if mode == ModeTitle {
		b.WriteString(TitleMarker + "\n" + text + "\n")
		b.WriteString(IngredientsMarker + "\n")
		return b.String()
	}
	b.WriteString(TitleMarker + "\n")
	b.WriteString(IngredientsMarker + "\n" + text + "\n")
	b.WriteString(StepsMarker + "\n")
	return b.String()
}
