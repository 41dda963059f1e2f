package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanOutputTitle(t *testing.T) {
	full := BuildPrompt(ModeTitle, "Spicy Chicken Curry") + "2 cups chicken\n[STEPS]\nCook it.<|endofrecipe|>"
	assert.Equal(t, "[INGREDIENTS]\n2 cups chicken\n[STEPS]\nCook it.", CleanOutput(full, ModeTitle))
}

func TestCleanOutputIngredients(t *testing.T) {
	full := BuildPrompt(ModeIngredients, "eggs, milk") + "Whisk.\nFry.\n<|endofrecipe|>\n"
	assert.Equal(t, "[STEPS]\nWhisk.\nFry.", CleanOutput(full, ModeIngredients))
}

func TestCleanOutputPayloadIsTrimmed(t *testing.T) {
	full := "[INGREDIENTS]\n   salt, pepper   " + EOSToken + "  \n"
	assert.Equal(t, "[INGREDIENTS]\n   salt, pepper", CleanOutput(full, ModeTitle))
}

func TestCleanOutputMissingMarkerFallsBack(t *testing.T) {
	full := "  <|startofrecipe|>\n[TITLE]\n[INGREDIENTS]\nrice\n and then nothing" + EOSToken
	got := CleanOutput(full, ModeIngredients)
	assert.Equal(t, StripEOS(full), got)
	assert.Equal(t, "<|startofrecipe|>\n[TITLE]\n[INGREDIENTS]\nrice\n and then nothing", got)
}

func TestCleanOutputMarkerWithoutNewlineIsNotASplitPoint(t *testing.T) {
	full := "Soup [INGREDIENTS] water"
	assert.Equal(t, full, CleanOutput(full, ModeTitle))
}

func TestCleanOutputSplitsOnFirstMarkerOnly(t *testing.T) {
	full := "prompt\n[STEPS]\nStir.\n[STEPS]\nStir again.\n" + EOSToken + "[STEPS]\n"
	assert.Equal(t, "[STEPS]\nStir.\n[STEPS]\nStir again.\n[STEPS]", CleanOutput(full, ModeIngredients))
}

func TestStripEOSIdempotent(t *testing.T) {
	inputs := []string{
		"",
		EOSToken,
		"a" + EOSToken + "b" + EOSToken,
		"  text \n" + EOSToken + EOSToken + "  ",
	}
	for _, in := range inputs {
		once := StripEOS(in)
		assert.Equal(t, once, StripEOS(once), "input %q", in)
		assert.NotContains(t, once, EOSToken)
	}
}

func TestParseSections(t *testing.T) {
	sec := ParseSections("[INGREDIENTS]\n2 cups chicken\n[STEPS]\nCook it.")
	assert.Equal(t, Sections{Ingredients: "2 cups chicken", Steps: "Cook it."}, sec)

	sec = ParseSections("[TITLE]\nCurry\n[INGREDIENTS]\nrice\n[STEPS]\nBoil.\n[STEPS]\nServe.")
	assert.Equal(t, "Curry", sec.Title)
	assert.Equal(t, "rice", sec.Ingredients)
	assert.Equal(t, "Boil.\n[STEPS]\nServe.", sec.Steps)

	assert.Equal(t, Sections{}, ParseSections("no markers at all"))
}
