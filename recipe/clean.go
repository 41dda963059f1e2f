package recipe

import "strings"

// splitMarker returns the marker whose first occurrence starts the model's
// own contribution for the given mode
func splitMarker(mode Mode) string {
	if mode == ModeTitle {
		return IngredientsMarker + "\n"
	}
	return StepsMarker + "\n"
}

// CleanOutput isolates the generated part of fullText, the echoed prompt plus
// continuation. Everything after the first section marker is kept, including
// repeated markers. When the marker is missing the whole text is used. EOS
// tokens are then removed and surrounding whitespace trimmed.
func CleanOutput(fullText string, mode Mode) string {
	marker := splitMarker(mode)
	out := fullText
	if _, rest, found := strings.Cut(fullText, marker); found {
		out = marker + rest
	}
	return StripEOS(out)
}

// StripEOS removes every end-of-recipe token and trims whitespace
func StripEOS(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, EOSToken, ""))
}

// Sections is a cleaned recipe split on its section markers
type Sections struct {
	Title       string `json:"title,omitempty"`
	Ingredients string `json:"ingredients,omitempty"`
	Steps       string `json:"steps,omitempty"`
}

// ParseSections splits a cleaned recipe on the first occurrence of each
// marker. Missing sections stay empty; text before any marker is dropped.
func ParseSections(text string) Sections {
	type span struct {
		marker string
		dst    *string
		at     int
	}
	var sec Sections
	spans := []*span{
		{marker: TitleMarker, dst: &sec.Title},
		{marker: IngredientsMarker, dst: &sec.Ingredients},
		{marker: StepsMarker, dst: &sec.Steps},
	}

	found := spans[:0:0]
	for _, s := range spans {
		s.at = strings.Index(text, s.marker)
		if s.at >= 0 {
			found = append(found, s)
		}
	}
	for _, s := range found {
		end := len(text)
		for _, other := range found {
			if other.at > s.at && other.at < end {
				end = other.at
			}
		}
		*s.dst = strings.TrimSpace(text[s.at+len(s.marker) : end])
	}
	return sec
}
