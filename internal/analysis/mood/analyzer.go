package mood

import (
	"strings"
	"unicode"
)

// Label is the atmosphere attached to a segment.
type Label string

const (
	Neutral    Label = "neutral"
	Tense      Label = "tense"
	Cheerful   Label = "cheerful"
	Mysterious Label = "mysterious"
	Somber     Label = "somber"
	Triumphant Label = "triumphant"
	Peaceful   Label = "peaceful"
)

type bucket struct {
	label    Label
	keywords []string
}

// Buckets are scanned in order so ties resolve deterministically.
var moodBuckets = []bucket{
	{Tense, []string{
		"scary", "fear", "terrifying", "dark", "danger", "threat", "growl", "scream", "blood", "trap",
		"ambush", "alarm", "panic", "hostile", "weapon", "chase", "rumble", "shadow",
	}},
	{Mysterious, []string{
		"mysterious", "strange", "unknown", "secret", "hidden", "whisper", "riddle", "ancient", "rune",
		"clue", "puzzle", "enigma", "signal", "vanished", "unexplained",
	}},
	{Cheerful, []string{
		"happy", "joy", "bright", "warm", "laugh", "smile", "celebrate", "friendly", "delight", "cheer",
	}},
	{Somber, []string{
		"grief", "mourn", "loss", "sorrow", "tears", "ruin", "lonely", "cold", "dead", "funeral", "regret",
	}},
	{Triumphant, []string{
		"victory", "triumph", "defeat the", "won", "glory", "cheers erupt", "prevail", "conquer", "treasure",
	}},
	{Peaceful, []string{
		"calm", "quiet", "gentle", "serene", "rest", "peace", "still", "soft", "breeze",
	}},
}

// knownLocations are matched as whole words, first hit wins.
var knownLocations = []string{
	"cavern", "caverns", "ship", "bridge", "mansion", "forest", "city", "castle", "village", "tavern",
	"temple", "library", "cellar", "tower", "dungeon", "station", "planet", "garden", "harbor", "crypt",
}

// DetectMood infers a mood label from narrative text.
func DetectMood(text string) Label {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Neutral
	}

	best := Neutral
	bestScore := 0
	for _, b := range moodBuckets {
		score := 0
		for _, word := range b.keywords {
			score += strings.Count(normalized, word)
		}
		if score > bestScore {
			best = b.label
			bestScore = score
		}
	}

	// A lone exclamation-heavy passage reads as tension unless something else dominates.
	if bestScore == 0 && strings.Count(text, "!") >= 2 {
		return Tense
	}
	return best
}

// DetectLocation returns a title-cased location named in the text, or an
// empty string when none of the known places appear.
func DetectLocation(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	present := make(map[string]struct{}, len(words))
	for _, w := range words {
		present[w] = struct{}{}
	}
	for _, loc := range knownLocations {
		if _, ok := present[loc]; ok {
			return titleCase(loc)
		}
	}
	return ""
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
