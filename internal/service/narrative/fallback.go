package narrative

import (
	"github.com/zhouzirui/narrative-forge/backend/internal/analysis/mood"
	"github.com/zhouzirui/narrative-forge/backend/internal/model/catalog"
	"github.com/zhouzirui/narrative-forge/backend/internal/model/story"
)

// ContinueChoice is the single choice offered by a fallback segment.
var ContinueChoice = story.Choice{Text: "Continue", Action: "continue"}

const transitionText = "The story pauses for a moment as you gather your thoughts. Whatever comes next, you decide to press on."

// fallbackOpening opens a story from the genre premise when the model could
// not produce a usable first segment.
func fallbackOpening(id string, genre catalog.Genre) story.Segment {
	text := genre.Opening.Text
	if text == "" {
		text = "Your adventure is about to begin."
	}
	return story.Segment{
		ID:                id,
		Text:              text,
		Choices:           []story.Choice{ContinueChoice},
		BackgroundContext: genre.Opening.Background,
		Mood:              string(mood.DetectMood(text)),
		Location:          mood.DetectLocation(text),
	}
}

// fallbackContinuation keeps a story moving after a failed generation.
func fallbackContinuation(id string, previous *story.Segment) story.Segment {
	seg := story.Segment{
		ID:      id,
		Text:    transitionText,
		Choices: []story.Choice{ContinueChoice},
		Mood:    string(mood.Neutral),
	}
	if previous != nil {
		seg.Location = previous.Location
	}
	return seg
}
