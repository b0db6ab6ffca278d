package story

import (
	"time"

	"github.com/zhouzirui/narrative-forge/backend/internal/model/story"
	"github.com/zhouzirui/narrative-forge/backend/pkg/jsonvalue"
)

func choiceValue(c story.Choice) jsonvalue.Value {
	v := jsonvalue.Object(
		jsonvalue.Field("text", jsonvalue.String(c.Text)),
		jsonvalue.Field("action", jsonvalue.String(c.Action)),
	)
	if c.Description != "" {
		v = v.With("description", jsonvalue.String(c.Description))
	}
	return v
}

func segmentValue(seg story.Segment) jsonvalue.Value {
	choices := make([]jsonvalue.Value, len(seg.Choices))
	for i, c := range seg.Choices {
		choices[i] = choiceValue(c)
	}
	return jsonvalue.Object(
		jsonvalue.Field("id", jsonvalue.String(seg.ID)),
		jsonvalue.Field("text", jsonvalue.String(seg.Text)),
		jsonvalue.Field("choices", jsonvalue.Array(choices...)),
		jsonvalue.Field("background_context", jsonvalue.OptionalString(seg.BackgroundContext)),
		jsonvalue.Field("mood", jsonvalue.OptionalString(seg.Mood)),
		jsonvalue.Field("location", jsonvalue.OptionalString(seg.Location)),
	)
}

func segmentsValue(segs []story.Segment) jsonvalue.Value {
	out := make([]jsonvalue.Value, len(segs))
	for i, seg := range segs {
		out[i] = segmentValue(seg)
	}
	return jsonvalue.Array(out...)
}

func sessionValue(sess story.Session) jsonvalue.Value {
	current := jsonvalue.Null()
	if sess.CurrentSegment != nil {
		current = segmentValue(*sess.CurrentSegment)
	}
	v := jsonvalue.Object(
		jsonvalue.Field("story_id", jsonvalue.String(sess.ID)),
		jsonvalue.Field("status", jsonvalue.String(string(sess.Status))),
		jsonvalue.Field("current_segment", current),
		jsonvalue.Field("story_history", segmentsValue(sess.History)),
		jsonvalue.Field("genre", jsonvalue.String(sess.Genre)),
		jsonvalue.Field("difficulty", jsonvalue.String(sess.Difficulty)),
		jsonvalue.Field("created_at", timeValue(sess.CreatedAt)),
	)
	if !sess.LastUpdated.IsZero() {
		v = v.With("last_updated", timeValue(sess.LastUpdated))
	}
	return v.
		With("character_info", jsonvalue.StringMap(sess.CharacterInfo)).
		With("world_info", jsonvalue.StringMap(sess.WorldInfo))
}

func timeValue(t time.Time) jsonvalue.Value {
	return jsonvalue.String(t.UTC().Format(time.RFC3339Nano))
}
