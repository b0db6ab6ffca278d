package story

// Choice is a selectable action offered by a segment.
type Choice struct {
	Text        string `json:"text"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

// Segment is one unit of narrative plus the choices available from it.
type Segment struct {
	ID                string   `json:"id"`
	Text              string   `json:"text"`
	Choices           []Choice `json:"choices"`
	BackgroundContext string   `json:"background_context,omitempty"`
	Mood              string   `json:"mood,omitempty"`
	Location          string   `json:"location,omitempty"`
}

// ValidChoice reports whether index addresses one of the segment's choices.
func (s Segment) ValidChoice(index int) bool {
	return index >= 0 && index < len(s.Choices)
}

// Clone returns a copy that shares no memory with s.
func (s Segment) Clone() Segment {
	out := s
	if s.Choices != nil {
		out.Choices = append([]Choice(nil), s.Choices...)
	}
	return out
}
