package story

import (
	"fmt"
	"time"
)

// Status tracks where a session is in its lifecycle.
type Status string

const (
	StatusCreated Status = "created"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

// Session captures one user's branching story.
type Session struct {
	ID             string            `json:"story_id"`
	Genre          string            `json:"genre"`
	Difficulty     string            `json:"difficulty"`
	Status         Status            `json:"status"`
	CurrentSegment *Segment          `json:"current_segment"`
	History        []Segment         `json:"story_history"`
	CharacterInfo  map[string]string `json:"character_info"`
	WorldInfo      map[string]string `json:"world_info"`
	CreatedAt      time.Time         `json:"created_at"`
	LastUpdated    time.Time         `json:"last_updated"`

	// SegmentSeq counts segments issued so far and drives segment ids.
	SegmentSeq int `json:"-"`
}

// NextSegmentID allocates the next segment identifier for the session.
func (s *Session) NextSegmentID() string {
	s.SegmentSeq++
	return fmt.Sprintf("seg-%d", s.SegmentSeq)
}

// Advance moves the current segment into history and installs next.
func (s *Session) Advance(next Segment, at time.Time) {
	if s.CurrentSegment != nil {
		history := make([]Segment, len(s.History), len(s.History)+1)
		copy(history, s.History)
		s.History = append(history, *s.CurrentSegment)
	}
	s.CurrentSegment = &next
	s.Status = StatusActive
	s.LastUpdated = at
}

// MergeFacts copies character and world updates into the session.
func (s *Session) MergeFacts(characters, world map[string]string) {
	if len(characters) > 0 && s.CharacterInfo == nil {
		s.CharacterInfo = make(map[string]string, len(characters))
	}
	for k, v := range characters {
		s.CharacterInfo[k] = v
	}
	if len(world) > 0 && s.WorldInfo == nil {
		s.WorldInfo = make(map[string]string, len(world))
	}
	for k, v := range world {
		s.WorldInfo[k] = v
	}
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	if s.CurrentSegment != nil {
		seg := s.CurrentSegment.Clone()
		out.CurrentSegment = &seg
	}
	if s.History != nil {
		out.History = make([]Segment, len(s.History))
		for i, seg := range s.History {
			out.History[i] = seg.Clone()
		}
	}
	out.CharacterInfo = cloneMap(s.CharacterInfo)
	out.WorldInfo = cloneMap(s.WorldInfo)
	return out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
