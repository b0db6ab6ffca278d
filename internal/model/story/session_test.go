package story

import (
	"testing"
	"time"
)

func TestSessionAdvanceAppendsPreviousSegment(t *testing.T) {
	s := Session{ID: "s"}
	first := Segment{ID: s.NextSegmentID(), Text: "one", Choices: []Choice{{Text: "go", Action: "go"}}}
	s.Advance(first, time.Now())

	if len(s.History) != 0 {
		t.Fatalf("expected empty history after first segment, got %d", len(s.History))
	}
	if s.Status != StatusActive {
		t.Fatalf("expected active status, got %s", s.Status)
	}

	second := Segment{ID: s.NextSegmentID(), Text: "two"}
	s.Advance(second, time.Now())

	if len(s.History) != 1 || s.History[0].ID != "seg-1" {
		t.Fatalf("unexpected history: %+v", s.History)
	}
	if s.CurrentSegment.ID != "seg-2" {
		t.Fatalf("unexpected current segment %s", s.CurrentSegment.ID)
	}
}

func TestSessionCloneIsIndependent(t *testing.T) {
	s := Session{
		CurrentSegment: &Segment{ID: "seg-1", Choices: []Choice{{Text: "a", Action: "a"}}},
		History:        []Segment{{ID: "seg-0"}},
		CharacterInfo:  map[string]string{"hero": "brave"},
	}

	c := s.Clone()
	c.CurrentSegment.Choices[0].Text = "changed"
	c.History[0].ID = "changed"
	c.CharacterInfo["hero"] = "changed"

	if s.CurrentSegment.Choices[0].Text != "a" || s.History[0].ID != "seg-0" || s.CharacterInfo["hero"] != "brave" {
		t.Fatal("clone shares memory with original session")
	}
}

func TestSegmentValidChoice(t *testing.T) {
	seg := Segment{Choices: []Choice{{Action: "a"}, {Action: "b"}}}
	cases := map[int]bool{-1: false, 0: true, 1: true, 2: false}
	for idx, want := range cases {
		if got := seg.ValidChoice(idx); got != want {
			t.Fatalf("ValidChoice(%d) = %v, want %v", idx, got, want)
		}
	}
}
