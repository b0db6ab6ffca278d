package mood

import "testing"

func TestDetectMoodTense(t *testing.T) {
	got := DetectMood("A terrifying growl echoes from the dark tunnel ahead.")
	if got != Tense {
		t.Fatalf("expected tense mood, got %s", got)
	}
}

func TestDetectMoodMysterious(t *testing.T) {
	got := DetectMood("Strange runes cover the wall, hinting at a hidden secret.")
	if got != Mysterious {
		t.Fatalf("expected mysterious mood, got %s", got)
	}
}

func TestDetectMoodNeutralForPlainText(t *testing.T) {
	if got := DetectMood("You walk along the road."); got != Neutral {
		t.Fatalf("expected neutral mood, got %s", got)
	}
	if got := DetectMood("   "); got != Neutral {
		t.Fatalf("expected neutral mood for blank text, got %s", got)
	}
}

func TestDetectLocation(t *testing.T) {
	if got := DetectLocation("You step into the mansion's foyer."); got != "Mansion" {
		t.Fatalf("expected Mansion, got %q", got)
	}
	if got := DetectLocation("Nothing but open sky."); got != "" {
		t.Fatalf("expected no location, got %q", got)
	}
}
