package narrative

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/zhouzirui/narrative-forge/backend/internal/model/story"
)

// MaxChoices caps how many choices a segment may offer.
const MaxChoices = 5

// ErrMalformed is returned when model output does not follow the segment
// layout.
var ErrMalformed = errors.New("malformed segment")

type section int

const (
	sectionNarrative section = iota
	sectionMood
	sectionLocation
	sectionBackground
	sectionCharacter
	sectionWorld
	sectionChoices
	// sectionTrailing follows a one-line MOOD or LOCATION header; free text
	// there still belongs to the narrative.
	sectionTrailing
)

var headers = map[string]section{
	"NARRATIVE":  sectionNarrative,
	"MOOD":       sectionMood,
	"LOCATION":   sectionLocation,
	"BACKGROUND": sectionBackground,
	"CHARACTER":  sectionCharacter,
	"WORLD":      sectionWorld,
	"CHOICES":    sectionChoices,
}

var (
	headerLine  = regexp.MustCompile(`^([A-Za-z][A-Za-z_ ]*?)\s*:\s*(.*)$`)
	upperKey    = regexp.MustCompile(`^[A-Z][A-Z_ ]*$`)
	choiceLine  = regexp.MustCompile(`^(?:\d+\s*[.)]|[-*•])\s*(.+)$`)
	choiceTag   = regexp.MustCompile(`^(.*?)\s*\[([^\]]*)\]\s*(.*)$`)
	slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)
)

// Parsed is a segment read from model output.
type Parsed struct {
	Narrative  string
	Mood       string
	Location   string
	Background string
	Characters map[string]string
	World      map[string]string
	Choices    []story.Choice
	// Skipped holds CHARACTER and WORLD entries that were not key = value.
	Skipped    []string
}

// Parse reads raw model output in the segment layout.
func Parse(raw string) (Parsed, error) {
	var (
		out       Parsed
		narrative []string
		current   = sectionNarrative
		seen      = make(map[string]bool)
	)

	for lineNo, rawLine := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		line := undecorate(rawLine)

		if key, rest, ok := splitHeader(line); ok {
			sec, known := headers[strings.ToUpper(key)]
			switch {
			case known:
				current = out.applyHeader(sec, rest, &narrative, seen)
				continue
			case current != sectionNarrative && upperKey.MatchString(key):
				return Parsed{}, fmt.Errorf("%w: line %d: unknown key %q", ErrMalformed, lineNo+1, key)
			}
		}

		switch current {
		case sectionNarrative, sectionTrailing:
			narrative = append(narrative, strings.TrimSpace(rawLine))
		case sectionBackground:
			if line != "" {
				out.Background = joinNonEmpty(out.Background, line)
			}
		case sectionChoices:
			out.addChoice(line, seen)
		}
	}

	out.Narrative = joinParagraphs(narrative)
	if out.Narrative == "" {
		return Parsed{}, fmt.Errorf("%w: empty narrative", ErrMalformed)
	}
	if len(out.Choices) == 0 {
		return Parsed{}, fmt.Errorf("%w: no choices", ErrMalformed)
	}
	return out, nil
}

// applyHeader records the text that shares a line with a header and returns
// the section the following lines belong to.
func (p *Parsed) applyHeader(sec section, rest string, narrative *[]string, seen map[string]bool) section {
	rest = strings.TrimSpace(rest)
	switch sec {
	case sectionNarrative:
		if rest != "" {
			*narrative = append(*narrative, rest)
		}
	case sectionMood:
		if fields := strings.Fields(rest); len(fields) > 0 {
			p.Mood = strings.ToLower(strings.Trim(fields[0], ".,;!"))
		}
		return sectionTrailing
	case sectionLocation:
		p.Location = strings.TrimRight(rest, ".")
		return sectionTrailing
	case sectionBackground:
		p.Background = rest
	case sectionCharacter:
		p.Characters = p.addFact(p.Characters, rest)
	case sectionWorld:
		p.World = p.addFact(p.World, rest)
	case sectionChoices:
		p.addChoice(rest, seen)
	}
	return sec
}

func (p *Parsed) addFact(facts map[string]string, entry string) map[string]string {
	k, v, ok := splitFact(entry)
	if !ok {
		if entry != "" {
			p.Skipped = append(p.Skipped, entry)
		}
		return facts
	}
	if facts == nil {
		facts = make(map[string]string)
	}
	facts[k] = v
	return facts
}

func (p *Parsed) addChoice(line string, seen map[string]bool) {
	choice, ok := parseChoice(line)
	if !ok || seen[choice.Action] || len(p.Choices) >= MaxChoices {
		return
	}
	seen[choice.Action] = true
	p.Choices = append(p.Choices, choice)
}

// undecorate strips markdown heading and emphasis markers around a line.
func undecorate(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "#")
	line = strings.TrimSpace(line)
	for _, marker := range []string{"**", "__"} {
		if strings.HasPrefix(line, marker) {
			line = strings.TrimPrefix(line, marker)
			line = strings.Replace(line, marker, "", 1)
		}
	}
	return strings.TrimSpace(line)
}

func splitHeader(line string) (key, rest string, ok bool) {
	m := headerLine.FindStringSubmatch(line)
	if m == nil {
		// A bare heading such as "## Choices" still opens a section.
		if _, known := headers[strings.ToUpper(line)]; known {
			return line, "", true
		}
		return "", "", false
	}
	return strings.TrimSpace(m[1]), m[2], true
}

func splitFact(s string) (key, value string, ok bool) {
	sep := "="
	if !strings.Contains(s, sep) {
		sep = ":"
	}
	k, v, found := strings.Cut(s, sep)
	if !found {
		return "", "", false
	}
	key = Slug(k)
	value = strings.TrimSpace(v)
	if key == "" || value == "" {
		return "", "", false
	}
	return key, value, true
}

func parseChoice(line string) (story.Choice, bool) {
	m := choiceLine.FindStringSubmatch(line)
	if m == nil {
		return story.Choice{}, false
	}
	body := strings.TrimSpace(m[1])

	var text, action, desc string
	if t := choiceTag.FindStringSubmatch(body); t != nil {
		text = t[1]
		action = Slug(t[2])
		desc = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(t[3]), "-—:"))
	} else {
		text = body
		for _, sep := range []string{" - ", " — "} {
			if before, after, found := strings.Cut(body, sep); found {
				text, desc = before, strings.TrimSpace(after)
				break
			}
		}
	}

	text = strings.TrimSpace(strings.Trim(strings.TrimSpace(text), "*_\""))
	if text == "" {
		return story.Choice{}, false
	}
	if action == "" {
		action = Slug(text)
	}
	if action == "" {
		return story.Choice{}, false
	}
	return story.Choice{Text: text, Action: action, Description: desc}, true
}

// Slug lowercases s and joins its words with underscores.
func Slug(s string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// joinParagraphs joins lines with newlines, collapsing runs of blank lines to
// a single blank line.
func joinParagraphs(lines []string) string {
	var out []string
	blank := false
	for _, l := range lines {
		if l == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}
