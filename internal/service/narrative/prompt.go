package narrative

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zhouzirui/narrative-forge/backend/internal/model/catalog"
	"github.com/zhouzirui/narrative-forge/backend/internal/model/story"
)

// outputGrammar tells the model how to lay out a segment so the parser can
// read it back.
const outputGrammar = `Answer using exactly this layout:

NARRATIVE:
<the next passage of the story, under 150 words, second person>
MOOD: <one word such as tense, cheerful, mysterious, somber, triumphant, peaceful>
LOCATION: <where the scene takes place>
CHARACTER: <name> = <what changed about them>   (only for new or changed characters)
WORLD: <fact> = <value>                          (only for new or changed world facts)
CHOICES:
1. <choice the player can make> [<action_tag>] - <short hint>
2. <choice> [<action_tag>] - <short hint>
3. <choice> [<action_tag>] - <short hint>

Offer between 2 and 4 choices that lead to different outcomes. Action tags are lower_snake_case verbs.`

// strictReminder is appended to the system prompt after a response could not
// be parsed.
const strictReminder = `IMPORTANT: your previous answer did not follow the required layout. Start with the line "NARRATIVE:", end with a "CHOICES:" section containing numbered choices, and write nothing else.`

// PromptTemplate is the system prompt for one genre and difficulty pairing.
type PromptTemplate struct {
	Narrator string
	Rules    []string
}

// PromptManager holds the system templates keyed by genre and difficulty.
type PromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPromptManager builds a template for every genre and difficulty pairing
// in the catalog.
func NewPromptManager(genres catalog.Store) *PromptManager {
	pm := &PromptManager{templates: make(map[string]*PromptTemplate)}
	for _, g := range genres.Genres() {
		for _, d := range genres.Difficulties() {
			pm.templates[templateKey(g.ID, d.ID)] = &PromptTemplate{
				Narrator: g.Narrator,
				Rules:    append([]string(nil), d.Rules...),
			}
		}
	}
	return pm
}

func templateKey(genre, difficulty string) string {
	return genre + "/" + difficulty
}

// GetPromptTemplate returns the template for a genre and difficulty.
func (pm *PromptManager) GetPromptTemplate(genre, difficulty string) (*PromptTemplate, error) {
	tpl, ok := pm.templates[templateKey(genre, difficulty)]
	if !ok {
		return nil, fmt.Errorf("prompt template not found for %s", templateKey(genre, difficulty))
	}
	return tpl, nil
}

// BuildSystemPrompt renders the narrator persona, difficulty rules and the
// output grammar. strict adds the format reminder used on parse retries.
func (pm *PromptManager) BuildSystemPrompt(genre, difficulty string, strict bool) string {
	tpl, err := pm.GetPromptTemplate(genre, difficulty)
	if err != nil {
		tpl = &PromptTemplate{
			Narrator: fmt.Sprintf("You are a master storyteller running an interactive %s adventure.", genre),
		}
	}

	var b strings.Builder
	b.WriteString(tpl.Narrator)
	b.WriteString("\nYou narrate an interactive story in which the player decides what happens next. Stay consistent with the established world and characters.")
	if len(tpl.Rules) > 0 {
		b.WriteString("\n\nDifficulty rules:\n- ")
		b.WriteString(strings.Join(tpl.Rules, "\n- "))
	}
	b.WriteString("\n\n")
	b.WriteString(outputGrammar)
	if strict {
		b.WriteString("\n\n")
		b.WriteString(strictReminder)
	}
	return b.String()
}

// openingQuery asks for the first segment of a story.
func openingQuery(genre catalog.Genre) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Begin a new %s story.\n", strings.ToLower(genreName(genre)))
	if genre.Opening.Text != "" {
		fmt.Fprintf(&b, "Opening premise: %s\n", genre.Opening.Text)
	}
	if genre.Opening.Background != "" {
		fmt.Fprintf(&b, "Background: %s\n", genre.Opening.Background)
	}
	writeFacts(&b, genre.Opening.Characters, genre.Opening.World)
	b.WriteString("Write the opening scene and offer the player their first choices.")
	return b.String()
}

// choiceQuery carries the player's move and the facts known so far.
func choiceQuery(sess story.Session, choice story.Choice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The player chose: %q\n", choice.Text)
	fmt.Fprintf(&b, "ACTION: %s\n", choice.Action)
	if choice.Description != "" {
		fmt.Fprintf(&b, "Intent: %s\n", choice.Description)
	}
	writeFacts(&b, sess.CharacterInfo, sess.WorldInfo)
	b.WriteString("Continue the story from this choice.")
	return b.String()
}

func writeFacts(b *strings.Builder, characters, world map[string]string) {
	if len(characters) > 0 {
		b.WriteString("Known characters:\n")
		for _, k := range sortedKeys(characters) {
			fmt.Fprintf(b, "- %s: %s\n", k, characters[k])
		}
	}
	if len(world) > 0 {
		b.WriteString("World facts:\n")
		for _, k := range sortedKeys(world) {
			fmt.Fprintf(b, "- %s: %s\n", k, world[k])
		}
	}
}

// historyWindow returns the last window history passages followed by the
// current segment, oldest first.
func historyWindow(sess story.Session, window int) []string {
	var passages []string
	if window > 0 {
		start := len(sess.History) - window
		if start < 0 {
			start = 0
		}
		for _, seg := range sess.History[start:] {
			passages = append(passages, seg.Text)
		}
	}
	if sess.CurrentSegment != nil {
		passages = append(passages, sess.CurrentSegment.Text)
	}
	return passages
}

// trimToBudget drops the oldest passages until the whole prompt fits in
// budget tokens. A budget of zero disables trimming.
func trimToBudget(counter TokenCounter, budget int, system, query string, history []string) []string {
	if budget <= 0 || counter == nil {
		return history
	}
	total := counter.Count(system) + counter.Count(query)
	sizes := make([]int, len(history))
	for i, h := range history {
		sizes[i] = counter.Count(h)
		total += sizes[i]
	}
	drop := 0
	for total > budget && drop < len(history) {
		total -= sizes[drop]
		drop++
	}
	return history[drop:]
}

func genreName(g catalog.Genre) string {
	if g.Name != "" {
		return g.Name
	}
	return g.ID
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
