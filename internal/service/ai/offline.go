package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/zhouzirui/narrative-forge/backend/internal/model/catalog"
)

type scriptedChoice struct {
	text   string
	action string
}

var scriptedPassages = map[string]string{
	"bold_entrance":       "You stride confidently into the Crystal Caverns. The air is thick with ancient magic, and your footsteps echo through the crystalline passages. Suddenly, you hear a low rumble from deep within the mountain...",
	"cautious_approach":   "You carefully examine the entrance, noting the intricate runes carved into the stone. Your careful observation reveals a hidden mechanism that could be either a trap or a blessing...",
	"prepare_equipment":   "You take a moment to check your gear. Your sword gleams in the dim light, and you feel the weight of your magical items. You're as ready as you'll ever be for what lies ahead...",
	"investigate":         "You decide to investigate the distress signal. As you approach the planet's surface, your sensors detect unusual energy readings that don't match any known technology...",
	"scan_planet":         "Your ship's scanners sweep across the planet's surface, revealing structures that defy conventional physics. The readings suggest technology far beyond human capabilities...",
	"enter_mansion":       "You step into the mansion, the floorboards creaking beneath your feet. The air is thick with dust and something else - the lingering presence of secrets waiting to be uncovered...",
	"interview_neighbors": "You approach the neighboring houses, hoping to gather information. The locals seem nervous, their eyes darting around as they speak in hushed tones about the mansion's dark history...",
}

var scriptedChoices = map[string][]scriptedChoice{
	"fantasy": {
		{"Continue forward", "continue"},
		{"Investigate the area", "investigate"},
		{"Use magic", "use_magic"},
		{"Fight", "fight"},
		{"Run away", "flee"},
	},
	"scifi": {
		{"Scan the area", "scan"},
		{"Contact the crew", "contact_crew"},
		{"Use technology", "use_tech"},
		{"Proceed carefully", "proceed_carefully"},
		{"Return to ship", "return_ship"},
	},
	"mystery": {
		{"Search for clues", "search"},
		{"Question someone", "question"},
		{"Examine evidence", "examine"},
		{"Follow a lead", "follow_lead"},
		{"Call for backup", "call_backup"},
	},
}

const offlineChoiceCount = 3

// OfflineBackend is a deterministic narrator used when no model credentials
// are configured. It reads the request hints instead of the prompt text and
// answers in the segment grammar.
type OfflineBackend struct {
	genres catalog.Store
}

// NewOfflineBackend returns a scripted narrator that opens stories from genres.
func NewOfflineBackend(genres catalog.Store) *OfflineBackend {
	return &OfflineBackend{genres: genres}
}

func (b *OfflineBackend) Name() string { return "offline" }

func (b *OfflineBackend) Generate(ctx context.Context, p Prompt, _ Params) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	genreID := p.Hints[HintGenre]
	turn := p.Hints[HintTurn]
	if turn == "" || turn == "0" {
		if genre, ok := b.genres.FindGenre(genreID); ok {
			return renderOpening(genre.Opening), nil
		}
	}

	action := p.Hints[HintAction]
	text := scriptedPassages[action]
	if text == "" {
		choiceText := strings.ToLower(strings.TrimSpace(p.Hints[HintChoiceText]))
		if choiceText == "" {
			choiceText = "press on"
		}
		text = fmt.Sprintf("You choose to %s. The story continues with new challenges and discoveries ahead...", choiceText)
	}

	var out strings.Builder
	out.WriteString("NARRATIVE:\n")
	out.WriteString(text)
	out.WriteString("\nCHOICES:\n")
	for i, c := range pickChoices(genreID, action, turn) {
		fmt.Fprintf(&out, "%d. %s [%s]\n", i+1, c.text, c.action)
	}
	return out.String(), nil
}

// pickChoices rotates through the genre's templates so the same turn and
// action always yield the same options.
func pickChoices(genreID, action, turn string) []scriptedChoice {
	templates, ok := scriptedChoices[genreID]
	if !ok {
		templates = scriptedChoices["fantasy"]
	}
	h := fnv.New32a()
	h.Write([]byte(action))
	h.Write([]byte{0})
	h.Write([]byte(turn))
	start := int(h.Sum32() % uint32(len(templates)))

	picked := make([]scriptedChoice, 0, offlineChoiceCount)
	for i := 0; i < offlineChoiceCount && i < len(templates); i++ {
		picked = append(picked, templates[(start+i)%len(templates)])
	}
	return picked
}

func renderOpening(o catalog.Opening) string {
	var out strings.Builder
	out.WriteString("NARRATIVE:\n")
	out.WriteString(o.Text)
	out.WriteString("\n")
	if o.Background != "" {
		fmt.Fprintf(&out, "BACKGROUND: %s\n", o.Background)
	}
	for _, k := range sortedKeys(o.Characters) {
		fmt.Fprintf(&out, "CHARACTER: %s = %s\n", k, o.Characters[k])
	}
	for _, k := range sortedKeys(o.World) {
		fmt.Fprintf(&out, "WORLD: %s = %s\n", k, o.World[k])
	}
	out.WriteString("CHOICES:\n")
	for i, c := range o.Choices {
		fmt.Fprintf(&out, "%d. %s [%s]", i+1, c.Text, c.Action)
		if c.Description != "" {
			fmt.Fprintf(&out, " - %s", c.Description)
		}
		out.WriteString("\n")
	}
	return out.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
