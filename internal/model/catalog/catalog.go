package catalog

import "github.com/zhouzirui/narrative-forge/backend/internal/model/story"

// Genre describes a story genre exposed to the client along with the
// material used to open and narrate a story in it.
type Genre struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Narrator is the storyteller persona injected into the system prompt.
	Narrator string `json:"-"`
	Opening  Opening `json:"-"`
}

// Opening seeds a brand new session of a genre.
type Opening struct {
	Text       string
	Choices    []story.Choice
	Background string
	Characters map[string]string
	World      map[string]string
}

// Difficulty describes a difficulty level and how it shapes the narration.
type Difficulty struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Rules are appended to the system prompt for this level.
	Rules []string `json:"-"`
}

// Seed provides the built-in genres.
func Seed() []Genre {
	return []Genre{
		{
			ID:          "fantasy",
			Name:        "Fantasy",
			Description: "Epic adventures in magical realms with dragons, wizards, and ancient artifacts",
			Narrator:    "You are a master storyteller of high fantasy. Your prose is vivid and mythic, full of old magic, ruined kingdoms and creatures of legend.",
			Opening: Opening{
				Text: "You stand at the entrance of the ancient Crystal Caverns, a legendary place where adventurers seek the fabled Heart of the Mountain. The air is thick with magic, and you can feel the weight of destiny upon your shoulders. Your quest begins now...",
				Choices: []story.Choice{
					{Text: "Enter the caverns boldly", Action: "bold_entrance", Description: "Charge forward with confidence"},
					{Text: "Study the entrance first", Action: "cautious_approach"},
					{Text: "Check your equipment", Action: "prepare_equipment"},
				},
				Background: "The Crystal Caverns are said to hold ancient treasures and powerful artifacts. Many have entered, but few have returned. The Heart of the Mountain is a legendary gem that grants its wielder immense power.",
				Characters: map[string]string{
					"protagonist": "A brave adventurer seeking glory and treasure",
					"mentor":      "The wise old sage who sent you on this quest",
				},
				World: map[string]string{
					"setting":     "Fantasy realm with magic and mythical creatures",
					"time_period": "Medieval fantasy era",
				},
			},
		},
		{
			ID:          "scifi",
			Name:        "Science Fiction",
			Description: "Space exploration, advanced technology, and encounters with the unknown",
			Narrator:    "You are a master storyteller of science fiction. Your prose is precise and atmospheric, grounded in plausible technology and the vast silence of space.",
			Opening: Opening{
				Text: "The starship Horizon drifts through the vast emptiness of space. You're the captain of this vessel, and you've just received a mysterious distress signal from a nearby planet. The fate of your crew and potentially the galaxy rests in your hands...",
				Choices: []story.Choice{
					{Text: "Investigate the distress signal", Action: "investigate"},
					{Text: "Scan the planet first", Action: "scan_planet"},
					{Text: "Consult with your crew", Action: "crew_meeting"},
				},
				Background: "You're on a deep space exploration mission when you encounter an unknown signal. The planet below shows signs of advanced civilization, but something seems wrong.",
				Characters: map[string]string{
					"protagonist": "Captain of the starship Horizon",
					"crew":        "Diverse team of specialists and explorers",
				},
				World: map[string]string{
					"setting":     "Deep space exploration",
					"time_period": "Far future, interstellar era",
				},
			},
		},
		{
			ID:          "mystery",
			Name:        "Mystery",
			Description: "Detective work, solving puzzles, and uncovering hidden secrets",
			Narrator:    "You are a master storyteller of detective fiction. Your prose is tight and observant, planting clues fairly and letting tension build through small details.",
			Opening: Opening{
				Text: "The old mansion looms before you, its windows dark and foreboding. You're a detective called to investigate the disappearance of the mansion's owner. The local police are stumped, and the family is desperate for answers...",
				Choices: []story.Choice{
					{Text: "Enter the mansion", Action: "enter_mansion"},
					{Text: "Interview the neighbors", Action: "interview_neighbors"},
					{Text: "Examine the exterior", Action: "examine_exterior"},
				},
				Background: "A wealthy businessman has vanished from his mansion without a trace. No signs of forced entry, no ransom note, just an empty house and unanswered questions.",
				Characters: map[string]string{
					"protagonist": "Experienced detective with a sharp mind",
					"victim":      "The missing mansion owner",
					"suspects":    "Various family members and staff",
				},
				World: map[string]string{
					"setting":     "Modern-day detective work",
					"time_period": "Present day",
				},
			},
		},
	}
}

// SeedDifficulties provides the built-in difficulty levels.
func SeedDifficulties() []Difficulty {
	return []Difficulty{
		{
			ID:          "easy",
			Name:        "Easy",
			Description: "Gentle storytelling with straightforward choices",
			Rules: []string{
				"Keep the stakes low and the tone forgiving; mistakes have mild consequences.",
				"Make the best option reasonably clear from the narration.",
			},
		},
		{
			ID:          "medium",
			Name:        "Medium",
			Description: "Balanced challenge with meaningful consequences",
			Rules: []string{
				"Choices carry real consequences that later scenes remember.",
				"Mix safe and risky options without signalling which is which.",
			},
		},
		{
			ID:          "hard",
			Name:        "Hard",
			Description: "Complex narratives with difficult moral choices",
			Rules: []string{
				"Present morally difficult trade-offs where no option is clearly right.",
				"Consequences are severe and resources are scarce.",
				"Allies can be unreliable and information can be incomplete.",
			},
		},
	}
}
