package ai

// Prompt is a chat-shaped generation request.
type Prompt struct {
	// System carries the narrator persona, rules and output grammar.
	System string
	// History holds prior narrative passages, oldest first.
	History []string
	// Query is the player's latest move.
	Query string
	// Hints are structured facts about the request that backends may use
	// instead of parsing Query (the offline narrator relies on them).
	Hints map[string]string
}

// Hint keys understood by the bundled backends.
const (
	HintGenre      = "genre"
	HintAction     = "action"
	HintChoiceText = "choice_text"
	HintTurn       = "turn"
)

// Params are sampling settings forwarded to the backend.
type Params struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
}
