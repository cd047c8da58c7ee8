// Package history holds the conversation transcript replayed on every
// remote call. The transcript is append-only and lives in memory for the
// duration of one session.
package history

// Role tags a turn as system, user, or assistant output.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn mirrors the OpenAI chat schema so the transcript can be sent
// verbatim in requests.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is an ordered sequence of turns. The first turn is always the
// system instruction and is never removed or rewritten.
type History struct {
	turns []Turn
}

// New seeds a transcript with the fixed system instruction.
func New(systemPrompt string) *History {
	return &History{turns: []Turn{{Role: RoleSystem, Content: systemPrompt}}}
}

// Append adds a turn to the end of the transcript.
func (h *History) Append(role Role, content string) {
	h.turns = append(h.turns, Turn{Role: role, Content: content})
}

// Turns returns a copy of the transcript for request construction.
func (h *History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len reports the number of turns recorded so far.
func (h *History) Len() int {
	return len(h.turns)
}

// Last returns the most recent turn, or a zero Turn when only the system
// instruction exists.
func (h *History) Last() Turn {
	if len(h.turns) < 2 {
		return Turn{}
	}
	return h.turns[len(h.turns)-1]
}

// CharCount totals the content length across all turns, used for context
// size reporting.
func (h *History) CharCount() int {
	total := 0
	for _, t := range h.turns {
		total += len(t.Content)
	}
	return total
}
