package conversation

import "time"

// Role identifies the author of a turn.
type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
)

// Turn is one entry in the chat transcript. Rhetorical turns narrate
// pipeline progress and are never shown to the extractor.
type Turn struct {
	Role       Role      `json:"role"`
	Text       string    `json:"text"`
	Rhetorical bool      `json:"rhetorical,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// History is an append-only transcript.
type History struct {
	turns []Turn
}

// NewHistory wraps existing turns, typically loaded from storage.
func NewHistory(turns []Turn) History {
	cp := make([]Turn, len(turns))
	copy(cp, turns)
	return History{turns: cp}
}

// Append returns a history with t added at the end.
func (h History) Append(t Turn) History {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	out := make([]Turn, len(h.turns), len(h.turns)+1)
	copy(out, h.turns)
	return History{turns: append(out, t)}
}

// Turns returns a copy of every turn.
func (h History) Turns() []Turn {
	cp := make([]Turn, len(h.turns))
	copy(cp, h.turns)
	return cp
}

// Dialogue returns the non-rhetorical subsequence in order.
func (h History) Dialogue() []Turn {
	var out []Turn
	for _, t := range h.turns {
		if !t.Rhetorical {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of turns.
func (h History) Len() int { return len(h.turns) }

// Last returns the most recent turn.
func (h History) Last() (Turn, bool) {
	if len(h.turns) == 0 {
		return Turn{}, false
	}
	return h.turns[len(h.turns)-1], true
}
