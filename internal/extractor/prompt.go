package extractor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/archai/internal/conversation"
	"github.com/kalambet/archai/internal/engine"
	"github.com/kalambet/archai/internal/requirements"
	"github.com/kalambet/archai/internal/stage"
)

const systemPromptTemplate = `You are ArchAI, a friendly and expert AI architect guiding a client through the requirements for their dream home. Your output must be ONLY a single valid JSON object that conforms to the provided schema.

Requirement fields, in the order they are gathered: %s.

Rules:
- Extract every requirement stated in the latest message in one pass. "A 2000 sq ft modern house for my family of 4 with 3 bedrooms" fills squareFootage, architecturalStyle, lifestyleNeeds and rooms together.
- Put only fields the latest message states or changes into "requirements". Never touch a field the message does not talk about.
- If requirements are still missing, ask a natural question for the first missing one only.
- If every field is filled, ask the client to review the summary and confirm.
- A greeting or a message without design information changes nothing: set intent to "greeting", leave "requirements" empty, and ask for the first missing field.
- At the confirmation stage, "yes", "correct" and similar set intent "affirm". A message changing something sets intent "correct": update only the fields it names and ask for review again.
- Otherwise set intent "answer".
- "nextStage" is the stage key you expect next: a field key, "confirmation" or "generation".`

// BuildPrompt constructs the chat messages for one extraction turn: the
// system rules, the non-rhetorical history, then the current message with
// the stage and the record gathered so far.
func BuildPrompt(in Input) []engine.Message {
	keys := make([]string, len(requirements.CollectedFields))
	for i, f := range requirements.CollectedFields {
		keys[i] = string(f)
	}

	messages := []engine.Message{
		{Role: "system", Content: fmt.Sprintf(systemPromptTemplate, strings.Join(keys, ", "))},
	}

	for _, t := range in.History {
		role := "user"
		if t.Role == conversation.Assistant {
			role = "assistant"
		}
		messages = append(messages, engine.Message{Role: role, Content: t.Text})
	}

	current, _ := json.Marshal(in.Record)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current stage: %s\n", in.Stage)
	fmt.Fprintf(&sb, "Current requirements: %s\n", current)
	fmt.Fprintf(&sb, "Client message: %q", in.Message)

	return append(messages, engine.Message{Role: "user", Content: sb.String()})
}

func extractionSchema() *engine.Schema {
	fields := make(map[string]engine.SchemaProperty, len(requirements.CollectedFields))
	for _, f := range requirements.CollectedFields {
		fields[string(f)] = engine.SchemaProperty{Type: "string", Description: f.Label()}
	}
	stages := make([]string, len(stage.All))
	for i, s := range stage.All {
		stages[i] = string(s)
	}
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"response":     {Type: "string", Description: "Conversational reply to the client"},
			"requirements": {Type: "object", Description: "Fields stated or changed by the latest message", Properties: fields},
			"intent": {
				Type:        "string",
				Description: "Classification of the latest message",
				Enum:        []string{string(IntentAnswer), string(IntentGreeting), string(IntentAffirm), string(IntentCorrect), string(IntentDecline)},
			},
			"nextStage": {Type: "string", Description: "Expected next stage key", Enum: stages},
		},
		Required: []string{"response", "requirements", "intent", "nextStage"},
	}
}
