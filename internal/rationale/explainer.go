// Package rationale explains the architectural reasoning behind a client's
// design choices.
package rationale

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/archai/internal/engine"
	"github.com/kalambet/archai/internal/requirements"
)

const (
	explainTimeout = 90 * time.Second

	systemPrompt = `You are an expert residential architect. The client below has described the home they want. Explain the architectural rationale behind their choices: why these details matter for the overall design and how they influence zoning, circulation, structure and light. Use architectural terminology naturally. Be professional and friendly. Do not invent requirements the client did not state.`
)

// ErrIncomplete is returned when the record still has unanswered fields.
var ErrIncomplete = errors.New("requirements are incomplete")

// Explainer asks a chat model to justify a requirement record.
type Explainer struct {
	eng   engine.Engine
	model string
}

func NewExplainer(eng engine.Engine, model string) *Explainer {
	return &Explainer{eng: eng, model: model}
}

// Explain returns a prose explanation. It never modifies rec.
func (e *Explainer) Explain(ctx context.Context, rec requirements.Record) (string, error) {
	if !rec.Complete() {
		return "", ErrIncomplete
	}

	ctx, cancel := context.WithTimeout(ctx, explainTimeout)
	defer cancel()

	msgs := []engine.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: "CLIENT CHOICES:\n" + rec.Summary()},
	}
	schema := &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"explanation": {Type: "string", Description: "Why the choices matter for the design"},
		},
		Required: []string{"explanation"},
	}

	raw, err := e.eng.Chat(ctx, e.model, msgs, schema)
	if err != nil {
		return "", fmt.Errorf("rationale chat: %w", err)
	}

	var out struct {
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", fmt.Errorf("parsing rationale: %w", err)
	}
	explanation := strings.TrimSpace(out.Explanation)
	if explanation == "" {
		return "", errors.New("model returned an empty explanation")
	}
	return explanation, nil
}
