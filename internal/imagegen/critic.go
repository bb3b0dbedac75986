package imagegen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/archai/internal/engine"
	"github.com/kalambet/archai/internal/requirements"
)

const critiqueTimeout = 2 * time.Minute

// CritiqueInput is what one critique step looks at.
type CritiqueInput struct {
	Image          requirements.Image
	Requirements   string
	OriginalPrompt string
	Pass           int
	Final          bool
}

// Critique is a critic's verdict. Correction is mandatory.
type Critique struct {
	Critique   string `json:"critique"`
	Correction string `json:"correction"`
}

// Critic reviews a plan with a vision-capable chat model.
type Critic struct {
	eng   engine.Engine
	model string
}

// NewCritic creates a Critic using the given engine and vision model.
func NewCritic(eng engine.Engine, model string) *Critic {
	return &Critic{eng: eng, model: model}
}

// Critique returns a correction instruction for the image. On the final
// pass the instructions are restricted to visual polish.
func (c *Critic) Critique(ctx context.Context, in CritiqueInput) (Critique, error) {
	ctx, cancel := context.WithTimeout(ctx, critiqueTimeout)
	defer cancel()

	raw, err := c.eng.Chat(ctx, c.model, critiqueMessages(in), critiqueSchema())
	if err != nil {
		return Critique{}, fmt.Errorf("critique chat: %w", err)
	}

	var out Critique
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Critique{}, fmt.Errorf("%w: malformed critique: %v", ErrNoCorrection, err)
	}
	out.Correction = strings.TrimSpace(out.Correction)
	if out.Correction == "" {
		return Critique{}, ErrNoCorrection
	}
	return out, nil
}

func critiqueMessages(in CritiqueInput) []engine.Message {
	system := reviewCritiqueInstructions
	if in.Final {
		system = polishCritiqueInstructions
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Refinement pass %d.\n\nCLIENT REQUIREMENTS:\n%s", in.Pass, in.Requirements)
	if !in.Final && in.OriginalPrompt != "" {
		fmt.Fprintf(&sb, "\nORIGINAL PROMPT:\n%s", in.OriginalPrompt)
	}

	return []engine.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: sb.String(), Images: []requirements.Image{in.Image}},
	}
}

func critiqueSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"critique":   {Type: "string", Description: "What is wrong with the plan"},
			"correction": {Type: "string", Description: "One instruction for the image editor"},
		},
		Required: []string{"correction"},
	}
}
