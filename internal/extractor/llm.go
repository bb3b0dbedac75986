package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/archai/internal/engine"
	"github.com/kalambet/archai/internal/requirements"
	"github.com/kalambet/archai/internal/stage"
)

const defaultTimeout = 60 * time.Second

// LLMExtractor fills any number of fields per turn through one structured
// chat call.
type LLMExtractor struct {
	eng     engine.Engine
	model   string
	timeout time.Duration
}

// NewLLMExtractor creates an extractor using the given engine and model.
func NewLLMExtractor(eng engine.Engine, model string) *LLMExtractor {
	return &LLMExtractor{eng: eng, model: model, timeout: defaultTimeout}
}

// WithTimeout overrides the per-call timeout.
func (e *LLMExtractor) WithTimeout(d time.Duration) *LLMExtractor {
	if d > 0 {
		e.timeout = d
	}
	return e
}

type llmOutput struct {
	Response     string         `json:"response"`
	Requirements map[string]any `json:"requirements"`
	Intent       string         `json:"intent"`
	NextStage    string         `json:"nextStage"`
}

// Extract asks the model to interpret the message. Any failure, including
// malformed or empty output, is returned wrapped in ErrExtraction.
func (e *LLMExtractor) Extract(ctx context.Context, in Input) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.eng.Chat(ctx, e.model, BuildPrompt(in), extractionSchema())
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	var out llmOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		slog.Warn("failed to unmarshal extraction from LLM response", "error", err, "response", raw)
		return Result{}, fmt.Errorf("%w: malformed response: %v", ErrExtraction, err)
	}
	if strings.TrimSpace(out.Response) == "" {
		return Result{}, fmt.Errorf("%w: empty response", ErrExtraction)
	}

	proposed := requirements.Delta{}
	for k, raw := range out.Requirements {
		f, ok := requirements.ParseField(k)
		if !ok || !f.IsCollected() {
			slog.Debug("dropping non-collected field from extraction", "field", k)
			continue
		}
		if raw == nil {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(raw))
		if v == "" {
			continue
		}
		proposed[f] = v
	}
	delta := in.Record.Changed(proposed)

	res := Result{
		Reply:  out.Response,
		Delta:  delta,
		Intent: normalizeIntent(Intent(out.Intent), in.Stage, delta),
	}
	if fs := delta.Fields(); len(fs) > 0 {
		res.Field = fs[0]
	}
	if s, ok := stage.Parse(out.NextStage); ok {
		res.NextStage = s
		if f, isField := stage.Field(s); isField && res.Intent == IntentDecline {
			res.Field = f
		}
	}
	return res, nil
}

// normalizeIntent keeps the model's classification consistent with the
// stage and the delta it actually produced.
func normalizeIntent(i Intent, cur stage.Stage, delta requirements.Delta) Intent {
	changed := len(delta) > 0
	if cur != stage.Confirmation {
		if changed {
			return IntentAnswer
		}
		return IntentGreeting
	}
	switch {
	case changed:
		return IntentCorrect
	case i == IntentAffirm:
		return IntentAffirm
	case i == IntentDecline || i == IntentCorrect:
		return IntentDecline
	default:
		return IntentGreeting
	}
}
