package extractor

import (
	"context"
	"errors"

	"github.com/kalambet/archai/internal/conversation"
	"github.com/kalambet/archai/internal/requirements"
	"github.com/kalambet/archai/internal/stage"
)

// ErrExtraction wraps every failure to interpret a user message. Callers must
// not mutate the record or advance the stage when they see it.
var ErrExtraction = errors.New("extraction failed")

// Intent classifies a user message.
type Intent string

const (
	IntentAnswer   Intent = "answer"
	IntentGreeting Intent = "greeting"
	IntentAffirm   Intent = "affirm"
	IntentCorrect  Intent = "correct"
	IntentDecline  Intent = "decline"
)

// Input is the immutable view an extractor works from. History holds only
// non-rhetorical turns.
type Input struct {
	History []conversation.Turn
	Record  requirements.Record
	Stage   stage.Stage
	Message string
}

// Result is what an extractor proposes. Delta only carries fields whose
// values changed; Field names the field a declining message referred to.
type Result struct {
	Reply     string
	Delta     requirements.Delta
	Intent    Intent
	NextStage stage.Stage
	Field     requirements.Field
}

// Extractor turns a user message into a reply and a requirements delta.
type Extractor interface {
	Extract(ctx context.Context, in Input) (Result, error)
}

// Outcome maps an extraction result to the sequencer signal.
func (r Result) Outcome() stage.Outcome {
	switch r.Intent {
	case IntentAffirm:
		return stage.Affirmed
	case IntentDecline:
		return stage.Declined
	case IntentCorrect:
		return stage.Corrected
	}
	if len(r.Delta) > 0 {
		return stage.FieldAccepted
	}
	return stage.NoChange
}
