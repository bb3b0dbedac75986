package stage

import (
	"errors"
	"fmt"

	"github.com/kalambet/archai/internal/requirements"
)

var (
	// ErrUndefinedTransition is returned for a (stage, outcome) pair with no
	// entry in the transition table.
	ErrUndefinedTransition = errors.New("undefined stage transition")

	// ErrTerminal is returned for any outcome reported at the done stage.
	ErrTerminal = errors.New("session is complete")
)

// Outcome is the signal the active component reports to the sequencer.
type Outcome int

const (
	NoChange Outcome = iota
	FieldAccepted
	Affirmed
	Declined
	Corrected
	Succeeded
	Failed
	InteriorRequested
	InteriorSkipped
)

var outcomeNames = [...]string{
	NoChange:          "no_change",
	FieldAccepted:     "field_accepted",
	Affirmed:          "affirmed",
	Declined:          "declined",
	Corrected:         "corrected",
	Succeeded:         "succeeded",
	Failed:            "failed",
	InteriorRequested: "interior_requested",
	InteriorSkipped:   "interior_skipped",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Event carries an outcome plus the field a declining message named, if the
// extractor could resolve one.
type Event struct {
	Outcome Outcome
	Named   requirements.Field
}

// Sequencer holds the knobs the transition table depends on.
type Sequencer struct {
	// RefinementPasses is the number of critique-then-edit passes. Zero skips
	// the refinement stage.
	RefinementPasses int
}

type transition func(sq Sequencer, cur Stage, ev Event, rec requirements.Record) Stage

type key struct {
	stage   Stage
	outcome Outcome
}

var table = map[key]transition{}

func init() {
	talking := append([]Stage{Introduction}, collectionStages()...)
	for _, s := range talking {
		table[key{s, NoChange}] = stay
		table[key{s, FieldAccepted}] = nextUnset
	}

	table[key{Confirmation, NoChange}] = stay
	table[key{Confirmation, FieldAccepted}] = backToConfirmation
	table[key{Confirmation, Corrected}] = backToConfirmation
	table[key{Confirmation, Affirmed}] = to(Generation)
	table[key{Confirmation, Declined}] = rewind

	table[key{Generation, Succeeded}] = afterGeneration
	table[key{Generation, Failed}] = to(Confirmation)
	table[key{Refinement, Succeeded}] = to(Floorplan)
	table[key{Refinement, Failed}] = to(Confirmation)

	table[key{Floorplan, InteriorRequested}] = to(Interior)
	table[key{Floorplan, InteriorSkipped}] = to(Done)
	table[key{Interior, Succeeded}] = to(Done)
	table[key{Interior, Failed}] = to(Done)
}

func collectionStages() []Stage {
	out := make([]Stage, 0, len(requirements.CollectedFields))
	for _, f := range requirements.CollectedFields {
		out = append(out, Stage(f))
	}
	return out
}

// Advance applies the transition table with the default sequencer.
func Advance(cur Stage, o Outcome, rec requirements.Record) (Stage, error) {
	return Sequencer{RefinementPasses: 2}.Advance(cur, Event{Outcome: o}, rec)
}

// Advance returns the stage that follows cur for the given event.
func (sq Sequencer) Advance(cur Stage, ev Event, rec requirements.Record) (Stage, error) {
	if cur == Done {
		return Done, ErrTerminal
	}
	t, ok := table[key{cur, ev.Outcome}]
	if !ok {
		return cur, fmt.Errorf("%w: %s on %s", ErrUndefinedTransition, ev.Outcome, cur)
	}
	return t(sq, cur, ev, rec), nil
}

// Defined reports whether the table has an entry for (s, o).
func Defined(s Stage, o Outcome) bool {
	_, ok := table[key{s, o}]
	return ok
}

func stay(_ Sequencer, cur Stage, _ Event, _ requirements.Record) Stage { return cur }

func to(next Stage) transition {
	return func(Sequencer, Stage, Event, requirements.Record) Stage { return next }
}

// nextUnset moves to the first unanswered field after the current one in
// fixed order, wrapping to earlier gaps, and to confirmation once none remain.
func nextUnset(_ Sequencer, cur Stage, _ Event, rec requirements.Record) Stage {
	var f requirements.Field
	var ok bool
	if cf, isField := Field(cur); isField {
		f, ok = rec.FirstUnsetAfter(cf)
	} else {
		f, ok = rec.FirstUnset()
	}
	if !ok {
		return Confirmation
	}
	return Stage(f)
}

func backToConfirmation(_ Sequencer, _ Stage, _ Event, rec requirements.Record) Stage {
	if f, ok := rec.FirstUnset(); ok {
		return Stage(f)
	}
	return Confirmation
}

// rewind re-enters the first unanswered field. With every field answered it
// falls back to the field the user named, then to vision.
func rewind(_ Sequencer, _ Stage, ev Event, rec requirements.Record) Stage {
	if f, ok := rec.FirstUnset(); ok {
		return Stage(f)
	}
	if s, ok := ForField(ev.Named); ok {
		return s
	}
	return Vision
}

func afterGeneration(sq Sequencer, _ Stage, _ Event, _ requirements.Record) Stage {
	if sq.RefinementPasses <= 0 {
		return Floorplan
	}
	return Refinement
}
