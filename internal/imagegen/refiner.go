package imagegen

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/archai/internal/proxy"
	"github.com/kalambet/archai/internal/requirements"
)

// DefaultPasses is the number of critique-then-edit rounds.
const DefaultPasses = 2

// Step names the half of a pass that failed.
type Step string

const (
	StepCritique Step = "critique"
	StepEdit     Step = "edit"
)

// PassError reports which pass and step aborted a refinement.
type PassError struct {
	Pass int
	Step Step
	Err  error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("refinement pass %d %s: %v", e.Pass, e.Step, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }

// Reviewer produces a correction for a plan image.
type Reviewer interface {
	Critique(ctx context.Context, in CritiqueInput) (Critique, error)
}

// Refiner runs a fixed number of critique-then-edit passes over a plan.
type Refiner struct {
	reviewer Reviewer
	painter  Painter
	model    string
	passes   int
	onPass   func(pass, total int)
}

// RefinerOption configures a Refiner.
type RefinerOption func(*Refiner)

// WithPasses overrides the number of passes. Values below 1 are ignored.
func WithPasses(n int) RefinerOption {
	return func(r *Refiner) {
		if n >= 1 {
			r.passes = n
		}
	}
}

// WithPassHook is called before each pass starts.
func WithPassHook(fn func(pass, total int)) RefinerOption {
	return func(r *Refiner) { r.onPass = fn }
}

// NewRefiner creates a Refiner that edits with the given image model.
func NewRefiner(reviewer Reviewer, painter Painter, model string, opts ...RefinerOption) *Refiner {
	r := &Refiner{reviewer: reviewer, painter: painter, model: model, passes: DefaultPasses}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Passes returns the configured pass count.
func (r *Refiner) Passes() int { return r.passes }

// Refine runs every pass in order, each one editing the previous pass's
// output. It returns the last edited image, or no image at all if any
// pass fails.
func (r *Refiner) Refine(ctx context.Context, plan requirements.Image, requirementsText, originalPrompt string) (requirements.Image, error) {
	current := plan
	for pass := 1; pass <= r.passes; pass++ {
		if err := ctx.Err(); err != nil {
			return requirements.Image{}, &PassError{Pass: pass, Step: StepCritique, Err: err}
		}
		if r.onPass != nil {
			r.onPass(pass, r.passes)
		}
		final := pass == r.passes

		crit, err := r.reviewer.Critique(ctx, CritiqueInput{
			Image:          current,
			Requirements:   requirementsText,
			OriginalPrompt: originalPrompt,
			Pass:           pass,
			Final:          final,
		})
		if err != nil {
			return requirements.Image{}, &PassError{Pass: pass, Step: StepCritique, Err: err}
		}
		slog.Debug("refinement critique", "pass", pass, "correction", crit.Correction)

		instructions := reviewEditInstructions
		if final {
			instructions = polishEditInstructions
		}
		edited, err := paint(ctx, r.painter, proxy.ImageRequest{
			Model:      r.model,
			Prompt:     instructions + crit.Correction,
			References: []requirements.Image{current},
		})
		if err != nil {
			return requirements.Image{}, &PassError{Pass: pass, Step: StepEdit, Err: err}
		}
		current = edited
	}
	return current, nil
}
