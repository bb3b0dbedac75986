package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/archai/internal/composer"
	"github.com/kalambet/archai/internal/requirements"
	"github.com/kalambet/archai/internal/stage"
)

// ErrIncomplete is returned when generation is asked for before every
// collected field has been answered.
var ErrIncomplete = errors.New("requirements are incomplete")

// ImageGenerator draws the first floor plan from a compiled prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, reference *requirements.Image) (requirements.Image, error)
}

// PlanRefiner runs the critique-then-edit loop over a draft plan.
type PlanRefiner interface {
	Refine(ctx context.Context, plan requirements.Image, requirementsText, originalPrompt string) (requirements.Image, error)
}

// InteriorRenderer turns a finished plan into a furnished rendering.
type InteriorRenderer interface {
	Visualize(ctx context.Context, floorPlan requirements.Image, aesthetic, style string) (requirements.Image, error)
}

// StageError reports which pipeline stage failed.
type StageError struct {
	Stage stage.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Outcome is the product of a successful generation run.
type Outcome struct {
	Prompt    string
	FloorPlan requirements.Image
	Refined   bool
	Duration  time.Duration
}

// Designer orchestrates compile, generate and refine in strict sequence.
type Designer struct {
	generator ImageGenerator
	refiner   PlanRefiner
	interior  InteriorRenderer
}

// NewDesigner wires the pipeline. A nil refiner skips the refinement stage.
func NewDesigner(gen ImageGenerator, ref PlanRefiner, interior InteriorRenderer) *Designer {
	return &Designer{generator: gen, refiner: ref, interior: interior}
}

// Refines reports whether generation includes a refinement stage.
func (d *Designer) Refines() bool { return d.refiner != nil }

// Generate compiles the record, draws a plan and refines it. progress is
// called with each stage as it starts. Nothing is returned on failure, so a
// caller's previous floor plan stays untouched.
func (d *Designer) Generate(ctx context.Context, rec requirements.Record, progress func(stage.Stage)) (Outcome, error) {
	if !rec.Complete() {
		return Outcome{}, ErrIncomplete
	}
	if progress == nil {
		progress = func(stage.Stage) {}
	}
	start := time.Now()

	prompt := composer.Compile(rec)
	slog.Debug("prompt compiled", "tokens", composer.EstimateTokens(prompt))

	progress(stage.Generation)
	plan, err := d.generator.Generate(ctx, prompt, rec.Inspiration())
	if err != nil {
		return Outcome{}, &StageError{Stage: stage.Generation, Err: err}
	}

	out := Outcome{Prompt: prompt, FloorPlan: plan}
	if d.refiner != nil {
		progress(stage.Refinement)
		refined, err := d.refiner.Refine(ctx, plan, rec.Summary(), prompt)
		if err != nil {
			return Outcome{}, &StageError{Stage: stage.Refinement, Err: err}
		}
		out.FloorPlan = refined
		out.Refined = true
	}

	out.Duration = time.Since(start)
	slog.Info("floor plan generated", "refined", out.Refined, "duration_ms", out.Duration.Milliseconds())
	return out, nil
}

// RenderInterior produces the optional interior rendering from the record's
// floor plan and style preferences.
func (d *Designer) RenderInterior(ctx context.Context, rec requirements.Record) (requirements.Image, error) {
	plan := rec.FloorPlan()
	if plan == nil {
		return requirements.Image{}, &StageError{Stage: stage.Interior, Err: errors.New("no floor plan")}
	}
	img, err := d.interior.Visualize(ctx, *plan,
		rec.Get(requirements.AestheticPreferences).OrEmpty(),
		rec.Get(requirements.ArchitecturalStyle).OrEmpty(),
	)
	if err != nil {
		return requirements.Image{}, &StageError{Stage: stage.Interior, Err: err}
	}
	return img, nil
}
