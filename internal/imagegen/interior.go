package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/archai/internal/proxy"
	"github.com/kalambet/archai/internal/requirements"
)

// ErrNoFloorPlan is returned when interior rendering has nothing to work from.
var ErrNoFloorPlan = errors.New("no floor plan to render")

// Interior renders a furnished 3D view of a finished floor plan.
type Interior struct {
	painter Painter
	model   string
}

// NewInterior creates an Interior renderer using the given image model.
func NewInterior(p Painter, model string) *Interior {
	return &Interior{painter: p, model: model}
}

// Visualize produces one axonometric interior rendering.
func (v *Interior) Visualize(ctx context.Context, floorPlan requirements.Image, aesthetic, style string) (requirements.Image, error) {
	if len(floorPlan.Data) == 0 {
		return requirements.Image{}, ErrNoFloorPlan
	}
	return paint(ctx, v.painter, proxy.ImageRequest{
		Model:      v.model,
		Prompt:     interiorPrompt(aesthetic, style),
		References: []requirements.Image{floorPlan},
	})
}

func interiorPrompt(aesthetic, style string) string {
	var sb strings.Builder
	sb.WriteString(interiorInstructions)
	if s := strings.TrimSpace(style); s != "" {
		fmt.Fprintf(&sb, "Architectural style: %s\n", s)
	}
	if a := strings.TrimSpace(aesthetic); a != "" {
		fmt.Fprintf(&sb, "Interior aesthetic: %s\n", a)
	}
	return sb.String()
}
