package imagegen

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/archai/internal/proxy"
	"github.com/kalambet/archai/internal/requirements"
)

var (
	// ErrNoMedia is returned when an image call succeeds but yields no image.
	ErrNoMedia = errors.New("image model returned no media")

	// ErrNoCorrection is returned when a critique carries no usable
	// correction instruction.
	ErrNoCorrection = errors.New("critique returned no correction instruction")
)

// Painter produces one image from a prompt and reference images.
// *proxy.Client satisfies it.
type Painter interface {
	Image(ctx context.Context, req proxy.ImageRequest) (requirements.Image, error)
}

// Generator turns a compiled architectural prompt into a floor-plan image.
type Generator struct {
	painter Painter
	model   string
}

// NewGenerator creates a Generator using the given image model.
func NewGenerator(p Painter, model string) *Generator {
	return &Generator{painter: p, model: model}
}

// Generate makes a single image call. It never retries; an empty reply is
// reported as ErrNoMedia.
func (g *Generator) Generate(ctx context.Context, prompt string, reference *requirements.Image) (requirements.Image, error) {
	req := proxy.ImageRequest{
		Model:  g.model,
		Prompt: floorPlanInstructions + prompt,
	}
	if reference != nil {
		req.References = []requirements.Image{*reference}
	}
	return paint(ctx, g.painter, req)
}

func paint(ctx context.Context, p Painter, req proxy.ImageRequest) (requirements.Image, error) {
	img, err := p.Image(ctx, req)
	if errors.Is(err, proxy.ErrNoImage) {
		return requirements.Image{}, ErrNoMedia
	}
	if err != nil {
		return requirements.Image{}, fmt.Errorf("image call: %w", err)
	}
	if len(img.Data) == 0 {
		return requirements.Image{}, ErrNoMedia
	}
	return img, nil
}
