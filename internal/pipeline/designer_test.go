package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/archai/internal/requirements"
	"github.com/kalambet/archai/internal/stage"
)

type stubGenerator struct {
	prompt string
	ref    *requirements.Image
	err    error
}

func (s *stubGenerator) Generate(_ context.Context, prompt string, ref *requirements.Image) (requirements.Image, error) {
	s.prompt, s.ref = prompt, ref
	if s.err != nil {
		return requirements.Image{}, s.err
	}
	return requirements.Image{MIMEType: "image/png", Data: []byte("draft")}, nil
}

type stubRefiner struct {
	reqText string
	in      requirements.Image
	err     error
}

func (s *stubRefiner) Refine(_ context.Context, plan requirements.Image, reqText, _ string) (requirements.Image, error) {
	s.in, s.reqText = plan, reqText
	if s.err != nil {
		return requirements.Image{}, s.err
	}
	return requirements.Image{MIMEType: "image/png", Data: []byte("refined")}, nil
}

type stubInterior struct {
	aesthetic, style string
	err              error
}

func (s *stubInterior) Visualize(_ context.Context, _ requirements.Image, aesthetic, style string) (requirements.Image, error) {
	s.aesthetic, s.style = aesthetic, style
	if s.err != nil {
		return requirements.Image{}, s.err
	}
	return requirements.Image{MIMEType: "image/png", Data: []byte("room")}, nil
}

func completeRecord(t *testing.T) requirements.Record {
	t.Helper()
	d := requirements.Delta{}
	for _, f := range requirements.CollectedFields {
		d[f] = "value for " + string(f)
	}
	d[requirements.SquareFootage] = "2000"
	d[requirements.ArchitecturalStyle] = "modern"
	rec, err := requirements.Record{}.Apply(d)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return rec
}

func TestGenerate_CompilesGeneratesRefines(t *testing.T) {
	gen, ref := &stubGenerator{}, &stubRefiner{}
	d := NewDesigner(gen, ref, &stubInterior{})

	var stages []stage.Stage
	out, err := d.Generate(context.Background(), completeRecord(t), func(s stage.Stage) { stages = append(stages, s) })
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(out.FloorPlan.Data) != "refined" || !out.Refined {
		t.Errorf("floor plan = %q, refined = %v", out.FloorPlan.Data, out.Refined)
	}
	if !strings.Contains(out.Prompt, "2000") || gen.prompt != out.Prompt {
		t.Error("generator did not receive the compiled prompt")
	}
	if string(ref.in.Data) != "draft" {
		t.Errorf("refiner input = %q", ref.in.Data)
	}
	if !strings.Contains(ref.reqText, "Square Footage: 2000") {
		t.Errorf("requirements text = %q", ref.reqText)
	}
	if len(stages) != 2 || stages[0] != stage.Generation || stages[1] != stage.Refinement {
		t.Errorf("progress = %v", stages)
	}
}

func TestGenerate_PassesInspiration(t *testing.T) {
	gen := &stubGenerator{}
	rec := completeRecord(t).WithInspiration(requirements.Image{MIMEType: "image/jpeg", Data: []byte("insp")})
	if _, err := NewDesigner(gen, nil, nil).Generate(context.Background(), rec, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.ref == nil || string(gen.ref.Data) != "insp" {
		t.Error("inspiration not forwarded as reference")
	}
}

func TestGenerate_WithoutRefiner(t *testing.T) {
	var stages []stage.Stage
	out, err := NewDesigner(&stubGenerator{}, nil, nil).Generate(context.Background(), completeRecord(t), func(s stage.Stage) { stages = append(stages, s) })
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(out.FloorPlan.Data) != "draft" || out.Refined {
		t.Errorf("out = %+v", out)
	}
	if len(stages) != 1 {
		t.Errorf("progress = %v", stages)
	}
}

func TestGenerate_Failures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		gen   *stubGenerator
		ref   *stubRefiner
		stage stage.Stage
	}{
		{"generation", &stubGenerator{err: boom}, &stubRefiner{}, stage.Generation},
		{"refinement", &stubGenerator{}, &stubRefiner{err: boom}, stage.Refinement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewDesigner(tt.gen, tt.ref, nil).Generate(context.Background(), completeRecord(t), nil)
			var se *StageError
			if !errors.As(err, &se) || se.Stage != tt.stage {
				t.Fatalf("err = %v, want StageError at %s", err, tt.stage)
			}
			if !errors.Is(err, boom) {
				t.Errorf("cause lost: %v", err)
			}
			if len(out.FloorPlan.Data) != 0 || out.Prompt != "" {
				t.Error("partial outcome returned")
			}
		})
	}
}

func TestGenerate_Incomplete(t *testing.T) {
	gen := &stubGenerator{}
	rec, _ := requirements.Record{}.Apply(requirements.Delta{requirements.Vision: "cabin"})
	if _, err := NewDesigner(gen, nil, nil).Generate(context.Background(), rec, nil); !errors.Is(err, ErrIncomplete) {
		t.Errorf("err = %v, want ErrIncomplete", err)
	}
	if gen.prompt != "" {
		t.Error("generator called for an incomplete record")
	}
}

func TestRenderInterior(t *testing.T) {
	vis := &stubInterior{}
	d := NewDesigner(nil, nil, vis)

	_, err := d.RenderInterior(context.Background(), completeRecord(t))
	var se *StageError
	if !errors.As(err, &se) || se.Stage != stage.Interior {
		t.Fatalf("err = %v, want interior StageError", err)
	}

	rec := completeRecord(t).WithFloorPlan(requirements.Image{MIMEType: "image/png", Data: []byte("plan")})
	img, err := d.RenderInterior(context.Background(), rec)
	if err != nil {
		t.Fatalf("RenderInterior: %v", err)
	}
	if string(img.Data) != "room" {
		t.Errorf("image = %q", img.Data)
	}
	if vis.style != "modern" || vis.aesthetic != "value for aestheticPreferences" {
		t.Errorf("style = %q, aesthetic = %q", vis.style, vis.aesthetic)
	}
}
