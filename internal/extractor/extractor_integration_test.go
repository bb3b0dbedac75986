//go:build integration

package extractor

import (
	"context"
	"testing"
	"time"

	"github.com/kalambet/archai/internal/engine"
	"github.com/kalambet/archai/internal/requirements"
	"github.com/kalambet/archai/internal/stage"
)

func TestExtract_RealOllama(t *testing.T) {
	eng := engine.NewOllamaEngine("http://localhost:11434")
	if !eng.IsRunning(context.Background()) {
		t.Skip("Ollama is not running, skipping integration test")
	}
	if !eng.HasModel(context.Background(), "qwen2.5") {
		t.Skip("qwen2.5 model not available, skipping integration test")
	}

	e := NewLLMExtractor(eng, "qwen2.5")

	start := time.Now()
	res, err := e.Extract(context.Background(), Input{
		Stage:   stage.SquareFootage,
		Message: "I want a 2000 sq ft modern house for my family of 4, with 3 bedrooms",
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	for _, f := range []requirements.Field{requirements.SquareFootage, requirements.Rooms} {
		if _, ok := res.Delta[f]; !ok {
			t.Errorf("%s not extracted: %v", f, res.Delta)
		}
	}
	t.Logf("result: %+v (took %v)", res, time.Since(start))
}
