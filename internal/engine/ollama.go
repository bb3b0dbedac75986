package engine

import (
	"context"
	"fmt"

	"github.com/kalambet/archai/internal/ollama"
)

// OllamaEngine serves the Engine interface from a local Ollama daemon.
type OllamaEngine struct {
	client *ollama.Client
}

func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL)}
}

// Chat forwards attached images as bare base64, which is the only image
// form /api/chat accepts.
func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	wire := make([]ollama.Message, 0, len(messages))
	for _, m := range messages {
		om := ollama.Message{Role: m.Role, Content: m.Content}
		for _, img := range m.Images {
			om.Images = append(om.Images, img.Base64())
		}
		wire = append(wire, om)
	}
	out, err := e.client.Chat(ctx, model, wire, jsonSchema.toOllama())
	if ollama.IsNotFound(err) {
		return "", fmt.Errorf("model %s is not pulled (run ollama pull %s): %w", model, model, err)
	}
	return out, err
}

func (s *Schema) toOllama() *ollama.Schema {
	if s == nil {
		return nil
	}
	return &ollama.Schema{Type: s.Type, Required: s.Required, Properties: ollamaProps(s.Properties)}
}

func ollamaProps(props map[string]SchemaProperty) map[string]ollama.SchemaProperty {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]ollama.SchemaProperty, len(props))
	for name, p := range props {
		out[name] = ollama.SchemaProperty{
			Type:        p.Type,
			Description: p.Description,
			Enum:        p.Enum,
			Properties:  ollamaProps(p.Properties),
		}
	}
	return out
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool { return e.client.IsRunning(ctx) }

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	return e.client.ListModels(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	if onProgress == nil {
		return e.client.PullModel(ctx, name, nil)
	}
	return e.client.PullModel(ctx, name, func(p ollama.PullProgress) {
		onProgress(PullProgress{Status: p.Status, Total: p.Total, Completed: p.Completed})
	})
}
