package engine

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	BackendAuto   = "auto"
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Backend       string
	OllamaBaseURL string
	OpenAIBaseURL string
	OpenAIAPIKey  string
}

// Detect returns the configured backend. With "auto" it probes Ollama first
// and falls back to the OpenAI-compatible server when Ollama is unreachable.
func Detect(ctx context.Context, cfg DetectConfig) (Engine, error) {
	switch cfg.Backend {
	case BackendOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL), nil
	case BackendOpenAI:
		return NewOpenAIEngine(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey), nil
	case BackendAuto, "":
		o := NewOllamaEngine(cfg.OllamaBaseURL)
		if o.IsRunning(ctx) || cfg.OpenAIBaseURL == "" {
			return o, nil
		}
		slog.Info("ollama unreachable, using openai-compatible backend", "base_url", cfg.OpenAIBaseURL)
		return NewOpenAIEngine(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown engine backend %q", cfg.Backend)
	}
}
