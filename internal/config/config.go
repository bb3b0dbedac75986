package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const secretService = "archai"

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Storage  StorageConfig
	Engine   EngineConfig
	Ollama   OllamaConfig
	OpenAI   OpenAIConfig
	Proxy    ProxyConfig
	Pipeline PipelineConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	DataDir string
}

// EngineConfig selects the chat backend used for extraction, critique and
// rationale: "auto", "ollama" or "openai".
type EngineConfig struct {
	Backend string
}

type OllamaConfig struct {
	BaseURL   string
	ChatModel string
}

type OpenAIConfig struct {
	BaseURL   string
	ChatModel string
	APIKey    string
}

type ProxyConfig struct {
	BaseURL          string
	ImageModel       string
	OpenRouterAPIKey string
}

type PipelineConfig struct {
	// RefinementPasses is the number of critique-then-edit passes; 0 skips
	// refinement.
	RefinementPasses int
	// Extractor is "llm" or "rules".
	Extractor string
}

type WorkerConfig struct {
	PollInterval string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4100},
		Log:     LogConfig{Level: "info"},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Engine:  EngineConfig{Backend: "auto"},
		Ollama: OllamaConfig{
			BaseURL:   "http://localhost:11434",
			ChatModel: "llama3.2-vision",
		},
		OpenAI: OpenAIConfig{
			ChatModel: "gpt-4o-mini",
		},
		Proxy: ProxyConfig{
			BaseURL:    "https://openrouter.ai/api/v1",
			ImageModel: "google/gemini-2.5-flash-image",
		},
		Pipeline: PipelineConfig{
			RefinementPasses: 2,
			Extractor:        "llm",
		},
		Worker: WorkerConfig{PollInterval: "500ms"},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.archai.app) and secrets
// live in the login Keychain.
// Elsewhere the backend is a JSON file at $XDG_CONFIG_HOME/archai/config.json
// and secrets live in $XDG_DATA_HOME/archai/secrets.json.
//
// Environment variables (ARCHAI_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

// Keychain is a platform secret store.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, s := range settings {
		if !s.secret() || s.value(&cfg) != "" {
			continue
		}
		if v, err := kc.Get(secretService, s.account); err == nil && v != "" {
			*s.str(&cfg) = v
		}
	}

	return cfg, nil
}

// Validate reports settings the server cannot run without.
func (c Config) Validate() error {
	if c.Proxy.OpenRouterAPIKey == "" {
		return errors.New("missing required config: OpenRouter API key. " +
			"Set it via environment variable ARCHAI_OPENROUTER_API_KEY, " +
			"`archai config set proxy.openrouter_api_key <key>`" + apiKeyHint())
	}
	if c.Pipeline.RefinementPasses < 0 {
		return fmt.Errorf("pipeline.refinement_passes must be >= 0, got %d", c.Pipeline.RefinementPasses)
	}
	switch c.Pipeline.Extractor {
	case "llm", "rules":
	default:
		return fmt.Errorf("pipeline.extractor must be \"llm\" or \"rules\", got %q", c.Pipeline.Extractor)
	}
	return nil
}

const apiTokenAccount = "api_token"

// GetAPIToken returns the local API bearer token, generating and storing
// one on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if tok, err := kc.Get(secretService, apiTokenAccount); err == nil && strings.TrimSpace(tok) != "" {
		return strings.TrimSpace(tok), nil
	}
	tok := uuid.New().String()
	if err := kc.Set(secretService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
