package config

import (
	"errors"
	"strings"
	"testing"
)

// memBackend is an in-memory ConfigBackend.
type memBackend struct {
	strs map[string]string
	ints map[string]int
}

func newMemBackend() *memBackend {
	return &memBackend{strs: map[string]string{}, ints: map[string]int{}}
}

func (b *memBackend) GetString(key string) (string, bool, error) {
	v, ok := b.strs[key]
	return v, ok, nil
}

func (b *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.ints[key]
	return v, ok, nil
}

func (b *memBackend) SetString(key, val string) error {
	b.strs[key] = val
	return nil
}

func (b *memBackend) SetInt(key string, val int) error {
	b.ints[key] = val
	return nil
}

func (b *memBackend) Delete(key string) error {
	delete(b.strs, key)
	delete(b.ints, key)
	return nil
}

// mockKeychain is a test double for the Keychain interface.
type mockKeychain struct {
	values map[string]string
	setErr error
}

func newMockKeychain() *mockKeychain { return &mockKeychain{values: map[string]string{}} }

func (m *mockKeychain) Get(service, account string) (string, error) {
	v, ok := m.values[service+"/"+account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *mockKeychain) Set(service, account, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[service+"/"+account] = value
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range settings {
		t.Setenv(s.envVar(), "")
	}
}

// TestDefaults verifies all default values are applied when nothing is configured.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(newMemBackend(), newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Engine.Backend != "auto" {
		t.Errorf("Engine.Backend = %q, want auto", cfg.Engine.Backend)
	}
	if cfg.Proxy.ImageModel != "google/gemini-2.5-flash-image" {
		t.Errorf("Proxy.ImageModel = %q", cfg.Proxy.ImageModel)
	}
	if cfg.Pipeline.RefinementPasses != 2 {
		t.Errorf("Pipeline.RefinementPasses = %d, want 2", cfg.Pipeline.RefinementPasses)
	}
	if cfg.Pipeline.Extractor != "llm" {
		t.Errorf("Pipeline.Extractor = %q, want llm", cfg.Pipeline.Extractor)
	}
	if cfg.Worker.PollInterval != "500ms" {
		t.Errorf("Worker.PollInterval = %q", cfg.Worker.PollInterval)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

// TestBackendValues verifies values stored in the platform backend are read.
func TestBackendValues(t *testing.T) {
	clearEnv(t)
	b := newMemBackend()
	b.ints["server.port"] = 5000
	b.ints["pipeline.refinement_passes"] = 0
	b.strs["ollama.chat_model"] = "llava"
	b.strs["storage.data_dir"] = "/tmp/archai-test"
	b.strs["pipeline.extractor"] = "rules"
	// Secrets are never read from the plain backend.
	b.strs["proxy.openrouter_api_key"] = "plain-text-key"

	cfg, err := loadWith(b, newMockKeychain())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Pipeline.RefinementPasses != 0 {
		t.Errorf("Pipeline.RefinementPasses = %d, want 0", cfg.Pipeline.RefinementPasses)
	}
	if cfg.Ollama.ChatModel != "llava" {
		t.Errorf("Ollama.ChatModel = %q", cfg.Ollama.ChatModel)
	}
	if cfg.Storage.DataDir != "/tmp/archai-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Pipeline.Extractor != "rules" {
		t.Errorf("Pipeline.Extractor = %q", cfg.Pipeline.Extractor)
	}
	if cfg.Proxy.OpenRouterAPIKey != "" {
		t.Errorf("OpenRouterAPIKey = %q, want empty", cfg.Proxy.OpenRouterAPIKey)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := newMemBackend()
	b.ints["server.port"] = 5000
	b.strs["engine.backend"] = "ollama"

	t.Setenv("ARCHAI_SERVER_PORT", "6000")
	t.Setenv("ARCHAI_ENGINE_BACKEND", "openai")
	t.Setenv("ARCHAI_OPENROUTER_API_KEY", "env-key")
	t.Setenv("ARCHAI_PIPELINE_REFINEMENT_PASSES", "not-a-number")

	kc := newMockKeychain()
	kc.values["archai/openrouter_api_key"] = "keychain-key"

	cfg, err := loadWith(b, kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Engine.Backend != "openai" {
		t.Errorf("Engine.Backend = %q, want openai", cfg.Engine.Backend)
	}
	if cfg.Proxy.OpenRouterAPIKey != "env-key" {
		t.Errorf("OpenRouterAPIKey = %q, want env-key", cfg.Proxy.OpenRouterAPIKey)
	}
	if cfg.Pipeline.RefinementPasses != 2 {
		t.Errorf("unparseable env override changed RefinementPasses to %d", cfg.Pipeline.RefinementPasses)
	}
}

// TestKeychainFallback verifies the secret store is consulted when no key is in the environment.
func TestKeychainFallback(t *testing.T) {
	clearEnv(t)
	kc := newMockKeychain()
	kc.values["archai/openrouter_api_key"] = "keychain-secret"
	kc.values["archai/openai_api_key"] = "sk-openai"

	cfg, err := loadWith(newMemBackend(), kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Proxy.OpenRouterAPIKey != "keychain-secret" {
		t.Errorf("OpenRouterAPIKey = %q, want keychain-secret", cfg.Proxy.OpenRouterAPIKey)
	}
	if cfg.OpenAI.APIKey != "sk-openai" {
		t.Errorf("OpenAI.APIKey = %q, want sk-openai", cfg.OpenAI.APIKey)
	}
}

func TestValidate(t *testing.T) {
	valid := defaults()
	valid.Proxy.OpenRouterAPIKey = "key"
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing key", func(c *Config) { c.Proxy.OpenRouterAPIKey = "" }, "missing required config"},
		{"negative passes", func(c *Config) { c.Pipeline.RefinementPasses = -1 }, "refinement_passes"},
		{"unknown extractor", func(c *Config) { c.Pipeline.Extractor = "magic" }, "pipeline.extractor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestGetAPIToken_GeneratesOnce(t *testing.T) {
	kc := newMockKeychain()
	first, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(first) != 36 {
		t.Errorf("token = %q, want a UUID", first)
	}
	second, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if first != second {
		t.Errorf("token changed: %q then %q", first, second)
	}

	broken := newMockKeychain()
	broken.setErr = errors.New("locked")
	if _, err := GetAPIToken(broken); err == nil {
		t.Error("expected error when the token cannot be stored")
	}
}

func TestSetKey(t *testing.T) {
	b := newMemBackend()
	kc := newMockKeychain()

	if err := setKeyWith(b, kc, "server.port", "4200"); err != nil {
		t.Fatalf("set server.port: %v", err)
	}
	if b.ints["server.port"] != 4200 {
		t.Errorf("server.port = %d", b.ints["server.port"])
	}
	if err := setKeyWith(b, kc, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyWith(b, kc, "ollama.chat_model", "llava"); err != nil || b.strs["ollama.chat_model"] != "llava" {
		t.Errorf("set ollama.chat_model: %v, %q", err, b.strs["ollama.chat_model"])
	}
	if err := setKeyWith(b, kc, "proxy.openrouter_api_key", "sk-or-1"); err != nil {
		t.Fatalf("set secret: %v", err)
	}
	if kc.values["archai/openrouter_api_key"] != "sk-or-1" {
		t.Error("secret not written to the keychain")
	}
	if _, ok := b.strs["proxy.openrouter_api_key"]; ok {
		t.Error("secret written to the plain backend")
	}
	if err := setKeyWith(b, kc, "no.such.key", "x"); err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("unknown key err = %v", err)
	}
}

func TestShowAll_MasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Proxy.OpenRouterAPIKey = "sk-or-secret"

	seen := map[string]string{}
	for _, k := range ShowAll(cfg) {
		seen[k.Key] = k.Value
		if strings.Contains(k.Value, "sk-or-secret") {
			t.Errorf("%s leaks the secret", k.Key)
		}
	}
	if seen["proxy.openrouter_api_key"] != "(set)" {
		t.Errorf("openrouter key shown as %q", seen["proxy.openrouter_api_key"])
	}
	if seen["openai.api_key"] != "(unset)" {
		t.Errorf("openai key shown as %q", seen["openai.api_key"])
	}
	if seen["server.port"] != "4100" {
		t.Errorf("server.port = %q", seen["server.port"])
	}
	if len(ValidKeys()) != len(settings) {
		t.Errorf("ValidKeys = %d keys, want %d", len(ValidKeys()), len(settings))
	}
}

func TestSettingEnvVar(t *testing.T) {
	for key, want := range map[string]string{
		"server.port":                "ARCHAI_SERVER_PORT",
		"pipeline.refinement_passes": "ARCHAI_PIPELINE_REFINEMENT_PASSES",
		"openai.api_key":             "ARCHAI_OPENAI_API_KEY",
		"proxy.openrouter_api_key":   "ARCHAI_OPENROUTER_API_KEY",
	} {
		s, ok := lookupSetting(key)
		if !ok {
			t.Fatalf("no setting %q", key)
		}
		if got := s.envVar(); got != want {
			t.Errorf("%s env = %q, want %q", key, got, want)
		}
	}
}
