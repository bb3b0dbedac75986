package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// setting binds a dotted config key to one field of Config. Exactly one of
// str and num is set.
type setting struct {
	key string
	// env overrides the derived ARCHAI_<KEY> variable name.
	env string
	// account is the secret-store account. Settings with an account are
	// secrets and never touch the config backend.
	account string
	str     func(*Config) *string
	num     func(*Config) *int
}

func (s setting) secret() bool { return s.account != "" }

func (s setting) envVar() string {
	if s.env != "" {
		return s.env
	}
	return "ARCHAI_" + strings.ToUpper(strings.ReplaceAll(s.key, ".", "_"))
}

func (s setting) value(cfg *Config) string {
	if s.num != nil {
		return strconv.Itoa(*s.num(cfg))
	}
	return *s.str(cfg)
}

// assign parses raw into the bound field.
func (s setting) assign(cfg *Config, raw string) error {
	if s.num == nil {
		*s.str(cfg) = raw
		return nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s wants an integer, got %q", s.key, raw)
	}
	*s.num(cfg) = i
	return nil
}

var settings = []setting{
	{key: "server.port", num: func(c *Config) *int { return &c.Server.Port }},
	{key: "log.level", str: func(c *Config) *string { return &c.Log.Level }},
	{key: "storage.data_dir", str: func(c *Config) *string { return &c.Storage.DataDir }},
	{key: "engine.backend", str: func(c *Config) *string { return &c.Engine.Backend }},
	{key: "ollama.base_url", str: func(c *Config) *string { return &c.Ollama.BaseURL }},
	{key: "ollama.chat_model", str: func(c *Config) *string { return &c.Ollama.ChatModel }},
	{key: "openai.base_url", str: func(c *Config) *string { return &c.OpenAI.BaseURL }},
	{key: "openai.chat_model", str: func(c *Config) *string { return &c.OpenAI.ChatModel }},
	{key: "openai.api_key", account: "openai_api_key", str: func(c *Config) *string { return &c.OpenAI.APIKey }},
	{key: "proxy.base_url", str: func(c *Config) *string { return &c.Proxy.BaseURL }},
	{key: "proxy.image_model", str: func(c *Config) *string { return &c.Proxy.ImageModel }},
	{
		key: "proxy.openrouter_api_key", env: "ARCHAI_OPENROUTER_API_KEY", account: "openrouter_api_key",
		str: func(c *Config) *string { return &c.Proxy.OpenRouterAPIKey },
	},
	{key: "pipeline.refinement_passes", num: func(c *Config) *int { return &c.Pipeline.RefinementPasses }},
	{key: "pipeline.extractor", str: func(c *Config) *string { return &c.Pipeline.Extractor }},
	{key: "worker.poll_interval", str: func(c *Config) *string { return &c.Worker.PollInterval }},
}

func lookupSetting(key string) (setting, bool) {
	for _, s := range settings {
		if s.key == key {
			return s, true
		}
	}
	return setting{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range settings {
		if s.secret() {
			continue
		}
		if s.num != nil {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				*s.num(cfg) = v
			}
			continue
		}
		v, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if ok {
			*s.str(cfg) = v
		}
	}
	return nil
}

// applyEnvOverrides lets ARCHAI_* variables win over stored values. A
// malformed integer is reported and ignored.
func applyEnvOverrides(cfg *Config) {
	for _, s := range settings {
		raw := os.Getenv(s.envVar())
		if raw == "" {
			continue
		}
		if err := s.assign(cfg, raw); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] ignoring %s: %v\n", s.envVar(), err)
		}
	}
}
