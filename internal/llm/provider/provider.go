// Package provider builds the configured llm.Client.
package provider

import (
	"fmt"
	"os"

	"lmagent/internal/config"
	"lmagent/internal/llm"
	"lmagent/internal/llm/anthropic"
	"lmagent/internal/llm/openai"

	"go.uber.org/zap"
)

// APIKeyEnv names the environment variable read for each provider's key when
// the config does not set one.
var APIKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// New returns the primary client, wrapped in an llm.Fallback when fallback
// providers are configured. A fallback without an API key is skipped.
func New(cfg config.LLMConfig, log *zap.Logger) (llm.Client, error) {
	if log == nil {
		log = zap.NewNop()
	}

	primary, err := build(config.LLMTarget{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
		APIKey:   cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}
	if len(cfg.Fallback) == 0 {
		return primary, nil
	}

	clients := []llm.Client{primary}
	for _, fb := range cfg.Fallback {
		c, err := build(fb)
		if err != nil {
			log.Warn("fallback provider skipped", zap.String("provider", fb.Provider), zap.Error(err))
			continue
		}
		clients = append(clients, c)
	}
	if len(clients) == 1 {
		return primary, nil
	}
	return llm.NewFallback(log, clients...), nil
}

func build(t config.LLMTarget) (llm.Client, error) {
	key := t.APIKey
	if key == "" {
		key = os.Getenv(APIKeyEnv[t.Provider])
	}

	switch t.Provider {
	case "openai":
		// OpenAI-compatible local endpoints often need no key.
		if key == "" && t.BaseURL == "" {
			return nil, fmt.Errorf("%s is not set", APIKeyEnv[t.Provider])
		}
		return openai.NewClient(key, t.Model, t.BaseURL), nil
	case "anthropic":
		if key == "" {
			return nil, fmt.Errorf("%s is not set", APIKeyEnv[t.Provider])
		}
		return anthropic.NewClient(key, t.Model, t.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", t.Provider)
	}
}
