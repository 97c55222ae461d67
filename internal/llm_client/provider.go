// Package llm_client talks to the language model used to interpret free-form
// console input. Gemini and Ollama backends are supported.
package llm_client

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotInitialized = errors.New("llm client not initialized")
	// ErrDisabled is returned by New when no backend is configured.
	ErrDisabled = errors.New("llm backend disabled")
)

type Config struct {
	Backend    string
	Model      string
	OllamaHost string
}

type Provider interface {
	Name() string
	DefaultModel() string
	AllowedModelOrDefault(model string) string
	Generate(ctx context.Context, prompt, model string) (string, error)
	GenerateJSON(ctx context.Context, prompt, model string, schema any) (string, error)
}

// New connects to the configured backend. Backend "none" or "" yields
// ErrDisabled.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch backend := strings.ToLower(strings.TrimSpace(cfg.Backend)); backend {
	case "", "none":
		return nil, ErrDisabled
	case "ollama":
		p, err := newOllamaProvider(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "gemini":
		p, err := newGeminiProvider(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported LLM backend: %s", backend)
	}
}

// CleanJSON strips the markdown fences models like to wrap JSON in.
func CleanJSON(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
