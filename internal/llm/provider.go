package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/jask/bookkeeper/internal/config"
)

// NewModel builds the configured provider's Model. The API key is resolved by
// the caller; an empty key is an error here.
func NewModel(ctx context.Context, cfg config.LLMConfig, apiKey string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "gemini":
		return NewGemini(ctx, cfg, apiKey)
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}

// NewFromConfig wires a Classifier with the configured model and web lookup.
func NewFromConfig(ctx context.Context, cfg config.Config, apiKey string) (*Classifier, error) {
	model, err := NewModel(ctx, cfg.LLM, apiKey)
	if err != nil {
		return nil, err
	}
	lookup := NewRetryingLookup(NewWebLookup(cfg.Lookup.Endpoint))
	if cfg.Lookup.MaxAttempts > 0 {
		lookup.MaxAttempts = cfg.Lookup.MaxAttempts
	}
	if cfg.Lookup.InitialBackoff > 0 {
		lookup.Initial = cfg.Lookup.InitialBackoff
	}
	if cfg.Lookup.Timeout > 0 {
		lookup.Timeout = cfg.Lookup.Timeout
	}
	return NewClassifier(model, lookup, cfg.LLM.MaxToolRounds), nil
}
