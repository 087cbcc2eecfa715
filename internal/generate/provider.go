package generate

import (
	"context"
	"fmt"
	"strings"

	"studyhub/portal/internal/config"
)

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.GenerationConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.Model)
	case "openai":
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
