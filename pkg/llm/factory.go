package llm

import (
	"fmt"
	"review-talk-go/internal/config"
	"strings"
)

const (
	ProviderOpenAI     = "openai"
	ProviderCompatible = "compatible"
	ProviderYandex     = "yandex"
)

// NewBackend creates the backend selected by cfg.Provider.
func NewBackend(cfg config.LLMConfig) (Backend, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg), nil
	case ProviderCompatible, "deepseek":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider %q requires base_url", cfg.Provider)
		}
		return NewCompatible(cfg), nil
	case ProviderYandex:
		return NewYandex(cfg.Yandex.OAuthToken, cfg.Yandex.FolderID)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
