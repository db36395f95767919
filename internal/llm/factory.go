package llm

import (
	"fmt"
	"strings"
)

const (
	ProviderOpenAI = "openai"
	ProviderYandex = "yandex"
)

// Factory creates completion backends with consistent logic.
type Factory struct {
	OpenaiAPIKey     string
	OpenaiBaseURL    string
	YandexOAuthToken string
	YandexFolderID   string
}

func (f *Factory) CreateBackend(provider, model string) (Backend, error) {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		return NewOpenAI(f.OpenaiAPIKey, f.OpenaiBaseURL, model), nil
	case ProviderYandex:
		return NewYandex(f.YandexOAuthToken, f.YandexFolderID)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", provider)
	}
}
