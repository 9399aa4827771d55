package factory

import (
	"github.com/pkg/errors"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/go-go-golems/parley/pkg/providers/claude"
	"github.com/go-go-golems/parley/pkg/providers/gemini"
	"github.com/go-go-golems/parley/pkg/providers/ollama"
	"github.com/go-go-golems/parley/pkg/providers/openai"
)

// ForProvider returns the service adapter matching the provider kind.
func ForProvider(p *chat.Provider) (providers.Service, error) {
	switch p.Kind {
	case chat.ProviderOpenAI:
		return openai.NewService(), nil
	case chat.ProviderClaude:
		return claude.NewService(), nil
	case chat.ProviderGemini:
		return gemini.NewService(), nil
	case chat.ProviderOllama:
		return ollama.NewService(), nil
	default:
		return nil, errors.Errorf("unknown provider kind %q", p.Kind)
	}
}
