package chat

import (
	"time"

	"github.com/google/uuid"
)

// ProviderKind identifies a backend family. Each kind has its own adapter
// implementation of the provider service contract.
type ProviderKind string

const (
	ProviderOpenAI ProviderKind = "openai"
	ProviderClaude ProviderKind = "claude"
	ProviderGemini ProviderKind = "gemini"
	ProviderOllama ProviderKind = "ollama"
)

type ModelKind string

const (
	ModelKindChat  ModelKind = "chat"
	ModelKindImage ModelKind = "image"
)

// Model is one entry of a provider's catalog.
type Model struct {
	Code string    `json:"code"`
	Name string    `json:"name"`
	Kind ModelKind `json:"kind"`
}

// Provider describes a backend: credentials, host and its model catalog.
// Read-only for the duration of a generation run.
type Provider struct {
	ID    uuid.UUID `json:"id"`
	Date  time.Time `json:"date"`
	Order int       `json:"order"`

	Name   string       `json:"name"`
	Host   string       `json:"host"`
	APIKey string       `json:"apiKey"`
	Kind   ProviderKind `json:"kind"`

	Enabled bool    `json:"enabled"`
	Models  []Model `json:"models"`

	ChatModel  Model `json:"chatModel"`
	QuickModel Model `json:"quickModel"`
	TitleModel Model `json:"titleModel"`
}

// NewProvider builds a provider of the given kind with its default host and
// model catalog.
func NewProvider(kind ProviderKind) *Provider {
	p := &Provider{
		ID:      uuid.New(),
		Date:    time.Now(),
		Name:    string(kind),
		Host:    defaultHost(kind),
		Kind:    kind,
		Enabled: true,
		Models:  DefaultModels(kind),
	}

	if chat := p.ChatModels(); len(chat) > 0 {
		p.ChatModel = chat[0]
		p.QuickModel = chat[0]
		p.TitleModel = chat[0]
	}

	return p
}

func defaultHost(kind ProviderKind) string {
	switch kind {
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	case ProviderClaude:
		return "https://api.anthropic.com"
	case ProviderGemini:
		return "https://generativelanguage.googleapis.com"
	case ProviderOllama:
		return "http://localhost:11434"
	default:
		return ""
	}
}

// DefaultModels returns the built-in catalog for a backend kind, used before
// the first successful RefreshModels.
func DefaultModels(kind ProviderKind) []Model {
	switch kind {
	case ProviderOpenAI:
		return []Model{
			{Code: "gpt-4o", Name: "GPT-4o", Kind: ModelKindChat},
			{Code: "gpt-4o-mini", Name: "GPT-4o mini", Kind: ModelKindChat},
			{Code: "gpt-4-turbo", Name: "GPT-4 Turbo", Kind: ModelKindChat},
			{Code: "dall-e-3", Name: "DALL-E 3", Kind: ModelKindImage},
		}
	case ProviderClaude:
		return []Model{
			{Code: "claude-3-5-sonnet-20240620", Name: "Claude 3.5 Sonnet", Kind: ModelKindChat},
			{Code: "claude-3-opus-20240229", Name: "Claude 3 Opus", Kind: ModelKindChat},
			{Code: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", Kind: ModelKindChat},
		}
	case ProviderGemini:
		return []Model{
			{Code: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", Kind: ModelKindChat},
			{Code: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", Kind: ModelKindChat},
		}
	case ProviderOllama:
		return []Model{
			{Code: "llama3", Name: "Llama 3", Kind: ModelKindChat},
		}
	default:
		return nil
	}
}

// ChatModels filters the catalog to chat-capable models.
func (p *Provider) ChatModels() []Model {
	var ret []Model
	for _, m := range p.Models {
		if m.Kind == ModelKindChat {
			ret = append(ret, m)
		}
	}
	return ret
}

// ImageModels filters the catalog to image models.
func (p *Provider) ImageModels() []Model {
	var ret []Model
	for _, m := range p.Models {
		if m.Kind == ModelKindImage {
			ret = append(ret, m)
		}
	}
	return ret
}

// AddModels merges freshly discovered models into the catalog, keyed by code.
func (p *Provider) AddModels(models []Model) {
	for _, m := range models {
		exists := false
		for _, existing := range p.Models {
			if existing.Code == m.Code {
				exists = true
				break
			}
		}
		if !exists {
			p.Models = append(p.Models, m)
		}
	}
}

// ModelFor picks the configured model for a session purpose.
func (p *Provider) ModelFor(purpose Purpose) Model {
	switch purpose {
	case PurposeQuick:
		return p.QuickModel
	case PurposeTitle:
		return p.TitleModel
	default:
		return p.ChatModel
	}
}
