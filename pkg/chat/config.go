package chat

import (
	"github.com/huandu/go-clone"
)

// Purpose selects which of a provider's models a session uses and how forked
// sessions are titled.
type Purpose string

const (
	PurposeChat  Purpose = "chat"
	PurposeQuick Purpose = "quick"
	PurposeTitle Purpose = "title"
)

func (p Purpose) TitlePrefix() string {
	switch p {
	case PurposeQuick:
		return "↯"
	case PurposeTitle:
		return "T"
	default:
		return "(Ψ)"
	}
}

// SessionConfig carries everything a generation run needs: the provider, the
// selected model, sampling parameters, the system prompt and the enabled tool
// set.
//
// A config is shared by reference between a session and its controller and is
// only mutated between runs. The orchestrator never sees the live object: it
// receives a Snapshot taken when the run starts.
type SessionConfig struct {
	Provider *Provider `json:"provider"`
	Model    Model     `json:"model"`

	Temperature      *float32 `json:"temperature,omitempty"`
	TopP             *float32 `json:"topP,omitempty"`
	FrequencyPenalty *float32 `json:"frequencyPenalty,omitempty"`
	PresencePenalty  *float32 `json:"presencePenalty,omitempty"`
	MaxTokens        *int     `json:"maxTokens,omitempty"`

	Stream       bool   `json:"stream"`
	SystemPrompt string `json:"systemPrompt"`

	Tools []ToolSpec `json:"tools,omitempty"`

	Purpose Purpose `json:"purpose"`
}

type ConfigOption func(*SessionConfig)

func WithSystemPrompt(prompt string) ConfigOption {
	return func(c *SessionConfig) {
		c.SystemPrompt = prompt
	}
}

func WithTemperature(t float32) ConfigOption {
	return func(c *SessionConfig) {
		c.Temperature = &t
	}
}

func WithMaxTokens(n int) ConfigOption {
	return func(c *SessionConfig) {
		c.MaxTokens = &n
	}
}

func WithStream(stream bool) ConfigOption {
	return func(c *SessionConfig) {
		c.Stream = stream
	}
}

func WithTools(specs []ToolSpec) ConfigOption {
	return func(c *SessionConfig) {
		c.Tools = specs
	}
}

func WithPurpose(purpose Purpose) ConfigOption {
	return func(c *SessionConfig) {
		c.Purpose = purpose
		c.Model = c.Provider.ModelFor(purpose)
	}
}

func NewSessionConfig(provider *Provider, options ...ConfigOption) *SessionConfig {
	ret := &SessionConfig{
		Provider: provider,
		Model:    provider.ModelFor(PurposeChat),
		Stream:   true,
		Purpose:  PurposeChat,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// Snapshot returns an immutable deep copy for the duration of a run. Live
// edits to the original config never affect an in-flight generation.
func (c *SessionConfig) Snapshot() *SessionConfig {
	return clone.Clone(c).(*SessionConfig)
}

// Copy clones the config for a forked session with the given purpose,
// re-selecting the purpose's model.
func (c *SessionConfig) Copy(purpose Purpose) *SessionConfig {
	ret := c.Snapshot()
	ret.Purpose = purpose
	ret.Model = ret.Provider.ModelFor(purpose)
	if purpose == PurposeTitle {
		ret.Stream = false
	}
	return ret
}
