package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProviderSelectsFirstChatModel(t *testing.T) {
	p := NewProvider(ProviderOpenAI)

	require.Equal(t, "openai", p.Name)
	require.Equal(t, "https://api.openai.com/v1", p.Host)
	require.True(t, p.Enabled)
	require.Equal(t, "gpt-4o", p.ChatModel.Code)
	require.Equal(t, "gpt-4o", p.QuickModel.Code)
	require.Equal(t, "gpt-4o", p.TitleModel.Code)
}

func TestChatAndImageModelsSplitTheCatalog(t *testing.T) {
	p := NewProvider(ProviderOpenAI)

	for _, m := range p.ChatModels() {
		require.Equal(t, ModelKindChat, m.Kind)
	}
	images := p.ImageModels()
	require.NotEmpty(t, images)
	require.Equal(t, "dall-e-3", images[0].Code)
}

func TestAddModelsDeduplicatesByCode(t *testing.T) {
	p := NewProvider(ProviderOllama)
	require.Len(t, p.Models, 1)

	p.AddModels([]Model{
		{Code: "llama3", Name: "Llama 3 again", Kind: ModelKindChat},
		{Code: "mistral", Name: "Mistral", Kind: ModelKindChat},
	})

	require.Len(t, p.Models, 2)
	require.Equal(t, "Llama 3", p.Models[0].Name)
	require.Equal(t, "mistral", p.Models[1].Code)
}

func TestModelForPurpose(t *testing.T) {
	p := NewProvider(ProviderClaude)
	p.QuickModel = Model{Code: "claude-3-haiku-20240307", Kind: ModelKindChat}
	p.TitleModel = Model{Code: "claude-3-haiku-20240307", Kind: ModelKindChat}

	require.Equal(t, p.ChatModel, p.ModelFor(PurposeChat))
	require.Equal(t, "claude-3-haiku-20240307", p.ModelFor(PurposeQuick).Code)
	require.Equal(t, "claude-3-haiku-20240307", p.ModelFor(PurposeTitle).Code)
}

func TestCountTokensGrowsWithText(t *testing.T) {
	require.Equal(t, 0, CountTokens(""))
	short := CountTokens("hello")
	long := CountTokens("hello there, how are you doing today?")
	require.Positive(t, short)
	require.Greater(t, long, short)
}
