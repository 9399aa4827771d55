package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/parley/pkg/chat"
)

type stubService struct {
	models []chat.Model
	err    error
}

func (s *stubService) StreamResponse(context.Context, []*chat.Conversation, *chat.SessionConfig) (*Stream, error) {
	return nil, nil
}

func (s *stubService) NonStreamingResponse(context.Context, []*chat.Conversation, *chat.SessionConfig) (*Response, error) {
	return nil, nil
}

func (s *stubService) RefreshModels(context.Context, *chat.Provider) ([]chat.Model, error) {
	return s.models, s.err
}

func (s *stubService) TestModel(context.Context, *chat.Provider, chat.Model) bool {
	return true
}

func TestListModelsSwallowsRefreshFailures(t *testing.T) {
	provider := chat.NewProvider(chat.ProviderOpenAI)

	failing := &stubService{err: &ProviderError{
		Kind: ErrKindUnavailable, Message: "connection refused",
	}}
	require.Empty(t, ListModels(context.Background(), failing, provider))

	working := &stubService{models: []chat.Model{{Code: "m1", Name: "m1", Kind: chat.ModelKindChat}}}
	models := ListModels(context.Background(), working, provider)
	require.Len(t, models, 1)
	require.Equal(t, "m1", models[0].Code)
}
