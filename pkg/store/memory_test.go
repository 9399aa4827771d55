package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/parley/pkg/chat"
)

func newStoredSession(t *testing.T, title string, order int) *chat.Session {
	t.Helper()
	config := chat.NewSessionConfig(chat.NewProvider(chat.ProviderOpenAI))
	s := chat.NewSession(config, chat.WithTitle(title))
	s.Order = order
	return s
}

func TestMemoryStoreSaveIsUpsert(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	s := newStoredSession(t, "one", 0)
	require.NoError(t, m.SaveSession(ctx, s))
	require.NoError(t, m.SaveSession(ctx, s))

	sessions, err := m.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	require.Error(t, m.SaveSession(ctx, nil))
}

func TestMemoryStoreListsSessionsByOrderThenDate(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, m.SaveSession(ctx, newStoredSession(t, "third", 5)))
	require.NoError(t, m.SaveSession(ctx, newStoredSession(t, "first", 1)))
	require.NoError(t, m.SaveSession(ctx, newStoredSession(t, "second", 3)))

	sessions, err := m.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	require.Equal(t, "first", sessions[0].Title)
	require.Equal(t, "second", sessions[1].Title)
	require.Equal(t, "third", sessions[2].Title)
}

func TestMemoryStoreDeleteSession(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	s := newStoredSession(t, "doomed", 0)
	require.NoError(t, m.SaveSession(ctx, s))
	require.NoError(t, m.DeleteSession(ctx, s.ID))
	require.Error(t, m.DeleteSession(ctx, s.ID))
	require.Error(t, m.DeleteSession(ctx, uuid.New()))
}

func TestMemoryStoreProviders(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	openai := chat.NewProvider(chat.ProviderOpenAI)
	openai.Order = 2
	claude := chat.NewProvider(chat.ProviderClaude)
	claude.Order = 1

	require.NoError(t, m.SaveProvider(ctx, openai))
	require.NoError(t, m.SaveProvider(ctx, claude))

	providers, err := m.ListProviders(ctx)
	require.NoError(t, err)
	require.Len(t, providers, 2)
	require.Equal(t, chat.ProviderClaude, providers[0].Kind)
}
