package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/go-go-golems/parley/pkg/chat"
)

// Store persists sessions and provider configurations.
type Store interface {
	SaveSession(ctx context.Context, s *chat.Session) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
	ListSessions(ctx context.Context) ([]*chat.Session, error)

	SaveProvider(ctx context.Context, p *chat.Provider) error
	ListProviders(ctx context.Context) ([]*chat.Provider, error)
}
