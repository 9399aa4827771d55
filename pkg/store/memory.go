package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/go-go-golems/parley/pkg/chat"
)

// MemoryStore keeps sessions and providers in memory. Safe for concurrent
// use.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[uuid.UUID]*chat.Session
	providers map[uuid.UUID]*chat.Provider
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[uuid.UUID]*chat.Session),
		providers: make(map[uuid.UUID]*chat.Provider),
	}
}

func (m *MemoryStore) SaveSession(_ context.Context, s *chat.Session) error {
	if s == nil {
		return errors.New("nil session")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return errors.Errorf("session %s not found", id)
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) ListSessions(_ context.Context) ([]*chat.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ret := make([]*chat.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		ret = append(ret, s)
	}
	sort.SliceStable(ret, func(i, j int) bool {
		if ret[i].Order != ret[j].Order {
			return ret[i].Order < ret[j].Order
		}
		return ret[i].Date.Before(ret[j].Date)
	})
	return ret, nil
}

func (m *MemoryStore) SaveProvider(_ context.Context, p *chat.Provider) error {
	if p == nil {
		return errors.New("nil provider")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.ID] = p
	return nil
}

func (m *MemoryStore) ListProviders(_ context.Context) ([]*chat.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ret := make([]*chat.Provider, 0, len(m.providers))
	for _, p := range m.providers {
		ret = append(ret, p)
	}
	sort.SliceStable(ret, func(i, j int) bool {
		if ret[i].Order != ret[j].Order {
			return ret[i].Order < ret[j].Order
		}
		return ret[i].Date.Before(ret[j].Date)
	})
	return ret, nil
}
