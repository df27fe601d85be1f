package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/chanrelay/chanrelay/internal/database"
)

// Manager is the registry of per-session engines, keyed by session owner.
type Manager struct {
	mu      sync.RWMutex
	engines map[string]*Engine
}

// NewManager creates an empty engine registry.
func NewManager() *Manager {
	return &Manager{engines: make(map[string]*Engine)}
}

// Add registers an engine under its owner id. Owners must be unique.
func (m *Manager) Add(e *Engine) error {
	if e == nil {
		return fmt.Errorf("engine cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	owner := e.OwnerID()
	if _, exists := m.engines[owner]; exists {
		return fmt.Errorf("engine for session %q already registered", owner)
	}
	m.engines[owner] = e
	return nil
}

// Get returns the engine for the given session owner.
func (m *Manager) Get(ownerID string) (*Engine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.engines[ownerID]
	return e, ok
}

// ForChannel resolves the engine responsible for a watched channel by
// looking up the channel's owner. Returns nil when the channel is not
// watched, disabled, or owned by a session without a running engine.
func (m *Manager) ForChannel(ctx context.Context, store database.Store, chatID int64) (*Engine, error) {
	channel, err := store.GetChannelByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up channel %d: %w", chatID, err)
	}
	if channel == nil || !channel.Enabled {
		return nil, nil
	}

	e, ok := m.Get(channel.OwnerID)
	if !ok {
		return nil, nil
	}
	return e, nil
}

// All returns the registered engines in stable owner order.
func (m *Manager) All() []*Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owners := make([]string, 0, len(m.engines))
	for owner := range m.engines {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	all := make([]*Engine, 0, len(owners))
	for _, owner := range owners {
		all = append(all, m.engines[owner])
	}
	return all
}

// Close stops every registered engine.
func (m *Manager) Close() {
	for _, e := range m.All() {
		e.Close()
	}
}
