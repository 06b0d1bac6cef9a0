package autosave

import (
	"context"
	"sync"

	"github.com/timmy/stockmeta/internal/domain"
)

// HubCommitFunc persists committed metadata for an asset.
type HubCommitFunc func(ctx context.Context, assetID string, m *domain.Metadata) error

// Hub keeps one editor session per asset.
type Hub struct {
	clock  Clock
	commit HubCommitFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewHub creates a hub. A nil clock uses RealClock.
func NewHub(commit HubCommitFunc, clock Clock) *Hub {
	if clock == nil {
		clock = RealClock
	}
	return &Hub{
		clock:    clock,
		commit:   commit,
		sessions: make(map[string]*Session),
	}
}

// Open returns the session for assetID, creating it from base when absent.
func (h *Hub) Open(assetID string, base *domain.Metadata) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sessions[assetID]; ok {
		return s
	}
	s := NewSession(assetID, base, h.clock, func(ctx context.Context, m *domain.Metadata) error {
		return h.commit(ctx, assetID, m)
	})
	h.sessions[assetID] = s
	return s
}

// Lookup returns the session for assetID if one is open.
func (h *Hub) Lookup(assetID string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[assetID]
	return s, ok
}

// Sync forwards an external metadata change to an open session.
func (h *Hub) Sync(assetID string, m *domain.Metadata) {
	if s, ok := h.Lookup(assetID); ok {
		s.Dispatch(Sync{Metadata: m})
	}
}

// Flush commits every session that still has a pending edit.
func (h *Hub) Flush() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Dispatch(Blur{})
	}
}

// Remove closes and forgets the session for assetID.
func (h *Hub) Remove(assetID string) {
	h.mu.Lock()
	s, ok := h.sessions[assetID]
	delete(h.sessions, assetID)
	h.mu.Unlock()
	if ok {
		s.Close()
	}
}

// RemoveAll closes every session.
func (h *Hub) RemoveAll() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
