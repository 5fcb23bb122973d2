// Package state tracks which agent is active for each user. The active agent
// makes conversations sticky: a follow-up message goes to the agent that
// answered the previous one unless routing heuristics say otherwise.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsconcierge/opsconcierge/pkg/models"
)

// UserState is one user's agent session.
type UserState struct {
	UserID       string    `json:"user_id"`
	ActiveAgent  string    `json:"active_agent"`
	MessageCount int       `json:"message_count"`
	LastActivity time.Time `json:"last_activity"`
}

// Manager is a thread-safe in-memory active-agent tracker.
type Manager struct {
	mu           sync.RWMutex
	users        map[string]*UserState
	defaultAgent string
	idleTimeout  time.Duration
}

// NewManager creates a manager that falls back to defaultAgent and expires
// sessions idle longer than idleTimeout.
func NewManager(defaultAgent string, idleTimeout time.Duration) *Manager {
	return &Manager{
		users:        make(map[string]*UserState),
		defaultAgent: defaultAgent,
		idleTimeout:  idleTimeout,
	}
}

// Active returns the user's active agent, falling back to the default when
// the user is unknown or the session went idle past the timeout.
func (m *Manager) Active(userID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.users[userID]
	if !ok {
		return m.defaultAgent
	}
	if m.idleTimeout > 0 && time.Since(st.LastActivity) > m.idleTimeout {
		return m.defaultAgent
	}
	return st.ActiveAgent
}

// SetActive records the agent that finished handling the user's message.
func (m *Manager) SetActive(userID, agentName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.users[userID]
	if !ok {
		st = &UserState{UserID: userID}
		m.users[userID] = st
	}
	st.ActiveAgent = agentName
	st.MessageCount++
	st.LastActivity = time.Now().UTC()
}

// Get returns a copy of the user's state, or nil if unknown.
func (m *Manager) Get(userID string) *UserState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.users[userID]
	if !ok {
		return nil
	}
	cp := *st
	return &cp
}

// Clear resets a user to the default agent. Returns false if unknown.
func (m *Manager) Clear(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return false
	}
	delete(m.users, userID)
	return true
}

// Stats returns the per-agent usage distribution for the health endpoint.
func (m *Manager) Stats() models.StateStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := models.StateStats{
		ActiveUsers:       len(m.users),
		AgentDistribution: make(map[string]int),
	}
	for _, st := range m.users {
		stats.AgentDistribution[st.ActiveAgent]++
	}
	return stats
}

// Sweep drops sessions idle past the timeout and returns how many.
func (m *Manager) Sweep(now time.Time) int {
	if m.idleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-m.idleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for userID, st := range m.users {
		if st.LastActivity.Before(cutoff) {
			delete(m.users, userID)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps idle sessions until the context is cancelled.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := m.Sweep(now.UTC()); removed > 0 {
				log.Info().Int("removed", removed).Msg("idle agent sessions expired")
			}
		}
	}
}
