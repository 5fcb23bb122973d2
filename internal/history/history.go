// Package history provides the in-memory per-user conversation log.
//
// Each user gets an ordered sequence of turns, bounded two ways: a maximum
// turn count (oldest dropped first) and a retention window (conversations
// idle longer than the window are pruned by a background janitor).
package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opsconcierge/opsconcierge/pkg/models"
)

// DefaultJanitorInterval is how often idle conversations are swept.
const DefaultJanitorInterval = time.Hour

// Store is a thread-safe in-memory conversation store.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation

	maxTurns  int
	retention time.Duration
}

// NewStore creates a store bounded by maxTurns per user and a retention
// window for idle conversations.
func NewStore(maxTurns int, retention time.Duration) *Store {
	return &Store{
		conversations: make(map[string]*models.Conversation),
		maxTurns:      maxTurns,
		retention:     retention,
	}
}

// Append adds a turn to the user's conversation, creating the conversation
// on first use, then prunes turns beyond the count limit or older than the
// retention window.
func (s *Store) Append(userID string, role models.Role, content string, metadata map[string]string) models.Turn {
	now := time.Now().UTC()
	turn := models.Turn{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: now,
		Metadata:  metadata,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[userID]
	if !ok {
		conv = &models.Conversation{UserID: userID, CreatedAt: now}
		s.conversations[userID] = conv
		log.Debug().Str("user_id", userID).Msg("conversation created")
	}

	conv.Turns = append(conv.Turns, turn)
	conv.LastUpdated = now

	// Count bound: drop oldest.
	if excess := len(conv.Turns) - s.maxTurns; excess > 0 {
		conv.Turns = append([]models.Turn(nil), conv.Turns[excess:]...)
		log.Debug().Str("user_id", userID).Int("dropped", excess).Msg("history trimmed to turn limit")
	}

	// Age bound: drop turns past retention.
	cutoff := now.Add(-s.retention)
	first := 0
	for first < len(conv.Turns) && conv.Turns[first].Timestamp.Before(cutoff) {
		first++
	}
	if first > 0 {
		conv.Turns = append([]models.Turn(nil), conv.Turns[first:]...)
	}

	return turn
}

// Turns returns a copy of the user's ordered turn sequence, or nil if the
// user has no conversation.
func (s *Store) Turns(userID string) []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[userID]
	if !ok {
		return nil
	}
	out := make([]models.Turn, len(conv.Turns))
	copy(out, conv.Turns)
	return out
}

// Get returns a copy of the user's conversation, or nil if absent.
func (s *Store) Get(userID string) *models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[userID]
	if !ok {
		return nil
	}
	cp := *conv
	cp.Turns = make([]models.Turn, len(conv.Turns))
	copy(cp.Turns, conv.Turns)
	return &cp
}

// Clear removes a user's conversation. Returns false if none existed.
func (s *Store) Clear(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[userID]; !ok {
		return false
	}
	delete(s.conversations, userID)
	log.Info().Str("user_id", userID).Msg("conversation cleared")
	return true
}

// Stats returns aggregate counters for the health endpoint.
func (s *Store) Stats() models.HistoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.HistoryStats{
		Conversations: len(s.conversations),
		TurnsByRole: map[models.Role]int{
			models.RoleUser:      0,
			models.RoleAssistant: 0,
			models.RoleTool:      0,
			models.RoleHandoff:   0,
		},
	}
	for _, conv := range s.conversations {
		stats.Turns += len(conv.Turns)
		for _, turn := range conv.Turns {
			stats.TurnsByRole[turn.Role]++
		}
	}
	return stats
}

// Sweep removes conversations idle past the retention window and returns
// how many were dropped.
func (s *Store) Sweep(now time.Time) int {
	cutoff := now.Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for userID, conv := range s.conversations {
		if conv.LastUpdated.Before(cutoff) {
			delete(s.conversations, userID)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps idle conversations on the given interval until the
// context is cancelled. Intended to run as a goroutine.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := s.Sweep(now.UTC()); removed > 0 {
				log.Info().Int("removed", removed).Msg("idle conversations pruned")
			}
		}
	}
}
