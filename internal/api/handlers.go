package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/opsconcierge/opsconcierge/internal/agents"
	"github.com/opsconcierge/opsconcierge/internal/config"
	"github.com/opsconcierge/opsconcierge/internal/history"
	"github.com/opsconcierge/opsconcierge/internal/state"
	"github.com/opsconcierge/opsconcierge/pkg/models"
)

// Replier posts a message back into the activity's Teams conversation.
// The Bot Framework connector implements it; tests substitute a recorder.
type Replier interface {
	ReplyTo(ctx context.Context, inbound *models.Activity, text string) error
}

// Handlers carries the components the HTTP endpoints need.
type Handlers struct {
	cfg     *config.Config
	manager *agents.Manager
	replier Replier
	history *history.Store
	state   *state.Manager
}

// NewHandlers wires the endpoint handlers.
func NewHandlers(cfg *config.Config, manager *agents.Manager, replier Replier, hist *history.Store, st *state.Manager) *Handlers {
	return &Handlers{cfg: cfg, manager: manager, replier: replier, history: hist, state: st}
}

// Messages receives Bot Framework activities. Message activities run
// through the agent loop and the reply goes back over the connector;
// everything else is acknowledged and dropped.
func (h *Handlers) Messages(w http.ResponseWriter, r *http.Request) {
	var activity models.Activity
	if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
		respondError(w, http.StatusBadRequest, "invalid activity payload")
		return
	}

	if activity.Type != models.ActivityTypeMessage || activity.Text == "" {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	userID := activity.From.AADObjectID
	if userID == "" {
		userID = activity.From.ID
	}
	if userID == "" {
		respondError(w, http.StatusBadRequest, "activity has no sender")
		return
	}

	reply := h.manager.Handle(r.Context(), agents.Request{
		UserID:   userID,
		UserName: activity.From.Name,
		Text:     activity.Text,
		Notify: func(ctx context.Context, text string) {
			if err := h.replier.ReplyTo(ctx, &activity, text); err != nil {
				log.Warn().Err(err).Msg("interim message failed")
			}
		},
	})

	if err := h.replier.ReplyTo(r.Context(), &activity, reply); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("reply delivery failed")
		respondError(w, http.StatusBadGateway, "failed to deliver reply")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"status": "handled"})
}

// Health reports gateway liveness plus the aggregate processing stats.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.manager.Stats()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   h.cfg.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"stats":     stats,
	})
}

// GetConversation returns a user's stored history with a summary line.
func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	conv := h.history.Get(userID)
	if conv == nil {
		respondError(w, http.StatusNotFound, "no conversation for user")
		return
	}
	summary := models.ConversationSummary{
		UserID:      userID,
		TurnCount:   len(conv.Turns),
		CreatedAt:   conv.CreatedAt,
		LastUpdated: conv.LastUpdated,
	}
	if st := h.state.Get(userID); st != nil {
		summary.ActiveAgent = st.ActiveAgent
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"summary":      summary,
		"conversation": conv,
	})
}

// DeleteConversation clears a user's history and agent state.
func (h *Handlers) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	cleared := h.history.Clear(userID)
	h.state.Clear(userID)
	if !cleared {
		respondError(w, http.StatusNotFound, "no conversation for user")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user_id": userID, "cleared": true})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
