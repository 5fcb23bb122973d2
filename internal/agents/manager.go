package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/opsconcierge/opsconcierge/internal/history"
	"github.com/opsconcierge/opsconcierge/internal/llm"
	"github.com/opsconcierge/opsconcierge/internal/state"
	"github.com/opsconcierge/opsconcierge/pkg/models"
)

// Conversational fallbacks. Tool and model failures surface as replies, not
// HTTP errors, so the Teams user always gets a message back.
const (
	errorReply    = "I apologize, but I ran into an error while processing your message. Please try again."
	fallbackReply = "I wasn't able to complete that request. Please try rephrasing or breaking it into smaller steps."
)

// Notifier sends an interim message to the user mid-turn, before a slow
// tool runs.
type Notifier func(ctx context.Context, text string)

// Request is one inbound user message for the manager to handle.
type Request struct {
	UserID   string
	UserName string
	Text     string
	Notify   Notifier
}

// Manager runs the agentic loop: it selects an agent, relays tool calls
// between the model and the executors, follows handoffs, and persists the
// exchange. Messages from the same user are serialized on a per-user lock
// so concurrent Teams activities cannot interleave one conversation.
type Manager struct {
	registry *Registry
	llm      llm.Client
	history  *history.Store
	state    *state.Manager
	maxTurns int

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex

	processed atomic.Uint64
	failed    atomic.Uint64

	usageMu sync.Mutex
	usage   map[string]int
}

// NewManager wires the agent loop together. maxTurns bounds the number of
// model round-trips per inbound message.
func NewManager(registry *Registry, client llm.Client, hist *history.Store, st *state.Manager, maxTurns int) *Manager {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &Manager{
		registry:  registry,
		llm:       client,
		history:   hist,
		state:     st,
		maxTurns:  maxTurns,
		userLocks: make(map[string]*sync.Mutex),
		usage:     make(map[string]int),
	}
}

// Handle processes one user message and returns the reply text.
func (m *Manager) Handle(ctx context.Context, req Request) string {
	lock := m.userLock(req.UserID)
	lock.Lock()
	defer lock.Unlock()

	agent := m.registry.Get(m.registry.Select(m.state.Active(req.UserID), req.Text))
	m.history.Append(req.UserID, models.RoleUser, req.Text, nil)

	logger := log.With().
		Str("user_id", req.UserID).
		Str("agent", agent.Name).
		Logger()
	logger.Info().Msg("handling message")

	// The working transcript carries the tool-call pairing for this turn.
	// Only user, assistant, and handoff turns are replayed from history.
	msgs := m.buildTranscript(agent, req)

	for turn := 0; turn < m.maxTurns; turn++ {
		completion, err := m.llm.Complete(ctx, llm.Request{
			Messages: msgs,
			Tools:    m.registry.ToolDefinitions(agent),
		})
		if err != nil {
			logger.Error().Err(err).Msg("model completion failed")
			m.failed.Add(1)
			m.finish(req.UserID, agent.Name, errorReply)
			return errorReply
		}

		if !completion.HasToolCalls() {
			reply := completion.Content
			if reply == "" {
				reply = fallbackReply
			}
			m.finish(req.UserID, agent.Name, reply)
			return reply
		}

		msgs = append(msgs, models.ChatMessage{
			Role:      "assistant",
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		handoffTo := ""
		for _, call := range completion.ToolCalls {
			result := m.runToolCall(ctx, agent, call, req, &handoffTo, logger)
			msgs = append(msgs, models.ChatMessage{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}

		if handoffTo != "" && handoffTo != agent.Name {
			logger.Info().
				Str("from", agent.Name).
				Str("to", handoffTo).
				Msg("agent handoff")
			m.history.Append(req.UserID, models.RoleHandoff,
				fmt.Sprintf("%s -> %s", agent.Name, handoffTo),
				map[string]string{"from": agent.Name, "to": handoffTo})
			agent = m.registry.Get(handoffTo)
			logger = logger.With().Str("agent", agent.Name).Logger()
			// The new agent sees the same transcript under its own
			// instructions.
			msgs[0] = systemMessage(agent, req)
		}
	}

	logger.Warn().Int("max_turns", m.maxTurns).Msg("turn limit reached")
	m.finish(req.UserID, agent.Name, fallbackReply)
	return fallbackReply
}

// runToolCall executes one tool call and returns the JSON result for the
// model. Handoff tools set handoffTo instead of running an executor.
func (m *Manager) runToolCall(ctx context.Context, agent *Agent, call models.ToolCall, req Request, handoffTo *string, logger zerolog.Logger) string {
	if target, ok := m.registry.HandoffTarget(agent, call.Name); ok {
		*handoffTo = target
		return models.Success(map[string]any{"transferred_to": target}).JSON()
	}

	tool := agent.Tool(call.Name)
	if tool == nil {
		logger.Warn().Str("tool", call.Name).Msg("model requested unknown tool")
		return models.Failure(fmt.Sprintf("unknown tool %q", call.Name)).JSON()
	}

	if tool.Wait && req.Notify != nil {
		text := tool.WaitText
		if text == "" {
			text = "Working on it, this may take a moment..."
		}
		req.Notify(ctx, text)
	}

	logger.Info().Str("tool", call.Name).Msg("executing tool")
	payload := tool.Run(ctx, json.RawMessage(call.Arguments))
	result := payload.JSON()
	m.history.Append(req.UserID, models.RoleTool, result,
		map[string]string{"tool": call.Name, "agent": agent.Name})
	return result
}

// finish records the assistant reply and updates counters and agent state.
func (m *Manager) finish(userID, agentName, reply string) {
	m.history.Append(userID, models.RoleAssistant, reply, map[string]string{"agent": agentName})
	m.state.SetActive(userID, agentName)
	m.processed.Add(1)

	m.usageMu.Lock()
	m.usage[agentName]++
	m.usageMu.Unlock()
}

// buildTranscript rebuilds the model prompt: the agent's system message
// followed by the user and assistant turns on record. Tool turns are kept
// for stats only and never replayed; handoff turns become system notes so
// the model knows who handled what.
func (m *Manager) buildTranscript(agent *Agent, req Request) []models.ChatMessage {
	turns := m.history.Turns(req.UserID)
	msgs := make([]models.ChatMessage, 0, len(turns)+1)
	msgs = append(msgs, systemMessage(agent, req))
	for _, turn := range turns {
		switch turn.Role {
		case models.RoleUser:
			msgs = append(msgs, models.ChatMessage{Role: "user", Content: turn.Content})
		case models.RoleAssistant:
			msgs = append(msgs, models.ChatMessage{Role: "assistant", Content: turn.Content})
		case models.RoleHandoff:
			msgs = append(msgs, models.ChatMessage{
				Role:    "system",
				Content: "Conversation transferred: " + turn.Content,
			})
		}
	}
	return msgs
}

func systemMessage(agent *Agent, req Request) models.ChatMessage {
	content := agent.Instructions
	if req.UserName != "" {
		content += fmt.Sprintf("\n\nYou are talking to %s.", req.UserName)
	}
	return models.ChatMessage{Role: "system", Content: content}
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.userLocks[userID] = lock
	}
	return lock
}

// Stats assembles the aggregate snapshot for the health endpoint.
func (m *Manager) Stats() models.GatewayStats {
	m.usageMu.Lock()
	usage := make(map[string]int, len(m.usage))
	for k, v := range m.usage {
		usage[k] = v
	}
	m.usageMu.Unlock()

	return models.GatewayStats{
		MessagesProcessed: m.processed.Load(),
		MessagesFailed:    m.failed.Load(),
		AgentUsage:        usage,
		History:           m.history.Stats(),
		State:             m.state.Stats(),
		Timestamp:         time.Now().UTC(),
	}
}
