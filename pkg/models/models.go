// Package models defines the shared data model for the opsconcierge gateway:
// conversation turns, chat messages, tool calls, Teams activities, and the
// aggregate stats reported by the health endpoint.
package models

import (
	"encoding/json"
	"time"
)

// ── Conversation Turns ──────────────────────────────────────

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleHandoff   Role = "handoff"
)

// Turn is a single entry in a user's conversation history.
type Turn struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Conversation is the per-user ordered log of turns.
type Conversation struct {
	UserID      string    `json:"user_id"`
	Turns       []Turn    `json:"turns"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// ConversationSummary is the admin-facing view of a conversation.
type ConversationSummary struct {
	UserID      string    `json:"user_id"`
	TurnCount   int       `json:"turn_count"`
	ActiveAgent string    `json:"active_agent"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// ── Chat Messages & Tool Calls ──────────────────────────────

// ChatMessage is one message in an LLM conversation. Assistant messages may
// carry tool calls; tool messages answer one via ToolCallID.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a structured request from the model asking the gateway to
// execute a named action and return its result.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object
}

// ToolDefinition describes a callable tool to the model. Parameters is a
// JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Completion is the model's reply to one chat request: either final text or
// a batch of tool calls (or both, when the model narrates before acting).
type Completion struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// HasToolCalls reports whether the completion requests tool execution.
func (c *Completion) HasToolCalls() bool { return len(c.ToolCalls) > 0 }

// ── Teams Activities ────────────────────────────────────────

// ChannelAccount identifies a Teams user or bot.
type ChannelAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
}

// ConversationAccount identifies the Teams conversation an activity belongs to.
type ConversationAccount struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`
}

// Activity is the subset of the Bot Framework activity schema the gateway
// reads and writes. Unknown fields are ignored on decode.
type Activity struct {
	Type         string               `json:"type"`
	ID           string               `json:"id,omitempty"`
	Timestamp    time.Time            `json:"timestamp,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	From         ChannelAccount       `json:"from"`
	Recipient    ChannelAccount       `json:"recipient,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	Text         string               `json:"text,omitempty"`
	TextFormat   string               `json:"textFormat,omitempty"`
	ReplyToID    string               `json:"replyToId,omitempty"`
	Locale       string               `json:"locale,omitempty"`
}

// ActivityTypeMessage is the only inbound activity type the gateway handles.
const ActivityTypeMessage = "message"

// Reply builds a message activity answering this one, with From/Recipient
// swapped and the conversation preserved.
func (a *Activity) Reply(text string) *Activity {
	return &Activity{
		Type:         ActivityTypeMessage,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		From:         a.Recipient,
		Recipient:    a.From,
		Conversation: a.Conversation,
		ReplyToID:    a.ID,
		Text:         text,
	}
}

// ── Health & Stats ──────────────────────────────────────────

// HistoryStats summarizes the history store for the health endpoint.
type HistoryStats struct {
	Conversations int          `json:"conversations"`
	Turns         int          `json:"turns"`
	TurnsByRole   map[Role]int `json:"turns_by_role"`
}

// StateStats summarizes per-user agent state.
type StateStats struct {
	ActiveUsers       int            `json:"active_users"`
	AgentDistribution map[string]int `json:"agent_distribution"`
}

// GatewayStats is the aggregate snapshot reported by /health.
type GatewayStats struct {
	MessagesProcessed uint64         `json:"messages_processed"`
	MessagesFailed    uint64         `json:"messages_failed"`
	AgentUsage        map[string]int `json:"agent_usage"`
	History           HistoryStats   `json:"history"`
	State             StateStats     `json:"state"`
	Timestamp         time.Time      `json:"timestamp"`
}

// ── Tool Payload Helpers ────────────────────────────────────

// ToolPayload is the uniform shape tool executors return to the model.
// Failures are payloads, not errors, so the agent can explain them.
type ToolPayload map[string]any

// Success builds a successful tool payload from key/value pairs.
func Success(kv map[string]any) ToolPayload {
	p := ToolPayload{"success": true}
	for k, v := range kv {
		p[k] = v
	}
	return p
}

// Failure builds an error tool payload with a human-readable message.
func Failure(msg string) ToolPayload {
	return ToolPayload{"success": false, "error": msg}
}

// JSON renders the payload for the tool result message. Marshal errors are
// folded into an error payload so the loop always gets valid JSON.
func (p ToolPayload) JSON() string {
	b, err := json.Marshal(p)
	if err != nil {
		return `{"success":false,"error":"failed to encode tool result"}`
	}
	return string(b)
}
