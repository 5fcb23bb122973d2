package agents

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opsconcierge/opsconcierge/internal/history"
	"github.com/opsconcierge/opsconcierge/internal/llm"
	"github.com/opsconcierge/opsconcierge/internal/state"
	"github.com/opsconcierge/opsconcierge/pkg/models"
)

// fakeLLM replays scripted completions and records every request it sees.
type fakeLLM struct {
	completions []*models.Completion
	err         error
	requests    []llm.Request
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (*models.Completion, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.completions) == 0 {
		return &models.Completion{Content: "done"}, nil
	}
	next := f.completions[0]
	f.completions = f.completions[1:]
	return next, nil
}

func newTestManager(t *testing.T, client llm.Client, registry *Registry) *Manager {
	t.Helper()
	hist := history.NewStore(50, 24*time.Hour)
	st := state.NewManager(ConciergeAgent, 30*time.Minute)
	return NewManager(registry, client, hist, st, 5)
}

func TestHandlePlainReply(t *testing.T) {
	fake := &fakeLLM{completions: []*models.Completion{{Content: "Hello! How can I help?"}}}
	m := newTestManager(t, fake, testRegistry())

	reply := m.Handle(context.Background(), Request{UserID: "u1", Text: "hi"})
	if reply != "Hello! How can I help?" {
		t.Errorf("reply = %q", reply)
	}

	turns := m.history.Turns("u1")
	if len(turns) != 2 || turns[0].Role != models.RoleUser || turns[1].Role != models.RoleAssistant {
		t.Errorf("history = %+v", turns)
	}
	if got := m.state.Active("u1"); got != ConciergeAgent {
		t.Errorf("active agent = %s", got)
	}

	stats := m.Stats()
	if stats.MessagesProcessed != 1 || stats.MessagesFailed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.AgentUsage[ConciergeAgent] != 1 {
		t.Errorf("agent usage = %v", stats.AgentUsage)
	}
}

func TestHandleRunsToolAndFeedsResultBack(t *testing.T) {
	var gotArgs string
	registry := NewRegistry(ConciergeAgent)
	registry.Register(&Agent{
		Name:         ConciergeAgent,
		Instructions: "test agent",
		Tools: []Tool{{
			Definition: models.ToolDefinition{Name: "lookup", Parameters: objectSchema(nil, nil)},
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				gotArgs = string(args)
				return models.Success(map[string]any{"answer": 42})
			},
		}},
	})

	fake := &fakeLLM{completions: []*models.Completion{
		{ToolCalls: []models.ToolCall{{ID: "call-1", Name: "lookup", Arguments: `{"q":"meaning"}`}}},
		{Content: "The answer is 42."},
	}}
	m := newTestManager(t, fake, registry)

	reply := m.Handle(context.Background(), Request{UserID: "u1", Text: "look it up"})
	if reply != "The answer is 42." {
		t.Errorf("reply = %q", reply)
	}
	if gotArgs != `{"q":"meaning"}` {
		t.Errorf("tool args = %q", gotArgs)
	}

	// The second model call must carry the tool result, paired by call ID.
	if len(fake.requests) != 2 {
		t.Fatalf("model calls = %d, want 2", len(fake.requests))
	}
	last := fake.requests[1].Messages[len(fake.requests[1].Messages)-1]
	if last.Role != "tool" || last.ToolCallID != "call-1" {
		t.Errorf("last message = %+v", last)
	}
	if !strings.Contains(last.Content, `"success":true`) {
		t.Errorf("tool result = %q", last.Content)
	}
}

func TestHandleHandoffSwitchesAgent(t *testing.T) {
	fake := &fakeLLM{completions: []*models.Completion{
		{ToolCalls: []models.ToolCall{{ID: "call-1", Name: "transfer_to_azure_vm_agent", Arguments: "{}"}}},
		{Content: "I can help with your VMs."},
	}}
	m := newTestManager(t, fake, testRegistry())

	reply := m.Handle(context.Background(), Request{UserID: "u1", Text: "I need infrastructure help"})
	if reply != "I can help with your VMs." {
		t.Errorf("reply = %q", reply)
	}
	if got := m.state.Active("u1"); got != AzureVMAgent {
		t.Errorf("active agent = %s, want %s", got, AzureVMAgent)
	}

	var sawHandoff bool
	for _, turn := range m.history.Turns("u1") {
		if turn.Role == models.RoleHandoff {
			sawHandoff = true
			if turn.Metadata["to"] != AzureVMAgent {
				t.Errorf("handoff metadata = %v", turn.Metadata)
			}
		}
	}
	if !sawHandoff {
		t.Error("no handoff turn recorded")
	}

	// After the handoff the system message carries the VM agent's
	// instructions.
	second := fake.requests[1].Messages[0]
	if second.Role != "system" || !strings.Contains(second.Content, "virtual machine management") {
		t.Errorf("system message after handoff = %.60q", second.Content)
	}
}

func TestHandleTurnLimit(t *testing.T) {
	registry := NewRegistry(ConciergeAgent)
	registry.Register(&Agent{
		Name: ConciergeAgent,
		Tools: []Tool{{
			Definition: models.ToolDefinition{Name: "spin", Parameters: objectSchema(nil, nil)},
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				return models.Success(nil)
			},
		}},
	})

	// The model never stops calling tools.
	fake := &fakeLLM{}
	for i := 0; i < 10; i++ {
		fake.completions = append(fake.completions, &models.Completion{
			ToolCalls: []models.ToolCall{{ID: "c", Name: "spin", Arguments: "{}"}},
		})
	}
	m := newTestManager(t, fake, registry)

	reply := m.Handle(context.Background(), Request{UserID: "u1", Text: "go"})
	if reply != fallbackReply {
		t.Errorf("reply = %q, want fallback", reply)
	}
	if len(fake.requests) != 5 {
		t.Errorf("model calls = %d, want 5", len(fake.requests))
	}
}

func TestHandleModelErrorIsConversational(t *testing.T) {
	fake := &fakeLLM{err: errors.New("upstream unavailable")}
	m := newTestManager(t, fake, testRegistry())

	reply := m.Handle(context.Background(), Request{UserID: "u1", Text: "hi"})
	if reply != errorReply {
		t.Errorf("reply = %q, want error reply", reply)
	}

	stats := m.Stats()
	if stats.MessagesFailed != 1 {
		t.Errorf("failed = %d, want 1", stats.MessagesFailed)
	}
}

func TestHandleWaitToolNotifies(t *testing.T) {
	var notified []string
	var order []string

	registry := NewRegistry(ConciergeAgent)
	registry.Register(&Agent{
		Name: ConciergeAgent,
		Tools: []Tool{{
			Definition: models.ToolDefinition{Name: "slow_op", Parameters: objectSchema(nil, nil)},
			Wait:       true,
			WaitText:   "Hold on, provisioning...",
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				order = append(order, "run")
				return models.Success(nil)
			},
		}},
	})

	fake := &fakeLLM{completions: []*models.Completion{
		{ToolCalls: []models.ToolCall{{ID: "c1", Name: "slow_op", Arguments: "{}"}}},
		{Content: "All set."},
	}}
	m := newTestManager(t, fake, registry)

	m.Handle(context.Background(), Request{
		UserID: "u1",
		Text:   "do the slow thing",
		Notify: func(ctx context.Context, text string) {
			notified = append(notified, text)
			order = append(order, "notify")
		},
	})

	if len(notified) != 1 || notified[0] != "Hold on, provisioning..." {
		t.Errorf("notified = %v", notified)
	}
	if len(order) != 2 || order[0] != "notify" || order[1] != "run" {
		t.Errorf("order = %v, want notify before run", order)
	}
}

func TestHandleUnknownTool(t *testing.T) {
	fake := &fakeLLM{completions: []*models.Completion{
		{ToolCalls: []models.ToolCall{{ID: "c1", Name: "no_such_tool", Arguments: "{}"}}},
		{Content: "Sorry, I could not do that."},
	}}
	m := newTestManager(t, fake, testRegistry())

	m.Handle(context.Background(), Request{UserID: "u1", Text: "hi"})

	last := fake.requests[1].Messages[len(fake.requests[1].Messages)-1]
	if !strings.Contains(last.Content, `"success":false`) {
		t.Errorf("unknown tool result = %q", last.Content)
	}
}

func TestHandleRebuildsTranscriptFromHistory(t *testing.T) {
	fake := &fakeLLM{completions: []*models.Completion{
		{Content: "first reply"},
		{Content: "second reply"},
	}}
	m := newTestManager(t, fake, testRegistry())

	ctx := context.Background()
	m.Handle(ctx, Request{UserID: "u1", Text: "first message"})
	m.Handle(ctx, Request{UserID: "u1", Text: "second message"})

	msgs := fake.requests[1].Messages
	// system + user + assistant + user
	if len(msgs) != 4 {
		t.Fatalf("transcript length = %d, want 4", len(msgs))
	}
	if msgs[1].Content != "first message" || msgs[2].Content != "first reply" || msgs[3].Content != "second message" {
		t.Errorf("transcript = %+v", msgs)
	}
}
