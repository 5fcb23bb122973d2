package llm

import (
	"errors"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/opsconcierge/opsconcierge/pkg/models"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"server error", &openai.APIError{HTTPStatusCode: http.StatusBadGateway}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, false},
		{"auth failure", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, false},
		{"network error", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestToAPIMessagesCarriesToolPairing(t *testing.T) {
	msgs := toAPIMessages([]models.ChatMessage{
		{Role: "assistant", ToolCalls: []models.ToolCall{{ID: "c1", Name: "lookup", Arguments: `{"q":1}`}}},
		{Role: "tool", Content: `{"success":true}`, ToolCallID: "c1"},
	})

	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if len(msgs[0].ToolCalls) != 1 || msgs[0].ToolCalls[0].Function.Name != "lookup" {
		t.Errorf("tool calls = %+v", msgs[0].ToolCalls)
	}
	if msgs[1].ToolCallID != "c1" {
		t.Errorf("tool call id = %q", msgs[1].ToolCallID)
	}
}

func TestToAPIToolsEmpty(t *testing.T) {
	if got := toAPITools(nil); got != nil {
		t.Errorf("toAPITools(nil) = %v, want nil", got)
	}
}
