package teams

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/opsconcierge/opsconcierge/internal/config"
	"github.com/opsconcierge/opsconcierge/pkg/models"
)

func inboundActivity(serviceURL string) *models.Activity {
	return &models.Activity{
		Type:         models.ActivityTypeMessage,
		ID:           "act-1",
		ChannelID:    "msteams",
		ServiceURL:   serviceURL,
		From:         models.ChannelAccount{ID: "user-1", Name: "Pat"},
		Recipient:    models.ChannelAccount{ID: "bot-1", Name: "OpsBot"},
		Conversation: &models.ConversationAccount{ID: "conv-1"},
		Text:         "hello",
	}
}

func TestReplyToPostsToConversation(t *testing.T) {
	var gotPath, gotAuth string
	var gotReply models.Activity

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"bf-token","expires_in":3600}`)
			return
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReply); err != nil {
			t.Fatalf("decoding reply: %v", err)
		}
		fmt.Fprint(w, `{"id":"reply-1"}`)
	}))
	defer srv.Close()

	c := NewConnector(config.BotConfig{AppID: "app", AppPassword: "secret"})
	c.TokenURL = srv.URL + "/token"

	err := c.ReplyTo(context.Background(), inboundActivity(srv.URL), "hi Pat")
	if err != nil {
		t.Fatalf("ReplyTo: %v", err)
	}

	if gotPath != "/v3/conversations/conv-1/activities/act-1" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAuth != "Bearer bf-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReply.Text != "hi Pat" || gotReply.From.ID != "bot-1" || gotReply.Recipient.ID != "user-1" {
		t.Errorf("reply = %+v", gotReply)
	}
	if gotReply.ReplyToID != "act-1" {
		t.Errorf("replyToId = %q", gotReply.ReplyToID)
	}
}

func TestTokenCachedAcrossReplies(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			tokenCalls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"bf-token","expires_in":3600}`)
			return
		}
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := NewConnector(config.BotConfig{AppID: "app", AppPassword: "secret"})
	c.TokenURL = srv.URL + "/token"

	ctx := context.Background()
	act := inboundActivity(srv.URL)
	for i := 0; i < 3; i++ {
		if err := c.ReplyTo(ctx, act, "msg"); err != nil {
			t.Fatalf("ReplyTo: %v", err)
		}
	}
	if got := tokenCalls.Load(); got != 1 {
		t.Errorf("token calls = %d, want 1", got)
	}
}

func TestReplyToRejectsIncompleteActivity(t *testing.T) {
	c := NewConnector(config.BotConfig{AppID: "app", AppPassword: "secret"})

	act := inboundActivity("")
	err := c.ReplyTo(context.Background(), act, "hi")
	if err == nil || !strings.Contains(err.Error(), "service url") {
		t.Errorf("err = %v", err)
	}
}
