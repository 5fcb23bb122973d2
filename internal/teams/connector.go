// Package teams sends replies back through the Bot Framework connector
// service. Inbound activities are decoded by the HTTP layer; this package
// owns the outbound side: connector auth and posting activities.
package teams

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/opsconcierge/opsconcierge/internal/config"
	"github.com/opsconcierge/opsconcierge/pkg/models"
)

const defaultTokenURL = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"

// Connector posts activities to the Bot Framework connector service using
// the bot's app credentials.
type Connector struct {
	// TokenURL defaults to the Bot Framework token endpoint. Tests point it
	// at a local server.
	TokenURL string

	cfg  config.BotConfig
	http *resty.Client

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewConnector builds a connector client from the bot credentials.
func NewConnector(cfg config.BotConfig) *Connector {
	return &Connector{
		TokenURL: defaultTokenURL,
		cfg:      cfg,
		http: resty.New().
			SetTimeout(30 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond),
	}
}

// accessToken returns a cached connector token, refreshing it when it is
// within a minute of expiry.
func (c *Connector) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.token, nil
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     c.cfg.AppID,
			"client_secret": c.cfg.AppPassword,
			"scope":         "https://api.botframework.com/.default",
		}).
		SetResult(&body).
		Post(c.TokenURL)
	if err != nil {
		return "", fmt.Errorf("requesting bot framework token: %w", err)
	}
	if resp.IsError() || body.AccessToken == "" {
		return "", fmt.Errorf("bot framework token endpoint returned %s", resp.Status())
	}

	c.token = body.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return c.token, nil
}

// ReplyTo answers an inbound activity in its conversation.
func (c *Connector) ReplyTo(ctx context.Context, inbound *models.Activity, text string) error {
	return c.send(ctx, inbound, inbound.Reply(text))
}

// send posts the activity to the connector endpoint derived from the
// inbound activity's service URL.
func (c *Connector) send(ctx context.Context, inbound, outbound *models.Activity) error {
	if inbound.ServiceURL == "" || inbound.Conversation == nil {
		return fmt.Errorf("activity has no service url or conversation")
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	endpoint := strings.TrimSuffix(inbound.ServiceURL, "/") +
		"/v3/conversations/" + url.PathEscape(inbound.Conversation.ID) + "/activities"
	if inbound.ID != "" {
		endpoint += "/" + url.PathEscape(inbound.ID)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(outbound).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("posting activity: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("connector returned %s", resp.Status())
	}
	return nil
}
