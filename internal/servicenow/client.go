// Package servicenow is a ServiceNow Table API client covering the service
// catalog tables the catalog assistants work with: sc_cat_item, sc_category,
// sc_catalog, item_option_new, and question_choice.
package servicenow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/opsconcierge/opsconcierge/internal/config"
)

// Client talks to one ServiceNow instance. Auth is HTTP basic or an OAuth
// password grant against /oauth_token.do, per config.
type Client struct {
	// BaseURL defaults to the configured instance URL. Tests point it at a
	// local server.
	BaseURL string

	cfg  config.ServiceNowConfig
	http *resty.Client

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient builds a Table API client from the instance config.
func NewClient(cfg config.ServiceNowConfig) *Client {
	return &Client{
		BaseURL: cfg.InstanceURL,
		cfg:     cfg,
		http: resty.New().
			SetTimeout(60 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond),
	}
}

// record is one Table API row. Reference links are excluded on every query
// so all values come back as strings.
type record map[string]any

func (r record) str(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// request returns an authenticated request with the standard query params.
func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParam("sysparm_exclude_reference_link", "true")

	if c.cfg.AuthMethod == "oauth" {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}
		req.SetAuthToken(token)
		return req, nil
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	return req, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.token, nil
	}

	form := map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
	}
	if c.cfg.Username != "" {
		form["grant_type"] = "password"
		form["username"] = c.cfg.Username
		form["password"] = c.cfg.Password
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&body).
		Post(c.BaseURL + "/oauth_token.do")
	if err != nil {
		return "", fmt.Errorf("requesting servicenow token: %w", err)
	}
	if resp.IsError() || body.AccessToken == "" {
		return "", fmt.Errorf("servicenow token endpoint returned %s", resp.Status())
	}

	c.token = body.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return c.token, nil
}

func (c *Client) tableURL(table string) string {
	return c.BaseURL + "/api/now/table/" + table
}

// apiError maps a non-2xx Table API response to an error with the service
// detail when present.
func apiError(op string, resp *resty.Response) error {
	var body struct {
		Error struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error.Message != "" {
		return fmt.Errorf("%s: %s", op, body.Error.Message)
	}
	return fmt.Errorf("%s: servicenow returned %s", op, resp.Status())
}

// create inserts a row and returns the created record.
func (c *Client) create(ctx context.Context, table string, fields map[string]string) (record, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	var body struct {
		Result record `json:"result"`
	}
	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(fields).
		SetResult(&body).
		Post(c.tableURL(table))
	if err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", table, err)
	}
	if resp.IsError() {
		return nil, apiError("inserting into "+table, resp)
	}
	return body.Result, nil
}

// update patches a row by sys_id and returns the updated record.
func (c *Client) update(ctx context.Context, table, sysID string, fields map[string]string) (record, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	var body struct {
		Result record `json:"result"`
	}
	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(fields).
		SetResult(&body).
		Patch(c.tableURL(table) + "/" + sysID)
	if err != nil {
		return nil, fmt.Errorf("updating %s/%s: %w", table, sysID, err)
	}
	if resp.IsError() {
		return nil, apiError("updating "+table, resp)
	}
	return body.Result, nil
}

// get reads a single row by sys_id.
func (c *Client) get(ctx context.Context, table, sysID string) (record, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	var body struct {
		Result record `json:"result"`
	}
	resp, err := req.SetResult(&body).Get(c.tableURL(table) + "/" + sysID)
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", table, sysID, err)
	}
	if resp.IsError() {
		return nil, apiError("reading "+table, resp)
	}
	return body.Result, nil
}

// query lists rows matching an encoded sysparm_query, bounded by limit.
func (c *Client) query(ctx context.Context, table, sysparmQuery string, limit int) ([]record, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	if sysparmQuery != "" {
		req.SetQueryParam("sysparm_query", sysparmQuery)
	}
	if limit > 0 {
		req.SetQueryParam("sysparm_limit", fmt.Sprintf("%d", limit))
	}
	var body struct {
		Result []record `json:"result"`
	}
	resp, err := req.SetResult(&body).Get(c.tableURL(table))
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	if resp.IsError() {
		return nil, apiError("querying "+table, resp)
	}
	return body.Result, nil
}
