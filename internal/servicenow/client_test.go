package servicenow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/opsconcierge/opsconcierge/internal/config"
)

func basicConfig() config.ServiceNowConfig {
	return config.ServiceNowConfig{
		InstanceURL: "https://example.service-now.com",
		Username:    "api-user",
		Password:    "api-pass",
		AuthMethod:  "basic",
	}
}

// newTestClient points a client at a local server. Responses are marked as
// JSON so the client decodes them like the real Table API's.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(basicConfig())
	c.BaseURL = srv.URL
	return c
}

// decodeBody reads the JSON request body into a string map.
func decodeBody(t *testing.T, r *http.Request) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("decoding request body: %v", err)
	}
	return body
}

func TestCreateCatalogItemInactive(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/now/table/sc_cat_item" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, _ := r.BasicAuth()
		if user != "api-user" || pass != "api-pass" {
			t.Errorf("basic auth = %s:%s", user, pass)
		}
		body := decodeBody(t, r)
		if body["active"] != "false" {
			t.Errorf("active = %q, want false", body["active"])
		}
		fmt.Fprint(w, `{"result":{"sys_id":"abc123","number":"CAT0001","name":"New Laptop","active":"false"}}`)
	}))

	item, err := c.CreateCatalogItem(context.Background(), CreateItemParams{
		Name:             "New Laptop",
		ShortDescription: "Request a new laptop",
	})
	if err != nil {
		t.Fatalf("CreateCatalogItem: %v", err)
	}
	if item.SysID != "abc123" || item.Number != "CAT0001" || item.Active {
		t.Errorf("item = %+v", item)
	}
}

func TestPublishCatalogItem(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || !strings.HasSuffix(r.URL.Path, "/sc_cat_item/abc123") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body := decodeBody(t, r)
		if body["active"] != "true" {
			t.Errorf("active = %q, want true", body["active"])
		}
		fmt.Fprint(w, `{"result":{"sys_id":"abc123","active":"true"}}`)
	}))

	item, err := c.PublishCatalogItem(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("PublishCatalogItem: %v", err)
	}
	if !item.Active {
		t.Error("item not active after publish")
	}
}

func TestResolveItemSysID(t *testing.T) {
	sysID := strings.Repeat("ab12", 8)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sc_cat_item/"+sysID) {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprintf(w, `{"result":{"sys_id":%q,"name":"New Laptop"}}`, sysID)
	}))

	item, err := c.ResolveItem(context.Background(), sysID)
	if err != nil {
		t.Fatalf("ResolveItem: %v", err)
	}
	if item.SysID != sysID {
		t.Errorf("sys_id = %q", item.SysID)
	}
}

func TestResolveItemByName(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("sysparm_query")
		if !strings.Contains(query, "nameLIKENew Laptop") {
			t.Errorf("sysparm_query = %q", query)
		}
		fmt.Fprint(w, `{"result":[{"sys_id":"abc123","name":"New Laptop","number":"CAT0001"}]}`)
	}))

	item, err := c.ResolveItem(context.Background(), "New Laptop")
	if err != nil {
		t.Fatalf("ResolveItem: %v", err)
	}
	if item.SysID != "abc123" {
		t.Errorf("sys_id = %q", item.SysID)
	}
}

func TestResolveItemAmbiguous(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":[{"sys_id":"a"},{"sys_id":"b"}]}`)
	}))

	_, err := c.ResolveItem(context.Background(), "laptop")
	if err == nil || !strings.Contains(err.Error(), "multiple") {
		t.Errorf("err = %v, want ambiguity error", err)
	}
}

func TestIsSysID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{strings.Repeat("a1", 16), true},
		{strings.Repeat("a", 31), false},
		{strings.Repeat("A", 32), false},
		{"New Laptop Request", false},
	}
	for _, tt := range tests {
		if got := isSysID(tt.in); got != tt.want {
			t.Errorf("isSysID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResolveCategoryFuzzy(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":[
			{"sys_id":"hw1","title":"Hardware"},
			{"sys_id":"sw1","title":"Software and Licenses"}
		]}`)
	}))

	tests := []struct {
		name string
		want string
	}{
		{"hardware", "hw1"},
		{"Hardware", "hw1"},
		{"software", "sw1"},
		// Unmatched names fall back to the first active category.
		{"furniture", "hw1"},
	}
	for _, tt := range tests {
		got, err := c.ResolveCategory(context.Background(), tt.name)
		if err != nil {
			t.Fatalf("ResolveCategory(%q): %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("ResolveCategory(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestAddVariablesOrderAndChoices(t *testing.T) {
	var varOrders []string
	var choiceOrders []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		switch {
		case strings.HasSuffix(r.URL.Path, "/item_option_new"):
			varOrders = append(varOrders, body["order"])
			fmt.Fprintf(w, `{"result":{"sys_id":"var-%s","name":%q,"question_text":%q}}`,
				body["order"], body["name"], body["question_text"])
		case strings.HasSuffix(r.URL.Path, "/question_choice"):
			choiceOrders = append(choiceOrders, body["order"])
			fmt.Fprint(w, `{"result":{"sys_id":"choice-1"}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	created, err := c.AddVariables(context.Background(), "item-1", []VariableParams{
		{Question: "What is your name?", Type: TypeString, Mandatory: true},
		{Question: "Preferred model?", Type: TypeChoice, Choices: []string{"Air", "Pro"}},
		{Question: "Needed by?", Type: TypeDate},
	})
	if err != nil {
		t.Fatalf("AddVariables: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("created %d variables, want 3", len(created))
	}

	wantVarOrders := []string{"100", "110", "120"}
	for i, want := range wantVarOrders {
		if varOrders[i] != want {
			t.Errorf("variable %d order = %s, want %s", i, varOrders[i], want)
		}
	}
	wantChoiceOrders := []string{"0", "100"}
	if len(choiceOrders) != 2 {
		t.Fatalf("choice inserts = %v", choiceOrders)
	}
	for i, want := range wantChoiceOrders {
		if choiceOrders[i] != want {
			t.Errorf("choice %d order = %s, want %s", i, choiceOrders[i], want)
		}
	}
}

func TestAddVariableRejectsChoicelessChoice(t *testing.T) {
	c := NewClient(basicConfig())
	_, err := c.AddVariable(context.Background(), "item-1", VariableParams{
		Question: "Pick one",
		Type:     TypeMultipleChoice,
	}, 100)
	if err == nil || !strings.Contains(err.Error(), "choice") {
		t.Errorf("err = %v, want missing choices error", err)
	}
}

func TestVariableNameDerivedFromQuestion(t *testing.T) {
	got := variableName(VariableParams{Question: "What is your cost center?"})
	if got != "what_is_your_cost_center" {
		t.Errorf("variableName = %q", got)
	}
}

func TestOAuthTokenUsed(t *testing.T) {
	var sawToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth_token.do" {
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parsing token form: %v", err)
			}
			if got := r.PostForm.Get("grant_type"); got != "password" {
				t.Errorf("grant_type = %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"sn-token","expires_in":1799}`)
			return
		}
		sawToken = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"result":[]}`)
	}))
	defer srv.Close()

	cfg := basicConfig()
	cfg.AuthMethod = "oauth"
	cfg.ClientID = "cid"
	cfg.ClientSecret = "csecret"
	c := NewClient(cfg)
	c.BaseURL = srv.URL

	if _, err := c.Categories(context.Background()); err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if sawToken != "Bearer sn-token" {
		t.Errorf("Authorization = %q", sawToken)
	}
}

func TestAPIErrorMessageSurfaced(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"Insufficient rights to create records","detail":""}}`)
	}))

	_, err := c.CreateCatalogItem(context.Background(), CreateItemParams{Name: "x", ShortDescription: "y"})
	if err == nil || !strings.Contains(err.Error(), "Insufficient rights") {
		t.Errorf("err = %v, want service message", err)
	}
}
