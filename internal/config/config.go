// Package config loads gateway configuration from environment variables.
// Settings are read once at startup and immutable afterwards; a failed
// validation is fatal.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all configuration for the opsconcierge gateway.
type Config struct {
	Port    int    `validate:"gt=0,lt=65536"`
	Host    string `validate:"required"`
	Version string

	OpenAI     OpenAIConfig
	Bot        BotConfig
	Agents     AgentConfig
	Azure      AzureConfig
	ServiceNow ServiceNowConfig
	Telemetry  TelemetryConfig
	LogLevel   string
}

// OpenAIConfig configures the agent platform client.
type OpenAIConfig struct {
	APIKey     string `validate:"required"`
	BaseURL    string
	OrgID      string
	Model      string        `validate:"required"`
	Timeout    time.Duration `validate:"gt=0"`
	MaxRetries int           `validate:"gte=0"`
}

// BotConfig holds the Bot Framework app credentials.
type BotConfig struct {
	AppID       string `validate:"required"`
	AppPassword string `validate:"required"`
}

// AgentConfig bounds conversation history and the agentic loop.
type AgentConfig struct {
	MaxHistoryMessages  int           `validate:"gt=0"`
	HistoryRetention    time.Duration `validate:"gt=0"`
	ConversationTimeout time.Duration `validate:"gt=0"`
	MaxTurns            int           `validate:"gt=0"`
	JanitorEvery        time.Duration `validate:"gt=0"`
}

// JanitorInterval returns how often the history and state janitors sweep.
func (c AgentConfig) JanitorInterval() time.Duration {
	return c.JanitorEvery
}

// AzureConfig configures the ARM tool executors. Service principal fields
// are optional; without them the Azure tools report a configuration error.
type AzureConfig struct {
	SubscriptionID string
	ResourceGroup  string
	Location       string
	ClientID       string
	ClientSecret   string
	TenantID       string
}

// Configured reports whether the Azure executors can authenticate.
func (c AzureConfig) Configured() bool {
	return c.SubscriptionID != "" && c.ClientID != "" && c.ClientSecret != "" && c.TenantID != ""
}

// ServiceNowConfig configures the ServiceNow Table API client.
type ServiceNowConfig struct {
	InstanceURL  string
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
	AuthMethod   string `validate:"oneof=basic oauth"`

	// Default variable-set sys_ids, chosen by catalog type keywords.
	HardwareRequestSetID string
	SoftwareRequestSetID string
	AccessRequestSetID   string
	GeneralRequestSetID  string
}

// Configured reports whether the ServiceNow executors can authenticate.
func (c ServiceNowConfig) Configured() bool {
	if c.InstanceURL == "" {
		return false
	}
	switch c.AuthMethod {
	case "oauth":
		return c.ClientID != "" && c.ClientSecret != ""
	default:
		return c.Username != "" && c.Password != ""
	}
}

// VariableSetID returns the variable-set sys_id matching a catalog type.
func (c ServiceNowConfig) VariableSetID(catalogType string) string {
	t := strings.ToLower(catalogType)
	switch {
	case containsAny(t, "hardware", "laptop", "desktop", "equipment", "device"):
		return c.HardwareRequestSetID
	case containsAny(t, "software", "application", "license"):
		return c.SoftwareRequestSetID
	case containsAny(t, "access", "permission", "role", "group"):
		return c.AccessRequestSetID
	default:
		return c.GeneralRequestSetID
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults
// and validates it. Missing required settings are returned as an error so
// main can fail fast.
func Load() (*Config, error) {
	cfg := &Config{
		Port:    envInt("BOT_PORT", 3978),
		Host:    envStr("BOT_HOST", "0.0.0.0"),
		Version: envStr("GATEWAY_VERSION", "0.2.0"),
		OpenAI: OpenAIConfig{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			BaseURL:    os.Getenv("OPENAI_BASE_URL"),
			OrgID:      os.Getenv("OPENAI_ORG_ID"),
			Model:      envStr("OPENAI_MODEL", "gpt-4o"),
			Timeout:    time.Duration(envInt("OPENAI_TIMEOUT", 60)) * time.Second,
			MaxRetries: envInt("OPENAI_MAX_RETRIES", 3),
		},
		Bot: BotConfig{
			AppID:       os.Getenv("MICROSOFT_APP_ID"),
			AppPassword: os.Getenv("MICROSOFT_APP_PASSWORD"),
		},
		Agents: AgentConfig{
			MaxHistoryMessages:  envInt("MAX_HISTORY_MESSAGES", 120),
			HistoryRetention:    time.Duration(envInt("HISTORY_RETENTION_DAYS", 30)) * 24 * time.Hour,
			ConversationTimeout: time.Duration(envInt("CONVERSATION_TIMEOUT_MINUTES", 30)) * time.Minute,
			MaxTurns:            envInt("AGENT_MAX_TURNS", 10),
			JanitorEvery:        time.Duration(envInt("JANITOR_INTERVAL_MINUTES", 60)) * time.Minute,
		},
		Azure: AzureConfig{
			SubscriptionID: os.Getenv("AZURE_SUBSCRIPTION_ID"),
			ResourceGroup:  os.Getenv("AZURE_RESOURCE_GROUP"),
			Location:       envStr("AZURE_LOCATION", "eastus"),
			ClientID:       os.Getenv("AZURE_CLIENT_ID"),
			ClientSecret:   os.Getenv("AZURE_CLIENT_SECRET"),
			TenantID:       os.Getenv("AZURE_TENANT_ID"),
		},
		ServiceNow: ServiceNowConfig{
			InstanceURL:          strings.TrimRight(os.Getenv("SERVICENOW_INSTANCE_URL"), "/"),
			Username:             os.Getenv("SERVICENOW_USERNAME"),
			Password:             os.Getenv("SERVICENOW_PASSWORD"),
			ClientID:             os.Getenv("SERVICENOW_CLIENT_ID"),
			ClientSecret:         os.Getenv("SERVICENOW_CLIENT_SECRET"),
			AuthMethod:           envStr("SERVICENOW_AUTH_METHOD", "basic"),
			HardwareRequestSetID: os.Getenv("HARDWARE_REQUEST_SET_ID"),
			SoftwareRequestSetID: os.Getenv("SOFTWARE_REQUEST_SET_ID"),
			AccessRequestSetID:   os.Getenv("ACCESS_REQUEST_SET_ID"),
			GeneralRequestSetID:  os.Getenv("GENERAL_REQUEST_SET_ID"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "opsconcierge-gateway"),
		},
		LogLevel: envStr("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return fmt.Errorf("config: %s failed %q validation", errs[0].Namespace(), errs[0].Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
