// Package server provides the public entry point for initializing the
// opsconcierge gateway.
//
// It lives in pkg/ so downstream deployments can compose the gateway with
// their own middleware:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":3978", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/opsconcierge/opsconcierge/internal/agents"
	"github.com/opsconcierge/opsconcierge/internal/api"
	"github.com/opsconcierge/opsconcierge/internal/azure"
	"github.com/opsconcierge/opsconcierge/internal/config"
	"github.com/opsconcierge/opsconcierge/internal/history"
	"github.com/opsconcierge/opsconcierge/internal/llm"
	"github.com/opsconcierge/opsconcierge/internal/servicenow"
	"github.com/opsconcierge/opsconcierge/internal/state"
	"github.com/opsconcierge/opsconcierge/internal/teams"
	"github.com/opsconcierge/opsconcierge/internal/telemetry"
)

// Server holds the initialized gateway.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Manager runs the agent loop. Exposed for stats and composition.
	Manager *agents.Manager

	// Config is the loaded gateway configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush
	// telemetry and stop the janitors.
	ShutdownFunc func(context.Context) error
}

// New loads configuration from the environment and initializes all gateway
// components.
func New(ctx context.Context) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig initializes the gateway with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	hist := history.NewStore(cfg.Agents.MaxHistoryMessages, cfg.Agents.HistoryRetention)
	st := state.NewManager(agents.ConciergeAgent, cfg.Agents.ConversationTimeout)
	log.Info().
		Int("max_history", cfg.Agents.MaxHistoryMessages).
		Dur("retention", cfg.Agents.HistoryRetention).
		Msg("in-memory conversation store initialized")

	var azureClient *azure.Client
	if cfg.Azure.Configured() {
		azureClient = azure.NewClient(cfg.Azure)
		log.Info().Str("resource_group", cfg.Azure.ResourceGroup).Msg("azure client initialized")
	} else {
		log.Warn().Msg("azure not configured, VM tools will report it")
	}

	var snClient *servicenow.Client
	if cfg.ServiceNow.Configured() {
		snClient = servicenow.NewClient(cfg.ServiceNow)
		log.Info().Str("instance", cfg.ServiceNow.InstanceURL).Msg("servicenow client initialized")
	} else {
		log.Warn().Msg("servicenow not configured, catalog tools will report it")
	}

	registry := agents.BuildRegistry(cfg, azureClient, snClient)
	manager := agents.NewManager(registry, llm.NewOpenAIClient(cfg.OpenAI), hist, st, cfg.Agents.MaxTurns)
	log.Info().Int("max_turns", cfg.Agents.MaxTurns).Msg("agent manager initialized")

	connector := teams.NewConnector(cfg.Bot)
	handlers := api.NewHandlers(cfg, manager, connector, hist, st)
	router := api.NewRouter(handlers)

	// Hourly janitors for stale history and idle agent state.
	janitorCtx, stopJanitors := context.WithCancel(context.Background())
	go hist.RunJanitor(janitorCtx, cfg.Agents.JanitorInterval())
	go st.RunJanitor(janitorCtx, cfg.Agents.JanitorInterval())

	shutdown := func(ctx context.Context) error {
		stopJanitors()
		return shutdownTelemetry(ctx)
	}

	return &Server{
		Handler:      router,
		Manager:      manager,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
