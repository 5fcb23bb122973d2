// Package agents implements the gateway's agent layer: the registry of
// named agents, the keyword routing heuristics, and the agentic loop that
// relays tool calls between the model and the external executors.
package agents

import (
	"context"
	"encoding/json"

	"github.com/opsconcierge/opsconcierge/pkg/models"
)

// Agent names. The concierge is the default; the rest are specialists users
// reach by keyword routing or model-driven handoff.
const (
	ConciergeAgent       = "ConciergeAgent"
	AzureVMAgent         = "AzureVMAgent"
	CatalogCreationAgent = "ServiceNowCatalogCreationAgent"
	VariablesAgent       = "ServiceNowVariablesAgent"
)

// RunFunc executes one tool call. Failures come back as error payloads, not
// Go errors, so the model can explain them to the user.
type RunFunc func(ctx context.Context, args json.RawMessage) models.ToolPayload

// Tool couples a model-facing definition with its executor.
type Tool struct {
	Definition models.ToolDefinition

	// Wait marks slow tools; the bot sends WaitText as an interim Teams
	// message before running one.
	Wait     bool
	WaitText string

	Run RunFunc
}

// Agent is one named assistant: instructions, tools, and the agents it can
// hand a conversation off to.
type Agent struct {
	Name         string
	Instructions string
	Tools        []Tool
	Handoffs     []string
}

// Tool returns the named tool, or nil.
func (a *Agent) Tool(name string) *Tool {
	for i := range a.Tools {
		if a.Tools[i].Definition.Name == name {
			return &a.Tools[i]
		}
	}
	return nil
}

// handoffToolNames maps agent names to the transfer tool exposed to the model.
var handoffToolNames = map[string]string{
	ConciergeAgent:       "transfer_to_concierge_agent",
	AzureVMAgent:         "transfer_to_azure_vm_agent",
	CatalogCreationAgent: "transfer_to_servicenow_catalog_creation_agent",
	VariablesAgent:       "transfer_to_servicenow_variables_agent",
}

// handoffDescriptions explain each transfer target to the model.
var handoffDescriptions = map[string]string{
	ConciergeAgent:       "Transfer the conversation back to the general concierge assistant.",
	AzureVMAgent:         "Transfer the conversation to the Azure VM management assistant.",
	CatalogCreationAgent: "Transfer the conversation to the ServiceNow catalog creation assistant.",
	VariablesAgent:       "Transfer the conversation to the ServiceNow catalog variables assistant.",
}

// Registry holds the configured agents and their handoff graph.
type Registry struct {
	agents      map[string]*Agent
	defaultName string
}

// NewRegistry creates a registry with the given default agent name.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		agents:      make(map[string]*Agent),
		defaultName: defaultName,
	}
}

// Register adds an agent to the registry.
func (r *Registry) Register(a *Agent) {
	r.agents[a.Name] = a
}

// Get returns the named agent, falling back to the default for unknown names.
func (r *Registry) Get(name string) *Agent {
	if a, ok := r.agents[name]; ok {
		return a
	}
	return r.agents[r.defaultName]
}

// Default returns the default agent.
func (r *Registry) Default() *Agent {
	return r.agents[r.defaultName]
}

// Has reports whether the named agent exists.
func (r *Registry) Has(name string) bool {
	_, ok := r.agents[name]
	return ok
}

// ToolDefinitions returns the agent's tool definitions plus one transfer
// tool per handoff target.
func (r *Registry) ToolDefinitions(a *Agent) []models.ToolDefinition {
	defs := make([]models.ToolDefinition, 0, len(a.Tools)+len(a.Handoffs))
	for _, t := range a.Tools {
		defs = append(defs, t.Definition)
	}
	for _, target := range a.Handoffs {
		if !r.Has(target) {
			continue
		}
		defs = append(defs, models.ToolDefinition{
			Name:        handoffToolNames[target],
			Description: handoffDescriptions[target],
			Parameters:  objectSchema(map[string]any{}, nil),
		})
	}
	return defs
}

// HandoffTarget resolves a tool-call name to the handoff target agent, if
// the name is one of the agent's transfer tools.
func (r *Registry) HandoffTarget(a *Agent, toolName string) (string, bool) {
	for _, target := range a.Handoffs {
		if handoffToolNames[target] == toolName && r.Has(target) {
			return target, true
		}
	}
	return "", false
}

// objectSchema builds a JSON Schema object with the given properties and
// required field names.
func objectSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// stringProp is a shorthand for a string JSON Schema property.
func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// boolProp is a shorthand for a boolean JSON Schema property.
func boolProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}
