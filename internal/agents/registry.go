package agents

import (
	"github.com/opsconcierge/opsconcierge/internal/azure"
	"github.com/opsconcierge/opsconcierge/internal/config"
	"github.com/opsconcierge/opsconcierge/internal/servicenow"
)

// BuildRegistry assembles the four agents and their handoff graph. The
// concierge can reach every specialist; specialists return to the concierge,
// and the catalog creation agent can also forward to the variables agent.
// Nil clients are allowed; their tools report the missing configuration.
func BuildRegistry(cfg *config.Config, az *azure.Client, sn *servicenow.Client) *Registry {
	r := NewRegistry(ConciergeAgent)

	r.Register(&Agent{
		Name:         ConciergeAgent,
		Instructions: conciergeInstructions(),
		Handoffs:     []string{AzureVMAgent, CatalogCreationAgent, VariablesAgent},
	})
	r.Register(&Agent{
		Name:         AzureVMAgent,
		Instructions: azureVMInstructions(cfg.Azure),
		Tools:        azureTools(az),
		Handoffs:     []string{ConciergeAgent},
	})
	r.Register(&Agent{
		Name:         CatalogCreationAgent,
		Instructions: catalogCreationInstructions(),
		Tools:        catalogTools(sn, cfg.ServiceNow),
		Handoffs:     []string{VariablesAgent, ConciergeAgent},
	})
	r.Register(&Agent{
		Name:         VariablesAgent,
		Instructions: variablesInstructions(),
		Tools:        variablesTools(sn),
		Handoffs:     []string{ConciergeAgent},
	})

	return r
}
