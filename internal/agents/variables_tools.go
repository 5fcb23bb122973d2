package agents

import (
	"context"
	"encoding/json"

	"github.com/opsconcierge/opsconcierge/internal/servicenow"
	"github.com/opsconcierge/opsconcierge/pkg/models"
)

// variableArg is the model-facing shape of one variable to add.
type variableArg struct {
	Name      string   `json:"name"`
	Question  string   `json:"question"`
	Type      string   `json:"type"`
	Mandatory bool     `json:"mandatory"`
	Default   string   `json:"default"`
	Choices   []string `json:"choices"`
}

func (a variableArg) params() servicenow.VariableParams {
	return servicenow.VariableParams{
		Name:      a.Name,
		Question:  a.Question,
		Type:      a.Type,
		Mandatory: a.Mandatory,
		Default:   a.Default,
		Choices:   a.Choices,
	}
}

var variableSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name":      stringProp("Internal variable name; derived from the question when omitted."),
		"question":  stringProp("Question text shown on the form."),
		"type":      stringProp("Variable type: string, boolean, multiple_choice, choice, or date."),
		"mandatory": boolProp("Whether the field is required."),
		"default":   stringProp("Default value, if any."),
		"choices": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Options for multiple_choice and choice types.",
		},
	},
	"required": []string{"question", "type"},
}

// searchCatalogItemsTool is shared by both ServiceNow assistants.
func searchCatalogItemsTool(client *servicenow.Client) Tool {
	return Tool{
		Definition: models.ToolDefinition{
			Name:        "search_catalog_items",
			Description: "Search catalog items by name or item number.",
			Parameters: objectSchema(map[string]any{
				"query": stringProp("Name fragment or item number to search for."),
			}, []string{"query"}),
		},
		Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
			if client == nil {
				return models.Failure(servicenowNotConfigured)
			}
			var p struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return models.Failure("invalid search_catalog_items arguments: " + err.Error())
			}
			if p.Query == "" {
				return models.Failure("search_catalog_items requires a query")
			}
			items, err := client.SearchCatalogItems(ctx, p.Query, 10)
			if err != nil {
				return models.Failure(err.Error())
			}
			return models.Success(map[string]any{"items": items, "count": len(items)})
		},
	}
}

// variablesTools builds the tool set for the catalog variables assistant.
func variablesTools(client *servicenow.Client) []Tool {
	return []Tool{
		searchCatalogItemsTool(client),
		{
			Definition: models.ToolDefinition{
				Name:        "get_servicenow_variable_types",
				Description: "List the supported variable types and which need choices.",
				Parameters:  objectSchema(map[string]any{}, nil),
			},
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				return models.Success(map[string]any{
					"types": []map[string]any{
						{"type": servicenow.TypeString, "description": "Single-line text field"},
						{"type": servicenow.TypeBoolean, "description": "Checkbox"},
						{"type": servicenow.TypeMultipleChoice, "description": "Radio buttons, needs choices"},
						{"type": servicenow.TypeChoice, "description": "Select box, needs choices"},
						{"type": servicenow.TypeDate, "description": "Date picker"},
					},
				})
			},
		},
		{
			Definition: models.ToolDefinition{
				Name:        "get_catalog_item",
				Description: "Get a catalog item and the variables already on it. Accepts a sys_id, item number, or name.",
				Parameters: objectSchema(map[string]any{
					"item": stringProp("Catalog item sys_id, number, or name."),
				}, []string{"item"}),
			},
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				if client == nil {
					return models.Failure(servicenowNotConfigured)
				}
				var p struct {
					Item string `json:"item"`
				}
				if err := json.Unmarshal(args, &p); err != nil {
					return models.Failure("invalid get_catalog_item arguments: " + err.Error())
				}
				item, err := client.ResolveItem(ctx, p.Item)
				if err != nil {
					return models.Failure(err.Error())
				}
				vars, err := client.ItemVariables(ctx, item.SysID)
				if err != nil {
					return models.Failure(err.Error())
				}
				return models.Success(map[string]any{"item": item, "variables": vars})
			},
		},
		{
			Definition: models.ToolDefinition{
				Name:        "add_multiple_variables",
				Description: "Add several variables to a catalog item in one call. Call only after the user confirmed the variable list.",
				Parameters: objectSchema(map[string]any{
					"item": stringProp("Catalog item sys_id, number, or name."),
					"variables": map[string]any{
						"type":        "array",
						"items":       variableSchema,
						"description": "Variables to add, in form order.",
					},
				}, []string{"item", "variables"}),
			},
			Wait:     true,
			WaitText: "Adding the variables to the catalog item...",
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				if client == nil {
					return models.Failure(servicenowNotConfigured)
				}
				var p struct {
					Item      string        `json:"item"`
					Variables []variableArg `json:"variables"`
				}
				if err := json.Unmarshal(args, &p); err != nil {
					return models.Failure("invalid add_multiple_variables arguments: " + err.Error())
				}
				if len(p.Variables) == 0 {
					return models.Failure("add_multiple_variables requires at least one variable")
				}
				item, err := client.ResolveItem(ctx, p.Item)
				if err != nil {
					return models.Failure(err.Error())
				}
				params := make([]servicenow.VariableParams, 0, len(p.Variables))
				for _, v := range p.Variables {
					params = append(params, v.params())
				}
				created, err := client.AddVariables(ctx, item.SysID, params)
				if err != nil {
					// Partial progress is part of the payload so the agent
					// can tell the user exactly what went in.
					return models.ToolPayload{
						"success": false,
						"error":   err.Error(),
						"created": created,
						"item":    item,
						"partial": true,
					}
				}
				return models.Success(map[string]any{"item": item, "created": created, "count": len(created)})
			},
		},
		{
			Definition: models.ToolDefinition{
				Name:        "add_variable",
				Description: "Add a single variable to a catalog item.",
				Parameters: objectSchema(map[string]any{
					"item":     stringProp("Catalog item sys_id, number, or name."),
					"variable": variableSchema,
				}, []string{"item", "variable"}),
			},
			Wait:     true,
			WaitText: "Adding the variable to the catalog item...",
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				if client == nil {
					return models.Failure(servicenowNotConfigured)
				}
				var p struct {
					Item     string      `json:"item"`
					Variable variableArg `json:"variable"`
				}
				if err := json.Unmarshal(args, &p); err != nil {
					return models.Failure("invalid add_variable arguments: " + err.Error())
				}
				item, err := client.ResolveItem(ctx, p.Item)
				if err != nil {
					return models.Failure(err.Error())
				}
				existing, err := client.ItemVariables(ctx, item.SysID)
				if err != nil {
					return models.Failure(err.Error())
				}
				created, err := client.AddVariable(ctx, item.SysID, p.Variable.params(), 100+len(existing)*10)
				if err != nil {
					return models.Failure(err.Error())
				}
				return models.Success(map[string]any{"item": item, "variable": created})
			},
		},
		publishCatalogItemTool(client),
	}
}

// publishCatalogItemTool is shared by both ServiceNow assistants so an item
// created unpublished can be published without a handoff.
func publishCatalogItemTool(client *servicenow.Client) Tool {
	return Tool{
		Definition: models.ToolDefinition{
			Name:        "publish_catalog_item",
			Description: "Publish a catalog item so it becomes visible to users.",
			Parameters: objectSchema(map[string]any{
				"item": stringProp("Catalog item sys_id, number, or name."),
			}, []string{"item"}),
		},
		Wait:     true,
		WaitText: "Publishing the catalog item...",
		Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
			if client == nil {
				return models.Failure(servicenowNotConfigured)
			}
			var p struct {
				Item string `json:"item"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return models.Failure("invalid publish_catalog_item arguments: " + err.Error())
			}
			item, err := client.ResolveItem(ctx, p.Item)
			if err != nil {
				return models.Failure(err.Error())
			}
			published, err := client.PublishCatalogItem(ctx, item.SysID)
			if err != nil {
				return models.Failure(err.Error())
			}
			return models.Success(map[string]any{"item": published, "published": true})
		},
	}
}
