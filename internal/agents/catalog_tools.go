package agents

import (
	"context"
	"encoding/json"

	"github.com/opsconcierge/opsconcierge/internal/config"
	"github.com/opsconcierge/opsconcierge/internal/servicenow"
	"github.com/opsconcierge/opsconcierge/pkg/models"
)

const servicenowNotConfigured = "ServiceNow is not configured on this gateway. Set the ServiceNow instance environment variables to enable catalog management."

// catalogTools builds the tool set for the catalog creation assistant.
func catalogTools(client *servicenow.Client, cfg config.ServiceNowConfig) []Tool {
	return []Tool{
		searchCatalogItemsTool(client),
		publishCatalogItemTool(client),
		{
			Definition: models.ToolDefinition{
				Name:        "list_catalog_items",
				Description: "List catalog items, newest first.",
				Parameters: objectSchema(map[string]any{
					"limit": map[string]any{"type": "integer", "description": "Maximum items to return, default 20."},
				}, nil),
			},
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				if client == nil {
					return models.Failure(servicenowNotConfigured)
				}
				var p struct {
					Limit int `json:"limit"`
				}
				if err := json.Unmarshal(args, &p); err != nil {
					return models.Failure("invalid list_catalog_items arguments: " + err.Error())
				}
				items, err := client.ListCatalogItems(ctx, p.Limit)
				if err != nil {
					return models.Failure(err.Error())
				}
				return models.Success(map[string]any{"items": items, "count": len(items)})
			},
		},
		{
			Definition: models.ToolDefinition{
				Name:        "get_catalog_details",
				Description: "Get a catalog item and the variables on it. Accepts a sys_id, item number, or name.",
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
					return models.Failure("invalid get_catalog_details arguments: " + err.Error())
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
				Name:        "get_servicenow_catalog_types",
				Description: "List the request types and whether a default variable set is configured for each.",
				Parameters:  objectSchema(map[string]any{}, nil),
			},
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				return models.Success(map[string]any{
					"types": []map[string]any{
						{"type": "hardware", "has_variable_set": cfg.HardwareRequestSetID != ""},
						{"type": "software", "has_variable_set": cfg.SoftwareRequestSetID != ""},
						{"type": "access", "has_variable_set": cfg.AccessRequestSetID != ""},
						{"type": "general", "has_variable_set": cfg.GeneralRequestSetID != ""},
					},
				})
			},
		},
		{
			Definition: models.ToolDefinition{
				Name:        "get_servicenow_categories",
				Description: "List the available catalog categories.",
				Parameters:  objectSchema(map[string]any{}, nil),
			},
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				if client == nil {
					return models.Failure(servicenowNotConfigured)
				}
				cats, err := client.Categories(ctx)
				if err != nil {
					return models.Failure(err.Error())
				}
				return models.Success(map[string]any{"categories": cats})
			},
		},
		{
			Definition: models.ToolDefinition{
				Name:        "get_servicenow_catalogs",
				Description: "List the service catalogs on the instance.",
				Parameters:  objectSchema(map[string]any{}, nil),
			},
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				if client == nil {
					return models.Failure(servicenowNotConfigured)
				}
				catalogs, err := client.Catalogs(ctx)
				if err != nil {
					return models.Failure(err.Error())
				}
				return models.Success(map[string]any{"catalogs": catalogs})
			},
		},
		{
			Definition: models.ToolDefinition{
				Name:        "create_and_publish_catalog_item",
				Description: "Create a catalog item, attach the variable set for its type, and publish it. Call only after the user confirmed the summary.",
				Parameters: objectSchema(map[string]any{
					"name":              stringProp("Catalog item name."),
					"short_description": stringProp("One-line description shown in the catalog."),
					"description":       stringProp("Full description of the item."),
					"category":          stringProp("Category name; matched against existing categories."),
					"catalog_type":      stringProp("Kind of request: hardware, software, access, or general."),
				}, []string{"name", "short_description"}),
			},
			Wait:     true,
			WaitText: "Creating and publishing the catalog item...",
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				if client == nil {
					return models.Failure(servicenowNotConfigured)
				}
				var p struct {
					Name             string `json:"name"`
					ShortDescription string `json:"short_description"`
					Description      string `json:"description"`
					Category         string `json:"category"`
					CatalogType      string `json:"catalog_type"`
				}
				if err := json.Unmarshal(args, &p); err != nil {
					return models.Failure("invalid create_and_publish_catalog_item arguments: " + err.Error())
				}
				if p.Name == "" || p.ShortDescription == "" {
					return models.Failure("create_and_publish_catalog_item requires name and short_description")
				}

				categoryID, err := client.ResolveCategory(ctx, p.Category)
				if err != nil {
					return models.Failure(err.Error())
				}

				item, err := client.CreateCatalogItem(ctx, servicenow.CreateItemParams{
					Name:             p.Name,
					ShortDescription: p.ShortDescription,
					Description:      p.Description,
					Category:         categoryID,
				})
				if err != nil {
					return models.Failure(err.Error())
				}

				// A missing variable set is reported, not fatal; the item
				// still exists and can be fixed by hand.
				warnings := []string{}
				if setID := cfg.VariableSetID(p.CatalogType); setID != "" {
					if err := client.AttachVariableSet(ctx, item.SysID, setID); err != nil {
						warnings = append(warnings, "variable set not attached: "+err.Error())
					}
				}

				published, err := client.PublishCatalogItem(ctx, item.SysID)
				if err != nil {
					return models.Success(map[string]any{
						"item":      item,
						"published": false,
						"warnings":  append(warnings, "publish failed: "+err.Error()),
					})
				}
				return models.Success(map[string]any{
					"item":      published,
					"published": true,
					"warnings":  warnings,
				})
			},
		},
		{
			Definition: models.ToolDefinition{
				Name:        "create_catalog_item",
				Description: "Create a catalog item without publishing it. The item stays hidden until published.",
				Parameters: objectSchema(map[string]any{
					"name":              stringProp("Catalog item name."),
					"short_description": stringProp("One-line description shown in the catalog."),
					"description":       stringProp("Full description of the item."),
					"category":          stringProp("Category name; matched against existing categories."),
				}, []string{"name", "short_description"}),
			},
			Wait:     true,
			WaitText: "Creating the catalog item...",
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				if client == nil {
					return models.Failure(servicenowNotConfigured)
				}
				var p struct {
					Name             string `json:"name"`
					ShortDescription string `json:"short_description"`
					Description      string `json:"description"`
					Category         string `json:"category"`
				}
				if err := json.Unmarshal(args, &p); err != nil {
					return models.Failure("invalid create_catalog_item arguments: " + err.Error())
				}
				if p.Name == "" || p.ShortDescription == "" {
					return models.Failure("create_catalog_item requires name and short_description")
				}
				categoryID, err := client.ResolveCategory(ctx, p.Category)
				if err != nil {
					return models.Failure(err.Error())
				}
				item, err := client.CreateCatalogItem(ctx, servicenow.CreateItemParams{
					Name:             p.Name,
					ShortDescription: p.ShortDescription,
					Description:      p.Description,
					Category:         categoryID,
				})
				if err != nil {
					return models.Failure(err.Error())
				}
				return models.Success(map[string]any{"item": item, "published": false})
			},
		},
	}
}
