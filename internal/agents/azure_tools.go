package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opsconcierge/opsconcierge/internal/azure"
	"github.com/opsconcierge/opsconcierge/pkg/models"
)

const azureNotConfigured = "Azure is not configured on this gateway. Set the Azure service principal environment variables to enable VM management."

// azureTools builds the VM tool set. A nil client yields tools that report
// the missing configuration instead of failing requests.
func azureTools(client *azure.Client) []Tool {
	return []Tool{
		{
			Definition: models.ToolDefinition{
				Name:        "create_vm",
				Description: "Create an Azure virtual machine with a private network interface. All parameters are required.",
				Parameters: objectSchema(map[string]any{
					"name":           stringProp("Name of the virtual machine."),
					"size":           stringProp("VM size, for example Standard_B2s."),
					"admin_username": stringProp("Administrator username for the VM."),
					"admin_password": stringProp("Administrator password for the VM."),
				}, []string{"name", "size", "admin_username", "admin_password"}),
			},
			Wait:     true,
			WaitText: "Creating the virtual machine, this usually takes a few minutes...",
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				if client == nil {
					return models.Failure(azureNotConfigured)
				}
				var p struct {
					Name          string `json:"name"`
					Size          string `json:"size"`
					AdminUsername string `json:"admin_username"`
					AdminPassword string `json:"admin_password"`
				}
				if err := json.Unmarshal(args, &p); err != nil {
					return models.Failure("invalid create_vm arguments: " + err.Error())
				}
				if p.Name == "" || p.Size == "" || p.AdminUsername == "" || p.AdminPassword == "" {
					return models.Failure("create_vm requires name, size, admin_username, and admin_password")
				}
				vm, err := client.CreateVM(ctx, azure.CreateVMParams{
					Name:          p.Name,
					Size:          p.Size,
					AdminUsername: p.AdminUsername,
					AdminPassword: p.AdminPassword,
				})
				if err != nil {
					return models.Failure(err.Error())
				}
				return models.Success(map[string]any{"vm": vm, "message": fmt.Sprintf("VM %s created", vm.Name)})
			},
		},
		{
			Definition: models.ToolDefinition{
				Name:        "list_vms",
				Description: "List the virtual machines in the managed resource group.",
				Parameters:  objectSchema(map[string]any{}, nil),
			},
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				if client == nil {
					return models.Failure(azureNotConfigured)
				}
				vms, err := client.ListVMs(ctx)
				if err != nil {
					return models.Failure(err.Error())
				}
				return models.Success(map[string]any{"vms": vms, "count": len(vms)})
			},
		},
		{
			Definition: models.ToolDefinition{
				Name:        "get_vm_status",
				Description: "Get the power state of a virtual machine.",
				Parameters: objectSchema(map[string]any{
					"name": stringProp("Name of the virtual machine."),
				}, []string{"name"}),
			},
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				if client == nil {
					return models.Failure(azureNotConfigured)
				}
				name, payload := requireName(args, "get_vm_status")
				if payload != nil {
					return payload
				}
				vm, err := client.VMStatus(ctx, name)
				if err != nil {
					return models.Failure(err.Error())
				}
				return models.Success(map[string]any{"name": vm.Name, "power_state": vm.PowerState})
			},
		},
		{
			Definition: models.ToolDefinition{
				Name:        "start_vm",
				Description: "Start a stopped or deallocated virtual machine.",
				Parameters: objectSchema(map[string]any{
					"name": stringProp("Name of the virtual machine."),
				}, []string{"name"}),
			},
			Wait:     true,
			WaitText: "Starting the virtual machine...",
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				if client == nil {
					return models.Failure(azureNotConfigured)
				}
				name, payload := requireName(args, "start_vm")
				if payload != nil {
					return payload
				}
				if err := client.StartVM(ctx, name); err != nil {
					return models.Failure(err.Error())
				}
				return models.Success(map[string]any{"message": fmt.Sprintf("VM %s is starting", name)})
			},
		},
		{
			Definition: models.ToolDefinition{
				Name:        "stop_vm",
				Description: "Stop and deallocate a virtual machine so it stops incurring compute charges.",
				Parameters: objectSchema(map[string]any{
					"name": stringProp("Name of the virtual machine."),
				}, []string{"name"}),
			},
			Wait:     true,
			WaitText: "Deallocating the virtual machine...",
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				if client == nil {
					return models.Failure(azureNotConfigured)
				}
				name, payload := requireName(args, "stop_vm")
				if payload != nil {
					return payload
				}
				if err := client.DeallocateVM(ctx, name); err != nil {
					return models.Failure(err.Error())
				}
				return models.Success(map[string]any{"message": fmt.Sprintf("VM %s is deallocating", name)})
			},
		},
		{
			Definition: models.ToolDefinition{
				Name:        "delete_vm",
				Description: "Delete a virtual machine. Only call with confirm=true after the user explicitly confirmed.",
				Parameters: objectSchema(map[string]any{
					"name":    stringProp("Name of the virtual machine."),
					"confirm": boolProp("Must be true; set only after the user confirmed the deletion."),
				}, []string{"name", "confirm"}),
			},
			Wait:     true,
			WaitText: "Deleting the virtual machine...",
			Run: func(ctx context.Context, args json.RawMessage) models.ToolPayload {
				var p struct {
					Name    string `json:"name"`
					Confirm bool   `json:"confirm"`
				}
				if err := json.Unmarshal(args, &p); err != nil {
					return models.Failure("invalid delete_vm arguments: " + err.Error())
				}
				if p.Name == "" {
					return models.Failure("delete_vm requires a VM name")
				}
				if !p.Confirm {
					return models.Failure("deletion not confirmed; ask the user to confirm before deleting")
				}
				if client == nil {
					return models.Failure(azureNotConfigured)
				}
				if err := client.DeleteVM(ctx, p.Name); err != nil {
					return models.Failure(err.Error())
				}
				return models.Success(map[string]any{"message": fmt.Sprintf("VM %s deleted", p.Name)})
			},
		},
	}
}

// requireName decodes the single-field name argument shared by several VM
// tools. A non-nil payload is the failure to return.
func requireName(args json.RawMessage, tool string) (string, models.ToolPayload) {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return "", models.Failure("invalid " + tool + " arguments: " + err.Error())
	}
	if p.Name == "" {
		return "", models.Failure(tool + " requires a VM name")
	}
	return p.Name, nil
}
