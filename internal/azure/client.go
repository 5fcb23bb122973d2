// Package azure is a thin Azure Resource Manager client covering the
// virtual machine lifecycle the VM assistant exposes. It talks straight to
// the ARM REST API with a client-credentials token.
package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/opsconcierge/opsconcierge/internal/config"
)

const (
	defaultBaseURL  = "https://management.azure.com"
	defaultAuthBase = "https://login.microsoftonline.com"

	computeAPIVersion = "2023-09-01"
	networkAPIVersion = "2023-09-01"
)

// Client calls the ARM REST API for one subscription and resource group.
type Client struct {
	// BaseURL and TokenURL default to the public ARM and Entra endpoints.
	// Tests point them at a local server.
	BaseURL  string
	TokenURL string

	cfg  config.AzureConfig
	http *resty.Client

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient builds an ARM client from the service principal config.
func NewClient(cfg config.AzureConfig) *Client {
	return &Client{
		BaseURL:  defaultBaseURL,
		TokenURL: fmt.Sprintf("%s/%s/oauth2/v2.0/token", defaultAuthBase, cfg.TenantID),
		cfg:      cfg,
		http: resty.New().
			SetTimeout(60 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond),
	}
}

// accessToken returns a cached client-credentials token, refreshing it when
// it is within a minute of expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
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
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
			"scope":         "https://management.azure.com/.default",
		}).
		SetResult(&body).
		Post(c.TokenURL)
	if err != nil {
		return "", fmt.Errorf("requesting azure token: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("azure token endpoint returned %s", resp.Status())
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("azure token endpoint returned no token")
	}

	c.token = body.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return c.token, nil
}

// armRequest returns a request with auth and the JSON content type set.
func (c *Client) armRequest(ctx context.Context) (*resty.Request, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json"), nil
}

func (c *Client) computeURL(suffix string) string {
	return fmt.Sprintf("%s/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Compute%s?api-version=%s",
		c.BaseURL, c.cfg.SubscriptionID, c.cfg.ResourceGroup, suffix, computeAPIVersion)
}

func (c *Client) networkURL(suffix string) string {
	return fmt.Sprintf("%s/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Network%s?api-version=%s",
		c.BaseURL, c.cfg.SubscriptionID, c.cfg.ResourceGroup, suffix, networkAPIVersion)
}

// armError turns a non-2xx ARM response into an error carrying the service
// message when one is present.
func armError(op string, resp *resty.Response) error {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error.Message != "" {
		return fmt.Errorf("%s: %s (%s)", op, body.Error.Message, body.Error.Code)
	}
	return fmt.Errorf("%s: azure returned %s", op, resp.Status())
}

// VM is the summary shape returned by list and status operations.
type VM struct {
	Name       string `json:"name"`
	Size       string `json:"size"`
	Location   string `json:"location"`
	PowerState string `json:"power_state,omitempty"`
	OSType     string `json:"os_type,omitempty"`
}

// CreateVMParams describes the VM to provision. All fields are required.
type CreateVMParams struct {
	Name          string
	Size          string
	AdminUsername string
	AdminPassword string
}

// CreateVM provisions a virtual network, a NIC with no public IP, and an
// Ubuntu VM, in that order. The VM is only reachable inside its vnet.
func (c *Client) CreateVM(ctx context.Context, p CreateVMParams) (*VM, error) {
	vnetName := p.Name + "-vnet"
	nicName := p.Name + "-nic"
	subnetID := fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Network/virtualNetworks/%s/subnets/default",
		c.cfg.SubscriptionID, c.cfg.ResourceGroup, vnetName)

	req, err := c.armRequest(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := req.SetBody(map[string]any{
		"location": c.cfg.Location,
		"properties": map[string]any{
			"addressSpace": map[string]any{"addressPrefixes": []string{"10.0.0.0/16"}},
			"subnets": []map[string]any{{
				"name":       "default",
				"properties": map[string]any{"addressPrefix": "10.0.0.0/24"},
			}},
		},
	}).Put(c.networkURL("/virtualNetworks/" + url.PathEscape(vnetName)))
	if err != nil {
		return nil, fmt.Errorf("creating virtual network: %w", err)
	}
	if resp.IsError() {
		return nil, armError("creating virtual network", resp)
	}

	req, err = c.armRequest(ctx)
	if err != nil {
		return nil, err
	}
	resp, err = req.SetBody(map[string]any{
		"location": c.cfg.Location,
		"properties": map[string]any{
			"ipConfigurations": []map[string]any{{
				"name": "ipconfig1",
				"properties": map[string]any{
					"subnet":                    map[string]any{"id": subnetID},
					"privateIPAllocationMethod": "Dynamic",
				},
			}},
		},
	}).Put(c.networkURL("/networkInterfaces/" + url.PathEscape(nicName)))
	if err != nil {
		return nil, fmt.Errorf("creating network interface: %w", err)
	}
	if resp.IsError() {
		return nil, armError("creating network interface", resp)
	}

	nicID := fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Network/networkInterfaces/%s",
		c.cfg.SubscriptionID, c.cfg.ResourceGroup, nicName)

	req, err = c.armRequest(ctx)
	if err != nil {
		return nil, err
	}
	resp, err = req.SetBody(map[string]any{
		"location": c.cfg.Location,
		"properties": map[string]any{
			"hardwareProfile": map[string]any{"vmSize": p.Size},
			"osProfile": map[string]any{
				"computerName":  p.Name,
				"adminUsername": p.AdminUsername,
				"adminPassword": p.AdminPassword,
			},
			"storageProfile": map[string]any{
				"imageReference": map[string]any{
					"publisher": "Canonical",
					"offer":     "0001-com-ubuntu-server-jammy",
					"sku":       "22_04-lts-gen2",
					"version":   "latest",
				},
				"osDisk": map[string]any{
					"createOption": "FromImage",
					"managedDisk":  map[string]any{"storageAccountType": "Standard_LRS"},
				},
			},
			"networkProfile": map[string]any{
				"networkInterfaces": []map[string]any{{"id": nicID}},
			},
		},
	}).Put(c.computeURL("/virtualMachines/" + url.PathEscape(p.Name)))
	if err != nil {
		return nil, fmt.Errorf("creating virtual machine: %w", err)
	}
	if resp.IsError() {
		return nil, armError("creating virtual machine", resp)
	}

	return &VM{Name: p.Name, Size: p.Size, Location: c.cfg.Location}, nil
}

// ListVMs returns the VMs in the resource group.
func (c *Client) ListVMs(ctx context.Context) ([]VM, error) {
	req, err := c.armRequest(ctx)
	if err != nil {
		return nil, err
	}
	var body struct {
		Value []struct {
			Name       string `json:"name"`
			Location   string `json:"location"`
			Properties struct {
				HardwareProfile struct {
					VMSize string `json:"vmSize"`
				} `json:"hardwareProfile"`
				StorageProfile struct {
					OSDisk struct {
						OSType string `json:"osType"`
					} `json:"osDisk"`
				} `json:"storageProfile"`
			} `json:"properties"`
		} `json:"value"`
	}
	resp, err := req.SetResult(&body).Get(c.computeURL("/virtualMachines"))
	if err != nil {
		return nil, fmt.Errorf("listing virtual machines: %w", err)
	}
	if resp.IsError() {
		return nil, armError("listing virtual machines", resp)
	}

	vms := make([]VM, 0, len(body.Value))
	for _, v := range body.Value {
		vms = append(vms, VM{
			Name:     v.Name,
			Size:     v.Properties.HardwareProfile.VMSize,
			Location: v.Location,
			OSType:   v.Properties.StorageProfile.OSDisk.OSType,
		})
	}
	return vms, nil
}

// VMStatus returns the VM's power state from its instance view. The power
// state arrives as a status code like "PowerState/running".
func (c *Client) VMStatus(ctx context.Context, name string) (*VM, error) {
	req, err := c.armRequest(ctx)
	if err != nil {
		return nil, err
	}
	var body struct {
		Statuses []struct {
			Code          string `json:"code"`
			DisplayStatus string `json:"displayStatus"`
		} `json:"statuses"`
	}
	resp, err := req.SetResult(&body).
		Get(c.computeURL("/virtualMachines/" + url.PathEscape(name) + "/instanceView"))
	if err != nil {
		return nil, fmt.Errorf("reading vm status: %w", err)
	}
	if resp.IsError() {
		return nil, armError("reading vm status", resp)
	}

	vm := &VM{Name: name, PowerState: "unknown"}
	for _, s := range body.Statuses {
		if strings.HasPrefix(s.Code, "PowerState/") {
			vm.PowerState = strings.TrimPrefix(s.Code, "PowerState/")
		}
	}
	return vm, nil
}

// StartVM starts a stopped or deallocated VM.
func (c *Client) StartVM(ctx context.Context, name string) error {
	return c.vmAction(ctx, name, "start", "starting vm")
}

// DeallocateVM stops the VM and releases its compute so it no longer bills.
func (c *Client) DeallocateVM(ctx context.Context, name string) error {
	return c.vmAction(ctx, name, "deallocate", "deallocating vm")
}

func (c *Client) vmAction(ctx context.Context, name, action, op string) error {
	req, err := c.armRequest(ctx)
	if err != nil {
		return err
	}
	resp, err := req.Post(c.computeURL("/virtualMachines/" + url.PathEscape(name) + "/" + action))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		return armError(op, resp)
	}
	return nil
}

// DeleteVM deletes the VM and the NIC created alongside it. A NIC that is
// already gone is not an error. The vnet is shared and stays.
func (c *Client) DeleteVM(ctx context.Context, name string) error {
	req, err := c.armRequest(ctx)
	if err != nil {
		return err
	}
	resp, err := req.Delete(c.computeURL("/virtualMachines/" + url.PathEscape(name)))
	if err != nil {
		return fmt.Errorf("deleting vm: %w", err)
	}
	if resp.IsError() {
		return armError("deleting vm", resp)
	}

	req, err = c.armRequest(ctx)
	if err != nil {
		return err
	}
	resp, err = req.Delete(c.networkURL("/networkInterfaces/" + url.PathEscape(name+"-nic")))
	if err != nil {
		return fmt.Errorf("deleting network interface: %w", err)
	}
	if resp.IsError() && resp.StatusCode() != 404 {
		return armError("deleting network interface", resp)
	}
	return nil
}
