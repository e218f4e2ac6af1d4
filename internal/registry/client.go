package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/twinsync-io/twinsync/internal/apiclient"
)

// Client talks to the device registry API.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	api *apiclient.Client
}

// NewClient creates a registry client.
//
// Parameters:
//   - baseURL: Root URL of the registry API
//   - auth: Access token credentials
//   - timeout: Per-request timeout; zero selects the default
func NewClient(baseURL string, auth apiclient.Auth, timeout time.Duration) (*Client, error) {
	api, err := apiclient.New(baseURL, auth, timeout)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return &Client{api: api}, nil
}

// ListDevices returns all devices of the application.
func (c *Client) ListDevices(ctx context.Context, application string) ([]Device, error) {
	var devices []Device
	url := c.api.URL("api", "registry", "v1alpha1", "apps", application, "devices")
	found, err := c.api.Get(ctx, url, &devices)
	if err != nil {
		return nil, fmt.Errorf("registry: listing devices: %w", err)
	}
	if !found {
		return nil, nil
	}
	return devices, nil
}

// GetDevice fetches a single device.
//
// Returns:
//   - *Device: The device, or nil if it does not exist
//   - error: Transport or service errors; absence is not an error
func (c *Client) GetDevice(ctx context.Context, application, name string) (*Device, error) {
	var device Device
	url := c.api.URL("api", "registry", "v1alpha1", "apps", application, "devices", name)
	found, err := c.api.Get(ctx, url, &device)
	if err != nil {
		return nil, fmt.Errorf("registry: getting device %q: %w", name, err)
	}
	if !found {
		return nil, nil
	}
	return &device, nil
}

// UpdateDevice writes a device record back to the registry.
//
// The write is conditional on the record's resource version: a
// concurrent mutation surfaces as a conflict, which callers classify
// with apiclient.IsConflict.
func (c *Client) UpdateDevice(ctx context.Context, device *Device) error {
	url := c.api.URL("api", "registry", "v1alpha1", "apps",
		device.Metadata.Application, "devices", device.Metadata.Name)
	if err := c.api.Put(ctx, url, device); err != nil {
		return fmt.Errorf("registry: updating device %q: %w", device.Metadata.Name, err)
	}
	return nil
}
