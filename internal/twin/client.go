package twin

import (
	"context"
	"fmt"
	"time"

	"github.com/twinsync-io/twinsync/internal/apiclient"
)

// Client talks to the twin service API.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	api *apiclient.Client
}

// NewClient creates a twin service client.
//
// Parameters:
//   - baseURL: Root URL of the twin API
//   - auth: Access token credentials
//   - timeout: Per-request timeout; zero selects the default
func NewClient(baseURL string, auth apiclient.Auth, timeout time.Duration) (*Client, error) {
	api, err := apiclient.New(baseURL, auth, timeout)
	if err != nil {
		return nil, fmt.Errorf("twin: %w", err)
	}
	return &Client{api: api}, nil
}

// GetThing fetches a Thing.
//
// Returns:
//   - *Thing: The Thing, or nil if it does not exist
//   - error: Transport or service errors; absence is not an error
func (c *Client) GetThing(ctx context.Context, application, name string) (*Thing, error) {
	var thing Thing
	url := c.api.URL("api", "v1alpha1", "things", application, "things", name)
	found, err := c.api.Get(ctx, url, &thing)
	if err != nil {
		return nil, fmt.Errorf("twin: getting thing %q: %w", name, err)
	}
	if !found {
		return nil, nil
	}
	return &thing, nil
}

// CreateThing creates a new Thing. A concurrent creation surfaces as a
// conflict, which callers classify with apiclient.IsConflict.
func (c *Client) CreateThing(ctx context.Context, thing *Thing) error {
	url := c.api.URL("api", "v1alpha1", "things")
	if err := c.api.Post(ctx, url, thing); err != nil {
		return fmt.Errorf("twin: creating thing %q: %w", thing.Metadata.Name, err)
	}
	return nil
}

// UpdateThing writes a Thing back to the twin service. The write is
// conditional on the Thing's resource version.
func (c *Client) UpdateThing(ctx context.Context, thing *Thing) error {
	url := c.api.URL("api", "v1alpha1", "things")
	if err := c.api.Put(ctx, url, thing); err != nil {
		return fmt.Errorf("twin: updating thing %q: %w", thing.Metadata.Name, err)
	}
	return nil
}

// DeleteThing deletes a Thing.
//
// Returns:
//   - bool: true if the Thing existed, false if it was already gone
//   - error: Transport or service errors; absence is not an error
func (c *Client) DeleteThing(ctx context.Context, application, name string) (bool, error) {
	url := c.api.URL("api", "v1alpha1", "things", application, "things", name)
	existed, err := c.api.Delete(ctx, url)
	if err != nil {
		return false, fmt.Errorf("twin: deleting thing %q: %w", name, err)
	}
	return existed, nil
}
