// Package jellyfin triggers media-server library scans after new files land.
package jellyfin

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client represents a Jellyfin server API client.
type Client struct {
	client  *http.Client
	token   string
	baseURL string
}

// NewClient creates a new Jellyfin API client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// RefreshLibrary asks the server to rescan its media libraries so newly
// downloaded recordings show up without waiting for a scheduled scan.
func (c *Client) RefreshLibrary(ctx context.Context) error {
	url := c.baseURL + "/Library/Refresh"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Emby-Token", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("url: %s, status: %d", url, resp.StatusCode)
	}

	return nil
}
