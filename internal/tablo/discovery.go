package tablo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tablodl/internal/logctx"
)

// AssociationServerURL is Tablo's cloud endpoint that knows which devices
// are registered on the caller's public IP.
const AssociationServerURL = "https://api.tablotv.com/assocserver/getipinfo/"

// DeviceInfo is one discovered device.
type DeviceInfo struct {
	ServerID  string `json:"serverid"`
	Name      string `json:"name"`
	PrivateIP string `json:"private_ip"`
}

// Discoverer finds Tablo devices through the association server.
type Discoverer struct {
	url        string
	httpClient *http.Client
}

func NewDiscoverer(timeout time.Duration) *Discoverer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Discoverer{
		url:        AssociationServerURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Discover asks the association server for devices visible from this
// network. An empty result is not an error; the caller may still have
// static addresses configured.
func (d *Discoverer) Discover(ctx context.Context) ([]DeviceInfo, error) {
	logger := logctx.LoggerFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build discovery request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach association server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Operation: "device discovery", StatusCode: resp.StatusCode}
	}

	var payload struct {
		CPEs []DeviceInfo `json:"cpes"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode discovery response: %w", err)
	}

	logger.Debug("association server answered", "device_count", len(payload.CPEs))

	return payload.CPEs, nil
}
