package tablo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"tablodl/internal/catalog"
	"tablodl/internal/logctx"
)

// APIPort is the local HTTP API port every Tablo device listens on.
const APIPort = 8885

const (
	defaultTimeout = 10 * time.Second
	maxAttempts    = 3
	backoffBase    = 500 * time.Millisecond
)

// Client talks to one Tablo device. All calls are read-only except Delete.
type Client struct {
	deviceID   string
	ip         string
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for the device at ip. The device id is unknown
// until Connect has asked the device for its identity.
func NewClient(ip string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		ip:         ip,
		baseURL:    fmt.Sprintf("http://%s:%d", ip, APIPort),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Connect builds a client and resolves the device identity in one step.
func Connect(ctx context.Context, ip string, timeout time.Duration) (*Client, error) {
	c := NewClient(ip, timeout)

	info, err := c.ServerInfo(ctx)
	if err != nil {
		return nil, err
	}

	c.deviceID = info.ServerID

	return c, nil
}

// ID returns the device server id, falling back to the IP until Connect has
// resolved it.
func (c *Client) ID() string {
	if c.deviceID == "" {
		return c.ip
	}

	return c.deviceID
}

func (c *Client) IP() string { return c.ip }

// ServerInfo is the device's self-description.
type ServerInfo struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  string `json:"version"`
	Model    struct {
		Name string `json:"name"`
	} `json:"model"`
}

// ServerInfo asks the device who it is. Also serves as the reachability
// probe for the doctor command.
func (c *Client) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	var info ServerInfo
	if err := c.getJSON(ctx, "/server/info", "server info", &info); err != nil {
		return nil, err
	}

	return &info, nil
}

// Recordings is the cheap listing call: every recording identifier the
// device currently reports, as path-like ids.
func (c *Client) Recordings(ctx context.Context) ([]string, error) {
	var ids []string
	if err := c.getJSON(ctx, "/recordings/airings", "list recordings", &ids); err != nil {
		return nil, err
	}

	return ids, nil
}

// airing is the device's wire shape for one recording. Only the fields the
// catalog needs are decoded; RawDetails exposes the rest.
type airing struct {
	Path          string `json:"path"`
	AiringDetails struct {
		Datetime  string `json:"datetime"`
		Duration  int    `json:"duration"`
		ShowTitle string `json:"show_title"`
	} `json:"airing_details"`
	VideoDetails struct {
		State    string `json:"state"`
		Duration int    `json:"duration"`
		Clean    bool   `json:"clean"`
	} `json:"video_details"`
	UserInfo struct {
		Protected bool `json:"protected"`
	} `json:"user_info"`
	Episode struct {
		Title        string `json:"title"`
		Description  string `json:"description"`
		SeasonNumber int    `json:"season_number"`
		Number       int    `json:"number"`
	} `json:"episode"`
	MovieAiring struct {
		ReleaseYear int `json:"release_year"`
	} `json:"movie_airing"`
	Event struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"event"`
}

// RecordingDetails is the expensive metadata call for one identifier.
func (c *Client) RecordingDetails(ctx context.Context, id string) (*catalog.Recording, error) {
	var a airing
	if err := c.getJSON(ctx, id, "recording details", &a); err != nil {
		return nil, err
	}

	if a.Path == "" {
		a.Path = id
	}

	return c.recordingFromAiring(a), nil
}

// RawDetails returns the device's unmodified metadata document for one
// recording, for the details command.
func (c *Client) RawDetails(ctx context.Context, id string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, id, "recording details", &raw); err != nil {
		return nil, err
	}

	return raw, nil
}

// Delete removes one recording from the device. Irreversible.
func (c *Client) Delete(ctx context.Context, id string) error {
	logger := logctx.LoggerFromContext(ctx).With("device_ip", c.ip, "recording_id", id)

	err := c.do(ctx, "delete recording", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+id, nil)
	}, func(resp *http.Response) error {
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete recording %s: %w", id, err)
	}

	logger.Info("deleted device-side recording")

	return nil
}

func (c *Client) recordingFromAiring(a airing) *catalog.Recording {
	rec := &catalog.Recording{
		ID:        a.Path,
		DeviceID:  c.ID(),
		DeviceIP:  c.ip,
		Category:  CategoryFromID(a.Path),
		ShowTitle: a.AiringDetails.ShowTitle,
		AirDate:   parseAiringTime(a.AiringDetails.Datetime),
		Duration:  a.VideoDetails.Duration,
		State:     a.VideoDetails.State,
		Clean:     a.VideoDetails.Clean,
		Protected: a.UserInfo.Protected,
	}

	switch rec.Category {
	case catalog.CategorySeries:
		rec.EpisodeTitle = a.Episode.Title
		rec.Description = a.Episode.Description
		rec.Season = a.Episode.SeasonNumber
		rec.Episode = a.Episode.Number
	case catalog.CategoryMovies:
		rec.AirYear = a.MovieAiring.ReleaseYear
	case catalog.CategorySports:
		rec.EpisodeTitle = a.Event.Title
		rec.Description = a.Event.Description
	}

	return rec
}

// CategoryFromID extracts the category segment of a path-like recording
// identifier (/recordings/<category>/...).
func CategoryFromID(id string) string {
	parts := strings.Split(strings.TrimPrefix(id, "/"), "/")
	if len(parts) < 2 {
		return ""
	}

	return parts[1]
}

// Tablo devices report minute-resolution timestamps without seconds.
var airingTimeLayouts = []string{
	"2006-01-02T15:04Z07:00",
	time.RFC3339,
	"2006-01-02",
}

func parseAiringTime(s string) time.Time {
	for _, layout := range airingTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	return time.Time{}
}

func (c *Client) getJSON(ctx context.Context, path, operation string, out any) error {
	return c.do(ctx, operation, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	}, func(resp *http.Response) error {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", operation, err)
		}

		return nil
	})
}

// do issues one request with bounded retries. Transient failures back off
// exponentially with jitter; anything else is returned as-is. A request
// that never got an HTTP answer is wrapped as UnreachableError.
func (c *Client) do(ctx context.Context, operation string, build func() (*http.Request, error), handle func(*http.Response) error) error {
	logger := logctx.LoggerFromContext(ctx).With("device_ip", c.ip, "operation", operation)

	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			logger.Debug("retrying device call", "attempt", attempt, "err", lastErr)

			if err := sleepBackoff(ctx, attempt); err != nil {
				return err
			}
		}

		req, err := build()
		if err != nil {
			return fmt.Errorf("failed to build %s request: %w", operation, err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &UnreachableError{DeviceIP: c.ip, Err: err}
			if transient(err) {
				continue
			}

			return lastErr
		}

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()

			lastErr = &StatusError{Operation: operation, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
			if transient(lastErr) {
				continue
			}

			return lastErr
		}

		err = handle(resp)
		resp.Body.Close()

		return err
	}

	return lastErr
}

func sleepBackoff(ctx context.Context, attempt int) error {
	backoff := backoffBase << (attempt - 1)
	backoff += rand.N(backoff / 2)

	timer := time.NewTimer(backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
