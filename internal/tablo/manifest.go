package tablo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"tablodl/internal/logctx"
)

// Playlist is the streaming manifest location for one recording.
type Playlist struct {
	PlaylistURL string `json:"playlist_url"`
	BifURLSD    string `json:"bif_url_sd"`
	Error       string `json:"error"`
}

// WatchPlaylist asks the device to start a watch session for one recording
// and returns the playlist location. The device answers with an error field
// instead of a status code when the recording cannot be played.
func (c *Client) WatchPlaylist(ctx context.Context, id string) (*Playlist, error) {
	var pl Playlist

	err := c.do(ctx, "watch playlist", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+id+"/watch", nil)
	}, func(resp *http.Response) error {
		if err := json.NewDecoder(resp.Body).Decode(&pl); err != nil {
			return fmt.Errorf("failed to decode watch response: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if pl.Error != "" {
		return nil, fmt.Errorf("device refused watch session for %s: %s", id, pl.Error)
	}

	if pl.PlaylistURL == "" {
		return nil, fmt.Errorf("device returned no playlist url for %s", id)
	}

	return &pl, nil
}

// Manifest resolves the watch playlist and fetches its m3u8 body. The body
// is what ffmpeg consumes; segment URLs inside it stay device-relative and
// must be rewritten against the playlist location.
func (c *Client) Manifest(ctx context.Context, id string) (string, error) {
	logger := logctx.LoggerFromContext(ctx).With("device_ip", c.ip, "recording_id", id)

	pl, err := c.WatchPlaylist(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to resolve playlist: %w", err)
	}

	logger.Debug("resolved watch playlist", "playlist_url", pl.PlaylistURL)

	var body string

	err = c.do(ctx, "fetch playlist", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, pl.PlaylistURL, nil)
	}, func(resp *http.Response) error {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read playlist body: %w", err)
		}

		body = string(raw)

		return nil
	})
	if err != nil {
		return "", err
	}

	if !strings.HasPrefix(body, "#EXTM3U") {
		return "", fmt.Errorf("playlist for %s is not an m3u8 document", id)
	}

	return absolutizePlaylist(body, pl.PlaylistURL), nil
}

// absolutizePlaylist rewrites relative segment URIs so the saved manifest
// plays from anywhere, resolving against the playlist location.
func absolutizePlaylist(body, playlistURL string) string {
	base, err := url.Parse(playlistURL)
	if err != nil {
		return body
	}

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		ref, err := url.Parse(trimmed)
		if err != nil || ref.IsAbs() {
			continue
		}

		lines[i] = base.ResolveReference(ref).String()
	}

	return strings.Join(lines, "\n")
}
