package tablo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestResolvesAndAbsolutizes(t *testing.T) {
	var srvURL string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/recordings/series/episodes/101/watch":
			fmt.Fprintf(w, `{"playlist_url": "%s/stream/pl/playlist.m3u8"}`, srvURL)
		case r.URL.Path == "/stream/pl/playlist.m3u8":
			fmt.Fprint(w, "#EXTM3U\n#EXT-X-TARGETDURATION:10\n#EXTINF:10,\nsegment-0.ts\n#EXTINF:10,\n/stream/pl/segment-1.ts\n#EXT-X-ENDLIST\n")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	srvURL = srv.URL
	c := testClient(t, srv)

	body, err := c.Manifest(context.Background(), "/recordings/series/episodes/101")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(body, "#EXTM3U"))
	assert.Contains(t, body, srv.URL+"/stream/pl/segment-0.ts")
	assert.Contains(t, body, srv.URL+"/stream/pl/segment-1.ts")
	assert.NotContains(t, body, "\nsegment-0.ts")
}

func TestWatchPlaylistDeviceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": "recording is in progress"}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)

	_, err := c.WatchPlaylist(context.Background(), "/recordings/series/episodes/101")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording is in progress")
}

func TestManifestRejectsNonM3U(t *testing.T) {
	var srvURL string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprintf(w, `{"playlist_url": "%s/not-a-playlist"}`, srvURL)

			return
		}

		fmt.Fprint(w, "<html>device error page</html>")
	}))
	defer srv.Close()

	srvURL = srv.URL
	c := testClient(t, srv)

	_, err := c.Manifest(context.Background(), "/recordings/series/episodes/101")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an m3u8")
}

func TestDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"cpes": [
			{"serverid": "SID_A", "name": "Living Room", "private_ip": "192.168.1.50"},
			{"serverid": "SID_B", "name": "Bedroom", "private_ip": "192.168.1.51"}
		]}`)
	}))
	defer srv.Close()

	d := NewDiscoverer(0)
	d.url = srv.URL

	devices, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "SID_A", devices[0].ServerID)
	assert.Equal(t, "192.168.1.51", devices[1].PrivateIP)
}

func TestDiscoverServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDiscoverer(0)
	d.url = srv.URL

	_, err := d.Discover(context.Background())
	require.Error(t, err)

	var statusErr *StatusError
	assert.ErrorAs(t, err, &statusErr)
}
