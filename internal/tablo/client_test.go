package tablo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablodl/internal/catalog"
)

// testClient points a Client at a httptest server instead of port 8885.
func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	c := NewClient(u.Hostname(), 2*time.Second)
	c.baseURL = srv.URL

	return c
}

func TestRecordingsListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recordings/airings", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)

		json.NewEncoder(w).Encode([]string{
			"/recordings/series/episodes/101",
			"/recordings/movies/airings/200",
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)

	ids, err := c.Recordings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/recordings/series/episodes/101", "/recordings/movies/airings/200"}, ids)
}

func TestRecordingDetailsSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recordings/series/episodes/101", r.URL.Path)

		fmt.Fprint(w, `{
			"path": "/recordings/series/episodes/101",
			"airing_details": {"datetime": "2024-03-01T01:00Z", "duration": 1800, "show_title": "The Show"},
			"video_details": {"state": "finished", "duration": 1795, "clean": true},
			"user_info": {"protected": true},
			"episode": {"title": "Pilot", "description": "First one.", "season_number": 1, "number": 2}
		}`)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	c.deviceID = "SID_TEST"

	rec, err := c.RecordingDetails(context.Background(), "/recordings/series/episodes/101")
	require.NoError(t, err)

	assert.Equal(t, "/recordings/series/episodes/101", rec.ID)
	assert.Equal(t, "SID_TEST", rec.DeviceID)
	assert.Equal(t, catalog.CategorySeries, rec.Category)
	assert.Equal(t, "The Show", rec.ShowTitle)
	assert.Equal(t, "Pilot", rec.EpisodeTitle)
	assert.Equal(t, 1, rec.Season)
	assert.Equal(t, 2, rec.Episode)
	assert.Equal(t, 1795, rec.Duration)
	assert.Equal(t, catalog.StateFinished, rec.State)
	assert.True(t, rec.Clean)
	assert.True(t, rec.Protected)
	assert.Equal(t, time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC), rec.AirDate)
}

func TestRecordingDetailsMovieAndSports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/recordings/movies/airings/200":
			fmt.Fprint(w, `{
				"airing_details": {"datetime": "2024-01-05T20:00Z", "show_title": "Heat"},
				"video_details": {"state": "finished", "duration": 6200},
				"movie_airing": {"release_year": 1995}
			}`)
		case "/recordings/sports/events/300":
			fmt.Fprint(w, `{
				"airing_details": {"datetime": "2024-02-11T18:30Z", "show_title": "Big Game"},
				"video_details": {"state": "finished", "duration": 9000},
				"event": {"title": "Championship", "description": "Final."}
			}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := testClient(t, srv)

	movie, err := c.RecordingDetails(context.Background(), "/recordings/movies/airings/200")
	require.NoError(t, err)
	assert.Equal(t, catalog.CategoryMovies, movie.Category)
	assert.Equal(t, 1995, movie.AirYear)
	// path fell back to the requested id
	assert.Equal(t, "/recordings/movies/airings/200", movie.ID)

	sports, err := c.RecordingDetails(context.Background(), "/recordings/sports/events/300")
	require.NoError(t, err)
	assert.Equal(t, catalog.CategorySports, sports.Category)
	assert.Equal(t, "Championship", sports.EpisodeTitle)
	assert.Equal(t, "Final.", sports.Description)
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)

			return
		}

		json.NewEncoder(w).Encode([]string{"/recordings/series/episodes/1"})
	}))
	defer srv.Close()

	c := testClient(t, srv)

	ids, err := c.Recordings(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := testClient(t, srv)

	_, err := c.Recordings(context.Background())
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestUnreachableDevice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections from here on

	c := testClient(t, srv)

	_, err := c.Recordings(context.Background())
	require.Error(t, err)

	var unreachable *UnreachableError
	assert.ErrorAs(t, err, &unreachable)
}

func TestDeleteRecording(t *testing.T) {
	var method, path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := testClient(t, srv)

	require.NoError(t, c.Delete(context.Background(), "/recordings/series/episodes/101"))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/recordings/series/episodes/101", path)
}

func TestConnectResolvesIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/server/info", r.URL.Path)
		fmt.Fprint(w, `{"server_id": "SID_ABC", "name": "Living Room", "version": "2.2.26"}`)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	c := NewClient(u.Hostname(), 2*time.Second)
	c.baseURL = srv.URL

	info, err := c.ServerInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SID_ABC", info.ServerID)
	assert.Equal(t, "Living Room", info.Name)

	// before identity resolution the ip stands in for the id
	assert.Equal(t, u.Hostname(), c.ID())
	c.deviceID = info.ServerID
	assert.Equal(t, "SID_ABC", c.ID())
}

func TestCategoryFromID(t *testing.T) {
	assert.Equal(t, "series", CategoryFromID("/recordings/series/episodes/101"))
	assert.Equal(t, "movies", CategoryFromID("/recordings/movies/airings/200"))
	assert.Equal(t, "", CategoryFromID("/recordings"))
	assert.Equal(t, "", CategoryFromID(""))
}

func TestTransientClassification(t *testing.T) {
	assert.True(t, transient(&StatusError{StatusCode: http.StatusBadGateway}))
	assert.False(t, transient(&StatusError{StatusCode: http.StatusUnauthorized}))
	assert.False(t, transient(context.Canceled))
	assert.False(t, transient(errors.New("parse failure")))
	assert.True(t, transient(context.DeadlineExceeded))
}
