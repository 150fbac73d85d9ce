package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablodl/internal/catalog"
	"tablodl/internal/storage"
)

// fakeCatalog implements storage.CatalogRepository for handler tests.
type fakeCatalog struct {
	entries    []catalog.Entry
	byID       map[string][]catalog.Entry
	lastFilter storage.EntryFilter
	listErr    error
}

func (f *fakeCatalog) UpsertEntry(_ context.Context, _ catalog.Entry) error { return nil }

func (f *fakeCatalog) Entries(_ context.Context, filter storage.EntryFilter) ([]catalog.Entry, error) {
	f.lastFilter = filter

	return f.entries, f.listErr
}

func (f *fakeCatalog) EntriesByDevice(_ context.Context, _ string) ([]catalog.Entry, error) {
	return f.entries, nil
}

func (f *fakeCatalog) EntriesByID(_ context.Context, id string) ([]catalog.Entry, error) {
	return f.byID[id], nil
}

func (f *fakeCatalog) MarkStale(_ context.Context, _ string, _ []string) (int64, error) {
	return 0, nil
}

func (f *fakeCatalog) TouchSynced(_ context.Context, _ string, _ []string, _ time.Time) error {
	return nil
}

func (f *fakeCatalog) SetDownloadState(_ context.Context, _, _ string, _ catalog.Status, _ string, _ time.Time) error {
	return nil
}

// fakeLedger implements storage.UploadLedger for handler tests.
type fakeLedger struct {
	records []storage.UploadRecord
	listErr error
}

func (f *fakeLedger) FindByIdentity(_ context.Context, _ string) (storage.UploadRecord, error) {
	return storage.UploadRecord{}, storage.ErrNotFound
}

func (f *fakeLedger) RecordUpload(_ context.Context, _ storage.UploadRecord) error { return nil }

func (f *fakeLedger) Uploads(_ context.Context) ([]storage.UploadRecord, error) {
	return f.records, f.listErr
}

func testEntry(id, deviceID string) catalog.Entry {
	return catalog.Entry{
		Recording: catalog.Recording{
			ID:        id,
			DeviceID:  deviceID,
			DeviceIP:  "192.168.1.50",
			Category:  catalog.CategorySeries,
			ShowTitle: "The Expanse",
			Season:    1,
			Episode:   1,
			Duration:  3600,
			State:     catalog.StateFinished,
		},
		DownloadStatus: catalog.StatusNone,
	}
}

func TestHealthz(t *testing.T) {
	h := NewHandler("", "", &fakeCatalog{}, &fakeLedger{}, nil, nil)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestBasicAuth(t *testing.T) {
	tests := []struct {
		name       string
		username   string
		password   string
		reqUser    string
		reqPass    string
		sendAuth   bool
		wantStatus int
	}{
		{
			name:       "auth disabled when no credentials configured",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing credentials rejected",
			username:   "admin",
			password:   "secret",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong password rejected",
			username:   "admin",
			password:   "secret",
			reqUser:    "admin",
			reqPass:    "wrong",
			sendAuth:   true,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "valid credentials accepted",
			username:   "admin",
			password:   "secret",
			reqUser:    "admin",
			reqPass:    "secret",
			sendAuth:   true,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.username, tt.password, &fakeCatalog{}, &fakeLedger{}, nil, nil)

			req := httptest.NewRequest(http.MethodGet, "/api/recordings", nil)
			if tt.sendAuth {
				req.SetBasicAuth(tt.reqUser, tt.reqPass)
			}

			rr := httptest.NewRecorder()
			h.Routes().ServeHTTP(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestListRecordingsAppliesFilters(t *testing.T) {
	fc := &fakeCatalog{entries: []catalog.Entry{testEntry("/recordings/series/episodes/1", "dev-1")}}
	h := NewHandler("", "", fc, &fakeLedger{}, nil, nil)

	target := "/api/recordings?device=dev-1&category=series&show=The+Expanse&status=complete&include_stale=true"

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, storage.EntryFilter{
		DeviceID:     "dev-1",
		Category:     "series",
		ShowTitle:    "The Expanse",
		Status:       catalog.StatusComplete,
		IncludeStale: true,
	}, fc.lastFilter)

	var body []recordingResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Len(t, body, 1)
	assert.Equal(t, "/recordings/series/episodes/1", body[0].ID)
	assert.Equal(t, "The Expanse", body[0].ShowTitle)
	assert.Equal(t, 3600, body[0].DurationSeconds)
	assert.Equal(t, "none", body[0].DownloadStatus)
}

func TestListRecordingsEmpty(t *testing.T) {
	h := NewHandler("", "", &fakeCatalog{}, &fakeLedger{}, nil, nil)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/recordings", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestListRecordingsError(t *testing.T) {
	fc := &fakeCatalog{listErr: assert.AnError}
	h := NewHandler("", "", fc, &fakeLedger{}, nil, nil)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/recordings", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "failed to list recordings", body["error"])
}

func TestGetRecordingByID(t *testing.T) {
	id := "/recordings/series/episodes/123"
	fc := &fakeCatalog{byID: map[string][]catalog.Entry{
		id: {testEntry(id, "dev-1"), testEntry(id, "dev-2")},
	}}
	h := NewHandler("", "", fc, &fakeLedger{}, nil, nil)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/recordings"+id, nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var body []recordingResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Len(t, body, 2)
	assert.Equal(t, "dev-1", body[0].DeviceID)
	assert.Equal(t, "dev-2", body[1].DeviceID)
}

func TestGetRecordingNotFound(t *testing.T) {
	h := NewHandler("", "", &fakeCatalog{}, &fakeLedger{}, nil, nil)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/recordings/recordings/series/episodes/999", nil))

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListUploads(t *testing.T) {
	uploadedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fl := &fakeLedger{records: []storage.UploadRecord{{
		Identity:   "abc123",
		FileName:   "show.mp4",
		FileSize:   2048,
		Provider:   "putio",
		RemoteRef:  "file/42",
		UploadedAt: uploadedAt,
	}}}
	h := NewHandler("", "", &fakeCatalog{}, fl, nil, nil)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/uploads", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var body []uploadResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Len(t, body, 1)
	assert.Equal(t, "abc123", body[0].Identity)
	assert.Equal(t, "show.mp4", body[0].FileName)
	assert.Equal(t, int64(2048), body[0].FileSize)
	assert.Equal(t, "putio", body[0].Provider)
	assert.Equal(t, "file/42", body[0].RemoteRef)
	assert.True(t, uploadedAt.Equal(body[0].UploadedAt))
}

func TestSyncUnavailableWithoutSyncFunc(t *testing.T) {
	h := NewHandler("", "", &fakeCatalog{}, &fakeLedger{}, nil, nil)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sync", nil))

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSyncReturnsReport(t *testing.T) {
	syncFn := func(_ context.Context) (*catalog.SyncReport, error) {
		return &catalog.SyncReport{
			Devices:     2,
			Discovered:  3,
			Refreshed:   1,
			Unchanged:   10,
			MarkedStale: 1,
			DeviceErrors: []catalog.DeviceError{
				{DeviceID: "dev-2", DeviceIP: "192.168.1.51", Err: assert.AnError},
			},
		}, nil
	}
	h := NewHandler("", "", &fakeCatalog{}, &fakeLedger{}, syncFn, nil)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sync", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var body syncResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, 2, body.Devices)
	assert.Equal(t, 3, body.Discovered)
	assert.Equal(t, 1, body.Refreshed)
	assert.Equal(t, 10, body.Unchanged)
	assert.Equal(t, 1, body.MarkedStale)
	require.Len(t, body.DeviceErrors, 1)
	assert.Contains(t, body.DeviceErrors[0], "dev-2")
}

func TestSyncFailure(t *testing.T) {
	syncFn := func(_ context.Context) (*catalog.SyncReport, error) {
		return nil, assert.AnError
	}
	h := NewHandler("", "", &fakeCatalog{}, &fakeLedger{}, syncFn, nil)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sync", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestSyncRejectsConcurrentRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	syncFn := func(_ context.Context) (*catalog.SyncReport, error) {
		close(started)
		<-release

		return &catalog.SyncReport{Devices: 1}, nil
	}
	h := NewHandler("", "", &fakeCatalog{}, &fakeLedger{}, syncFn, nil)
	router := h.Routes()

	firstDone := make(chan *httptest.ResponseRecorder, 1)

	go func() {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
		firstDone <- rr
	}()

	<-started

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
	require.Equal(t, http.StatusConflict, rr.Code)

	close(release)

	first := <-firstDone
	require.Equal(t, http.StatusOK, first.Code)
}

func TestMetricsWithoutTelemetry(t *testing.T) {
	h := NewHandler("", "", &fakeCatalog{}, &fakeLedger{}, nil, nil)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusNotFound, rr.Code)
}
