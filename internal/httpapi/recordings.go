package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tablodl/internal/catalog"
	"tablodl/internal/logctx"
	"tablodl/internal/storage"
)

type recordingResponse struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`
	DeviceIP string `json:"device_ip"`
	Category string `json:"category"`

	ShowTitle    string     `json:"show_title"`
	EpisodeTitle string     `json:"episode_title,omitempty"`
	Season       int        `json:"season,omitempty"`
	Episode      int        `json:"episode,omitempty"`
	AirDate      *time.Time `json:"air_date,omitempty"`
	AirYear      int        `json:"air_year,omitempty"`
	Description  string     `json:"description,omitempty"`

	DurationSeconds int    `json:"duration_seconds"`
	State           string `json:"state"`
	Protected       bool   `json:"protected,omitempty"`

	Stale          bool       `json:"stale"`
	DownloadStatus string     `json:"download_status"`
	LocalPath      string     `json:"local_path,omitempty"`
	DownloadedAt   *time.Time `json:"downloaded_at,omitempty"`
	FirstSeenAt    *time.Time `json:"first_seen_at,omitempty"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
}

func toRecordingResponse(e catalog.Entry) recordingResponse {
	return recordingResponse{
		ID:              e.ID,
		DeviceID:        e.DeviceID,
		DeviceIP:        e.DeviceIP,
		Category:        e.Category,
		ShowTitle:       e.ShowTitle,
		EpisodeTitle:    e.EpisodeTitle,
		Season:          e.Season,
		Episode:         e.Episode,
		AirDate:         timePtr(e.AirDate),
		AirYear:         e.AirYear,
		Description:     e.Description,
		DurationSeconds: e.Duration,
		State:           e.State,
		Protected:       e.Protected,
		Stale:           e.Stale,
		DownloadStatus:  string(e.DownloadStatus),
		LocalPath:       e.LocalPath,
		DownloadedAt:    timePtr(e.DownloadedAt),
		FirstSeenAt:     timePtr(e.FirstSeenAt),
		LastSyncedAt:    timePtr(e.LastSyncedAt),
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}

func (h *Handler) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := storage.EntryFilter{
		DeviceID:     q.Get("device"),
		Category:     q.Get("category"),
		ShowTitle:    q.Get("show"),
		Status:       catalog.Status(q.Get("status")),
		IncludeStale: q.Get("include_stale") == "true",
	}

	entries, err := h.catalog.Entries(r.Context(), filter)
	if err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to list recordings", "err", err)
		respondError(w, r, http.StatusInternalServerError, "failed to list recordings")

		return
	}

	out := make([]recordingResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toRecordingResponse(e))
	}

	respondJSON(w, r, http.StatusOK, out)
}

func (h *Handler) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	// Recording IDs are device paths like /recordings/series/episodes/123,
	// so the route uses a wildcard and re-adds the leading slash.
	id := chi.URLParam(r, "*")
	if !strings.HasPrefix(id, "/") {
		id = "/" + id
	}

	entries, err := h.catalog.EntriesByID(r.Context(), id)
	if err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to fetch recording", "err", err)
		respondError(w, r, http.StatusInternalServerError, "failed to fetch recording")

		return
	}

	if len(entries) == 0 {
		respondError(w, r, http.StatusNotFound, "recording not found")

		return
	}

	out := make([]recordingResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toRecordingResponse(e))
	}

	respondJSON(w, r, http.StatusOK, out)
}
