package httpapi

import (
	"context"
	"net/http"

	"tablodl/internal/catalog"
	"tablodl/internal/logctx"
)

// SyncFunc triggers one catalog synchronize pass against all configured
// devices. The serve loop supplies it; a nil SyncFunc disables POST /api/sync.
type SyncFunc func(ctx context.Context) (*catalog.SyncReport, error)

type syncResponse struct {
	Devices     int `json:"devices"`
	Discovered  int `json:"discovered"`
	Refreshed   int `json:"refreshed"`
	Unchanged   int `json:"unchanged"`
	MarkedStale int `json:"marked_stale"`

	DeviceErrors   []string `json:"device_errors,omitempty"`
	MetadataErrors []string `json:"metadata_errors,omitempty"`
}

func toSyncResponse(report *catalog.SyncReport) syncResponse {
	resp := syncResponse{
		Devices:     report.Devices,
		Discovered:  report.Discovered,
		Refreshed:   report.Refreshed,
		Unchanged:   report.Unchanged,
		MarkedStale: report.MarkedStale,
	}

	for _, devErr := range report.DeviceErrors {
		resp.DeviceErrors = append(resp.DeviceErrors, devErr.Error())
	}

	for _, metaErr := range report.MetadataErrors {
		resp.MetadataErrors = append(resp.MetadataErrors, metaErr.Error())
	}

	return resp
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	if h.syncNow == nil {
		respondError(w, r, http.StatusServiceUnavailable, "sync is not available")

		return
	}

	select {
	case h.syncGate <- struct{}{}:
		defer func() { <-h.syncGate }()
	default:
		respondError(w, r, http.StatusConflict, "sync already in progress")

		return
	}

	logctx.LoggerFromContext(r.Context()).Info("sync triggered via API")

	report, err := h.syncNow(r.Context())
	if err != nil {
		logctx.LoggerFromContext(r.Context()).Error("sync failed", "err", err)
		respondError(w, r, http.StatusInternalServerError, "sync failed")

		return
	}

	respondJSON(w, r, http.StatusOK, toSyncResponse(report))
}
