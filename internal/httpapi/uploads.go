package httpapi

import (
	"net/http"
	"time"

	"tablodl/internal/logctx"
	"tablodl/internal/storage"
)

type uploadResponse struct {
	Identity   string    `json:"identity"`
	FileName   string    `json:"file_name"`
	FileSize   int64     `json:"file_size"`
	Provider   string    `json:"provider"`
	RemoteRef  string    `json:"remote_ref,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func toUploadResponse(rec storage.UploadRecord) uploadResponse {
	return uploadResponse{
		Identity:   rec.Identity,
		FileName:   rec.FileName,
		FileSize:   rec.FileSize,
		Provider:   rec.Provider,
		RemoteRef:  rec.RemoteRef,
		UploadedAt: rec.UploadedAt,
	}
}

func (h *Handler) handleListUploads(w http.ResponseWriter, r *http.Request) {
	records, err := h.ledger.Uploads(r.Context())
	if err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to list uploads", "err", err)
		respondError(w, r, http.StatusInternalServerError, "failed to list uploads")

		return
	}

	out := make([]uploadResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toUploadResponse(rec))
	}

	respondJSON(w, r, http.StatusOK, out)
}
