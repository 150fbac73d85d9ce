package storage

import (
	"context"
	"errors"
	"time"

	"tablodl/internal/catalog"
)

// ErrCorrupt marks an unreadable or inconsistent persisted store. Callers
// must refuse to proceed rather than risk mass re-download or re-upload.
var ErrCorrupt = errors.New("store is corrupt")

// ErrNotFound is returned by point lookups that matched nothing.
var ErrNotFound = errors.New("not found")

// UploadRecord is one confirmed upload, keyed by content identity (SHA-256
// of the file bytes). Records are written strictly after transfer success
// and never on failure, so existence alone means "already uploaded".
type UploadRecord struct {
	Identity   string
	FileName   string
	FileSize   int64
	ModifiedAt time.Time
	Provider   string
	RemoteRef  string
	UploadedAt time.Time
}

// EntryFilter narrows catalog listings. Zero values mean "any".
type EntryFilter struct {
	DeviceID     string
	Category     string
	ShowTitle    string
	Status       catalog.Status
	IncludeStale bool
}

// CatalogRepository is the persisted recording catalog.
type CatalogRepository interface {
	UpsertEntry(ctx context.Context, e catalog.Entry) error
	Entries(ctx context.Context, f EntryFilter) ([]catalog.Entry, error)
	EntriesByDevice(ctx context.Context, deviceID string) ([]catalog.Entry, error)
	EntriesByID(ctx context.Context, id string) ([]catalog.Entry, error)
	MarkStale(ctx context.Context, deviceID string, ids []string) (int64, error)
	TouchSynced(ctx context.Context, deviceID string, ids []string, at time.Time) error
	SetDownloadState(ctx context.Context, deviceID, id string, status catalog.Status, localPath string, at time.Time) error
}

// UploadLedger is the persisted duplicate-avoidance ledger.
type UploadLedger interface {
	FindByIdentity(ctx context.Context, identity string) (UploadRecord, error)
	RecordUpload(ctx context.Context, rec UploadRecord) error
	Uploads(ctx context.Context) ([]UploadRecord, error)
}
