package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tablodl/internal/catalog"
	"tablodl/internal/storage"
	"tablodl/internal/telemetry"
)

var (
	_ storage.CatalogRepository = (*InstrumentedCatalogRepository)(nil)
	_ storage.UploadLedger      = (*InstrumentedLedgerRepository)(nil)
)

// InstrumentedCatalogRepository wraps CatalogRepository with telemetry.
type InstrumentedCatalogRepository struct {
	repo      *CatalogRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedCatalogRepository creates a new instrumented catalog repository.
func NewInstrumentedCatalogRepository(db *sql.DB, tel *telemetry.Telemetry) *InstrumentedCatalogRepository {
	return &InstrumentedCatalogRepository{
		repo:      NewCatalogRepository(db),
		telemetry: tel,
	}
}

// UpsertEntry inserts or refreshes an entry with telemetry.
func (r *InstrumentedCatalogRepository) UpsertEntry(ctx context.Context, e catalog.Entry) error {
	return r.telemetry.InstrumentDBOperation(ctx, "upsert_entry", func(ctx context.Context) error {
		return r.repo.UpsertEntry(ctx, e)
	})
}

// Entries lists filtered entries with telemetry.
func (r *InstrumentedCatalogRepository) Entries(ctx context.Context, f storage.EntryFilter) ([]catalog.Entry, error) {
	var result []catalog.Entry

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "list_entries", func(ctx context.Context) error {
		result, err = r.repo.Entries(ctx, f)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// EntriesByDevice lists one device's entries with telemetry.
func (r *InstrumentedCatalogRepository) EntriesByDevice(ctx context.Context, deviceID string) ([]catalog.Entry, error) {
	var result []catalog.Entry

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "entries_by_device", func(ctx context.Context) error {
		result, err = r.repo.EntriesByDevice(ctx, deviceID)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// EntriesByID looks up entries by recording identifier with telemetry.
func (r *InstrumentedCatalogRepository) EntriesByID(ctx context.Context, id string) ([]catalog.Entry, error) {
	var result []catalog.Entry

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "entries_by_id", func(ctx context.Context) error {
		result, err = r.repo.EntriesByID(ctx, id)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// MarkStale flags vanished entries with telemetry.
func (r *InstrumentedCatalogRepository) MarkStale(ctx context.Context, deviceID string, ids []string) (int64, error) {
	var result int64

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "mark_stale", func(ctx context.Context) error {
		result, err = r.repo.MarkStale(ctx, deviceID, ids)

		return err
	})

	if instrumentedErr != nil {
		return 0, instrumentedErr
	}

	return result, nil
}

// TouchSynced bumps sync timestamps with telemetry.
func (r *InstrumentedCatalogRepository) TouchSynced(ctx context.Context, deviceID string, ids []string, at time.Time) error {
	return r.telemetry.InstrumentDBOperation(ctx, "touch_synced", func(ctx context.Context) error {
		return r.repo.TouchSynced(ctx, deviceID, ids, at)
	})
}

// SetDownloadState records retrieval bookkeeping with telemetry.
func (r *InstrumentedCatalogRepository) SetDownloadState(ctx context.Context, deviceID, id string, status catalog.Status, localPath string, at time.Time) error {
	return r.telemetry.InstrumentDBOperation(ctx, "set_download_state", func(ctx context.Context) error {
		return r.repo.SetDownloadState(ctx, deviceID, id, status, localPath, at)
	})
}

// InstrumentedLedgerRepository wraps LedgerRepository with telemetry.
type InstrumentedLedgerRepository struct {
	repo      *LedgerRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedLedgerRepository creates a new instrumented ledger repository.
func NewInstrumentedLedgerRepository(db *sql.DB, tel *telemetry.Telemetry) *InstrumentedLedgerRepository {
	return &InstrumentedLedgerRepository{
		repo:      NewLedgerRepository(db),
		telemetry: tel,
	}
}

// FindByIdentity looks up one record with telemetry. A miss is a normal
// outcome for the duplicate check, so it is not counted as a database error.
func (r *InstrumentedLedgerRepository) FindByIdentity(ctx context.Context, identity string) (storage.UploadRecord, error) {
	var result storage.UploadRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "find_upload", func(ctx context.Context) error {
		result, err = r.repo.FindByIdentity(ctx, identity)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}

		return err
	})

	if instrumentedErr != nil {
		return storage.UploadRecord{}, instrumentedErr
	}

	return result, err
}

// RecordUpload writes one confirmed upload with telemetry.
func (r *InstrumentedLedgerRepository) RecordUpload(ctx context.Context, rec storage.UploadRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "record_upload", func(ctx context.Context) error {
		return r.repo.RecordUpload(ctx, rec)
	})
}

// Uploads lists all ledger records with telemetry.
func (r *InstrumentedLedgerRepository) Uploads(ctx context.Context) ([]storage.UploadRecord, error) {
	var result []storage.UploadRecord

	var err error

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "list_uploads", func(ctx context.Context) error {
		result, err = r.repo.Uploads(ctx)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}
