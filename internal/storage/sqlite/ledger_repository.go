package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tablodl/internal/storage"
)

// LedgerRepository persists the upload dedup ledger in SQLite.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// FindByIdentity looks up the upload record for one content identity.
// Returns storage.ErrNotFound when the identity was never uploaded.
func (r *LedgerRepository) FindByIdentity(ctx context.Context, identity string) (storage.UploadRecord, error) {
	query := `SELECT identity, file_name, file_size, modified_at, provider, remote_ref, uploaded_at
		FROM uploads WHERE identity = ?`

	row := r.db.QueryRowContext(ctx, query, identity)

	rec, err := scanUploadRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.UploadRecord{}, fmt.Errorf("identity %s: %w", identity, storage.ErrNotFound)
		}

		return storage.UploadRecord{}, fmt.Errorf("failed to look up identity %s: %w", identity, err)
	}

	return rec, nil
}

// RecordUpload marks one content identity as uploaded. Re-uploading the
// same content (renamed file, --overwrite) refreshes the metadata but
// keeps a single record per identity.
func (r *LedgerRepository) RecordUpload(ctx context.Context, rec storage.UploadRecord) error {
	query := `INSERT INTO uploads (identity, file_name, file_size, modified_at, provider, remote_ref, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (identity) DO UPDATE SET
			file_name = excluded.file_name,
			file_size = excluded.file_size,
			modified_at = excluded.modified_at,
			provider = excluded.provider,
			remote_ref = excluded.remote_ref,
			uploaded_at = excluded.uploaded_at`

	_, err := r.db.ExecContext(ctx, query,
		rec.Identity, rec.FileName, rec.FileSize, formatTime(rec.ModifiedAt),
		rec.Provider, rec.RemoteRef, formatTime(rec.UploadedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record upload %s: %w", rec.Identity, err)
	}

	return nil
}

// Uploads returns the full ledger, most recent upload first.
func (r *LedgerRepository) Uploads(ctx context.Context) ([]storage.UploadRecord, error) {
	query := `SELECT identity, file_name, file_size, modified_at, provider, remote_ref, uploaded_at
		FROM uploads ORDER BY uploaded_at DESC, identity`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var records []storage.UploadRecord

	for rows.Next() {
		rec, err := scanUploadRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload record: %w", err)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read uploads: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUploadRecord(row rowScanner) (storage.UploadRecord, error) {
	var (
		rec                    storage.UploadRecord
		modifiedAt, uploadedAt string
	)

	err := row.Scan(
		&rec.Identity, &rec.FileName, &rec.FileSize, &modifiedAt,
		&rec.Provider, &rec.RemoteRef, &uploadedAt,
	)
	if err != nil {
		return storage.UploadRecord{}, err
	}

	rec.ModifiedAt = parseTime(modifiedAt)
	rec.UploadedAt = parseTime(uploadedAt)

	return rec, nil
}
