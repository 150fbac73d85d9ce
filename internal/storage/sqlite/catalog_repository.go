package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tablodl/internal/catalog"
	"tablodl/internal/storage"
)

// inChunkSize keeps IN (...) clauses well under SQLite's host parameter
// limit.
const inChunkSize = 500

const entryColumns = `id, device_id, device_ip, category, show_title, episode_title,
	season, episode, air_date, air_year, description, duration, state, clean, protected,
	first_seen_at, last_synced_at, stale, download_status, local_path, downloaded_at`

// CatalogRepository persists the recording catalog in SQLite.
type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// UpsertEntry inserts a new entry or refreshes an existing one. On conflict
// the device-reported metadata is replaced while local bookkeeping
// (first_seen_at and the download fields) is preserved; stale is always
// cleared because the device is reporting the recording again.
func (r *CatalogRepository) UpsertEntry(ctx context.Context, e catalog.Entry) error {
	query := `INSERT INTO recordings (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (device_id, id) DO UPDATE SET
			device_ip = excluded.device_ip,
			category = excluded.category,
			show_title = excluded.show_title,
			episode_title = excluded.episode_title,
			season = excluded.season,
			episode = excluded.episode,
			air_date = excluded.air_date,
			air_year = excluded.air_year,
			description = excluded.description,
			duration = excluded.duration,
			state = excluded.state,
			clean = excluded.clean,
			protected = excluded.protected,
			last_synced_at = excluded.last_synced_at,
			stale = 0`

	status := e.DownloadStatus
	if status == "" {
		status = catalog.StatusNone
	}

	_, err := r.db.ExecContext(ctx, query,
		e.Recording.ID, e.DeviceID, e.DeviceIP, e.Category, e.ShowTitle, e.EpisodeTitle,
		e.Season, e.Episode, formatTime(e.AirDate), e.AirYear, e.Description, e.Duration,
		e.State, e.Clean, e.Protected,
		formatTime(e.FirstSeenAt), formatTime(e.LastSyncedAt),
		string(status), e.LocalPath, formatTime(e.DownloadedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert entry %s: %w", e.Recording.ID, err)
	}

	return nil
}

// Entries returns catalog entries matching the filter, ordered by show
// title, air date and identifier. Stale entries are excluded unless asked
// for.
func (r *CatalogRepository) Entries(ctx context.Context, f storage.EntryFilter) ([]catalog.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM recordings`

	var (
		conds []string
		args  []any
	)

	if !f.IncludeStale {
		conds = append(conds, "stale = 0")
	}

	if f.DeviceID != "" {
		conds = append(conds, "device_id = ?")
		args = append(args, f.DeviceID)
	}

	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}

	if f.ShowTitle != "" {
		conds = append(conds, "show_title = ? COLLATE NOCASE")
		args = append(args, f.ShowTitle)
	}

	if f.Status != "" {
		conds = append(conds, "download_status = ?")
		args = append(args, string(f.Status))
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	query += " ORDER BY show_title COLLATE NOCASE, air_date, id"

	return r.queryEntries(ctx, query, args...)
}

// EntriesByDevice returns every entry for one device, stale included. The
// sync engine needs the full picture to decide what vanished.
func (r *CatalogRepository) EntriesByDevice(ctx context.Context, deviceID string) ([]catalog.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM recordings WHERE device_id = ?`

	return r.queryEntries(ctx, query, deviceID)
}

// EntriesByID returns entries with the given recording identifier across
// all devices. Identifiers are unique per device but two devices can in
// principle hand out the same path.
func (r *CatalogRepository) EntriesByID(ctx context.Context, id string) ([]catalog.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM recordings WHERE id = ? ORDER BY device_id`

	return r.queryEntries(ctx, query, id)
}

// MarkStale flags the given identifiers on one device as no longer
// reported. Returns the number of entries actually flipped.
func (r *CatalogRepository) MarkStale(ctx context.Context, deviceID string, ids []string) (int64, error) {
	var total int64

	for _, chunk := range chunkIDs(ids) {
		query := `UPDATE recordings SET stale = 1 WHERE device_id = ? AND stale = 0 AND id IN (` + placeholders(len(chunk)) + `)`

		args := make([]any, 0, len(chunk)+1)
		args = append(args, deviceID)
		for _, id := range chunk {
			args = append(args, id)
		}

		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("failed to mark entries stale: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to count stale entries: %w", err)
		}

		total += n
	}

	return total, nil
}

// TouchSynced bumps last_synced_at on unchanged entries.
func (r *CatalogRepository) TouchSynced(ctx context.Context, deviceID string, ids []string, at time.Time) error {
	for _, chunk := range chunkIDs(ids) {
		query := `UPDATE recordings SET last_synced_at = ? WHERE device_id = ? AND id IN (` + placeholders(len(chunk)) + `)`

		args := make([]any, 0, len(chunk)+2)
		args = append(args, formatTime(at), deviceID)
		for _, id := range chunk {
			args = append(args, id)
		}

		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to touch entries: %w", err)
		}
	}

	return nil
}

// SetDownloadState records the local retrieval status of one entry.
func (r *CatalogRepository) SetDownloadState(ctx context.Context, deviceID, id string, status catalog.Status, localPath string, at time.Time) error {
	query := `UPDATE recordings SET download_status = ?, local_path = ?, downloaded_at = ? WHERE device_id = ? AND id = ?`

	res, err := r.db.ExecContext(ctx, query, string(status), localPath, formatTime(at), deviceID, id)
	if err != nil {
		return fmt.Errorf("failed to set download state for %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set download state for %s: %w", id, err)
	}

	if n == 0 {
		return fmt.Errorf("entry %s on device %s: %w", id, deviceID, storage.ErrNotFound)
	}

	return nil
}

func (r *CatalogRepository) queryEntries(ctx context.Context, query string, args ...any) ([]catalog.Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []catalog.Entry

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}

	return entries, nil
}

func scanEntry(rows *sql.Rows) (catalog.Entry, error) {
	var (
		e                                            catalog.Entry
		airDate, firstSeen, lastSynced, downloadedAt string
		status                                       string
	)

	err := rows.Scan(
		&e.Recording.ID, &e.DeviceID, &e.DeviceIP, &e.Category, &e.ShowTitle, &e.EpisodeTitle,
		&e.Season, &e.Episode, &airDate, &e.AirYear, &e.Description, &e.Duration,
		&e.State, &e.Clean, &e.Protected,
		&firstSeen, &lastSynced, &e.Stale, &status, &e.LocalPath, &downloadedAt,
	)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.AirDate = parseTime(airDate)
	e.FirstSeenAt = parseTime(firstSeen)
	e.LastSyncedAt = parseTime(lastSynced)
	e.DownloadedAt = parseTime(downloadedAt)
	e.DownloadStatus = catalog.Status(status)

	return e, nil
}

func chunkIDs(ids []string) [][]string {
	var chunks [][]string

	for len(ids) > inChunkSize {
		chunks = append(chunks, ids[:inChunkSize])
		ids = ids[inChunkSize:]
	}

	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}

	return chunks
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// formatTime stores times as RFC 3339 UTC strings; the zero time becomes an
// empty string so "never happened" survives round-trips.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}

	return t
}
