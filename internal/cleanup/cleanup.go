// Package cleanup removes local video files whose content is already
// uploaded and older than the retention window. Files without a ledger
// record are never touched, whatever their age.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tablodl/internal/logctx"
	"tablodl/internal/storage"
	"tablodl/internal/uploader"
)

// Result summarizes one cleanup pass.
type Result struct {
	Removed int
	Kept    int
	Failed  int
}

// Cleaner deletes uploaded local files past their retention window.
type Cleaner struct {
	ledger    storage.UploadLedger
	isVideo   func(name string) bool
	retention time.Duration
	dryRun    bool
}

// New creates a Cleaner. A retention of zero or less disables every pass.
func New(ledger storage.UploadLedger, isVideo func(string) bool, retention time.Duration, dryRun bool) *Cleaner {
	return &Cleaner{
		ledger:    ledger,
		isVideo:   isVideo,
		retention: retention,
		dryRun:    dryRun,
	}
}

// Run scans dir once and removes eligible files. Eligibility is decided by
// content identity: the file's hash must have a ledger record whose upload
// time is older than the retention window.
func (c *Cleaner) Run(ctx context.Context, dir string) (*Result, error) {
	logger := logctx.LoggerFromContext(ctx)
	result := &Result{}

	if c.retention <= 0 {
		return result, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return result, fmt.Errorf("failed to read directory: %w", err)
	}

	now := time.Now()

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if entry.IsDir() || !c.isVideo(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		identity, err := uploader.FileIdentity(path)
		if err != nil {
			logger.Error("failed to hash file for cleanup", "file", path, "err", err)
			result.Failed++

			continue
		}

		rec, err := c.ledger.FindByIdentity(ctx, identity)
		if errors.Is(err, storage.ErrNotFound) {
			result.Kept++

			continue
		}

		if err != nil {
			return result, fmt.Errorf("failed to check upload ledger: %w", err)
		}

		age := now.Sub(rec.UploadedAt)
		if age <= c.retention {
			result.Kept++

			continue
		}

		if c.dryRun {
			logger.Info("would remove uploaded file", "file", path, "uploaded_at", rec.UploadedAt)
			result.Removed++

			continue
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Error("failed to remove uploaded file", "file", path, "err", err)
			result.Failed++

			continue
		}

		logger.Info("removed uploaded file", "file", path, "uploaded_at", rec.UploadedAt)
		result.Removed++
	}

	return result, nil
}
