// Package uploader pushes materialized recordings to a cloud backend,
// consulting the upload ledger so the same content never transfers twice.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"tablodl/internal/logctx"
	"tablodl/internal/storage"
	"tablodl/internal/uploader/progress"
)

// progressInterval is how many bytes pass between progress log lines.
const progressInterval = int64(100 * 1024 * 1024) // 100MB

// DefaultExtensions is the set of file extensions treated as video files.
var DefaultExtensions = []string{".mp4", ".mkv", ".avi", ".mov", ".m4v", ".mpg", ".mpeg"}

// CloudClient is one cloud storage backend.
type CloudClient interface {
	// Name identifies the backend in logs and ledger records.
	Name() string
	// Authenticate verifies credentials before any transfer starts.
	Authenticate(ctx context.Context) error
	// Upload transfers one file and returns a backend reference for it.
	Upload(ctx context.Context, r io.Reader, name string, size int64) (string, error)
}

// Outcome classifies what happened to one file.
type Outcome string

const (
	OutcomeUploaded         Outcome = "uploaded"
	OutcomeSkippedDuplicate Outcome = "skipped_duplicate"
	OutcomeFailed           Outcome = "failed"
)

// Options tune one upload pass.
type Options struct {
	// DryRun reports intended actions without transfers or ledger writes.
	DryRun bool
}

// Summary is the end-of-run accounting, by file name.
type Summary struct {
	Uploaded []string
	Skipped  []string
	Failed   []string
}

func (s *Summary) add(name string, outcome Outcome) {
	switch outcome {
	case OutcomeUploaded:
		s.Uploaded = append(s.Uploaded, name)
	case OutcomeSkippedDuplicate:
		s.Skipped = append(s.Skipped, name)
	case OutcomeFailed:
		s.Failed = append(s.Failed, name)
	}
}

type Uploader struct {
	client      CloudClient
	ledger      storage.UploadLedger
	extensions  map[string]bool
	maxParallel int
	timeout     time.Duration
}

func New(client CloudClient, ledger storage.UploadLedger, extensions []string, maxParallel int, timeout time.Duration) *Uploader {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	extSet := make(map[string]bool, len(extensions))

	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}

		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}

		extSet[ext] = true
	}

	if maxParallel < 1 {
		maxParallel = 1
	}

	return &Uploader{
		client:      client,
		ledger:      ledger,
		extensions:  extSet,
		maxParallel: maxParallel,
		timeout:     timeout,
	}
}

// UploadIfNeeded transfers one file unless its content identity already has
// a ledger record. The record is written strictly after the transfer
// succeeds; on failure nothing is written and the next run retries.
func (u *Uploader) UploadIfNeeded(ctx context.Context, path string, opts Options) (Outcome, error) {
	name := filepath.Base(path)
	logger := logctx.LoggerFromContext(ctx).With("file", name)

	info, err := os.Stat(path)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to stat file: %w", err)
	}

	if info.Size() == 0 {
		return OutcomeFailed, &UploadError{FileName: name, Provider: u.client.Name(), Err: errors.New("file is empty")}
	}

	identity, err := FileIdentity(path)
	if err != nil {
		return OutcomeFailed, err
	}

	rec, err := u.ledger.FindByIdentity(ctx, identity)

	switch {
	case err == nil:
		logger.Info("skipping already uploaded file",
			"identity", identity,
			"uploaded_at", rec.UploadedAt,
			"uploaded_as", rec.FileName)

		return OutcomeSkippedDuplicate, nil
	case errors.Is(err, storage.ErrNotFound):
		// First sighting of this content, carry on.
	default:
		return OutcomeFailed, fmt.Errorf("failed to consult upload ledger: %w", err)
	}

	if opts.DryRun {
		logger.Info("dry run: would upload file", "size", humanize.Bytes(uint64(info.Size())))

		return OutcomeUploaded, nil
	}

	remoteRef, err := u.transfer(ctx, logger, path, name, info.Size())
	if err != nil {
		return OutcomeFailed, &UploadError{FileName: name, Provider: u.client.Name(), Err: err}
	}

	record := storage.UploadRecord{
		Identity:   identity,
		FileName:   name,
		FileSize:   info.Size(),
		ModifiedAt: info.ModTime().UTC(),
		Provider:   u.client.Name(),
		RemoteRef:  remoteRef,
		UploadedAt: time.Now().UTC(),
	}

	if err := u.ledger.RecordUpload(ctx, record); err != nil {
		// The transfer happened; losing the record means at most one
		// re-upload next run. Surface it anyway.
		return OutcomeUploaded, fmt.Errorf("uploaded but failed to record: %w", err)
	}

	logger.Info("uploaded file", "size", humanize.Bytes(uint64(info.Size())), "remote_ref", remoteRef)

	return OutcomeUploaded, nil
}

func (u *Uploader) transfer(ctx context.Context, logger *slog.Logger, path, name string, size int64) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}

	defer file.Close()

	if u.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	progressCb := func(read int64, total int64) {
		logger.Debug("upload progress",
			"uploaded", humanize.Bytes(uint64(read)),
			"total", humanize.Bytes(uint64(total)),
			"percent", humanize.FtoaWithDigits(float64(read)*100/float64(total), 2))
	}
	reader := progress.NewReader(file, size, progressInterval, progressCb)

	return u.client.Upload(ctx, reader, name, size)
}

// UploadDir uploads every video file in dir that lacks a ledger record,
// bounded-parallel, and returns the per-file accounting. Individual
// failures do not stop the batch.
func (u *Uploader) UploadDir(ctx context.Context, dir string, opts Options) (*Summary, error) {
	logger := logctx.LoggerFromContext(ctx).With("dir", dir)

	files, err := u.videoFiles(ctx, dir)
	if err != nil {
		return nil, err
	}

	logger.Info("found video files to consider", "file_count", len(files))

	var (
		mu      sync.Mutex
		summary Summary
	)

	wg, ctx := errgroup.WithContext(ctx)
	wg.SetLimit(u.maxParallel)

	for _, path := range files {
		wg.Go(func() error {
			outcome, err := u.UploadIfNeeded(ctx, path, opts)
			if err != nil {
				logger.Error("failed to upload file", "file", filepath.Base(path), "err", err)
			}

			mu.Lock()
			summary.add(filepath.Base(path), outcome)
			mu.Unlock()

			// Per-file failures stay in the summary; only cancellation
			// stops the batch.
			return ctx.Err()
		})
	}

	if err := wg.Wait(); err != nil {
		return &summary, fmt.Errorf("upload batch interrupted: %w", err)
	}

	return &summary, nil
}

// UploadNewest considers only the most recently modified video file in dir.
// Older files never upload in this mode, recorded or not.
func (u *Uploader) UploadNewest(ctx context.Context, dir string, opts Options) (*Summary, error) {
	logger := logctx.LoggerFromContext(ctx).With("dir", dir)

	files, err := u.videoFiles(ctx, dir)
	if err != nil {
		return nil, err
	}

	var summary Summary

	if len(files) == 0 {
		logger.Info("no video files found")

		return &summary, nil
	}

	newest := files[0]
	newestMod := time.Time{}

	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		if info.ModTime().After(newestMod) {
			newest = path
			newestMod = info.ModTime()
		}
	}

	logger.Info("selected newest video file", "file", filepath.Base(newest), "file_count", len(files))

	outcome, err := u.UploadIfNeeded(ctx, newest, opts)
	if err != nil {
		logger.Error("failed to upload newest file", "file", filepath.Base(newest), "err", err)
	}

	summary.add(filepath.Base(newest), outcome)

	return &summary, nil
}

// videoFiles lists regular files in dir with a configured video extension,
// sorted by name. Empty files are dropped here so batch modes never see
// them.
func (u *Uploader) videoFiles(ctx context.Context, dir string) ([]string, error) {
	logger := logctx.LoggerFromContext(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []string

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		if !u.extensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.Size() == 0 {
			logger.Warn("skipping empty file", "file", entry.Name())

			continue
		}

		files = append(files, filepath.Join(dir, entry.Name()))
	}

	sort.Strings(files)

	return files, nil
}
