// Package fetch materializes device recordings as local MP4 files: watch
// playlist, manifest to a temp .m3u, ffmpeg stream copy onto a partial
// path, validation, then an atomic rename onto the final name.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"tablodl/internal/catalog"
	"tablodl/internal/ffmpeg"
	"tablodl/internal/logctx"
)

const (
	dirPerm = 0755

	// partialSuffix marks an in-flight download. Nothing incomplete ever
	// sits under the final name.
	partialSuffix = ".partial"
)

// Device is the subset of the device client needed for retrieval.
type Device interface {
	Manifest(ctx context.Context, id string) (string, error)
	Delete(ctx context.Context, id string) error
}

// Transcoder turns a local manifest into a single media file.
type Transcoder interface {
	Remux(ctx context.Context, manifestPath, outputPath, title string) error
}

// Prober reads container metadata back for validation.
type Prober interface {
	Probe(ctx context.Context, path string) (ffmpeg.ProbeResult, error)
}

// CatalogUpdater persists download-state transitions.
type CatalogUpdater interface {
	SetDownloadState(ctx context.Context, deviceID, id string, status catalog.Status, localPath string, at time.Time) error
}

// Options tune a single fetch.
type Options struct {
	// Overwrite re-downloads even when a valid file already exists.
	Overwrite bool
	// DryRun reports the intended action without touching disk, device, or
	// catalog.
	DryRun bool
	// DeleteOriginal removes the device-side recording after a validated
	// download.
	DeleteOriginal bool
}

// Result describes what a fetch did.
type Result struct {
	Path    string
	Title   string
	Skipped bool    // existing file kept, nothing transferred
	Removed bool    // device-side recording deleted afterwards
	Seconds float64 // probed duration, 0 when validation is off
}

type Fetcher struct {
	device     Device
	transcoder Transcoder
	prober     Prober
	repo       CatalogUpdater

	downloadDir string
	validate    bool
	minSize     int64
	timeout     time.Duration
}

func New(device Device, transcoder Transcoder, prober Prober, repo CatalogUpdater, downloadDir string, validate bool, minSize int64, timeout time.Duration) *Fetcher {
	if minSize <= 0 {
		minSize = MinFileSize
	}

	return &Fetcher{
		device:      device,
		transcoder:  transcoder,
		prober:      prober,
		repo:        repo,
		downloadDir: downloadDir,
		validate:    validate,
		minSize:     minSize,
		timeout:     timeout,
	}
}

// Fetch downloads one catalog entry. An existing valid file is a no-op
// success unless opts.Overwrite is set.
func (f *Fetcher) Fetch(ctx context.Context, entry catalog.Entry, opts Options) (*Result, error) {
	title, filename := catalog.TitleAndFileName(entry.Recording)
	if filename == "" {
		return nil, fmt.Errorf("cannot derive a file name for recording %s", entry.Recording.ID)
	}

	logger := logctx.LoggerFromContext(ctx).With("recording_id", entry.Recording.ID, "file", filename)
	targetPath := filepath.Join(f.downloadDir, filename)
	expected := float64(entry.Duration)

	if opts.DryRun {
		_, err := os.Stat(targetPath)
		exists := err == nil

		switch {
		case exists && opts.Overwrite:
			logger.Info("dry run: would overwrite existing download", "target", targetPath)
		case exists:
			logger.Info("dry run: would skip existing download", "target", targetPath)
		default:
			logger.Info("dry run: would download recording", "target", targetPath)
		}

		return &Result{Path: targetPath, Title: title, Skipped: exists && !opts.Overwrite}, nil
	}

	if err := os.MkdirAll(f.downloadDir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	if _, err := os.Stat(targetPath); err == nil {
		keep, err := f.reuseExisting(ctx, logger, targetPath, expected, opts)
		if err != nil {
			return nil, err
		}

		if keep {
			if err := f.setState(ctx, entry, catalog.StatusComplete, targetPath); err != nil {
				return nil, err
			}

			return &Result{Path: targetPath, Title: title, Skipped: true}, nil
		}
	}

	result, err := f.download(ctx, entry, title, targetPath, expected)
	if err != nil {
		f.markFailed(ctx, logger, entry)

		return nil, err
	}

	if err := f.setState(ctx, entry, catalog.StatusComplete, targetPath); err != nil {
		return nil, err
	}

	if opts.DeleteOriginal {
		if err := f.device.Delete(ctx, entry.Recording.ID); err != nil {
			logger.Warn("failed to delete device-side recording", "err", err)
		} else {
			logger.Info("deleted device-side recording")

			result.Removed = true
		}
	}

	return result, nil
}

// reuseExisting decides what to do with a file already under the final
// name. Returns true when the file should be kept as-is.
func (f *Fetcher) reuseExisting(ctx context.Context, logger *slog.Logger, targetPath string, expected float64, opts Options) (bool, error) {
	if opts.Overwrite {
		if err := os.Remove(targetPath); err != nil {
			return false, fmt.Errorf("failed to remove existing file: %w", err)
		}

		logger.Info("removed existing file for re-download", "target", targetPath)

		return false, nil
	}

	if !f.validate {
		logger.Info("existing download found, skipping", "target", targetPath)

		return true, nil
	}

	v := Validate(ctx, f.prober, targetPath, expected, f.minSize)

	switch {
	case !v.OK:
		logger.Warn("existing download is corrupted, re-downloading", "target", targetPath, "reason", v.Reason)

		if err := os.Remove(targetPath); err != nil {
			return false, fmt.Errorf("failed to remove corrupted file: %w", err)
		}

		return false, nil
	case v.Incomplete():
		logger.Warn("existing download is incomplete, re-downloading", "target", targetPath, "reason", v.Reason)

		if err := os.Remove(targetPath); err != nil {
			return false, fmt.Errorf("failed to remove incomplete file: %w", err)
		}

		return false, nil
	case !v.WithinTolerance():
		// Could be a different airing of the same episode; keep it rather
		// than destroying data.
		logger.Warn("existing download has a duration mismatch, keeping it", "target", targetPath, "reason", v.Reason)

		return true, nil
	default:
		logger.Info("existing download is valid, skipping", "target", targetPath, "reason", v.Reason)

		return true, nil
	}
}

func (f *Fetcher) download(ctx context.Context, entry catalog.Entry, title, targetPath string, expected float64) (*Result, error) {
	logger := logctx.LoggerFromContext(ctx).With("recording_id", entry.Recording.ID)

	if f.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	if err := f.setState(ctx, entry, catalog.StatusDownloading, ""); err != nil {
		return nil, err
	}

	manifest, err := f.device.Manifest(ctx, entry.Recording.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve playlist manifest: %w", err)
	}

	manifestPath, err := writeManifest(manifest)
	if err != nil {
		return nil, err
	}

	defer os.Remove(manifestPath)

	partialPath := targetPath + partialSuffix
	// A crashed run may have left a stale partial behind.
	_ = os.Remove(partialPath)

	logger.Info("downloading recording", "target", targetPath)

	if err := f.transcoder.Remux(ctx, manifestPath, partialPath, title); err != nil {
		_ = os.Remove(partialPath)

		return nil, fmt.Errorf("failed to remux recording: %w", err)
	}

	var seconds float64

	if f.validate {
		v := Validate(ctx, f.prober, partialPath, expected, f.minSize)
		if !v.OK || !v.WithinTolerance() {
			_ = os.Remove(partialPath)

			return nil, &InvalidFileError{Path: targetPath, Reason: v.Reason}
		}

		seconds = v.Seconds
	}

	if err := os.Rename(partialPath, targetPath); err != nil {
		_ = os.Remove(partialPath)

		return nil, fmt.Errorf("failed to move download into place: %w", err)
	}

	if info, err := os.Stat(targetPath); err == nil {
		logger.Info("downloaded and validated recording", "target", targetPath, "size", humanize.Bytes(uint64(info.Size())))
	}

	return &Result{Path: targetPath, Title: title, Seconds: seconds}, nil
}

// markFailed records the failure best-effort; the original error is what
// the caller needs to see. The detached context lets the write land even
// when the run was cancelled.
func (f *Fetcher) markFailed(ctx context.Context, logger *slog.Logger, entry catalog.Entry) {
	if err := f.setState(context.WithoutCancel(ctx), entry, catalog.StatusFailed, ""); err != nil {
		logger.Warn("failed to record download failure", "err", err)
	}
}

func (f *Fetcher) setState(ctx context.Context, entry catalog.Entry, status catalog.Status, path string) error {
	if err := f.repo.SetDownloadState(ctx, entry.DeviceID, entry.Recording.ID, status, path, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update download state: %w", err)
	}

	return nil
}

func writeManifest(manifest string) (string, error) {
	file, err := os.CreateTemp("", "tablodl-*.m3u")
	if err != nil {
		return "", fmt.Errorf("failed to create manifest file: %w", err)
	}

	if _, err := file.WriteString(manifest); err != nil {
		file.Close()
		os.Remove(file.Name())

		return "", fmt.Errorf("failed to write manifest file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(file.Name())

		return "", fmt.Errorf("failed to close manifest file: %w", err)
	}

	return file.Name(), nil
}
