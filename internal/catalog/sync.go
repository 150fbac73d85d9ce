package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tablodl/internal/logctx"
)

// Device is the read-only view of one DVR the sync engine reconciles
// against. Recordings is the cheap listing call; RecordingDetails is the
// expensive per-recording metadata call and is only issued for identifiers
// the engine decided are new or changed.
type Device interface {
	ID() string
	IP() string
	Recordings(ctx context.Context) ([]string, error)
	RecordingDetails(ctx context.Context, id string) (*Recording, error)
}

// Store is the slice of the catalog repository the sync engine writes
// through. Upserts preserve first-seen and download bookkeeping on conflict.
type Store interface {
	EntriesByDevice(ctx context.Context, deviceID string) ([]Entry, error)
	UpsertEntry(ctx context.Context, e Entry) error
	MarkStale(ctx context.Context, deviceID string, ids []string) (int64, error)
	TouchSynced(ctx context.Context, deviceID string, ids []string, at time.Time) error
}

// DeviceError records one device that could not be reconciled.
type DeviceError struct {
	DeviceID string
	DeviceIP string
	Err      error
}

func (e DeviceError) Error() string {
	return fmt.Sprintf("device %s (%s): %v", e.DeviceID, e.DeviceIP, e.Err)
}

func (e DeviceError) Unwrap() error { return e.Err }

// MetadataError records one identifier whose metadata fetch failed. The
// identifier stays out of the catalog and is retried on the next pass.
type MetadataError struct {
	DeviceID    string
	RecordingID string
	Err         error
}

func (e MetadataError) Error() string {
	return fmt.Sprintf("metadata for %s on device %s: %v", e.RecordingID, e.DeviceID, e.Err)
}

func (e MetadataError) Unwrap() error { return e.Err }

// SyncReport is the end-of-run summary of one synchronize pass.
type SyncReport struct {
	Devices     int
	Discovered  int
	Refreshed   int
	Unchanged   int
	MarkedStale int

	DeviceErrors   []DeviceError
	MetadataErrors []MetadataError
}

// Failed reports whether anything at all went wrong during the pass.
func (r *SyncReport) Failed() bool {
	return len(r.DeviceErrors) > 0 || len(r.MetadataErrors) > 0
}

// Syncer reconciles the catalog store against live device state.
type Syncer struct {
	store       Store
	concurrency int

	now func() time.Time
}

func NewSyncer(store Store, concurrency int) *Syncer {
	if concurrency < 1 {
		concurrency = 1
	}

	return &Syncer{
		store:       store,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Synchronize reconciles every device concurrently. Unreachable devices and
// per-identifier metadata failures are recorded in the report and never
// abort the pass; only store failures do.
func (s *Syncer) Synchronize(ctx context.Context, devices []Device) (*SyncReport, error) {
	report := &SyncReport{Devices: len(devices)}

	var mu sync.Mutex

	wg, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.concurrency)

	for i := range devices {
		dev := devices[i]
		sem <- struct{}{}

		wg.Go(func() error {
			defer func() { <-sem }() // release the slot

			return s.syncDevice(ctx, dev, report, &mu)
		})
	}

	if err := wg.Wait(); err != nil {
		return report, fmt.Errorf("failed to synchronize catalog: %w", err)
	}

	return report, nil
}

func (s *Syncer) syncDevice(ctx context.Context, dev Device, report *SyncReport, mu *sync.Mutex) error {
	logger := logctx.LoggerFromContext(ctx).With("device_id", dev.ID(), "device_ip", dev.IP())

	listed, err := dev.Recordings(ctx)
	if err != nil {
		logger.Warn("device unreachable, skipping", "err", err)

		mu.Lock()
		report.DeviceErrors = append(report.DeviceErrors, DeviceError{DeviceID: dev.ID(), DeviceIP: dev.IP(), Err: err})
		mu.Unlock()

		return nil
	}

	existing, err := s.store.EntriesByDevice(ctx, dev.ID())
	if err != nil {
		return fmt.Errorf("failed to load catalog entries for device %s: %w", dev.ID(), err)
	}

	known := make(map[string]Entry, len(existing))
	for _, e := range existing {
		known[e.Recording.ID] = e
	}

	listedSet := make(map[string]struct{}, len(listed))
	for _, id := range listed {
		listedSet[id] = struct{}{}
	}

	now := s.now().UTC()

	var unchanged []string

	for _, id := range listed {
		entry, ok := known[id]

		switch {
		case !ok, entry.Stale:
			// New to the catalog (or back from the dead): one metadata call.
			rec, err := dev.RecordingDetails(ctx, id)
			if err != nil {
				logger.Warn("metadata fetch failed", "recording_id", id, "err", err)

				mu.Lock()
				report.MetadataErrors = append(report.MetadataErrors, MetadataError{DeviceID: dev.ID(), RecordingID: id, Err: err})
				mu.Unlock()

				continue
			}

			if err := s.store.UpsertEntry(ctx, Entry{
				Recording:    *rec,
				FirstSeenAt:  now,
				LastSyncedAt: now,
			}); err != nil {
				return fmt.Errorf("failed to store entry %s: %w", id, err)
			}

			logger.Debug("discovered recording", "recording_id", id, "show_title", rec.ShowTitle)

			mu.Lock()
			report.Discovered++
			mu.Unlock()
		case !entry.Finished():
			// The listing carries no version token; a non-terminal state is
			// the signal that device-side metadata is still moving.
			rec, err := dev.RecordingDetails(ctx, id)
			if err != nil {
				logger.Warn("metadata refresh failed", "recording_id", id, "err", err)

				mu.Lock()
				report.MetadataErrors = append(report.MetadataErrors, MetadataError{DeviceID: dev.ID(), RecordingID: id, Err: err})
				mu.Unlock()

				continue
			}

			if err := s.store.UpsertEntry(ctx, Entry{
				Recording:    *rec,
				FirstSeenAt:  entry.FirstSeenAt,
				LastSyncedAt: now,
			}); err != nil {
				return fmt.Errorf("failed to refresh entry %s: %w", id, err)
			}

			mu.Lock()
			report.Refreshed++
			mu.Unlock()
		default:
			unchanged = append(unchanged, id)
		}
	}

	if len(unchanged) > 0 {
		if err := s.store.TouchSynced(ctx, dev.ID(), unchanged, now); err != nil {
			return fmt.Errorf("failed to touch entries for device %s: %w", dev.ID(), err)
		}

		mu.Lock()
		report.Unchanged += len(unchanged)
		mu.Unlock()
	}

	// Recordings the device stopped reporting stay in the catalog as history.
	var vanished []string

	for id, entry := range known {
		if _, ok := listedSet[id]; !ok && !entry.Stale {
			vanished = append(vanished, id)
		}
	}

	if len(vanished) > 0 {
		marked, err := s.store.MarkStale(ctx, dev.ID(), vanished)
		if err != nil {
			return fmt.Errorf("failed to mark stale entries for device %s: %w", dev.ID(), err)
		}

		logger.Info("marked vanished recordings stale", "count", marked)

		mu.Lock()
		report.MarkedStale += int(marked)
		mu.Unlock()
	}

	logger.Info("device synchronized",
		"listed", len(listed),
		"known", len(known),
	)

	return nil
}
