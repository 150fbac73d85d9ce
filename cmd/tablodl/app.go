package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tablodl/internal/catalog"
	"tablodl/internal/config"
	"tablodl/internal/fetch"
	"tablodl/internal/ffmpeg"
	"tablodl/internal/logctx"
	"tablodl/internal/notifier"
	"tablodl/internal/storage"
	"tablodl/internal/storage/sqlite"
	"tablodl/internal/svc/jellyfin"
	"tablodl/internal/tablo"
	"tablodl/internal/telemetry"
	"tablodl/internal/uploader"
	"tablodl/internal/uploader/putio"
	"tablodl/internal/uploader/s3"
)

// stores bundles the SQLite-backed repositories behind their telemetry
// decorators.
type stores struct {
	db      *sql.DB
	catalog storage.CatalogRepository
	ledger  storage.UploadLedger
}

func openStores(cfg *config.Config, tel *telemetry.Telemetry) (*stores, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	db, err := sqlite.Open(cfg.Paths.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog store: %w", err)
	}

	return &stores{
		db:      db,
		catalog: sqlite.NewInstrumentedCatalogRepository(db, tel),
		ledger:  sqlite.NewInstrumentedLedgerRepository(db, tel),
	}, nil
}

func (s *stores) Close() error {
	return s.db.Close()
}

// setupTelemetry builds the telemetry provider and returns a shutdown
// function that flushes it even when the parent context is already canceled.
func setupTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, func(), error) {
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "tablodl",
		ServiceVersion: version,
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logctx.LoggerFromContext(ctx).Warn("failed to shutdown telemetry", "err", err)
		}
	}

	return tel, shutdown, nil
}

// deviceAddresses resolves the device IPs to work with: explicit overrides
// first, then configured statics, then association-server discovery.
func deviceAddresses(ctx context.Context, cfg *config.Config, overrides []string) ([]string, error) {
	ips := overrides
	if len(ips) == 0 {
		ips = cfg.Devices.IPs
	}

	if len(ips) == 0 && cfg.Devices.Discovery {
		infos, err := tablo.NewDiscoverer(cfg.Devices.Timeout.Std()).Discover(ctx)
		if err != nil {
			return nil, fmt.Errorf("device discovery failed: %w", err)
		}

		for _, info := range infos {
			if info.PrivateIP != "" {
				ips = append(ips, info.PrivateIP)
			}
		}
	}

	if len(ips) == 0 {
		return nil, errors.New("no devices found: pass --device, set devices.ips or enable discovery")
	}

	return ips, nil
}

// connectDevices connects to every address. Unreachable devices come back as
// DeviceError values so a sync pass can report them without aborting.
func connectDevices(ctx context.Context, ips []string, timeout time.Duration, tel *telemetry.Telemetry) ([]catalog.Device, []catalog.DeviceError) {
	var (
		devices []catalog.Device
		errs    []catalog.DeviceError
	)

	for _, ip := range ips {
		client, err := tablo.Connect(ctx, ip, timeout)
		if err != nil {
			errs = append(errs, catalog.DeviceError{DeviceID: ip, DeviceIP: ip, Err: err})

			continue
		}

		devices = append(devices, catalog.NewInstrumentedDevice(client, tel))
	}

	return devices, errs
}

func connectDevice(ctx context.Context, ip string, timeout time.Duration) (*tablo.Client, error) {
	client, err := tablo.Connect(ctx, ip, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to reach device %s: %w", ip, err)
	}

	return client, nil
}

// runSync performs one full synchronize pass: connect to the devices,
// reconcile the catalog and merge connection failures into the report.
func runSync(ctx context.Context, cfg *config.Config, repo storage.CatalogRepository, tel *telemetry.Telemetry, ips []string) (*catalog.SyncReport, error) {
	var report *catalog.SyncReport

	err := tel.InstrumentSync(ctx, func(ctx context.Context) error {
		devices, connectErrs := connectDevices(ctx, ips, cfg.Devices.Timeout.Std(), tel)

		syncer := catalog.NewSyncer(repo, cfg.Sync.Concurrency)

		result, err := syncer.Synchronize(ctx, devices)
		if err != nil {
			return err
		}

		result.Devices += len(connectErrs)
		result.DeviceErrors = append(result.DeviceErrors, connectErrs...)
		report = result

		return nil
	})
	if err != nil {
		return nil, err
	}

	tel.RecordCatalogChanges(int64(report.Discovered), int64(report.Refreshed), int64(report.MarkedStale))

	return report, nil
}

// newFetcher wires the retrieval pipeline for one device.
func newFetcher(client *tablo.Client, repo storage.CatalogRepository, cfg *config.Config) *fetch.Fetcher {
	runner := ffmpeg.NewRunner(ffmpeg.DefaultBinary, ffmpeg.DefaultProbeBinary)

	return fetch.New(client, runner, runner, repo, cfg.Paths.DownloadDir,
		cfg.Download.Validate, int64(cfg.Download.MinSize), cfg.Download.Timeout.Std())
}

// buildCloudClient is the factory for the configured upload backend.
func buildCloudClient(ctx context.Context, cfg *config.Config) (uploader.CloudClient, error) {
	if err := cfg.ValidateUpload(); err != nil {
		return nil, err
	}

	switch cfg.Upload.Provider {
	case "putio":
		return putio.NewClient(cfg.Upload.Putio.Token, cfg.Upload.Putio.ParentFolder), nil
	case "s3":
		return s3.NewClient(ctx, cfg.Upload.S3.Bucket, cfg.Upload.S3.Prefix,
			cfg.Upload.S3.Region, cfg.Upload.S3.AccessKeyID, cfg.Upload.S3.SecretAccessKey)
	}

	return nil, fmt.Errorf("invalid upload provider: %s", cfg.Upload.Provider)
}

func buildNotifier(cfg *config.Config) notifier.Notifier {
	if cfg.Notify.DiscordWebhookURL == "" {
		return notifier.NopNotifier{}
	}

	return &notifier.DiscordNotifier{WebhookURL: cfg.Notify.DiscordWebhookURL}
}

// notify sends a message on a best-effort basis. Failures are logged, never
// propagated to the operation that triggered them.
func notify(ctx context.Context, n notifier.Notifier, message string) {
	if err := n.Notify(ctx, message); err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to send notification", "err", err)
	}
}

// refreshJellyfin asks the configured media server to rescan its libraries.
func refreshJellyfin(ctx context.Context, cfg *config.Config) {
	if cfg.Notify.JellyfinURL == "" {
		return
	}

	client := jellyfin.NewClient(cfg.Notify.JellyfinURL, cfg.Notify.JellyfinToken)
	if err := client.RefreshLibrary(ctx); err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to refresh jellyfin library", "err", err)

		return
	}

	logctx.LoggerFromContext(ctx).Info("triggered jellyfin library refresh")
}
