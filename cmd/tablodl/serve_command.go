package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"tablodl/internal/catalog"
	"tablodl/internal/cleanup"
	"tablodl/internal/config"
	"tablodl/internal/fetch"
	"tablodl/internal/httpapi"
	"tablodl/internal/logctx"
	"tablodl/internal/match"
	"tablodl/internal/notifier"
	"tablodl/internal/runlock"
	"tablodl/internal/storage"
	"tablodl/internal/telemetry"
	"tablodl/internal/uploader"
)

func newServeCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the periodic sync service with the status API",
		Long: "Serve syncs the catalog on an interval, optionally downloads new episodes\n" +
			"of followed shows, uploads finished files and exposes a small status API.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := cc.opCtx(cmd)
			if err != nil {
				return err
			}

			return runServe(ctx, cfg, cc.devices)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, deviceOverrides []string) error {
	logger := logctx.LoggerFromContext(ctx)

	lock, err := runlock.Acquire(cfg.Paths.DataDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	tel, telShutdown, err := setupTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer telShutdown()

	st, err := openStores(cfg, tel)
	if err != nil {
		return err
	}
	defer st.Close()

	app := &serveApp{
		cfg:       cfg,
		overrides: deviceOverrides,
		catalog:   st.catalog,
		ledger:    st.ledger,
		telemetry: tel,
		notifier:  buildNotifier(cfg),
	}

	handler := httpapi.NewHandler(cfg.Serve.Username, cfg.Serve.Password,
		st.catalog, st.ledger, app.syncNow, tel)

	server := &http.Server{
		Addr:         cfg.Serve.BindAddress,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Serve.ReadTimeout.Std(),
		WriteTimeout: cfg.Serve.WriteTimeout.Std(),
		IdleTimeout:  cfg.Serve.IdleTimeout.Std(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("starting status API", "addr", cfg.Serve.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	app.startCleanup(ctx)

	logger.Info("sync loop running",
		"sync_interval", cfg.Serve.SyncInterval.Std().String(),
		"followed_shows", len(cfg.Serve.Follow),
		"auto_upload", cfg.Serve.AutoUpload,
	)

	// One pass right away; the ticker covers the rest.
	app.runPass(ctx)

	ticker := time.NewTicker(cfg.Serve.SyncInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			logger.Info("start shutdown")

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Serve.ShutdownTimeout.Std())
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to gracefully shutdown the server", "err", err)

				if err = server.Close(); err != nil {
					return fmt.Errorf("could not stop server gracefully: %w", err)
				}
			}

			return ctx.Err()
		case <-ticker.C:
			app.runPass(ctx)
		}
	}
}

// serveApp owns the periodic work of serve mode. syncMu serializes catalog
// passes between the ticker and the API trigger.
type serveApp struct {
	cfg       *config.Config
	overrides []string
	catalog   storage.CatalogRepository
	ledger    storage.UploadLedger
	telemetry *telemetry.Telemetry
	notifier  notifier.Notifier

	syncMu sync.Mutex
}

// syncNow backs the POST /api/sync endpoint.
func (a *serveApp) syncNow(ctx context.Context) (*catalog.SyncReport, error) {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	return a.sync(ctx)
}

func (a *serveApp) sync(ctx context.Context) (*catalog.SyncReport, error) {
	ips, err := deviceAddresses(ctx, a.cfg, a.overrides)
	if err != nil {
		return nil, err
	}

	return runSync(ctx, a.cfg, a.catalog, a.telemetry, ips)
}

// runPass is one tick of the main loop: sync, then followed-show downloads,
// then the upload sweep.
func (a *serveApp) runPass(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	a.syncMu.Lock()
	report, err := a.sync(ctx)
	a.syncMu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return
		}

		logger.Error("periodic sync failed", "err", err)
		notify(ctx, a.notifier, "❌ Catalog sync failed: "+err.Error())

		return
	}

	logger.Info("periodic sync finished",
		"devices", report.Devices,
		"discovered", report.Discovered,
		"refreshed", report.Refreshed,
		"marked_stale", report.MarkedStale,
		"device_errors", len(report.DeviceErrors),
		"metadata_errors", len(report.MetadataErrors),
	)

	if report.Failed() {
		notify(ctx, a.notifier, fmt.Sprintf("⚠️ Catalog sync finished with %d device error(s) and %d metadata error(s)",
			len(report.DeviceErrors), len(report.MetadataErrors)))
	}

	downloaded := a.downloadFollowed(ctx)

	if a.cfg.Serve.AutoUpload {
		a.autoUpload(ctx)
	}

	if downloaded > 0 {
		refreshJellyfin(ctx, a.cfg)
	}
}

// downloadFollowed fetches the newest undownloaded episode of every followed
// show. No match just means nothing new aired.
func (a *serveApp) downloadFollowed(ctx context.Context) int {
	if len(a.cfg.Serve.Follow) == 0 {
		return 0
	}

	logger := logctx.LoggerFromContext(ctx)

	entries, err := a.catalog.Entries(ctx, storage.EntryFilter{})
	if err != nil {
		logger.Error("failed to read catalog for followed shows", "err", err)

		return 0
	}

	downloaded := 0

	for _, query := range a.cfg.Serve.Follow {
		entry, err := match.Resolve(entries, query, match.Options{MinSimilarity: a.cfg.Match.MinSimilarity})

		switch {
		case errors.Is(err, match.ErrNoMatch):
			continue
		case err != nil:
			logger.Warn("cannot resolve followed show", "query", query, "err", err)

			continue
		}

		if err := a.download(ctx, entry); err != nil {
			if ctx.Err() != nil {
				return downloaded
			}

			logger.Error("failed to download followed show", "query", query, "err", err)
			notify(ctx, a.notifier, fmt.Sprintf("❌ Download failed for %s: %v", query, err))

			continue
		}

		downloaded++
	}

	return downloaded
}

// download runs the retrieval pipeline for one catalog entry.
func (a *serveApp) download(ctx context.Context, entry catalog.Entry) error {
	client, err := connectDevice(ctx, entry.DeviceIP, a.cfg.Devices.Timeout.Std())
	if err != nil {
		return err
	}

	fetcher := newFetcher(client, a.catalog, a.cfg)

	var result *fetch.Result

	err = a.telemetry.InstrumentDownload(ctx, func(ctx context.Context) error {
		var fetchErr error
		result, fetchErr = fetcher.Fetch(ctx, entry, fetch.Options{
			DeleteOriginal: a.cfg.Download.DeleteOriginals,
		})

		return fetchErr
	})
	if err != nil {
		return err
	}

	if !result.Skipped {
		notify(ctx, a.notifier, "✅ Downloaded "+result.Title)
	}

	return nil
}

// autoUpload sweeps the upload dir for files without a ledger record.
func (a *serveApp) autoUpload(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	client, err := buildCloudClient(ctx, a.cfg)
	if err != nil {
		logger.Error("cannot build upload client", "err", err)

		return
	}

	instrumented := uploader.NewInstrumentedClient(client, a.telemetry)

	if err := instrumented.Authenticate(ctx); err != nil {
		logger.Error("failed to authenticate with upload backend", "provider", client.Name(), "err", err)

		return
	}

	up := uploader.New(instrumented, a.ledger, a.cfg.Upload.Extensions,
		a.cfg.Upload.Concurrency, a.cfg.Upload.Timeout.Std())

	summary, err := up.UploadDir(ctx, a.cfg.Upload.Dir, uploader.Options{})
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("upload sweep interrupted", "err", err)
		}

		return
	}

	if len(summary.Uploaded) > 0 || len(summary.Failed) > 0 {
		logger.Info("upload sweep finished",
			"uploaded", len(summary.Uploaded),
			"skipped", len(summary.Skipped),
			"failed", len(summary.Failed),
		)
	}

	if len(summary.Failed) > 0 {
		notify(ctx, a.notifier, fmt.Sprintf("❌ %d upload(s) to %s failed", len(summary.Failed), client.Name()))
	}

	if len(summary.Uploaded) > 0 {
		notify(ctx, a.notifier, fmt.Sprintf("☁️ Uploaded %d file(s) to %s", len(summary.Uploaded), client.Name()))
	}
}

// startCleanup runs retention cleanup on its own ticker until the context
// ends.
func (a *serveApp) startCleanup(ctx context.Context) {
	retention := a.cfg.Cleanup.Retention.Std()
	if retention <= 0 {
		return
	}

	interval := a.cfg.Cleanup.Interval.Std()
	if interval <= 0 {
		interval = time.Hour
	}

	cleaner := cleanup.New(a.ledger, a.cfg.VideoExtension, retention, false)

	go func() {
		logger := logctx.LoggerFromContext(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("cleanup goroutine shutting down")

				return
			case <-ticker.C:
				result, err := cleaner.Run(ctx, a.cfg.Upload.Dir)
				if err != nil {
					logger.Error("cleanup pass failed", "err", err)

					continue
				}

				if result.Removed > 0 || result.Failed > 0 {
					logger.Info("cleanup pass finished",
						"removed", result.Removed,
						"kept", result.Kept,
						"failed", result.Failed,
					)
				}
			}
		}
	}()
}
