package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tablodl/internal/catalog"
	"tablodl/internal/runlock"
)

func newSyncCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local catalog with the recordings on every device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := cc.opCtx(cmd)
			if err != nil {
				return err
			}

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

			ips, err := deviceAddresses(ctx, cfg, cc.devices)
			if err != nil {
				return err
			}

			report, err := runSync(ctx, cfg, st.catalog, tel, ips)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			printSyncReport(cmd.OutOrStdout(), report)

			if report.Failed() {
				return fmt.Errorf("sync finished with %d device error(s) and %d metadata error(s)",
					len(report.DeviceErrors), len(report.MetadataErrors))
			}

			return nil
		},
	}
}

func printSyncReport(w io.Writer, report *catalog.SyncReport) {
	fmt.Fprintf(w, "Synced %d device(s): %d new, %d refreshed, %d unchanged, %d marked stale\n",
		report.Devices, report.Discovered, report.Refreshed, report.Unchanged, report.MarkedStale)

	for _, devErr := range report.DeviceErrors {
		fmt.Fprintf(w, "  device error: %v\n", devErr)
	}

	for _, metaErr := range report.MetadataErrors {
		fmt.Fprintf(w, "  metadata error: %v\n", metaErr)
	}
}
