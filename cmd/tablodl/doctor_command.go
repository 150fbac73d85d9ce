package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tablodl/internal/config"
	"tablodl/internal/deps"
	"tablodl/internal/runlock"
	"tablodl/internal/storage/sqlite"
	"tablodl/internal/storage/sqlite/migrations"
	"tablodl/internal/tablo"
)

func newDoctorCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check binaries, config, store and device reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := cc.opCtx(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failures := 0

			// External binaries.
			statuses := deps.CheckBinaries(deps.Requirements("", ""))
			for _, status := range statuses {
				if status.Available {
					printCheck(out, true, "%s (%s): %s", status.Name, status.Command, status.Description)

					continue
				}

				printCheck(out, false, "%s: %s", status.Name, status.Detail)

				if !status.Optional {
					failures++
				}
			}

			// Config file loaded and validated by the pre-run already.
			printCheck(out, true, "config loaded and valid")

			// Store: opening runs the migrations, which is the health check.
			// A held lock is a finding, not a failure; another instance may
			// simply be running.
			lock, err := runlock.Acquire(cfg.Paths.DataDir)

			var held *runlock.HeldError

			switch {
			case errors.As(err, &held):
				printCheck(out, true, "data dir locked by a running instance (%s)", held.Path)
			case err != nil:
				printCheck(out, false, "cannot lock data dir: %v", err)

				failures++
			default:
				if version, storeErr := checkStore(cfg); storeErr != nil {
					printCheck(out, false, "catalog store: %v", storeErr)

					failures++
				} else {
					printCheck(out, true, "catalog store opens at %s (schema v%d)", cfg.Paths.DBPath, version)
				}

				lock.Release()
			}

			// Devices.
			ips, err := deviceAddresses(ctx, cfg, cc.devices)
			if err != nil {
				printCheck(out, false, "%v", err)

				failures++
			}

			for _, ip := range ips {
				if _, err := tablo.Connect(ctx, ip, cfg.Devices.Timeout.Std()); err != nil {
					printCheck(out, false, "device %s unreachable: %v", ip, err)

					failures++
				} else {
					printCheck(out, true, "device %s reachable", ip)
				}
			}

			if failures > 0 {
				return fmt.Errorf("%d check(s) failed", failures)
			}

			fmt.Fprintln(out, "All checks passed.")

			return nil
		},
	}
}

func printCheck(w io.Writer, ok bool, format string, args ...any) {
	marker := "ok  "
	if !ok {
		marker = "fail"
	}

	fmt.Fprintf(w, "[%s] %s\n", marker, fmt.Sprintf(format, args...))
}

func checkStore(cfg *config.Config) (uint, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return 0, err
	}

	db, err := sqlite.Open(cfg.Paths.DBPath)
	if err != nil {
		return 0, err
	}

	defer db.Close()

	version, dirty, err := migrations.Status(db)
	if err != nil {
		return 0, err
	}

	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}

	return version, nil
}
