package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tablodl/internal/cleanup"
	"tablodl/internal/runlock"
)

func newCleanupCommand(cc *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove local files that were uploaded longer than the retention ago",
		Long: "Cleanup deletes video files whose content hash has a ledger record older\n" +
			"than cleanup.retention. Files that were never uploaded are left alone.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := cc.opCtx(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if cfg.Cleanup.Retention.Std() <= 0 {
				fmt.Fprintln(out, "Cleanup is disabled: set cleanup.retention to enable it.")

				return nil
			}

			lock, err := runlock.Acquire(cfg.Paths.DataDir)
			if err != nil {
				return err
			}
			defer lock.Release()

			st, err := openStores(cfg, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			cleaner := cleanup.New(st.ledger, cfg.VideoExtension, cfg.Cleanup.Retention.Std(), dryRun)

			result, err := cleaner.Run(ctx, cfg.Upload.Dir)
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}

			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}

			fmt.Fprintf(out, "%s %d file(s), kept %d, failed %d\n", verb, result.Removed, result.Kept, result.Failed)

			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be removed without deleting")

	return cmd
}
