package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tablodl/internal/runlock"
	"tablodl/internal/uploader"
)

func newUploadCommand(cc *commandContext) *cobra.Command {
	var (
		provider   string
		putioToken string
		newestOnly bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "upload [dir]",
		Short: "Upload downloaded recordings to cloud storage, skipping duplicates",
		Long: "Upload hashes every video file in the directory and transfers the ones\n" +
			"whose content is not in the upload ledger yet. Renamed copies of files\n" +
			"that were already uploaded are skipped.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := cc.opCtx(cmd)
			if err != nil {
				return err
			}

			if provider != "" {
				cfg.Upload.Provider = provider
			}

			if putioToken != "" {
				cfg.Upload.Putio.Token = putioToken
			}

			dir := cfg.Upload.Dir
			if len(args) == 1 {
				dir = args[0]
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

			client, err := buildCloudClient(ctx, cfg)
			if err != nil {
				return err
			}

			instrumented := uploader.NewInstrumentedClient(client, tel)

			if !dryRun {
				if err := instrumented.Authenticate(ctx); err != nil {
					return fmt.Errorf("failed to authenticate with %s: %w", client.Name(), err)
				}
			}

			up := uploader.New(instrumented, st.ledger, cfg.Upload.Extensions,
				cfg.Upload.Concurrency, cfg.Upload.Timeout.Std())

			opts := uploader.Options{DryRun: dryRun}

			var summary *uploader.Summary
			if newestOnly || cfg.Upload.NewestOnly {
				summary, err = up.UploadNewest(ctx, dir, opts)
			} else {
				summary, err = up.UploadDir(ctx, dir, opts)
			}

			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}

			printUploadSummary(cmd.OutOrStdout(), summary, dryRun)

			if len(summary.Failed) > 0 {
				notify(ctx, buildNotifier(cfg),
					fmt.Sprintf("❌ %d upload(s) to %s failed", len(summary.Failed), client.Name()))

				return fmt.Errorf("%d upload(s) failed", len(summary.Failed))
			}

			if !dryRun && len(summary.Uploaded) > 0 {
				notify(ctx, buildNotifier(cfg),
					fmt.Sprintf("☁️ Uploaded %d file(s) to %s", len(summary.Uploaded), client.Name()))
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&provider, "provider", "", "upload backend override (putio, s3)")
	flags.StringVar(&putioToken, "putio-token", "", "put.io OAuth token override")
	flags.BoolVar(&newestOnly, "newest", false, "consider only the most recently modified video file")
	flags.BoolVar(&dryRun, "dry-run", false, "report what would be uploaded without transferring")

	return cmd
}

func printUploadSummary(w io.Writer, summary *uploader.Summary, dryRun bool) {
	verb := "Uploaded"
	if dryRun {
		verb = "Would upload"
	}

	fmt.Fprintf(w, "%s %d file(s), skipped %d, failed %d\n",
		verb, len(summary.Uploaded), len(summary.Skipped), len(summary.Failed))

	for _, name := range summary.Uploaded {
		fmt.Fprintf(w, "  + %s\n", name)
	}

	for _, name := range summary.Failed {
		fmt.Fprintf(w, "  ! %s\n", name)
	}
}
