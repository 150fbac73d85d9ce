package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tablodl/internal/catalog"
	"tablodl/internal/fetch"
	"tablodl/internal/match"
	"tablodl/internal/runlock"
	"tablodl/internal/storage"
)

func newDownloadCommand(cc *commandContext) *cobra.Command {
	var (
		recordingID   string
		season        int
		episode       int
		overwrite     bool
		dryRun        bool
		deleteSource  bool
		minSimilarity float64
	)

	cmd := &cobra.Command{
		Use:   "download [query]",
		Short: "Download one recording, picked by fuzzy show query or by ID",
		Long: "Download resolves the query against the local catalog, preferring the\n" +
			"newest episode that has not been downloaded yet, then remuxes the\n" +
			"device stream into an MP4 file.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := cc.opCtx(cmd)
			if err != nil {
				return err
			}

			if recordingID == "" && len(args) == 0 {
				return errors.New("provide a show query or --id")
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

			out := cmd.OutOrStdout()

			similarity := cfg.Match.MinSimilarity
			if cmd.Flags().Changed("min-similarity") {
				similarity = minSimilarity
			}

			if !cmd.Flags().Changed("delete") {
				deleteSource = cfg.Download.DeleteOriginals
			}

			var entry catalog.Entry

			if recordingID != "" {
				entry, err = entryByID(ctx, st.catalog, recordingID)
				if err != nil {
					return err
				}
			} else {
				entries, err := st.catalog.Entries(ctx, storage.EntryFilter{})
				if err != nil {
					return fmt.Errorf("failed to read catalog: %w", err)
				}

				entry, err = match.Resolve(entries, args[0], match.Options{
					MinSimilarity:     similarity,
					IncludeDownloaded: overwrite,
					Season:            season,
					Episode:           episode,
				})

				var ambiguous *match.AmbiguousError

				switch {
				case errors.Is(err, match.ErrNoMatch):
					fmt.Fprintln(out, "No matching recording to download.")

					return nil
				case errors.As(err, &ambiguous):
					fmt.Fprintf(out, "Query %q matches several shows:\n", ambiguous.Query)
					for _, title := range ambiguous.Titles {
						fmt.Fprintf(out, "  - %s\n", title)
					}

					return errors.New("narrow the query or pass --season/--episode")
				case err != nil:
					return err
				}
			}

			client, err := connectDevice(ctx, entry.DeviceIP, cfg.Devices.Timeout.Std())
			if err != nil {
				return err
			}

			fetcher := newFetcher(client, st.catalog, cfg)

			var result *fetch.Result

			err = tel.InstrumentDownload(ctx, func(ctx context.Context) error {
				var fetchErr error
				result, fetchErr = fetcher.Fetch(ctx, entry, fetch.Options{
					Overwrite:      overwrite,
					DryRun:         dryRun,
					DeleteOriginal: deleteSource,
				})

				return fetchErr
			})
			if err != nil {
				notify(ctx, buildNotifier(cfg), fmt.Sprintf("❌ Download failed for %s: %v", entry.ShowTitle, err))

				return fmt.Errorf("download failed: %w", err)
			}

			switch {
			case dryRun:
				fmt.Fprintf(out, "Would download %s to %s\n", result.Title, result.Path)
			case result.Skipped:
				fmt.Fprintf(out, "Already downloaded: %s\n", result.Path)
			default:
				fmt.Fprintf(out, "Downloaded %s to %s\n", result.Title, result.Path)

				if result.Removed {
					fmt.Fprintln(out, "Removed the recording from the device.")
				}

				notify(ctx, buildNotifier(cfg), "✅ Downloaded "+result.Title)
				refreshJellyfin(ctx, cfg)
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&recordingID, "id", "", "download this exact recording ID instead of resolving a query")
	flags.IntVar(&season, "season", 0, "restrict the query to this season")
	flags.IntVar(&episode, "episode", 0, "restrict the query to this episode")
	flags.BoolVar(&overwrite, "overwrite", false, "download again even when already downloaded")
	flags.BoolVar(&dryRun, "dry-run", false, "resolve and report without downloading")
	flags.BoolVar(&deleteSource, "delete", false, "delete the recording from the device after a validated download")
	flags.Float64Var(&minSimilarity, "min-similarity", 0, "minimum similarity for fuzzy matching (0-1]")

	return cmd
}

// entryByID looks the recording up in the catalog, preferring a live entry
// when the same ID exists on several devices.
func entryByID(ctx context.Context, repo storage.CatalogRepository, id string) (catalog.Entry, error) {
	entries, err := repo.EntriesByID(ctx, id)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("failed to read catalog: %w", err)
	}

	if len(entries) == 0 {
		return catalog.Entry{}, fmt.Errorf("recording %s not in the catalog; run \"tablodl sync\" first", id)
	}

	for _, entry := range entries {
		if !entry.Stale {
			return entry, nil
		}
	}

	return entries[0], nil
}
