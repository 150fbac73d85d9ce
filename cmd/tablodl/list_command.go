package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tablodl/internal/catalog"
	"tablodl/internal/storage"
)

func newListCommand(cc *commandContext) *cobra.Command {
	var (
		deviceID     string
		category     string
		show         string
		status       string
		includeStale bool
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the recordings in the local catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := cc.opCtx(cmd)
			if err != nil {
				return err
			}

			st, err := openStores(cfg, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.catalog.Entries(ctx, storage.EntryFilter{
				DeviceID:     deviceID,
				Category:     category,
				ShowTitle:    show,
				Status:       catalog.Status(status),
				IncludeStale: includeStale,
			})
			if err != nil {
				return fmt.Errorf("failed to list recordings: %w", err)
			}

			out := cmd.OutOrStdout()

			if asJSON {
				if entries == nil {
					entries = []catalog.Entry{}
				}

				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")

				return encoder.Encode(entries)
			}

			if len(entries) == 0 {
				fmt.Fprintln(out, "No recordings in the catalog. Run \"tablodl sync\" first.")

				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.ID,
					entry.ShowTitle,
					describeEpisode(entry),
					formatAirDate(entry),
					(time.Duration(entry.Duration) * time.Second).String(),
					entry.State,
					describeStatus(entry),
				})
			}

			renderTable(out, []string{"ID", "Show", "Episode", "Aired", "Duration", "State", "Status"}, rows)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&deviceID, "device-id", "", "only recordings from this device")
	flags.StringVar(&category, "category", "", "only this category (series, movies, sports)")
	flags.StringVar(&show, "show", "", "only recordings with this show title (case-insensitive)")
	flags.StringVar(&status, "status", "", "only this download status (none, downloading, complete, failed)")
	flags.BoolVar(&includeStale, "stale", false, "include recordings no longer present on their device")
	flags.BoolVar(&asJSON, "json", false, "print the entries as JSON")

	return cmd
}

func describeEpisode(entry catalog.Entry) string {
	switch entry.Category {
	case catalog.CategorySeries:
		label := fmt.Sprintf("S%02dE%02d", entry.Season, entry.Episode)
		if entry.EpisodeTitle != "" {
			label += " " + entry.EpisodeTitle
		}

		return label
	case catalog.CategoryMovies:
		if entry.AirYear > 0 {
			return fmt.Sprintf("(%d)", entry.AirYear)
		}
	}

	if entry.EpisodeTitle != "" {
		return entry.EpisodeTitle
	}

	return "-"
}

func formatAirDate(entry catalog.Entry) string {
	if entry.AirDate.IsZero() {
		return "-"
	}

	return entry.AirDate.Format("2006-01-02")
}

func describeStatus(entry catalog.Entry) string {
	status := string(entry.DownloadStatus)
	if entry.Stale {
		status += " (stale)"
	}

	return status
}
