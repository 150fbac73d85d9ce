package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tablodl/internal/fetch"
	"tablodl/internal/ffmpeg"
)

func newValidateCommand(cc *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [dir]",
		Short: "Re-check downloaded files with ffprobe",
		Long: "Validate probes every video file in the directory and reports files that\n" +
			"are too small, lack a duration or cannot be parsed at all.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := cc.opCtx(cmd)
			if err != nil {
				return err
			}

			dir := cfg.Paths.DownloadDir
			if len(args) == 1 {
				dir = args[0]
			}

			dirEntries, err := os.ReadDir(dir)
			if err != nil {
				return fmt.Errorf("failed to read directory: %w", err)
			}

			prober := ffmpeg.NewRunner(ffmpeg.DefaultBinary, ffmpeg.DefaultProbeBinary)

			var (
				rows    [][]string
				invalid int
			)

			for _, dirEntry := range dirEntries {
				if dirEntry.IsDir() || !cfg.VideoExtension(dirEntry.Name()) {
					continue
				}

				path := filepath.Join(dir, dirEntry.Name())

				// Expected duration is unknown here, so only the structural
				// checks apply: parseable container, nonzero duration, size.
				validation := fetch.Validate(ctx, prober, path, 0, int64(cfg.Download.MinSize))

				result := "ok"
				detail := fmt.Sprintf("%.0fs", validation.Seconds)

				if !validation.OK {
					result = "invalid"
					detail = validation.Reason
					invalid++
				}

				rows = append(rows, []string{dirEntry.Name(), result, detail})
			}

			out := cmd.OutOrStdout()

			if len(rows) == 0 {
				fmt.Fprintln(out, "No video files found.")

				return nil
			}

			renderTable(out, []string{"File", "Result", "Detail"}, rows)
			fmt.Fprintf(out, "%d valid, %d invalid\n", len(rows)-invalid, invalid)

			if invalid > 0 {
				return fmt.Errorf("%d invalid file(s)", invalid)
			}

			return nil
		},
	}

	return cmd
}
