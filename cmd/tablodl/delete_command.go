package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCommand(cc *commandContext) *cobra.Command {
	var (
		recordingID string
		confirmed   bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a recording from its device",
		Long: "Delete removes the recording from the Tablo device itself. The catalog\n" +
			"entry is marked stale on the next sync. This cannot be undone.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := cc.opCtx(cmd)
			if err != nil {
				return err
			}

			if recordingID == "" {
				return errors.New("--id is required")
			}

			if !confirmed {
				return errors.New("refusing to delete without --yes")
			}

			st, err := openStores(cfg, nil)
			if err != nil {
				return err
			}
			defer st.Close()

			entry, err := entryByID(ctx, st.catalog, recordingID)
			if err != nil {
				return err
			}

			client, err := connectDevice(ctx, entry.DeviceIP, cfg.Devices.Timeout.Std())
			if err != nil {
				return err
			}

			if err := client.Delete(ctx, recordingID); err != nil {
				return fmt.Errorf("failed to delete recording: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s from device %s\n", recordingID, entry.DeviceID)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&recordingID, "id", "", "recording ID to delete")
	flags.BoolVar(&confirmed, "yes", false, "confirm the deletion")

	return cmd
}
