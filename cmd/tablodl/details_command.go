package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newDetailsCommand(cc *commandContext) *cobra.Command {
	var recordingID string

	cmd := &cobra.Command{
		Use:   "details",
		Short: "Print the raw device metadata for one recording",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := cc.opCtx(cmd)
			if err != nil {
				return err
			}

			if recordingID == "" {
				return errors.New("--id is required")
			}

			deviceIP := ""
			if len(cc.devices) > 0 {
				deviceIP = cc.devices[0]
			}

			if deviceIP == "" {
				st, err := openStores(cfg, nil)
				if err != nil {
					return err
				}
				defer st.Close()

				entry, err := entryByID(ctx, st.catalog, recordingID)
				if err != nil {
					return err
				}

				deviceIP = entry.DeviceIP
			}

			client, err := connectDevice(ctx, deviceIP, cfg.Devices.Timeout.Std())
			if err != nil {
				return err
			}

			raw, err := client.RawDetails(ctx, recordingID)
			if err != nil {
				return fmt.Errorf("failed to fetch details: %w", err)
			}

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, raw, "", "  "); err != nil {
				return fmt.Errorf("device returned invalid JSON: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())

			return nil
		},
	}

	cmd.Flags().StringVar(&recordingID, "id", "", "recording ID, e.g. /recordings/series/episodes/123456")

	return cmd
}
