package main

import (
	"github.com/spf13/cobra"

	"tablodl/internal/tablo"
)

func newDevicesCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Discover Tablo devices and probe their reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := cc.opCtx(cmd)
			if err != nil {
				return err
			}

			ips, err := deviceAddresses(ctx, cfg, cc.devices)
			if err != nil {
				return err
			}

			timeout := cfg.Devices.Timeout.Std()
			rows := make([][]string, 0, len(ips))

			for _, ip := range ips {
				client, err := tablo.Connect(ctx, ip, timeout)
				if err != nil {
					rows = append(rows, []string{ip, "-", "-", "-", "unreachable: " + err.Error()})

					continue
				}

				info, err := client.ServerInfo(ctx)
				if err != nil {
					rows = append(rows, []string{ip, "-", "-", "-", "unreachable: " + err.Error()})

					continue
				}

				rows = append(rows, []string{ip, info.Name, info.ServerID, info.Version, "ok"})
			}

			renderTable(cmd.OutOrStdout(), []string{"IP", "Name", "Server ID", "Version", "Status"}, rows)

			return nil
		},
	}
}
