package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cc := &commandContext{}

	cmd := &cobra.Command{
		Use:           "tablodl",
		Short:         "Download recordings from Tablo DVRs and push them to cloud storage",
		Long:          "tablodl keeps a local catalog of the recordings on your Tablo devices,\ndownloads them over ffmpeg and uploads the files to put.io or S3 exactly once.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}

			_, err := cc.ensureConfig()

			return err
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&cc.configPath, "config", "c", "", "path to the config file (default ~/.config/tablodl/config.toml)")
	flags.StringSliceVarP(&cc.devices, "device", "d", nil, "device IP address, repeatable; overrides config and discovery")
	flags.StringVar(&cc.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVar(&cc.logFormat, "log-format", "", "log format override (json, text)")

	cmd.AddCommand(
		newSyncCommand(cc),
		newListCommand(cc),
		newDownloadCommand(cc),
		newUploadCommand(cc),
		newDevicesCommand(cc),
		newDetailsCommand(cc),
		newDeleteCommand(cc),
		newValidateCommand(cc),
		newCleanupCommand(cc),
		newConfigCommand(cc),
		newDoctorCommand(cc),
		newServeCommand(cc),
	)

	return cmd
}

// shouldSkipConfig walks the command chain looking for the skipConfigLoad
// annotation. Commands like "config init" must run before a config exists.
func shouldSkipConfig(cmd *cobra.Command) bool {
	for current := cmd; current != nil; current = current.Parent() {
		if current.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}

	return false
}
