package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CreateValidateCmd creates the validate command, which checks the effective
// configuration without opening the device.
func CreateValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long:  `Loads the configuration file, environment and flags exactly like the daemon and reports any invalid settings.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := loadOptions(cmd)
			if err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: device=%s model=%s controller=%s\n",
				opts.Device, opts.DeviceModel, opts.ControllerName)
			return nil
		},
	}
}
