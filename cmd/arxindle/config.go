package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or save the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		save, _ := cmd.Flags().GetBool("save")
		if save {
			if err := manager.Save(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "saved", manager.GetConfigPath())
			return nil
		}
		data, err := yaml.Marshal(manager.Viper().AllSettings())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configCmd.Flags().Bool("save", false, "write the effective configuration to the config file")
	rootCmd.AddCommand(configCmd)
}
