package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"segstream/internal/config"
	"segstream/internal/home"
)

// newConfigureCmd manages the settings file that dynamically located
// readers re-resolve on every scan.
func newConfigureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Show or change the configured repository directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			settingsPath, _ := cmd.Flags().GetString("settings")
			repo, _ := cmd.Flags().GetString("repository")

			if settingsPath == "" {
				dir, err := home.Default()
				if err != nil {
					return err
				}
				if err := dir.Ensure(); err != nil {
					return err
				}
				settingsPath = dir.SettingsPath()
			}

			settings := config.NewSettings(settingsPath)
			if err := settings.Load(); err != nil {
				return err
			}

			if repo != "" {
				if err := settings.SetRepository(repo); err != nil {
					return err
				}
			}

			dir, ok := settings.Repository()
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "repository: (not configured)")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "repository: %s\n", dir)
			return nil
		},
	}
	cmd.Flags().String("settings", "", "settings file (default: platform config dir)")
	cmd.Flags().String("repository", "", "repository directory to configure")
	return cmd
}
