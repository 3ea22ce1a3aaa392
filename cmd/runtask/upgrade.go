package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pengelbrecht/runtask/internal/update"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade runtask to the latest release",
	Long:  `Downloads the latest GitHub release and replaces the running binary in place.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Current version: %s\n", version)

		check, _ := cmd.Flags().GetBool("check")
		if check {
			release, newer, err := update.CheckForUpdate(cmd.Context(), version)
			if err != nil {
				return err
			}
			if !newer {
				fmt.Fprintln(out, "runtask is up to date")
				return nil
			}
			fmt.Fprintf(out, "Update available: %s\n", release.Version)
			fmt.Fprintln(out, update.UpdateInstructions(update.DetectInstallMethod()))
			return nil
		}

		fmt.Fprintln(out, "Checking for updates...")
		release, err := update.Update(cmd.Context(), version)
		if errors.Is(err, update.ErrDevBuild) {
			fmt.Fprintln(out, update.UpdateInstructions(update.DetectInstallMethod()))
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Updated to %s\n", release.Version)
		return nil
	},
}

func init() {
	upgradeCmd.Flags().Bool("check", false, "Only report whether an update is available")
}
