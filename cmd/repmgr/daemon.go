package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Query or pause the running repmgrd daemon",
}

func init() {
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonPauseCmd)
	daemonCmd.AddCommand(daemonUnpauseCmd)
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether repmgrd is running and whether it is paused",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cat, _, closeFn, err := openCatalog(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		running, err := cat.RepmgrdIsRunning(cmd.Context())
		if err != nil {
			return err
		}
		paused, err := cat.RepmgrdIsPaused(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("running: %t\n", running)
		fmt.Printf("paused:  %t\n", paused)
		return nil
	},
}

var daemonPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Tell repmgrd to stop acting on elections without exiting",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPaused(cmd, true)
	},
}

var daemonUnpauseCmd = &cobra.Command{
	Use:   "unpause",
	Short: "Tell repmgrd to resume acting on elections",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPaused(cmd, false)
	},
}

func setPaused(cmd *cobra.Command, paused bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, _, closeFn, err := openCatalog(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	return cat.RepmgrdPause(cmd.Context(), paused)
}
