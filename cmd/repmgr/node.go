package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/repmgrd/pkg/nodeaction"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Inspect and control the local node",
}

func init() {
	nodeCmd.AddCommand(nodeStatusCmd)
	nodeCmd.AddCommand(nodeCheckCmd)
	nodeCmd.AddCommand(nodeServiceCmd)
	nodeCmd.AddCommand(nodeRejoinCmd)
	nodeCmd.AddCommand(nodeControlCmd)
	nodeCmd.AddCommand(nodeStartupCmd)

	nodeStatusCmd.Flags().Bool("is-shutdown-cleanly", false, "only report the engine's shutdown state")

	nodeCheckCmd.Flags().String("format", "text", "text|csv|nagios|optionformat")

	nodeServiceCmd.Flags().Bool("checkpoint", false, "issue CHECKPOINT before stop/restart")

	nodeRejoinCmd.Flags().String("upstream-conninfo", "", "conninfo of the node to rejoin under")
	nodeRejoinCmd.Flags().String("resync-command", "", "block-level resync tool to run, empty skips block resync")
	nodeRejoinCmd.Flags().Bool("no-wait", false, "don't wait for reattachment to be confirmed")
	nodeRejoinCmd.Flags().Duration("wait-timeout", 60*time.Second, "how long to wait for reattachment")
	nodeRejoinCmd.Flags().Bool("allow-block-resync", false, "resync even if the data directory isn't cleanly shut down")

	nodeControlCmd.Flags().Bool("disable", false, "disable the WAL receiver instead of enabling it")
}

var nodeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the local node's registered and live status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if only, _ := cmd.Flags().GetBool("is-shutdown-cleanly"); only {
			report, err := nodeaction.IsShutdownCleanly(cfg.DataDirectory)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", report.State, report.LastCheckpoint)
			return nil
		}

		cat, _, closeFn, err := openCatalog(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		status, err := nodeaction.Status(cmd.Context(), cat, cfg.NodeID, cfg.DataDirectory)
		if err != nil {
			return err
		}
		fmt.Printf("node id:   %d\n", status.NodeID)
		fmt.Printf("name:      %s\n", status.NodeName)
		fmt.Printf("type:      %s\n", status.Type)
		fmt.Printf("upstream:  %d\n", status.Upstream)
		fmt.Printf("shutdown:  %s\n", status.Shutdown.State)
		return nil
	},
}

var nodeCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run health sub-checks on the local node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cat, pl, closeFn, err := openCatalog(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		report, err := nodeaction.Check(cmd.Context(), cat, pl, cfg)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		fmt.Print(nodeaction.FormatterFor(format).Format(report))

		if report.Worst >= nodeaction.SeverityCritical {
			return fmt.Errorf("node check failed")
		}
		return nil
	},
}

var nodeServiceCmd = &cobra.Command{
	Use:   "service ACTION",
	Short: "start|stop|restart|reload|promote the engine's configured service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, pl, closeFn, err := openCatalog(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		checkpoint, _ := cmd.Flags().GetBool("checkpoint")
		return nodeaction.Service(cmd.Context(), cfg, pl, nodeaction.ServiceAction(args[0]), checkpoint)
	},
}

var nodeRejoinCmd = &cobra.Command{
	Use:   "rejoin",
	Short: "Rejoin the cluster under a new upstream after a failover",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cat, pl, closeFn, err := openCatalog(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		upstreamConninfo, _ := cmd.Flags().GetString("upstream-conninfo")
		resyncCommand, _ := cmd.Flags().GetString("resync-command")
		noWait, _ := cmd.Flags().GetBool("no-wait")
		waitTimeout, _ := cmd.Flags().GetDuration("wait-timeout")
		allowBlockResync, _ := cmd.Flags().GetBool("allow-block-resync")

		return nodeaction.Rejoin(cmd.Context(), cat, pl, cfg, nodeaction.RejoinOptions{
			UpstreamConninfo: upstreamConninfo,
			ResyncCommand:    resyncCommand,
			Wait:             !noWait,
			WaitTimeout:      waitTimeout,
			AllowBlockResync: allowBlockResync,
		})
	},
}

var nodeControlCmd = &cobra.Command{
	Use:   "control",
	Short: "Enable or disable the local standby's WAL receiver",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, pl, closeFn, err := openCatalog(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		disable, _ := cmd.Flags().GetBool("disable")
		action := nodeaction.ControlEnableWALReceiver
		if disable {
			action = nodeaction.ControlDisableWALReceiver
		}
		return nodeaction.Control(cmd.Context(), cfg, pl, action)
	},
}

var nodeStartupCmd = &cobra.Command{
	Use:   "startup",
	Short: "Bring up the engine and decide whether to bind the virtual address",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cat, pl, closeFn, err := openCatalog(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		return nodeaction.Startup(cmd.Context(), cat, pl, cfg)
	},
}
