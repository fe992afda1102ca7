package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/config"
	"github.com/cuemby/repmgrd/pkg/nodeaction"
	"github.com/cuemby/repmgrd/pkg/pool"
	"github.com/cuemby/repmgrd/pkg/remote"
)

var standbyCmd = &cobra.Command{
	Use:   "standby",
	Short: "Register, clone, follow or promote a standby node",
}

func init() {
	standbyCmd.AddCommand(standbyRegisterCmd)
	standbyCmd.AddCommand(standbyUnregisterCmd)
	standbyCmd.AddCommand(standbyCloneCmd)
	standbyCmd.AddCommand(standbyFollowCmd)
	standbyCmd.AddCommand(standbyPromoteCmd)

	standbyRegisterCmd.Flags().Int32("upstream-node-id", 0, "id of the node to stream from, defaults to the registered primary")
	standbyRegisterCmd.Flags().Bool("force", false, "overwrite an existing node record with the same id")

	standbyCloneCmd.Flags().String("clone-command", "", "command that materializes a fresh data directory from the upstream")
	standbyCloneCmd.Flags().Int32("upstream-node-id", 0, "id of the node to clone from")

	standbyFollowCmd.Flags().Bool("no-restart", false, "update the catalog record but don't restart the engine")

	standbyPromoteCmd.Flags().Duration("check-timeout", 60*time.Second, "how long to wait for the engine to leave recovery")
	standbyPromoteCmd.Flags().Duration("check-interval", 2*time.Second, "how often to poll for recovery to end")
}

var standbyRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Add the local node to the catalog as a standby",
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

		force, _ := cmd.Flags().GetBool("force")
		upstreamID, _ := cmd.Flags().GetInt32("upstream-node-id")

		if upstreamID == 0 {
			nodes, err := cat.GetAllNodeRecords(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range nodes {
				if n.Type == catalog.NodeTypePrimary && n.Active {
					upstreamID = n.ID
					break
				}
			}
			if upstreamID == 0 {
				return fmt.Errorf("no active primary found, pass --upstream-node-id")
			}
		}

		_, status, err := cat.GetNodeRecord(cmd.Context(), cfg.NodeID)
		if err != nil {
			return err
		}
		if status == catalog.RecordFound && !force {
			return fmt.Errorf("node %d is already registered, pass --force to overwrite", cfg.NodeID)
		}

		n := &catalog.Node{
			ID:             cfg.NodeID,
			Type:           catalog.NodeTypeStandby,
			UpstreamNodeID: &upstreamID,
			Name:           cfg.NodeName,
			Conninfo:       cfg.Conninfo,
			Location:       cfg.Location,
			Priority:       cfg.Priority,
			Active:         true,
			ConfigFile:     filepath.Join(cfg.DataDirectory, "postgresql.conf"),
			VirtualIP:      cfg.VirtualIP,
			NetworkCard:    cfg.NetworkCard,
		}

		if cfg.UseReplicationSlots {
			n.SlotName = fmt.Sprintf("repmgr_slot_%d", cfg.NodeID)
			if err := createUpstreamSlot(cmd.Context(), pl, cat, upstreamID, n.SlotName); err != nil {
				return err
			}
		}

		if status == catalog.RecordFound {
			err = cat.UpdateNodeRecord(cmd.Context(), n)
		} else {
			err = cat.CreateNodeRecord(cmd.Context(), n)
		}
		if err != nil {
			return err
		}

		return cat.RecordEvent(cmd.Context(), &catalog.Event{
			NodeID: cfg.NodeID, EventType: "standby_register", Successful: true,
		})
	},
}

// createUpstreamSlot opens a connection to the upstream node and
// duplicates it as the upstream's configured replication user before
// creating the physical slot the registering standby will stream from,
// so slot creation runs with the elevated role the monitoring connection
// doesn't necessarily hold rather than the register command's own
// credentials.
func createUpstreamSlot(ctx context.Context, pl *pool.Pool, cat catalog.Catalog, upstreamID int32, slotName string) error {
	upstream, ustatus, err := cat.GetNodeRecord(ctx, upstreamID)
	if err != nil {
		return err
	}
	if ustatus != catalog.RecordFound {
		return fmt.Errorf("upstream node %d not found, cannot create replication slot", upstreamID)
	}

	upstreamConn, err := pl.Open(ctx, upstream.Conninfo)
	if err != nil {
		return fmt.Errorf("could not connect to upstream node %d: %w", upstreamID, err)
	}
	defer upstreamConn.Close()

	slotConn := upstreamConn
	if upstream.ReplUser != "" {
		elevated, err := upstreamConn.Duplicate(ctx, upstream.ReplUser)
		if err != nil {
			return fmt.Errorf("could not open %s-role connection to upstream node %d: %w", upstream.ReplUser, upstreamID, err)
		}
		defer elevated.Close()
		slotConn = elevated
	}

	if err := catalog.New(slotConn).CreateSlotSQL(ctx, slotName); err != nil {
		return fmt.Errorf("could not create replication slot %s on upstream node %d: %w", slotName, upstreamID, err)
	}
	return nil
}

var standbyUnregisterCmd = &cobra.Command{
	Use:   "unregister NODE_ID",
	Short: "Remove a standby's node record from the catalog",
	Args:  cobra.ExactArgs(1),
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

		var id int32
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("invalid node id %q", args[0])
		}

		if err := cat.UnregisterNodeRecord(cmd.Context(), id); err != nil {
			return err
		}
		return cat.RecordEvent(cmd.Context(), &catalog.Event{
			NodeID: cfg.NodeID, EventType: "standby_unregister", Successful: true,
		})
	},
}

var standbyCloneCmd = &cobra.Command{
	Use:   "clone",
	Short: "Materialize a fresh data directory from the upstream node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		cloneCommand, _ := cmd.Flags().GetString("clone-command")
		if cloneCommand == "" {
			return fmt.Errorf("--clone-command is required")
		}

		stdout, stderr, ok, err := remote.LocalCommand(cmd.Context(), cloneCommand)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("clone command failed: %s", stderr)
		}
		if stdout != "" {
			fmt.Println(stdout)
		}

		cat, _, closeFn, err := openCatalog(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		return cat.RecordEvent(cmd.Context(), &catalog.Event{
			NodeID: cfg.NodeID, EventType: "standby_clone", Successful: true,
		})
	},
}

var standbyFollowCmd = &cobra.Command{
	Use:   "follow",
	Short: "Point the local standby at the cluster's current primary",
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

		newPrimaryID, found, err := cat.GetNewPrimary(cmd.Context())
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no new primary has been published yet")
		}

		n, status, err := cat.GetNodeRecord(cmd.Context(), cfg.NodeID)
		if err != nil {
			return err
		}
		if status != catalog.RecordFound {
			return fmt.Errorf("node %d is not registered", cfg.NodeID)
		}
		n.UpstreamNodeID = &newPrimaryID
		if err := cat.UpdateNodeRecord(cmd.Context(), n); err != nil {
			return err
		}

		noRestart, _ := cmd.Flags().GetBool("no-restart")
		if !noRestart {
			if err := nodeaction.Service(cmd.Context(), cfg, pl, nodeaction.ServiceRestart, false); err != nil {
				return err
			}
		}

		return cat.RecordEvent(cmd.Context(), &catalog.Event{
			NodeID: cfg.NodeID, EventType: "standby_follow", Successful: true,
			Details: fmt.Sprintf("following node %d", newPrimaryID),
		})
	},
}

var standbyPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote the local standby to primary out of band of an election",
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

		if cfg.ServicePromoteCommand == "" {
			return fmt.Errorf("service_promote_command is not configured")
		}
		_, stderr, ok, err := remote.LocalCommand(cmd.Context(), cfg.ServicePromoteCommand)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("promote command failed: %s", stderr)
		}

		checkTimeout, _ := cmd.Flags().GetDuration("check-timeout")
		checkInterval, _ := cmd.Flags().GetDuration("check-interval")

		if err := waitForPromotion(cmd.Context(), pl, cfg, checkTimeout, checkInterval); err != nil {
			return err
		}

		if err := cat.UpdateNodeRecordSetPrimary(cmd.Context(), cfg.NodeID); err != nil {
			return err
		}
		return cat.RecordEvent(cmd.Context(), &catalog.Event{
			NodeID: cfg.NodeID, EventType: "standby_promote", Successful: true,
		})
	},
}

// waitForPromotion polls the local engine until it reports it has left
// recovery mode or timeout elapses.
func waitForPromotion(ctx context.Context, pl *pool.Pool, cfg *config.Config, timeout, interval time.Duration) error {
	conn, err := pl.Open(ctx, cfg.Conninfo)
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var inRecovery bool
		if err := conn.PG().QueryRow(ctx, `SELECT pg_is_in_recovery()`).Scan(&inRecovery); err == nil && !inRecovery {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("engine did not leave recovery within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
