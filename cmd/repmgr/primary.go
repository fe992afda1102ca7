package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cuemby/repmgrd/pkg/catalog"
)

var primaryCmd = &cobra.Command{
	Use:   "primary",
	Short: "Register or unregister a primary node",
}

func init() {
	primaryCmd.AddCommand(primaryRegisterCmd)
	primaryCmd.AddCommand(primaryUnregisterCmd)

	primaryRegisterCmd.Flags().Bool("force", false, "overwrite an existing node record with the same id")
}

var primaryRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Add the local node to the catalog as a primary",
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

		force, _ := cmd.Flags().GetBool("force")

		_, status, err := cat.GetNodeRecord(cmd.Context(), cfg.NodeID)
		if err != nil {
			return err
		}
		if status == catalog.RecordFound && !force {
			return fmt.Errorf("node %d is already registered, pass --force to overwrite", cfg.NodeID)
		}

		n := &catalog.Node{
			ID:          cfg.NodeID,
			Type:        catalog.NodeTypePrimary,
			Name:        cfg.NodeName,
			Conninfo:    cfg.Conninfo,
			Location:    cfg.Location,
			Priority:    cfg.Priority,
			Active:      true,
			ConfigFile:  filepath.Join(cfg.DataDirectory, "postgresql.conf"),
			VirtualIP:   cfg.VirtualIP,
			NetworkCard: cfg.NetworkCard,
		}

		if status == catalog.RecordFound {
			if err := cat.UpdateNodeRecord(cmd.Context(), n); err != nil {
				return err
			}
		} else if err := cat.CreateNodeRecord(cmd.Context(), n); err != nil {
			return err
		}

		if err := cat.InitializeVotingTerm(cmd.Context()); err != nil {
			return err
		}

		return cat.RecordEvent(cmd.Context(), &catalog.Event{
			NodeID: cfg.NodeID, EventType: "primary_register", Successful: true,
		})
	},
}

var primaryUnregisterCmd = &cobra.Command{
	Use:   "unregister NODE_ID",
	Short: "Remove a primary's node record from the catalog",
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

		n, status, err := cat.GetNodeRecord(cmd.Context(), id)
		if err != nil {
			return err
		}
		if status != catalog.RecordFound {
			return fmt.Errorf("node %d is not registered", id)
		}
		if n.Type != catalog.NodeTypePrimary {
			return fmt.Errorf("node %d is not a primary", id)
		}

		if err := cat.UnregisterNodeRecord(cmd.Context(), id); err != nil {
			return err
		}
		return cat.RecordEvent(cmd.Context(), &catalog.Event{
			NodeID: cfg.NodeID, EventType: "primary_unregister", Successful: true,
		})
	},
}
