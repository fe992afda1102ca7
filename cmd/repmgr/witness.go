package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cuemby/repmgrd/pkg/catalog"
)

var witnessCmd = &cobra.Command{
	Use:   "witness",
	Short: "Register or unregister a witness node",
}

func init() {
	witnessCmd.AddCommand(witnessRegisterCmd)
	witnessCmd.AddCommand(witnessUnregisterCmd)

	witnessRegisterCmd.Flags().Int32("upstream-node-id", 0, "id of the primary the witness tracks")
	witnessRegisterCmd.Flags().Bool("force", false, "overwrite an existing node record with the same id")
}

var witnessRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Add the local node to the catalog as a witness",
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
			Type:           catalog.NodeTypeWitness,
			UpstreamNodeID: &upstreamID,
			Name:           cfg.NodeName,
			Conninfo:       cfg.Conninfo,
			Location:       cfg.Location,
			Priority:       0,
			Active:         true,
			ConfigFile:     filepath.Join(cfg.DataDirectory, "postgresql.conf"),
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
			NodeID: cfg.NodeID, EventType: "witness_register", Successful: true,
		})
	},
}

var witnessUnregisterCmd = &cobra.Command{
	Use:   "unregister NODE_ID",
	Short: "Remove a witness's node record from the catalog",
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
			NodeID: cfg.NodeID, EventType: "witness_unregister", Successful: true,
		})
	},
}
