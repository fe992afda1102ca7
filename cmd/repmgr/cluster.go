package main

import (
	"fmt"
	"text/tabwriter"

	"os"

	"github.com/spf13/cobra"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Show the cluster's registered nodes and recent events",
}

func init() {
	clusterCmd.AddCommand(clusterShowCmd)
	clusterCmd.AddCommand(clusterEventCmd)

	clusterEventCmd.Flags().Int32("node-id", 0, "limit to a single node, 0 for all nodes")
	clusterEventCmd.Flags().Int("limit", 20, "number of events to show, most recent first")
}

var clusterShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List every node registered in the catalog",
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

		nodes, err := cat.GetAllNodeRecords(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tUPSTREAM\tLOCATION\tPRIORITY\tACTIVE")
		for _, n := range nodes {
			upstream := "-"
			if n.UpstreamNodeID != nil {
				upstream = fmt.Sprintf("%d", *n.UpstreamNodeID)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%t\n",
				n.ID, n.Name, n.Type, upstream, n.Location, n.Priority, n.Active)
		}
		return w.Flush()
	},
}

var clusterEventCmd = &cobra.Command{
	Use:   "event",
	Short: "List recent events recorded against the cluster",
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

		nodeID, _ := cmd.Flags().GetInt32("node-id")
		limit, _ := cmd.Flags().GetInt("limit")

		events, err := cat.GetEvents(cmd.Context(), nodeID, limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NODE ID\tEVENT TYPE\tOK\tTIMESTAMP\tDETAILS")
		for _, ev := range events {
			fmt.Fprintf(w, "%d\t%s\t%t\t%s\t%s\n",
				ev.NodeID, ev.EventType, ev.Successful, ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Details)
		}
		return w.Flush()
	},
}
