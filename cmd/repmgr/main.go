package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/config"
	"github.com/cuemby/repmgrd/pkg/log"
	"github.com/cuemby/repmgrd/pkg/pool"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "repmgr",
	Short:   "Replication manager control tool",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"repmgr version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "f", "/etc/repmgrd.conf", "path to repmgrd.conf")

	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(primaryCmd)
	rootCmd.AddCommand(standbyCmd)
	rootCmd.AddCommand(witnessCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(daemonCmd)

	log.Init(log.Config{Level: log.InfoLevel})
}

// loadConfig is the shared entry point every subcommand's RunE starts
// with: read repmgrd.conf, surface its non-fatal warnings, return it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings {
		log.Logger.Warn().Msg(w)
	}
	return cfg, nil
}

// openCatalog connects to cfg.Conninfo and returns a Catalog, the pool
// it came from, and a close func the caller should defer.
func openCatalog(ctx context.Context, cfg *config.Config) (catalog.Catalog, *pool.Pool, func(), error) {
	pl := pool.New("repmgr")
	conn, err := pl.Open(ctx, cfg.Conninfo)
	if err != nil {
		return nil, nil, nil, err
	}
	return catalog.New(conn), pl, func() { conn.Close() }, nil
}
