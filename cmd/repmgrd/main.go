package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/config"
	"github.com/cuemby/repmgrd/pkg/events"
	"github.com/cuemby/repmgrd/pkg/log"
	"github.com/cuemby/repmgrd/pkg/metrics"
	"github.com/cuemby/repmgrd/pkg/monitor"
	"github.com/cuemby/repmgrd/pkg/pool"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var configFile string
var metricsAddr string

var rootCmd = &cobra.Command{
	Use:   "repmgrd",
	Short: "Replication manager daemon",
	Long: `repmgrd monitors a cluster's replication topology and runs the
election that promotes a new primary when the current one goes away.`,
	Version: Version,
	RunE:    runDaemon,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"repmgrd version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))
	rootCmd.Flags().StringVarP(&configFile, "config", "f", "/etc/repmgrd.conf", "path to repmgrd.conf")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9666", "address to serve /metrics, /health, /ready, /live on")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogFile != ""})
	for _, w := range cfg.Warnings {
		log.Logger.Warn().Str("config", configFile).Msg(w)
	}
	metrics.SetVersion(Version)

	pl := pool.New("repmgrd")
	conn, err := pl.OpenFatal(context.Background(), cfg.Conninfo)
	if err != nil {
		return err
	}
	defer conn.Close()

	cat := catalog.New(conn)
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	cat.SetBroker(broker)

	if err := cat.SetLocalNodeID(context.Background(), cfg.NodeID); err != nil {
		logger := log.WithComponent("repmgrd")
		logger.Warn().Err(err).Msg("could not set local node id")
	}
	if err := cat.SetRepmgrdPID(context.Background(), os.Getpid(), ""); err != nil {
		logger := log.WithComponent("repmgrd")
		logger.Warn().Err(err).Msg("could not register daemon pid")
	}

	metrics.RegisterComponent("catalog", true, "connected")
	metrics.RegisterComponent("monitor", true, "starting")

	httpServer := &http.Server{Addr: metricsAddr, Handler: buildMux()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger := log.WithComponent("repmgrd")
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	daemon := monitor.New(cfg, cat, pl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- daemon.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	var runErr error
loop:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reloaded, err := config.Reload(configFile)
				if err != nil {
					logger := log.WithComponent("repmgrd")
					logger.Error().Err(err).Msg("config reload failed, keeping previous configuration")
					continue
				}
				daemon.Reload(reloaded)
				continue
			}
			logger := log.WithComponent("repmgrd")
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
			cancel()
		case runErr = <-runErrCh:
			break loop
		}
	}

	_ = httpServer.Shutdown(context.Background())
	_ = cat.RecordEvent(context.Background(), &catalog.Event{
		NodeID: cfg.NodeID, EventType: "repmgrd_shutdown", Successful: true,
	})
	return runErr
}

func buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	return mux
}
