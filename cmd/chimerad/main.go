// Command chimerad is the long-lived agent: it loads the desired-state
// catalog, reconciles it against the host on a timer and on config changes,
// and serves the control-plane API over a local socket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chimera-project/chimerad/internal/engine"
	"github.com/chimera-project/chimerad/internal/model"
	"github.com/chimera-project/chimerad/internal/provider"
	"github.com/chimera-project/chimerad/internal/scheduler"
	"github.com/chimera-project/chimerad/internal/server"
	"github.com/chimera-project/chimerad/internal/store"
	"github.com/chimera-project/chimerad/internal/systemdhost"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time.
var Version = "dev"

// configDirEnv overrides the desired-state directory; it wins over the
// --config-dir flag so a unit file can pin the path without editing the
// command line. Every other setting comes from config.yaml inside that
// directory, with command-line flags as per-invocation overrides.
const configDirEnv = "CHIMERA_CONFIG_DIR"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "chimerad",
	Short:   "chimerad reconciles declared OS containers against the host's systemd machine tooling",
	Version: Version,
	RunE:    runAgent,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config-dir", "./configs", "Desired-state directory (config.yaml, images/, profiles/, cloud-init/, nodes/)")
	flags.String("state-dir", "", "Override state_dir from config.yaml")
	flags.String("socket-path", "", "Override socket_path from config.yaml")
	flags.String("tcp-addr", "", "Override tcp_addr from config.yaml")
	flags.Int("reconciliation-interval", 0, "Override reconciliation_interval (seconds, minimum 5)")
	flags.String("log-level", "", "Override log_level: DEBUG, INFO, WARN, ERROR")
	flags.Bool("log-json", false, "Override log_json")
	flags.String("machines-dir", "", "Override systemd.machines_dir")
	flags.String("nspawn-dir", "", "Override systemd.nspawn_dir")
	flags.String("system-dir", "", "Override systemd.system_dir")
	flags.String("http-proxy", "", "Override proxy.http_proxy")
	flags.String("https-proxy", "", "Override proxy.https_proxy")
	flags.String("no-proxy", "", "Override proxy.no_proxy")
}

// applyFlagOverrides copies every flag the operator explicitly set on the
// command line over the file-loaded config. Flags left at their defaults
// don't touch the record, so config.yaml stays authoritative.
func applyFlagOverrides(cmd *cobra.Command, cfg *model.AgentConfig) {
	flags := cmd.Flags()

	if flags.Changed("state-dir") {
		cfg.StateDir, _ = flags.GetString("state-dir")
	}
	if flags.Changed("socket-path") {
		cfg.SocketPath, _ = flags.GetString("socket-path")
	}
	if flags.Changed("tcp-addr") {
		cfg.TCPAddr, _ = flags.GetString("tcp-addr")
	}
	if flags.Changed("reconciliation-interval") {
		v, _ := flags.GetInt("reconciliation-interval")
		cfg.ReconciliationInterval = model.Seconds(v)
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		cfg.LogJSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("machines-dir") {
		cfg.Systemd.MachinesDir, _ = flags.GetString("machines-dir")
	}
	if flags.Changed("nspawn-dir") {
		cfg.Systemd.NspawnDir, _ = flags.GetString("nspawn-dir")
	}
	if flags.Changed("system-dir") {
		cfg.Systemd.SystemDir, _ = flags.GetString("system-dir")
	}
	if flags.Changed("http-proxy") {
		cfg.Proxy.HTTPProxy, _ = flags.GetString("http-proxy")
	}
	if flags.Changed("https-proxy") {
		cfg.Proxy.HTTPSProxy, _ = flags.GetString("https-proxy")
	}
	if flags.Changed("no-proxy") {
		cfg.Proxy.NoProxy, _ = flags.GetString("no-proxy")
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	configDir, _ := cmd.Flags().GetString("config-dir")
	if envDir := os.Getenv(configDirEnv); envDir != "" {
		configDir = envDir
	}

	cfg, err := store.LoadAgentConfig(configDir)
	if err != nil {
		return fmt.Errorf("load agent config: %w", err)
	}
	applyFlagOverrides(cmd, &cfg)

	if cfg.StateDir == "" {
		cfg.StateDir = "./state"
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(cfg.StateDir, "chimerad.sock")
	}
	cfg = cfg.Defaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "chimerad",
		Level:      hclog.LevelFromString(cfg.LogLevel),
		JSONFormat: cfg.LogJSON,
	})

	logger.Info("starting chimerad", "version", Version, "config_dir", cfg.ConfigDir)

	st := store.New(logger, cfg.ConfigDir)
	if err := st.Load(); err != nil {
		return fmt.Errorf("load desired state: %w", err)
	}

	host := systemdhost.New(logger)
	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := host.BusConnect(connectCtx); err != nil {
		logger.Warn("failed to connect to the system bus, falling back to CLI tools for every call", "error", err)
	}
	defer host.Close()

	registry := provider.New(logger, host, cfg)
	if err := registry.Init(); err != nil {
		logger.Warn("one or more providers failed to initialize, continuing with the rest", "error", err)
	}

	eng := engine.New(logger, st, registry)

	srv := server.New(logger, eng, st, registry, cfg)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start control server: %w", err)
	}

	sched := scheduler.New(logger, eng, st, time.Duration(cfg.ReconciliationInterval)*time.Second, cfg.ConfigDir)
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	if err := sched.Start(runCtx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	sched.Stop()
	runCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("error during control server shutdown", "error", err)
	}

	logger.Info("chimerad stopped")
	return nil
}
