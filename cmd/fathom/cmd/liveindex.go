package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fathom-search/fathom/internal/config"
	"github.com/fathom-search/fathom/internal/watcher"
	"github.com/fathom-search/fathom/pkg/cluster"
	"github.com/fathom-search/fathom/pkg/schema"
)

func newLiveIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "liveindex",
		Short: "Run a LiveIndex shard node",
	}
	cmd.AddCommand(newLiveIndexServeCmd())
	return cmd
}

func newLiveIndexServeCmd() *cobra.Command {
	var configDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Watch the WAL directory and advertise InSetup/Ready state over gossip",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLiveIndexServe(cmd, configDir)
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", ".", "project directory to load fathom.yaml from")
	return cmd
}

// runLiveIndexServe joins the cluster advertising LiveIndexInSetup, then
// watches cfg.Index.WALDir for the incremental writer's first segment.
// Once WAL segments exist, it flips the advertised state to
// LiveIndexReady so searchers know this shard can serve queries.
func runLiveIndexServe(cmd *cobra.Command, configDir string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := ossignal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	self, err := cfg.Node.Service()
	if err != nil {
		return fmt.Errorf("build service descriptor: %w", err)
	}
	self.SearchHost = cfg.Server.ListenAddr
	self.State = schema.LiveIndexInSetup

	clus, err := cluster.Join(ctx, schema.Member{ID: cfg.Node.ID, Service: self}, cfg.Cluster.GossipBind, cfg.Cluster.SeedAddrs)
	if err != nil {
		return fmt.Errorf("join cluster: %w", err)
	}
	defer clus.Leave()

	slog.Info("liveindex in setup", slog.String("wal_dir", cfg.Index.WALDir), slog.Uint64("shard", cfg.Node.Shard))

	if err := watchUntilReady(ctx, cfg.Index.WALDir); err != nil {
		return fmt.Errorf("watch wal dir: %w", err)
	}

	self.State = schema.LiveIndexReady
	clus.SetService(self)
	slog.Info("liveindex ready", slog.Uint64("shard", cfg.Node.Shard))

	<-ctx.Done()
	return nil
}

// watchUntilReady blocks until a WAL segment appears under walDir, or
// the context is cancelled.
func watchUntilReady(ctx context.Context, walDir string) error {
	if err := os.MkdirAll(walDir, 0o755); err != nil {
		return fmt.Errorf("create wal dir: %w", err)
	}

	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
	if err != nil {
		return err
	}
	defer w.Stop()

	watchErr := make(chan error, 1)
	go func() { watchErr <- w.Start(ctx, walDir) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-watchErr:
			return err
		case events := <-w.Events():
			for _, e := range events {
				if e.Operation == watcher.OpCreate && !e.IsDir {
					return nil
				}
			}
		case err := <-w.Errors():
			slog.Warn("wal watcher error", slog.String("error", err.Error()))
		}
	}
}
