package cmd

import (
	"fmt"
	"log/slog"
	ossignal "os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fathom-search/fathom/internal/config"
	"github.com/fathom-search/fathom/internal/store"
	"github.com/fathom-search/fathom/pkg/cluster"
	"github.com/fathom-search/fathom/pkg/rpc"
	"github.com/fathom-search/fathom/pkg/schema"
	"github.com/fathom-search/fathom/pkg/segment"
	rankingsignal "github.com/fathom-search/fathom/pkg/signal"
)

func newSearcherCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "searcher",
		Short: "Run a shard searcher node",
	}
	cmd.AddCommand(newSearcherServeCmd())
	return cmd
}

func newSearcherServeCmd() *cobra.Command {
	var configDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search and retrieve RPCs for this node's shard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearcherServe(cmd, configDir)
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", ".", "project directory to load fathom.yaml from")
	return cmd
}

func runSearcherServe(cmd *cobra.Command, configDir string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	centralityPath := filepath.Join(cfg.Index.CentralityDir, "harmonic.db")
	centrality, err := store.OpenCentralityStore(centralityPath)
	if err != nil {
		return fmt.Errorf("open centrality store: %w", err)
	}
	defer centrality.Close()

	bodies, err := store.OpenKV(filepath.Join(cfg.Index.SegmentDir, "bodies.db"))
	if err != nil {
		return fmt.Errorf("open body store: %w", err)
	}
	defer bodies.Close()

	computer := &rankingsignal.Computer{Centrality: centrality, Similarity: rankingsignal.CosineEmbeddingSimilarity{}}
	coeffs, err := cfg.Ranking.CoefficientTable()
	if err != nil {
		return fmt.Errorf("build coefficient table: %w", err)
	}

	shard, err := segment.OpenShard(cfg.Index.SegmentDir, schema.ShardID(cfg.Node.Shard), bodies, computer, coeffs, cfg.BangTable())
	if err != nil {
		return fmt.Errorf("open shard: %w", err)
	}

	ctx, stop := ossignal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	self, err := cfg.Node.Service()
	if err != nil {
		return fmt.Errorf("build service descriptor: %w", err)
	}
	self.Host = cfg.Server.ListenAddr

	clus, err := cluster.Join(ctx, schema.Member{ID: cfg.Node.ID, Service: self}, cfg.Cluster.GossipBind, cfg.Cluster.SeedAddrs)
	if err != nil {
		return fmt.Errorf("join cluster: %w", err)
	}
	defer clus.Leave()

	server := rpc.NewServer(cfg.Server.ListenAddr, segment.Handler{Shard: shard})
	slog.Info("searcher serving", slog.String("addr", cfg.Server.ListenAddr), slog.Uint64("shard", cfg.Node.Shard))
	return server.ListenAndServe(ctx)
}
