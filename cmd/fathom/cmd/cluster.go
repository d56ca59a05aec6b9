package cmd

import (
	"context"
	"fmt"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fathom-search/fathom/internal/config"
	"github.com/fathom-search/fathom/pkg/cluster"
	"github.com/fathom-search/fathom/pkg/schema"
)

func newClusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Join the gossip cluster and report membership",
	}
	cmd.AddCommand(newClusterJoinCmd())
	return cmd
}

func newClusterJoinCmd() *cobra.Command {
	var configDir string
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join the cluster as this node and print membership changes until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClusterJoin(cmd, configDir)
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", ".", "project directory to load fathom.yaml from")
	return cmd
}

func runClusterJoin(cmd *cobra.Command, configDir string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	service, err := cfg.Node.Service()
	if err != nil {
		return fmt.Errorf("build service descriptor: %w", err)
	}
	service.Host = cfg.Node.Host

	ctx, stop := ossignal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clus, err := cluster.Join(ctx, schema.Member{ID: cfg.Node.ID, Service: service}, cfg.Cluster.GossipBind, cfg.Cluster.SeedAddrs)
	if err != nil {
		return fmt.Errorf("join cluster: %w", err)
	}
	defer clus.Leave()

	fmt.Fprintf(cmd.OutOrStdout(), "joined as %s, gossiping on %s\n", clus.SelfNode().ID, cfg.Cluster.GossipBind)
	return reportMembership(ctx, cmd, clus)
}

const membershipPollInterval = 5 * time.Second

func reportMembership(ctx context.Context, cmd *cobra.Command, clus *cluster.Cluster) error {
	ticker := time.NewTicker(membershipPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, m := range clus.Members() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\thost=%s shard=%d\n", m.ID, m.Service.Host, m.Service.Shard)
			}
		}
	}
}
