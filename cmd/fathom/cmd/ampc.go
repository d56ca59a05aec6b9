package cmd

import (
	"context"
	"fmt"
	"log/slog"
	ossignal "os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fathom-search/fathom/internal/config"
	"github.com/fathom-search/fathom/internal/store"
	"github.com/fathom-search/fathom/pkg/ampc"
	"github.com/fathom-search/fathom/pkg/dht"
	"github.com/fathom-search/fathom/pkg/distributed"
	"github.com/fathom-search/fathom/pkg/rpc"
	"github.com/fathom-search/fathom/pkg/schema"
)

func newAMPCCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ampc",
		Short: "Run an AMPC worker or drive a job from a coordinator",
	}
	cmd.AddCommand(newAMPCWorkerCmd())
	cmd.AddCommand(newAMPCCoordinatorCmd())
	return cmd
}

// numNodesKey is the id2node table's reserved row holding the shard's
// precomputed node count, written by the offline webgraph build
// alongside the id->host rows themselves.
const numNodesKey = "__num_nodes__"

func newAMPCWorkerCmd() *cobra.Command {
	var configDir string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Serve this shard's DHT table and AMPC mapper rounds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAMPCWorker(cmd, configDir)
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", ".", "project directory to load fathom.yaml from")
	return cmd
}

func runAMPCWorker(cmd *cobra.Command, configDir string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	id2nodeKV, err := store.OpenKV(filepath.Join(cfg.Index.ID2NodeDir, "id2node.db"))
	if err != nil {
		return fmt.Errorf("open id2node store: %w", err)
	}
	defer id2nodeKV.Close()

	ctx, stop := ossignal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var numNodes uint64
	if v, ok, err := id2nodeKV.Get(ctx, []byte(numNodesKey)); err == nil && ok && len(v) == 8 {
		for _, b := range v {
			numNodes = numNodes<<8 | uint64(b)
		}
	}

	worker := ampc.NewGraphWorker(id2nodeKV, nil, numNodes)

	dhtClient := dht.NewClient(cfg.AMPC.NumShards)
	dhtClient.SetShard(cfg.Node.Shard, distributed.NewReplicatedClient(ctx, schema.ShardID(cfg.Node.Shard), []string{cfg.Server.ListenAddr}))

	registry := ampc.NewRegistry()
	registry.Register("node_count", ampc.NodeCountMapper(cfg.Node.ID))

	workerServer := ampc.NewWorkerServer(worker, dhtClient, registry)
	node := dht.NewNode()

	handler := rpc.HandlerFunc(func(ctx context.Context, req rpc.Request) rpc.Response {
		switch req.Method {
		case rpc.MethodCurrentJob, rpc.MethodRunJob:
			return ampc.Handler{Worker: workerServer}.Handle(ctx, req)
		default:
			return dht.Handler{Node: node}.Handle(ctx, req)
		}
	})

	server := rpc.NewServer(cfg.Server.ListenAddr, handler)
	slog.Info("ampc worker serving", slog.String("addr", cfg.Server.ListenAddr), slog.Uint64("shard", cfg.Node.Shard))
	return server.ListenAndServe(ctx)
}

func newAMPCCoordinatorCmd() *cobra.Command {
	var (
		workers           string
		mapperName        string
		numShards         uint64
		replicationFactor int
	)
	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Drive an AMPC job to convergence across a worker pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addrs := strings.Split(workers, ",")
			return runAMPCCoordinator(cmd, addrs, mapperName, numShards, replicationFactor)
		},
	}
	cmd.Flags().StringVar(&workers, "workers", "", "comma-separated worker addresses")
	cmd.Flags().StringVar(&mapperName, "mapper", "node_count", "registered mapper name to run")
	cmd.Flags().Uint64Var(&numShards, "shards", 8, "number of AMPC shards")
	cmd.Flags().IntVar(&replicationFactor, "replication", 1, "replicas per shard")
	cmd.MarkFlagRequired("workers")
	return cmd
}

func runAMPCCoordinator(cmd *cobra.Command, workerAddrs []string, mapperName string, numShards uint64, replicationFactor int) error {
	ctx, stop := ossignal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shardWorkers := ampc.AssignShards(numShards, workerAddrs, replicationFactor)

	metaClient := dht.NewClient(numShards)
	for shard, addrs := range shardWorkers {
		metaClient.SetShard(shard, distributed.NewReplicatedClient(ctx, schema.ShardID(shard), addrs))
	}

	coordinator := ampc.NewCoordinator(ctx, shardWorkers, metaClient)
	defer coordinator.Close()

	rounds, err := coordinator.RunJob(ctx, mapperName)
	if err != nil {
		return fmt.Errorf("run job %s: %w", mapperName, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "job %q converged after %d rounds\n", mapperName, rounds)
	return nil
}
