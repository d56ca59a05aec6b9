package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fathom-search/fathom/internal/config"
	"github.com/fathom-search/fathom/internal/embed"
	"github.com/fathom-search/fathom/pkg/distributed"
	"github.com/fathom-search/fathom/pkg/pipeline"
	"github.com/fathom-search/fathom/pkg/schema"
	rankingsignal "github.com/fathom-search/fathom/pkg/signal"
)

func newSearchCmd() *cobra.Command {
	var (
		configDir string
		shards    string
		topK      int
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one query across a sharded cluster and print the merged results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, configDir, shards, strings.Join(args, " "), topK, jsonOut)
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", ".", "project directory to load fathom.yaml from")
	cmd.Flags().StringVar(&shards, "shards", "", "comma-separated shardID=addr pairs, e.g. 0=127.0.0.1:7100,1=127.0.0.1:7101")
	cmd.Flags().IntVar(&topK, "top-k", 10, "number of results to return")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print results as JSON")
	cmd.MarkFlagRequired("shards")
	return cmd
}

func runSearch(cmd *cobra.Command, configDir, shards, rawQuery string, topK int, jsonOut bool) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := cmd.Context()
	client := distributed.NewShardedClient()
	for _, pair := range strings.Split(shards, ",") {
		id, addr, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("malformed --shards entry %q, want shardID=addr", pair)
		}
		var shardID uint64
		if _, err := fmt.Sscanf(id, "%d", &shardID); err != nil {
			return fmt.Errorf("malformed shard id %q: %w", id, err)
		}
		client.SetShard(schema.ShardID(shardID), distributed.NewReplicatedClient(ctx, schema.ShardID(shardID), []string{addr}))
	}

	coeffs, err := cfg.Ranking.CoefficientTable()
	if err != nil {
		return fmt.Errorf("build coefficient table: %w", err)
	}
	query := schema.DefaultSearchQuery(rawQuery)
	if embedder, embedErr := embed.NewEmbedder(ctx, embed.ProviderOllama, ""); embedErr == nil {
		defer embedder.Close()
		if vec, embedErr := embedder.Embed(ctx, rawQuery); embedErr == nil {
			query.QueryEmbedding = vec
		}
	}

	precisionComputer := &rankingsignal.Computer{CrossEnc: rankingsignal.LexicalOverlapCrossEncoder{}}
	searcher := &distributed.Searcher{
		Client: client,
		Precision: func(ctx context.Context, query schema.SearchQuery, pages []schema.PrecisionRankingWebpage) ([]schema.PrecisionRankingWebpage, error) {
			ptrs := make([]*schema.PrecisionRankingWebpage, len(pages))
			for i := range pages {
				ptrs[i] = &pages[i]
			}
			scorer := pipeline.PrecisionScorer{Computer: precisionComputer, Query: rawQuery}
			ranked, err := pipeline.NewPrecisionPipeline(scorer, coeffs, cfg.Ranking.PrecisionStageTopN).Run(ctx, ptrs)
			if err != nil {
				return nil, err
			}
			out := make([]schema.PrecisionRankingWebpage, len(ranked))
			for i, p := range ranked {
				out[i] = *p
			}
			return out, nil
		},
	}
	collector := cfg.Ranking.CollectorConfig()

	result, err := searcher.Search(ctx, query, collector, topK)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	for i, w := range result.Webpages {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n   %s\n   %s\n\n", i+1, w.Title, w.URL, w.Snippet)
	}
	if result.HasMore {
		fmt.Fprintln(cmd.OutOrStdout(), "(more results available)")
	}
	return nil
}
