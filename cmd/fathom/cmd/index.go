package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fathom-search/fathom/internal/config"
	"github.com/fathom-search/fathom/internal/embed"
	"github.com/fathom-search/fathom/internal/output"
	"github.com/fathom-search/fathom/internal/store"
	"github.com/fathom-search/fathom/pkg/analysis"
	"github.com/fathom-search/fathom/pkg/schema"
	"github.com/fathom-search/fathom/pkg/segment"
	"github.com/fathom-search/fathom/pkg/signal"
	"github.com/fathom-search/fathom/pkg/simhash"
)

// indexRecord is one line of the newline-delimited JSON a crawl/webgraph
// pipeline hands this command; it carries the subset of schema.Document
// an offline build decides per page, everything else (embeddings,
// derived NumTokens, Simhash) is filled in here at index time.
type indexRecord struct {
	URL              string  `json:"url"`
	Title            string  `json:"title"`
	Body             string  `json:"body"`
	Site             string  `json:"site"`
	Domain           string  `json:"domain"`
	HostCentrality   float64 `json:"host_centrality"`
	PageCentrality   float64 `json:"page_centrality"`
	IsHomepage       bool    `json:"is_homepage"`
	FetchTimeMs      uint64  `json:"fetch_time_ms"`
	TrackerScore     float64 `json:"tracker_score"`
	LinkDensity      float64 `json:"link_density"`
	LikelyHasAds     bool    `json:"likely_has_ads"`
	LikelyHasPaywall bool    `json:"likely_has_paywall"`
	HostNodeID       uint64  `json:"host_node_id"`
	Keywords         string  `json:"keywords"`
}

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build and inspect index segments for this node's shard",
	}
	cmd.AddCommand(newIndexBuildCmd())
	cmd.AddCommand(newIndexInfoCmd())
	return cmd
}

func newIndexBuildCmd() *cobra.Command {
	var (
		configDir    string
		embedVectors bool
	)
	cmd := &cobra.Command{
		Use:   "build <docs.jsonl>",
		Short: "Commit a new segment from a newline-delimited JSON document batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexBuild(cmd, configDir, args[0], embedVectors)
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", ".", "project directory to load fathom.yaml from")
	cmd.Flags().BoolVar(&embedVectors, "embed", true, "compute title/keyword embeddings via Ollama for embedding-similarity signals")
	return cmd
}

func runIndexBuild(cmd *cobra.Command, configDir, docsPath string, embedVectors bool) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	f, err := os.Open(docsPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", docsPath, err)
	}
	defer f.Close()

	bodies, err := store.OpenKV(filepath.Join(cfg.Index.SegmentDir, "bodies.db"))
	if err != nil {
		return fmt.Errorf("open body store: %w", err)
	}
	defer bodies.Close()

	ctx := cmd.Context()
	var embedder embed.Embedder
	if embedVectors {
		embedder, err = embed.NewEmbedder(ctx, embed.ProviderOllama, "")
		if err != nil {
			return fmt.Errorf("create embedder (pass --embed=false to skip): %w", err)
		}
		defer embedder.Close()
	}

	w := segment.NewWriter(cfg.Index.SegmentDir, bodies)
	out := output.New(cmd.OutOrStdout())

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec indexRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("parse document %d: %w", n+1, err)
		}
		doc := toDocument(rec)
		if embedder != nil {
			if err := embedDocument(ctx, embedder, &doc); err != nil {
				return fmt.Errorf("embed document %d: %w", n+1, err)
			}
		}
		w.Add(doc)
		n++
		if n%1000 == 0 {
			out.Statusf("", "indexed %d documents", n)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", docsPath, err)
	}

	segID, err := w.Commit()
	if err != nil {
		return fmt.Errorf("commit segment: %w", err)
	}
	out.Successf("committed segment %s with %d documents", segID, n)
	return nil
}

func embedDocument(ctx context.Context, embedder embed.Embedder, doc *schema.Document) error {
	title := doc.Fields[schema.FieldTitle]
	if title != "" {
		vec, err := embedder.Embed(ctx, title)
		if err != nil {
			return fmt.Errorf("embed title: %w", err)
		}
		doc.TitleEmbedding = signal.EncodeF32Vector(vec)
	}
	keywords := doc.Fields[schema.FieldKeywords]
	if keywords != "" {
		vec, err := embedder.Embed(ctx, keywords)
		if err != nil {
			return fmt.Errorf("embed keywords: %w", err)
		}
		doc.KeywordEmbedding = signal.EncodeF32Vector(vec)
	}
	return nil
}

func toDocument(rec indexRecord) schema.Document {
	var d schema.Document
	d.URL = rec.URL
	d.Fields[schema.FieldTitle] = rec.Title
	d.Fields[schema.FieldCleanBody] = rec.Body
	d.Fields[schema.FieldAllBody] = rec.Body
	d.Fields[schema.FieldURL] = rec.URL
	d.Fields[schema.FieldSite] = rec.Site
	d.Fields[schema.FieldSiteNoTokenizer] = rec.Site
	d.Fields[schema.FieldDomain] = rec.Domain
	d.Fields[schema.FieldDomainNoTokenizer] = rec.Domain
	d.Fields[schema.FieldKeywords] = rec.Keywords
	d.Site = rec.Site
	d.Domain = rec.Domain
	d.HostCentrality = rec.HostCentrality
	d.PageCentrality = rec.PageCentrality
	d.IsHomepage = rec.IsHomepage
	d.FetchTimeMs = rec.FetchTimeMs
	d.LastUpdated = time.Now()
	d.TrackerScore = rec.TrackerScore
	d.LinkDensity = rec.LinkDensity
	d.LikelyHasAds = rec.LikelyHasAds
	d.LikelyHasPaywall = rec.LikelyHasPaywall
	d.HostNodeID = rec.HostNodeID
	for f := 0; f < schema.NumTextFields; f++ {
		d.NumTokens[f] = uint32(len(analysis.Tokenize(d.Fields[f])))
	}
	bodyTokens := analysis.Tokenize(rec.Body)
	features := make([]string, len(bodyTokens))
	for i, t := range bodyTokens {
		features[i] = t.Term
	}
	d.Simhash = simhash.Fingerprint(features)
	return d
}

func newIndexInfoCmd() *cobra.Command {
	var configDir string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Report the committed segments and document count for this shard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			committed, err := segment.ReadCommitted(cfg.Index.SegmentDir)
			if err != nil {
				return err
			}
			var total uint32
			for _, id := range committed.SegmentIDs {
				seg, err := segment.Open(filepath.Join(cfg.Index.SegmentDir, "segments", id))
				if err != nil {
					return err
				}
				total += seg.NumDocs()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d segments, %d documents\n", len(committed.SegmentIDs), total)
			return nil
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", ".", "project directory to load fathom.yaml from")
	return cmd
}
