package distributed

import (
	"context"
	"sort"

	"github.com/fathom-search/fathom/pkg/rpc"
	"github.com/fathom-search/fathom/pkg/schema"
	"github.com/fathom-search/fathom/pkg/simhash"
)

// Searcher runs the full two-phase distributed search over a
// ShardedClient: fan out phase 1 to every shard, merge and dedup
// pointers, retrieve bodies for the survivors, then optionally rerank.
type Searcher struct {
	Client *ShardedClient

	// Precision reranks the globally merged, body-materialized
	// candidates; nil skips the precision/reranker stage entirely
	// (useful for tests and for a degraded-mode "recall only" config).
	Precision func(ctx context.Context, query schema.SearchQuery, pages []schema.PrecisionRankingWebpage) ([]schema.PrecisionRankingWebpage, error)
}

// Search executes phase 1 against every shard, merges and dedups
// pointers, retrieves bodies for the top-K via phase 2, reranks, and
// returns the externally-shaped result. A phase-1 bang match
// short-circuits everything after it: no body is ever retrieved for a
// bang query.
func (s *Searcher) Search(ctx context.Context, query schema.SearchQuery, collector schema.CollectorConfig, topK int) (schema.WebsitesResult, error) {
	p1 := s.phase1(ctx, query, collector)
	if p1.Bang != nil {
		return schema.WebsitesResult{Bang: p1.Bang}, nil
	}

	deduped := dropNearDuplicatePointers(p1.Websites)
	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Score > deduped[j].Score
	})
	hasMore := p1.HasMore
	if len(deduped) > topK {
		hasMore = true
		deduped = deduped[:topK]
	}

	pages, err := s.phase2(ctx, query, deduped)
	if err != nil {
		return schema.WebsitesResult{}, err
	}

	if s.Precision != nil {
		pages, err = s.Precision(ctx, query, pages)
		if err != nil {
			return schema.WebsitesResult{}, err
		}
	}

	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].ScoreValue() > pages[j].ScoreValue()
	})

	out := schema.WebsitesResult{HasMore: hasMore}
	for _, p := range pages {
		w := schema.DisplayedWebpage{
			URL:     p.Body.URL,
			Title:   p.Body.Title,
			Snippet: p.Body.Snippet,
			Site:    p.Body.Site,
			Score:   p.ScoreValue(),
		}
		if query.ReturnRankingSignals {
			w.RankingSignals = rankingSignalsOf(p.Recall.Signals)
		}
		out.Webpages = append(out.Webpages, w)
	}
	if query.CountResults {
		n := p1.NumWebsites
		out.NumHits = &n
	}
	return out, nil
}

// phase1Result is the merge of every shard's InitialWebsiteResult.
type phase1Result struct {
	Websites    []schema.RecallRankingWebpage
	HasMore     bool
	NumWebsites int
	Bang        *schema.Bang
}

// phase1 fans Search out to every shard and merges the per-shard
// InitialWebsiteResults: concatenate websites, sum num_websites,
// has_more = any, first non-nil bang wins. A shard that errored or
// timed out contributes nothing, it is not treated as a fatal failure.
func (s *Searcher) phase1(ctx context.Context, query schema.SearchQuery, collector schema.CollectorConfig) phase1Result {
	results := fanOut[SearchRequest, SearchResponse](ctx, s.Client, AllShardsSelector{}, rpc.MethodSearch,
		func(schema.ShardID) SearchRequest { return SearchRequest{Query: query, Collector: collector} })

	var merged phase1Result
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if r.Value.Result.Bang != nil && merged.Bang == nil {
			merged.Bang = r.Value.Result.Bang
			continue
		}
		merged.Websites = append(merged.Websites, r.Value.Result.Websites...)
		merged.HasMore = merged.HasMore || r.Value.Result.HasMore
		if r.Value.Result.NumWebsites != nil {
			merged.NumWebsites += *r.Value.Result.NumWebsites
		}
	}
	return merged
}

// rankingSignalsOf converts a dense SignalVector into the sparse,
// human-keyed map a ReturnRankingSignals query gets back, omitting
// signals that never fired for this (query, document) pair.
func rankingSignalsOf(v schema.SignalVector) map[string]float64 {
	var out map[string]float64
	for i := 0; i < schema.NumSignals; i++ {
		sig := schema.Signal(i)
		if val := v[sig]; val != 0 {
			if out == nil {
				out = make(map[string]float64)
			}
			out[sig.String()] = val
		}
	}
	return out
}

// phase2 groups the selected pointers by originating shard and calls
// RetrieveWebsites on each shard, splicing the results back into the
// pointers' original order.
func (s *Searcher) phase2(ctx context.Context, query schema.SearchQuery, pointers []schema.RecallRankingWebpage) ([]schema.PrecisionRankingWebpage, error) {
	byShard := make(map[schema.ShardID][]int)
	for i, p := range pointers {
		byShard[p.Pointer.ShardID] = append(byShard[p.Pointer.ShardID], i)
	}

	out := make([]schema.PrecisionRankingWebpage, len(pointers))
	for shardID, idxs := range byShard {
		rc, ok := s.Client.shard(shardID)
		if !ok {
			continue
		}
		req := RetrieveWebsitesRequest{Query: query}
		for _, idx := range idxs {
			req.Pointers = append(req.Pointers, pointers[idx].Pointer)
		}
		var resp RetrieveWebsitesResponse
		if err := rc.Call(ctx, rpc.MethodRetrieveWebsites, req, &resp); err != nil {
			continue
		}
		for j, idx := range idxs {
			if j >= len(resp.Webpages) {
				break
			}
			out[idx] = schema.PrecisionRankingWebpage{
				Recall: pointers[idx],
				Body:   resp.Webpages[j],
			}
		}
	}

	compact := out[:0]
	for _, p := range out {
		if p.Body.URL != "" {
			compact = append(compact, p)
		}
	}
	return compact, nil
}

// dropNearDuplicatePointers applies simhash near-duplicate suppression
// across shards using WebsitePointer's page-level fingerprint, mirroring
// pkg/pipeline's intra-shard DerankSimilar stage but operating on the
// merged cross-shard pointer set.
func dropNearDuplicatePointers(pages []schema.RecallRankingWebpage) []schema.RecallRankingWebpage {
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Score > pages[j].Score })

	table := simhash.NewTable()
	out := pages[:0]
	for _, p := range pages {
		if table.CheckAndAdd(p.Pointer.Hashes.PageLevel) {
			continue
		}
		out = append(out, p)
	}
	return out
}
