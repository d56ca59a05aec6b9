package segment

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/fathom-search/fathom/pkg/rpc"
	"github.com/fathom-search/fathom/pkg/schema"
	"github.com/fathom-search/fathom/pkg/signal"
)

// Shard owns every segment committed to one shard root plus the raw
// body store backing phase-2 retrieval, and answers the search RPCs a
// distributed.Searcher fans out to. Grounded on
// pkg/dht.Handler's local-store-to-rpc.Handler adapter shape.
type Shard struct {
	ID       schema.ShardID
	segments []*Segment
	bodies   BodyStore

	Computer *signal.Computer
	Coeffs   *schema.CoefficientTable
	// Bangs is the tag->redirect-template table consulted before any
	// segment is touched; nil disables bang routing entirely.
	Bangs schema.BangTable
}

// OpenShard opens every segment committed under shardRoot/segments;
// bodies is the shard's body store, opened and supplied by the caller.
func OpenShard(shardRoot string, id schema.ShardID, bodies BodyStore, computer *signal.Computer, coeffs *schema.CoefficientTable, bangs schema.BangTable) (*Shard, error) {
	committed, err := ReadCommitted(shardRoot)
	if err != nil {
		return nil, fmt.Errorf("segment: read committed segments for shard %d: %w", id, err)
	}

	sh := &Shard{ID: id, bodies: bodies, Computer: computer, Coeffs: coeffs, Bangs: bangs}
	for _, segID := range committed.SegmentIDs {
		seg, err := Open(filepath.Join(shardRoot, "segments", segID))
		if err != nil {
			return nil, fmt.Errorf("segment: open committed segment %s: %w", segID, err)
		}
		sh.segments = append(sh.segments, seg)
	}
	return sh, nil
}

// Search runs the query against every segment the shard holds and
// merges their InitialWebsiteResults, matching the shape a single
// segment's Execute would produce for a one-segment shard. A matching
// bang tag short-circuits before any segment is queried.
func (sh *Shard) Search(ctx context.Context, query schema.SearchQuery, collector schema.CollectorConfig) schema.InitialWebsiteResult {
	if bang := sh.resolveBang(query); bang != nil {
		return schema.InitialWebsiteResult{Bang: bang}
	}

	var merged schema.InitialWebsiteResult
	var numWebsites int
	for ord, seg := range sh.segments {
		r := seg.Execute(ctx, sh.ID, uint32(ord), query, collector, sh.Computer, sh.Coeffs)
		merged.Websites = append(merged.Websites, r.Websites...)
		merged.HasMore = merged.HasMore || r.HasMore
		if r.NumWebsites != nil {
			numWebsites += *r.NumWebsites
		}
	}
	sort.SliceStable(merged.Websites, func(i, j int) bool { return merged.Websites[i].Score > merged.Websites[j].Score })
	if query.CountResults {
		merged.NumWebsites = &numWebsites
	}
	return merged
}

// resolveBang checks query for a bang term against the shard's bang
// table, returning nil if the query carries no bang or the tag is
// unknown.
func (sh *Shard) resolveBang(query schema.SearchQuery) *schema.Bang {
	if sh.Bangs == nil {
		return nil
	}
	tag, remainder, ok := schema.ExtractBang(query.Terms)
	if !ok {
		return nil
	}
	redirectTo, ok := sh.Bangs.Resolve(tag, remainder)
	if !ok {
		return nil
	}
	return &schema.Bang{RedirectTo: redirectTo}
}

// Handler adapts a Shard to rpc.Handler, dispatching the searcher
// method set.
type Handler struct {
	Shard *Shard
}

func (h Handler) Handle(ctx context.Context, req rpc.Request) rpc.Response {
	switch req.Method {
	case rpc.MethodSearch:
		var in rpc.SearchRequest
		if err := req.DecodeBody(&in); err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_801_MALFORMED_QUERY", err.Error())
		}
		result := h.Shard.Search(ctx, in.Query, in.Collector)
		resp, err := rpc.NewResponse(req.ID, rpc.SearchResponse{Result: result})
		if err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_INTERNAL", err.Error())
		}
		return resp

	case rpc.MethodRetrieveWebsites:
		var in rpc.RetrieveWebsitesRequest
		if err := req.DecodeBody(&in); err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_801_MALFORMED_QUERY", err.Error())
		}
		pages, err := Retrieve(ctx, h.Shard.bodies, in.Pointers)
		if err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_INTERNAL", err.Error())
		}
		resp, err := rpc.NewResponse(req.ID, rpc.RetrieveWebsitesResponse{Webpages: pages})
		if err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_INTERNAL", err.Error())
		}
		return resp

	case rpc.MethodSize:
		var total uint64
		for _, seg := range h.Shard.segments {
			total += uint64(seg.NumDocs())
		}
		resp, _ := rpc.NewResponse(req.ID, rpc.SizeResponse{NumDocs: total})
		return resp

	case rpc.MethodGetHomepage:
		var in rpc.GetHomepageRequest
		if err := req.DecodeBody(&in); err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_801_MALFORMED_QUERY", err.Error())
		}
		page, err := h.Shard.getHomepage(ctx, in.Site)
		if err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_INTERNAL", err.Error())
		}
		resp, _ := rpc.NewResponse(req.ID, rpc.GetHomepageResponse{Webpage: page})
		return resp

	case rpc.MethodGetSiteURLs:
		var in rpc.GetSiteURLsRequest
		if err := req.DecodeBody(&in); err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_801_MALFORMED_QUERY", err.Error())
		}
		urls := h.Shard.getSiteURLs(ctx, in.Site, in.Offset, in.Limit)
		resp, _ := rpc.NewResponse(req.ID, rpc.GetSiteURLsResponse{URLs: urls})
		return resp

	case rpc.MethodTopKeyphrases:
		var in rpc.TopKeyphrasesRequest
		if err := req.DecodeBody(&in); err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_801_MALFORMED_QUERY", err.Error())
		}
		resp, _ := rpc.NewResponse(req.ID, rpc.TopKeyphrasesResponse{Keyphrases: h.Shard.topKeyphrases(ctx, in.Site, in.Top)})
		return resp

	default:
		return rpc.NewErrorResponse(req.ID, "ERR_METHOD", fmt.Sprintf("segment: unknown method %s", req.Method))
	}
}

// getHomepage finds the highest-scoring page on site with IsHomepage
// set.
func (sh *Shard) getHomepage(ctx context.Context, site string) (*schema.RetrievedWebpage, error) {
	query := schema.SearchQuery{Terms: []schema.Term{{Kind: schema.TermSite, Site: site}}}
	collector := schema.DefaultCollectorConfig()
	result := sh.Search(ctx, query, collector)

	var best *schema.WebsitePointer
	for i := range result.Websites {
		if result.Websites[i].Signals[schema.SignalIsHomepage] != 1 {
			continue
		}
		p := result.Websites[i].Pointer
		if best == nil || p.Score > best.Score {
			cp := p
			best = &cp
		}
	}
	if best == nil {
		return nil, nil
	}
	pages, err := Retrieve(ctx, sh.bodies, []schema.WebsitePointer{*best})
	if err != nil || len(pages) == 0 {
		return nil, err
	}
	return &pages[0], nil
}

// getSiteURLs pages through every document matching site, offset/limit
// applied after sorting by score descending.
func (sh *Shard) getSiteURLs(ctx context.Context, site string, offset, limit int) []string {
	query := schema.SearchQuery{Terms: []schema.Term{{Kind: schema.TermSite, Site: site}}}
	collector := schema.DefaultCollectorConfig()
	result := sh.Search(ctx, query, collector)

	pointers := make([]schema.WebsitePointer, 0, len(result.Websites))
	for _, w := range result.Websites {
		pointers = append(pointers, w.Pointer)
	}
	if offset >= len(pointers) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(pointers) {
		end = len(pointers)
	}
	pages, err := Retrieve(ctx, sh.bodies, pointers[offset:end])
	if err != nil {
		return nil
	}
	urls := make([]string, 0, len(pages))
	for _, p := range pages {
		urls = append(urls, p.URL)
	}
	return urls
}

// topKeyphrases is a placeholder surface: keyphrase extraction is an
// offline job this module does not implement, so a shard reports none.
func (sh *Shard) topKeyphrases(_ context.Context, _ string, _ int) []string {
	return nil
}
