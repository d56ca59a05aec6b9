package rpc

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/fathom-search/fathom/pkg/schema"
)

// Method names an RPC a searcher shard or DHT node exposes, carried as
// a string-discriminated field on Request.
type Method string

const (
	MethodSearch          Method = "search"
	MethodRetrieveWebsites Method = "retrieve_websites"
	MethodGetHomepage     Method = "get_homepage"
	MethodGetSiteURLs     Method = "get_site_urls"
	MethodTopKeyphrases   Method = "top_keyphrases"
	MethodSize            Method = "size"

	MethodDHTGet         Method = "dht_get"
	MethodDHTSet         Method = "dht_set"
	MethodDHTUpsert      Method = "dht_upsert"
	MethodDHTCreateTable Method = "dht_create_table"
	MethodDHTDropTable   Method = "dht_drop_table"
	MethodDHTAllTables   Method = "dht_all_tables"

	MethodCurrentJob Method = "ampc_current_job"
	MethodRunJob     Method = "ampc_run_job"
)

// Request is the envelope every call travels in: a method name plus
// its cbor-encoded argument struct, tagged with an id the matching
// Response echoes.
type Request struct {
	ID     uint64          `cbor:"id"`
	Method Method          `cbor:"method"`
	Body   cbor.RawMessage `cbor:"body"`
}

// Response is the matching reply envelope: exactly one of Body or Err
// is populated.
type Response struct {
	ID   uint64          `cbor:"id"`
	Body cbor.RawMessage `cbor:"body,omitempty"`
	Err  *Error          `cbor:"error,omitempty"`
}

// Error is the wire representation of a failed call. Code mirrors this
// module's internal/errors taxonomy codes (e.g. "ERR_301_NETWORK_TIMEOUT")
// so a client can classify a remote failure the same way it would a
// local one.
type Error struct {
	Code    string `cbor:"code"`
	Message string `cbor:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc: remote error [%s]: %s", e.Code, e.Message)
}

// NewRequest encodes body as a Request for the given method.
func NewRequest(id uint64, method Method, body any) (Request, error) {
	raw, err := cbor.Marshal(body)
	if err != nil {
		return Request{}, fmt.Errorf("rpc: encode request body: %w", err)
	}
	return Request{ID: id, Method: method, Body: raw}, nil
}

// DecodeBody unmarshals a request's body into out.
func (r Request) DecodeBody(out any) error {
	if err := cbor.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("rpc: decode request body for %s: %w", r.Method, err)
	}
	return nil
}

// NewResponse encodes body as a successful Response.
func NewResponse(id uint64, body any) (Response, error) {
	raw, err := cbor.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("rpc: encode response body: %w", err)
	}
	return Response{ID: id, Body: raw}, nil
}

// NewErrorResponse builds a Response carrying a failure.
func NewErrorResponse(id uint64, code, message string) Response {
	return Response{ID: id, Err: &Error{Code: code, Message: message}}
}

// DecodeBody unmarshals a response's body into out. Returns the
// response's Error if the call failed server-side.
func (r Response) DecodeBody(out any) error {
	if r.Err != nil {
		return r.Err
	}
	if err := cbor.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("rpc: decode response body: %w", err)
	}
	return nil
}

// -- per-method request/response payloads --

// SearchRequest is MethodSearch's argument: a fully parsed query plus
// the shard-local collector bound.
type SearchRequest struct {
	Query     schema.SearchQuery
	Collector schema.CollectorConfig
}

// SearchResponse is MethodSearch's result: one shard's phase-1 pointers.
type SearchResponse struct {
	Result schema.InitialWebsiteResult
}

// RetrieveWebsitesRequest is MethodRetrieveWebsites's argument: pointers
// to materialize, grouped by the caller into one shard's worth already.
type RetrieveWebsitesRequest struct {
	Query    schema.SearchQuery
	Pointers []schema.WebsitePointer
}

// RetrieveWebsitesResponse carries the materialized bodies, in the same
// order as the request's Pointers.
type RetrieveWebsitesResponse struct {
	Webpages []schema.RetrievedWebpage
}

// GetHomepageRequest looks up a single site's homepage document.
type GetHomepageRequest struct {
	Site string
}

// GetHomepageResponse is nil-Webpage when the site has no known homepage.
type GetHomepageResponse struct {
	Webpage *schema.RetrievedWebpage
}

// GetSiteURLsRequest paginates through every URL known for one site.
type GetSiteURLsRequest struct {
	Site   string
	Offset int
	Limit  int
}

// GetSiteURLsResponse is one page of a site's URLs.
type GetSiteURLsResponse struct {
	URLs []string
}

// TopKeyphrasesRequest asks a shard for its top keyphrases for a site.
type TopKeyphrasesRequest struct {
	Site string
	Top  int
}

// TopKeyphrasesResponse carries the requested keyphrases, most relevant first.
type TopKeyphrasesResponse struct {
	Keyphrases []string
}

// SizeResponse reports a shard's document count.
type SizeResponse struct {
	NumDocs uint64
}

// DHTKey identifies a row. Table is the caller-chosen logical table
// name; Key is sharded via md5(Key)[0:8] as a little-endian u64 mod the
// table's shard count.
type DHTKey struct {
	Table string
	Key   string
}

// DHTGetRequest/Response implement the read-only lookup.
type DHTGetRequest struct {
	DHTKey
}

type DHTGetResponse struct {
	Value   []byte
	Present bool
}

// DHTSetRequest overwrites a row unconditionally.
type DHTSetRequest struct {
	DHTKey
	Value []byte
}

// DHTUpsertRequest merges value into the row's current value via the
// table's monoid.
type DHTUpsertRequest struct {
	DHTKey
	Value []byte
}

// UpsertAction reports what an upsert did,
// tests.
type UpsertAction int

const (
	UpsertNoChange UpsertAction = iota
	UpsertInserted
	UpsertMerged
)

type DHTUpsertResponse struct {
	Action UpsertAction
}

// DHTCreateTableRequest declares a new table and its monoid kind.
type DHTCreateTableRequest struct {
	Table    string
	NumShard uint64
	Monoid   string
}

type DHTDropTableRequest struct {
	Table string
}

type DHTAllTablesResponse struct {
	Tables []string
}

// CurrentJobRequest polls a worker for the round it should run next,
//.7's coordinator/worker round protocol.
type CurrentJobRequest struct {
	JobID string
}

type CurrentJobResponse struct {
	Round   *uint64
	Mapper  string
	HasMore bool
	// Action is only meaningful once HasMore is false: the most
	// significant UpsertAction any of the round's upserts returned,
	// the signal the coordinator reduces into its convergence check
	//.
	Action UpsertAction
}

// RunJobRequest tells a worker to launch one mapper round; the worker
// returns immediately, the coordinator learns completion via CurrentJob
// polling.
type RunJobRequest struct {
	JobID  string
	Round  uint64
	Mapper string
}

type RunJobResponse struct {
	Accepted bool
}
