package dht

import (
	"context"
	"fmt"

	"github.com/fathom-search/fathom/pkg/rpc"
)

// Handler adapts a local Node to rpc.Handler, dispatching the DHT
// method set.
type Handler struct {
	Node *Node
}

func (h Handler) Handle(ctx context.Context, req rpc.Request) rpc.Response {
	switch req.Method {
	case rpc.MethodDHTGet:
		var in rpc.DHTGetRequest
		if err := req.DecodeBody(&in); err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_801_MALFORMED_QUERY", err.Error())
		}
		value, present, err := h.Node.Get(in.Table, in.Key)
		if err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_INTERNAL", err.Error())
		}
		resp, err := rpc.NewResponse(req.ID, rpc.DHTGetResponse{Value: value, Present: present})
		if err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_INTERNAL", err.Error())
		}
		return resp

	case rpc.MethodDHTSet:
		var in rpc.DHTSetRequest
		if err := req.DecodeBody(&in); err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_801_MALFORMED_QUERY", err.Error())
		}
		if err := h.Node.Set(in.Table, in.Key, in.Value); err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_INTERNAL", err.Error())
		}
		resp, _ := rpc.NewResponse(req.ID, struct{}{})
		return resp

	case rpc.MethodDHTUpsert:
		var in rpc.DHTUpsertRequest
		if err := req.DecodeBody(&in); err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_801_MALFORMED_QUERY", err.Error())
		}
		action, err := h.Node.Upsert(in.Table, in.Key, in.Value)
		if err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_INTERNAL", err.Error())
		}
		resp, _ := rpc.NewResponse(req.ID, rpc.DHTUpsertResponse{Action: rpc.UpsertAction(action)})
		return resp

	case rpc.MethodDHTCreateTable:
		var in rpc.DHTCreateTableRequest
		if err := req.DecodeBody(&in); err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_801_MALFORMED_QUERY", err.Error())
		}
		if err := h.Node.CreateTable(in.Table, MonoidKind(in.Monoid)); err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_INTERNAL", err.Error())
		}
		resp, _ := rpc.NewResponse(req.ID, struct{}{})
		return resp

	case rpc.MethodDHTDropTable:
		var in rpc.DHTDropTableRequest
		if err := req.DecodeBody(&in); err != nil {
			return rpc.NewErrorResponse(req.ID, "ERR_801_MALFORMED_QUERY", err.Error())
		}
		h.Node.DropTable(in.Table)
		resp, _ := rpc.NewResponse(req.ID, struct{}{})
		return resp

	case rpc.MethodDHTAllTables:
		resp, _ := rpc.NewResponse(req.ID, rpc.DHTAllTablesResponse{Tables: h.Node.AllTables()})
		return resp

	default:
		return rpc.NewErrorResponse(req.ID, "ERR_METHOD", fmt.Sprintf("dht: unknown method %s", req.Method))
	}
}
