package ampc

import (
	"context"
	"errors"

	"github.com/fathom-search/fathom/pkg/rpc"
)

// Handler adapts a WorkerServer to rpc.Handler, dispatching the two
// AMPC methods a worker exposes.
type Handler struct {
	Worker *WorkerServer
}

func (h Handler) Handle(ctx context.Context, req rpc.Request) rpc.Response {
	switch req.Method {
	case rpc.MethodRunJob:
		return h.handleRunJob(req)
	case rpc.MethodCurrentJob:
		return h.handleCurrentJob(req)
	default:
		return rpc.NewErrorResponse(req.ID, "ERR_METHOD", "ampc: unsupported method "+string(req.Method))
	}
}

func (h Handler) handleRunJob(req rpc.Request) rpc.Response {
	var body rpc.RunJobRequest
	if err := req.DecodeBody(&body); err != nil {
		return rpc.NewErrorResponse(req.ID, "ERR_801_MALFORMED_QUERY", err.Error())
	}
	if err := h.Worker.ScheduleJob(body.JobID, body.Round, body.Mapper); err != nil {
		code := "ERR_1003_JOB_ALREADY_RUNNING"
		if errors.Is(err, ErrUnknownMapper) {
			code = "ERR_1004_UNKNOWN_MAPPER"
		}
		return rpc.NewErrorResponse(req.ID, code, err.Error())
	}
	resp, err := rpc.NewResponse(req.ID, rpc.RunJobResponse{Accepted: true})
	if err != nil {
		return rpc.NewErrorResponse(req.ID, "ERR_INTERNAL", err.Error())
	}
	return resp
}

func (h Handler) handleCurrentJob(req rpc.Request) rpc.Response {
	var body rpc.CurrentJobRequest
	if err := req.DecodeBody(&body); err != nil {
		return rpc.NewErrorResponse(req.ID, "ERR_801_MALFORMED_QUERY", err.Error())
	}
	round, mapper, running, action, _ := h.Worker.CurrentJob()
	resp, err := rpc.NewResponse(req.ID, rpc.CurrentJobResponse{
		Round:   round,
		Mapper:  mapper,
		HasMore: running,
		Action:  rpc.UpsertAction(action),
	})
	if err != nil {
		return rpc.NewErrorResponse(req.ID, "ERR_INTERNAL", err.Error())
	}
	return resp
}
