package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientServerSizeRoundTrip(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, req Request) Response {
		switch req.Method {
		case MethodSize:
			resp, err := NewResponse(req.ID, SizeResponse{NumDocs: 42})
			require.NoError(t, err)
			return resp
		default:
			return NewErrorResponse(req.ID, "ERR_METHOD", "unknown method")
		}
	})

	srv := NewServer("127.0.0.1:0", handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, time.Millisecond)

	client, err := Dial(context.Background(), srv.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	var out SizeResponse
	err = client.Call(context.Background(), MethodSize, struct{}{}, &out)
	require.NoError(t, err)
	require.Equal(t, uint64(42), out.NumDocs)

	cancel()
	<-serveErrCh
}

func TestClientSurfacesRemoteError(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, req Request) Response {
		return NewErrorResponse(req.ID, "ERR_503_SEARCH_FAILED", "shard unavailable")
	})

	srv := NewServer("127.0.0.1:0", handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.ListenAndServe(ctx)
	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, time.Millisecond)

	client, err := Dial(context.Background(), srv.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	var out SizeResponse
	err = client.Call(context.Background(), MethodSize, struct{}{}, &out)
	require.Error(t, err)

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, "ERR_503_SEARCH_FAILED", rpcErr.Code)
}
