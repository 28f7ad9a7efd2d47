package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type echoHandler struct {
	linkCalls int
}

func (h *echoHandler) OnMessage(ctx context.Context, msg Message) (any, error) {
	return msg.Data, nil
}

func (h *echoHandler) OnLinkMessage(ctx context.Context, peer WorkerType, msg Message) (any, error) {
	h.linkCalls++
	return nil, nil
}

type hangingHandler struct{}

func (hangingHandler) OnMessage(ctx context.Context, msg Message) (any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingHandler) OnLinkMessage(ctx context.Context, peer WorkerType, msg Message) (any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSendDeliversToRegisteredWorker(t *testing.T) {
	b := New()
	b.Register(WorkerIndexer, &echoHandler{})

	resp, err := b.Send(context.Background(), WorkerAPI, WorkerIndexer, GetCurrentBlock, 42)
	require.NoError(t, err)
	require.Equal(t, 42, resp)
}

func TestSendUnregisteredWorkerErrors(t *testing.T) {
	b := New()
	_, err := b.Send(context.Background(), WorkerAPI, WorkerMempool, GetTransaction, nil)
	require.Error(t, err)
}

func TestSendTimesOutOnDeadline(t *testing.T) {
	b := New()
	b.Register(WorkerIndexer, hangingHandler{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := b.Send(ctx, WorkerAPI, WorkerIndexer, GetCurrentBlock, nil)
	require.Error(t, err)
}

func TestBroadcastReachesEveryOtherWorker(t *testing.T) {
	b := New()
	mempool := &echoHandler{}
	api := &echoHandler{}
	b.Register(WorkerMempool, mempool)
	b.Register(WorkerAPI, api)
	b.Register(WorkerIndexer, &echoHandler{})

	err := b.Broadcast(context.Background(), WorkerIndexer, NewBlockNotify, uint64(100))
	require.NoError(t, err)
	require.Equal(t, 1, mempool.linkCalls)
	require.Equal(t, 1, api.linkCalls)
}
