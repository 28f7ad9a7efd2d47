package rpcchain

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// stubClient counts GetBlockHash calls per height so tests can assert
// each height is fetched exactly once regardless of how many times
// GetBlock is called for it.
type stubClient struct {
	mu    sync.Mutex
	calls map[uint64]int
}

func newStubClient() *stubClient { return &stubClient{calls: make(map[uint64]int)} }

func (c *stubClient) GetBlockHash(height uint64) (*chainhash.Hash, error) {
	c.mu.Lock()
	c.calls[height]++
	c.mu.Unlock()
	var h chainhash.Hash
	h[0] = byte(height)
	h[1] = byte(height >> 8)
	return &h, nil
}

func (c *stubClient) GetBlockInfoWithTransactionData(hash *chainhash.Hash) (*BlockData, error) {
	height := uint64(hash[0]) | uint64(hash[1])<<8
	return &BlockData{Header: BlockHeaderInfo{Hash: *hash, Height: height}}, nil
}

func (c *stubClient) GetRawTransactions(txids []chainhash.Hash, verbosity int) ([]*wire.MsgTx, error) {
	return nil, nil
}

func (c *stubClient) GetChainInfo() (*ChainInfo, error) { return &ChainInfo{}, nil }

func (c *stubClient) GetBlockHeader(hash *chainhash.Hash) (*BlockHeaderInfo, error) {
	return &BlockHeaderInfo{Hash: *hash}, nil
}

func (c *stubClient) callCount(height uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[height]
}

func TestFetcherCallsUpstreamOnceEachHeight(t *testing.T) {
	client := newStubClient()
	f := NewFetcher(client, 5)

	for h := uint64(1000); h <= 1010; h++ {
		block, err := f.GetBlock(h)
		require.NoError(t, err)
		require.Equal(t, h, block.Header.Height)
	}

	for h := uint64(1000); h <= 1010; h++ {
		require.Equal(t, 1, client.callCount(h), "height %d", h)
	}
}

func TestFetcherDedupesConcurrentRequestsForSameHeight(t *testing.T) {
	client := newStubClient()
	f := NewFetcher(client, 3)

	var wg sync.WaitGroup
	var errs int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.GetBlock(42); err != nil {
				atomic.AddInt32(&errs, 1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(0), errs)
	require.Equal(t, 1, client.callCount(42))
}
