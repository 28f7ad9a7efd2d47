package rpcchain

import (
	"sync"

	"github.com/opnet-labs/opnetd/errkind"
)

// future is a pending or resolved fetch for one height. Callers block
// on done. A failed fetch is removed from Fetcher.pending as soon as it
// settles; a successful one stays there until GetBlock has returned it
// for its height, and is then removed.
type future struct {
	done   chan struct{}
	block  *BlockData
	err    error
	once   sync.Once
}

func newFuture() *future { return &future{done: make(chan struct{})} }

func (f *future) settle(block *BlockData, err error) {
	f.once.Do(func() {
		f.block, f.err = block, err
		close(f.done)
	})
}

func (f *future) wait() (*BlockData, error) {
	<-f.done
	return f.block, f.err
}

// Fetcher supplies blocks in height order with a bounded prefetch
// horizon: at most MaxPrefetch heights are ever in flight at once, and
// a height already being fetched is never requested twice. It is a
// bounded LRU of height -> one-shot result.
type Fetcher struct {
	client      Client
	maxPrefetch int

	mu      sync.Mutex
	pending map[uint64]*future
}

// NewFetcher builds a Fetcher issuing at most maxPrefetch concurrent
// background fetches ahead of the height a caller last requested.
func NewFetcher(client Client, maxPrefetch int) *Fetcher {
	if maxPrefetch < 1 {
		maxPrefetch = 1
	}
	return &Fetcher{
		client:      client,
		maxPrefetch: maxPrefetch,
		pending:     make(map[uint64]*future),
	}
}

// GetBlock returns the block at height, prefetching height+1 through
// height+MaxPrefetch if capacity allows and they are not already in
// flight. A height whose fetch errored is removed immediately so a
// subsequent call retries rather than replaying the cached error
// forever.
func (f *Fetcher) GetBlock(height uint64) (*BlockData, error) {
	fut := f.ensureInFlight(height)

	for h := height + 1; h <= height+uint64(f.maxPrefetch); h++ {
		f.mu.Lock()
		if len(f.pending) >= f.maxPrefetch {
			f.mu.Unlock()
			break
		}
		f.mu.Unlock()
		f.ensureInFlight(h)
	}

	block, err := fut.wait()
	f.mu.Lock()
	delete(f.pending, height)
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return block, nil
}

// ensureInFlight returns the in-flight future for height, starting a
// background fetch if none exists yet. Requests for the same height
// are deduplicated: the second caller simply waits on the first
// fetch's future.
func (f *Fetcher) ensureInFlight(height uint64) *future {
	f.mu.Lock()
	if fut, ok := f.pending[height]; ok {
		f.mu.Unlock()
		return fut
	}
	fut := newFuture()
	f.pending[height] = fut
	f.mu.Unlock()

	go f.fetch(height, fut)
	return fut
}

func (f *Fetcher) fetch(height uint64, fut *future) {
	hash, err := f.client.GetBlockHash(height)
	if err != nil {
		log.Debugf("get_block_hash(%d) failed: %v", height, err)
		fut.settle(nil, wrapUpstream(err))
		f.drop(height)
		return
	}
	block, err := f.client.GetBlockInfoWithTransactionData(hash)
	if err != nil {
		log.Debugf("get_block_info_with_transaction_data(%d) failed: %v", height, err)
		fut.settle(nil, wrapUpstream(err))
		f.drop(height)
		return
	}
	fut.settle(block, nil)
}

func (f *Fetcher) drop(height uint64) {
	f.mu.Lock()
	delete(f.pending, height)
	f.mu.Unlock()
}

// InFlight reports how many heights currently have an outstanding
// fetch, for tests asserting the prefetch horizon (S1).
func (f *Fetcher) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// wrapUpstream classifies an RPC error as transient; callers (the
// Block Processor) decide whether and how to retry. A
// real client is expected to distinguish connection-level failures
// (transient) from protocol-level ones (fatal); absent that signal
// here, every RPC error is treated as transient, which is the safer
// default for a node whose only recourse is to retry against the same
// upstream.
func wrapUpstream(err error) error {
	return errkind.New(errkind.KindUpstream, "transient", false, err)
}
