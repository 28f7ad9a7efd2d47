package indexer

import (
	"time"

	"github.com/opnet-labs/opnetd/bus"
	"github.com/opnet-labs/opnetd/consensus"
	"github.com/opnet-labs/opnetd/rpcchain"
	"github.com/opnet-labs/opnetd/storage"
)

// Config wires the Block Processor to the components it drives: the
// fetcher for block data, a plain RPC client for the header-only reads
// reorg detection needs, the consensus tracker for per-height limits,
// the storage engine, and the bus the processor announces new blocks
// on. Bus may be nil for standalone/reindex runs that never notify.
type Config struct {
	Fetcher   *rpcchain.Fetcher
	Client    rpcchain.Client
	Consensus *consensus.Tracker
	Store     *storage.Store
	Bus       *bus.Bus

	MaxReorgDepth  uint64
	MaxRetries     int
	RetryBaseDelay time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxReorgDepth == 0 {
		c.MaxReorgDepth = 100
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = 200 * time.Millisecond
	}
}
