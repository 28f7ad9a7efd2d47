// Package rpcchain supplies base-chain block data in height order from
// the upstream full node: a bounded-prefetch fetcher in front of a
// Bitcoin Core-compatible JSON-RPC client, plus a ZeroMQ tip hint
// subscription. It binds one Go method per RPC verb over a typed
// request/response pair, rather than exposing the raw JSON-RPC
// transport to callers.
package rpcchain

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// BlockHeaderInfo mirrors the block header fields the upstream RPC
// returns ahead of full transaction data.
type BlockHeaderInfo struct {
	Hash       chainhash.Hash
	Height     uint64
	PrevHash   chainhash.Hash
	MerkleRoot chainhash.Hash
	Time       int64
	MedianTime int64
	NumTx      uint32
	Weight     uint32
	Bits       uint32
	Nonce      uint32
	Difficulty float64
	Version    int32
}

// BlockData is a full block with its transaction payloads, the shape
// get_block_info_with_transaction_data is assumed to return bit-exact.
type BlockData struct {
	Header       BlockHeaderInfo
	Transactions []*wire.MsgTx
}

// ChainInfo is the subset of get_chain_info the fetcher and the block
// processor's reorg detection need.
type ChainInfo struct {
	Blocks        uint64
	BestBlockHash chainhash.Hash
}

// Client is the narrow, five-verb surface of the upstream base-chain
// RPC the core consumes. A real implementation wraps a Bitcoin
// Core-compatible JSON-RPC transport; tests substitute a stub.
type Client interface {
	GetBlockHash(height uint64) (*chainhash.Hash, error)
	GetBlockInfoWithTransactionData(hash *chainhash.Hash) (*BlockData, error)
	GetRawTransactions(txids []chainhash.Hash, verbosity int) ([]*wire.MsgTx, error)
	GetChainInfo() (*ChainInfo, error)
	GetBlockHeader(hash *chainhash.Hash) (*BlockHeaderInfo, error)
}
