// Package mempool admits, verifies, and tracks pending OPNet entries
// ahead of confirmation. It follows a TxPool shape familiar from
// Bitcoin full nodes: an orphan pool keyed by the previous_psbt_id an
// entry is waiting on, a map from spent outpoints to the entry spending
// them, and a primary index by identifier, re-keyed from Bitcoin's
// prevout-only dependency edge to OPNet's previous_psbt_id edge and
// re-verified against
// consensus-gated PSBT fee floors instead of script validity alone.
package mempool

import (
	"time"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"

	"github.com/opnet-labs/opnetd/contract/parser"
)

// TransactionType classifies an admitted entry once decoding and
// classification have run.
type TransactionType uint8

const (
	TypeBitcoinTxV1 TransactionType = iota
	TypeBitcoinTxV2
	TypeOPNetInteraction
	TypeOPNetDeployment
)

// Entry is one pending transaction, either a raw wire.MsgTx or a PSBT,
// together with the OPNet envelope the parser extracted from it (nil
// for plain Bitcoin transfers).
type Entry struct {
	Identifier     string
	RawBytes       []byte
	IsPSBT         bool
	PreviousPsbtID string
	FirstSeen      time.Time

	Type TransactionType

	Tx       *wire.MsgTx
	PSBT     *psbt.Packet
	Envelope *parser.Envelope

	PriorityFeeSat uint64
	VirtualSize    int64

	tag Tag
}

// Tag marks the source a transaction was received from, for bulk
// eviction (e.g. all entries relayed by one misbehaving peer).
type Tag uint64

// Policy bounds mempool growth and the entries it is willing to hold.
type Policy struct {
	MaxEntries        int
	MaxOrphans        int
	MaxEntrySize      int64
	OrphanTTL         time.Duration
	OrphanScanPeriod  time.Duration
	ExpireAfterBlocks uint64
}

// DefaultPolicy is a conservative set of defaults, scaled down to
// OPNet's narrower admission surface.
var DefaultPolicy = Policy{
	MaxEntries:        50_000,
	MaxOrphans:        1_000,
	MaxEntrySize:      400_000,
	OrphanTTL:         15 * time.Minute,
	OrphanScanPeriod:  5 * time.Minute,
	ExpireAfterBlocks: 288,
}
