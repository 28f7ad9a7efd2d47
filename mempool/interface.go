package mempool

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/opnet-labs/opnetd/contract/parser"
)

// UTXOSource resolves whether a candidate entry's inputs are already
// spent, so the pool can detect double-spends against confirmed chain
// state without importing the storage package's concrete Store type.
type UTXOSource interface {
	IsSpent(txid [32]byte, vout uint32) (bool, error)
}

// EnvelopeParser lifts a decoded transaction into its OPNet envelope.
// The pool depends on this interface rather than contract/parser
// directly, so tests can substitute a stub classifier.
type EnvelopeParser interface {
	ParseTransaction(tx *wire.MsgTx, maxPriorityFee uint64) (*parser.Envelope, error)
}

// SignatureVerifier verifies the ML-DSA linkage signature carried by
// entries flagged FeatureMLDSALinkPubkey. The concrete implementation
// (MLDSAVerifier) wraps cloudflare/circl/sign/dilithium/mode3; the pool
// depends only on this
// narrow interface.
type SignatureVerifier interface {
	VerifyMLDSALink(pubkey, message, signature []byte) bool
}

// Config bundles the pool's external dependencies, injecting callbacks
// and collaborators through a Config struct rather than reaching for
// package-level state.
type Config struct {
	Policy          Policy
	UTXOs           UTXOSource
	Parser          EnvelopeParser
	Signatures      SignatureVerifier
	MaxPriorityFee  uint64
	MinFeeRateVByte uint64
	CurrentHeight   func() uint64
}
