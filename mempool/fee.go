package mempool

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/opnet-labs/opnetd/errkind"
)

// FeeCalculator computes the priority-fee rate in vbyte terms and
// enforces the active consensus's floor, the same metric Bitcoin
// Core's GetVirtualTxSize uses.
type FeeCalculator struct {
	minFeeRateVBPerSat uint64
}

// NewFeeCalculator builds a calculator enforcing floor, the active
// consensus's PSBTLimits.MinFeeRateVBPerSat.
func NewFeeCalculator(floor uint64) *FeeCalculator {
	return &FeeCalculator{minFeeRateVBPerSat: floor}
}

// VirtualSize returns tx's weight-adjusted size in vbytes.
func VirtualSize(tx *wire.MsgTx) int64 {
	return mempoolVsize(tx)
}

// mempoolVsize follows Bitcoin Core's GetTxVirtualSize: weight divided
// by witness scale factor, rounded up.
func mempoolVsize(tx *wire.MsgTx) int64 {
	const witnessScaleFactor = 4
	weight := tx.SerializeSizeStripped()*(witnessScaleFactor-1) + tx.SerializeSize()
	return (int64(weight) + witnessScaleFactor - 1) / witnessScaleFactor
}

// Rate returns priorityFeeSat's rate in sat/vbyte for a transaction of
// the given virtual size.
func (fc *FeeCalculator) Rate(priorityFeeSat uint64, vsize int64) uint64 {
	if vsize <= 0 {
		return 0
	}
	return priorityFeeSat / uint64(vsize)
}

// CheckFloor rejects entries whose priority-fee rate falls below the
// active consensus's floor.
func (fc *FeeCalculator) CheckFloor(priorityFeeSat uint64, vsize int64) error {
	if fc.Rate(priorityFeeSat, vsize) < fc.minFeeRateVBPerSat {
		return errkind.New(errkind.KindMempool, "FeeTooLow", false, nil)
	}
	return nil
}
