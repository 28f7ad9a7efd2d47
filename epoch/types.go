// Package epoch finalizes fixed-length windows of blocks into a
// quorum-attested epoch record: a request/verify/quorum attestation
// flow retargeted from market-making metrics to block-witness
// participation proofs.
package epoch

import (
	"time"

	"github.com/karalabe/ssz"
)

// AttestorInfo identifies one authorized witness attestor.
type AttestorInfo struct {
	Name      string
	Endpoint  string
	PublicKey []byte
}

// BlockWitness is the per-block attestation payload one attestor signs
// over: a claim that it observed the given block connect at the given
// height with the given header hash.
type BlockWitness struct {
	Height     uint64
	BlockHash  [32]byte
	ObservedAt uint32
}

func (w *BlockWitness) SizeSSZ() uint32 { return 44 }

func (w *BlockWitness) DefineSSZ(codec *ssz.Codec) {
	ssz.DefineUint64(codec, &w.Height)
	ssz.DefineStaticBytes(codec, &w.BlockHash)
	ssz.DefineUint32(codec, &w.ObservedAt)
}

// witnessList is the dynamic-object wrapper karalabe/ssz's
// DefineSliceOfStaticObjects needs to Merkleize a variable-length
// slice of fixed-size BlockWitness records into one attestation_root.
type witnessList struct {
	Witnesses []*BlockWitness
}

func (w *witnessList) SizeSSZ(fixed bool) uint32 {
	if fixed {
		return 4
	}
	return ssz.SizeSliceOfStaticObjects(w.Witnesses)
}

func (w *witnessList) DefineSSZ(codec *ssz.Codec) {
	ssz.DefineSliceOfStaticObjects(codec, &w.Witnesses, 4096)
}

// AttestationRequest asks every known attestor to witness the blocks
// in [startBlock, endBlock] of one epoch.
type AttestationRequest struct {
	EpochNumber uint64
	StartBlock  uint64
	EndBlock    uint64
}

// AttestationResponse is one attestor's signed reply.
type AttestationResponse struct {
	AttestorIndex int
	Success       bool
	Witnesses     []BlockWitness
	Signature     []byte
	Timestamp     uint32
}

// Status reports one attestor's last known health.
type Status struct {
	Name         string
	Available    bool
	ResponseTime time.Duration
	LastCheck    time.Time
	Error        string
}
