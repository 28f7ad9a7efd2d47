package indexer

import (
	"crypto/sha256"
	"sort"

	"github.com/karalabe/ssz"

	"github.com/opnet-labs/opnetd/contract"
)

// writeRecord is one committed (contract, pointer, value) triple, the
// static SSZ object the storage root folds over.
type writeRecord struct {
	Contract contract.Address
	Pointer  contract.Pointer
	Value    contract.Value
}

func (w *writeRecord) SizeSSZ() uint32 { return 96 }

func (w *writeRecord) DefineSSZ(codec *ssz.Codec) {
	ssz.DefineStaticBytes(codec, &w.Contract)
	ssz.DefineStaticBytes(codec, &w.Pointer)
	ssz.DefineStaticBytes(codec, &w.Value)
}

type writeRecordList struct {
	Records []*writeRecord
}

func (l *writeRecordList) SizeSSZ(fixed bool) uint32 {
	if fixed {
		return 4
	}
	return ssz.SizeSliceOfStaticObjects(l.Records)
}

func (l *writeRecordList) DefineSSZ(codec *ssz.Codec) {
	ssz.DefineSliceOfStaticObjects(codec, &l.Records, 1<<20)
}

// storageRootOf Merkleizes a block's sorted write set into the header's
// storage root. Sorting by (contract, pointer) first makes the root a
// pure function of the write set, independent of the order writes
// happened to occur in during execution.
func storageRootOf(deltas map[[64]byte]contract.Value) [32]byte {
	keys := make([][64]byte, 0, len(deltas))
	for k := range deltas {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		for b := 0; b < 64; b++ {
			if keys[i][b] != keys[j][b] {
				return keys[i][b] < keys[j][b]
			}
		}
		return false
	})

	records := make([]*writeRecord, len(keys))
	for i, k := range keys {
		var addr contract.Address
		var ptr contract.Pointer
		copy(addr[:], k[:32])
		copy(ptr[:], k[32:])
		val := deltas[k]
		records[i] = &writeRecord{Contract: addr, Pointer: ptr, Value: val}
	}

	list := &writeRecordList{Records: records}
	return ssz.HashSequential(list)
}

// receiptRecord is one transaction's execution summary, the static
// SSZ object the receipt root folds over.
type receiptRecord struct {
	IndexingHash [32]byte
	GasUsed      uint64
	Reverted     bool
	ReturnHash   [32]byte
}

func (r *receiptRecord) SizeSSZ() uint32 { return 73 }

func (r *receiptRecord) DefineSSZ(codec *ssz.Codec) {
	ssz.DefineStaticBytes(codec, &r.IndexingHash)
	ssz.DefineUint64(codec, &r.GasUsed)
	ssz.DefineBool(codec, &r.Reverted)
	ssz.DefineStaticBytes(codec, &r.ReturnHash)
}

type receiptRecordList struct {
	Records []*receiptRecord
}

func (l *receiptRecordList) SizeSSZ(fixed bool) uint32 {
	if fixed {
		return 4
	}
	return ssz.SizeSliceOfStaticObjects(l.Records)
}

func (l *receiptRecordList) DefineSSZ(codec *ssz.Codec) {
	ssz.DefineSliceOfStaticObjects(codec, &l.Records, 1<<16)
}

// receiptRootOf Merkleizes the block's receipts in execution order
// (index_in_block order).
func receiptRootOf(records []*receiptRecord) [32]byte {
	list := &receiptRecordList{Records: records}
	return ssz.HashSequential(list)
}

// checksumRootOf folds storage and receipt roots together with the
// block's identity, giving a single value that changes if either
// underlying root does, for cheap equality checks between indexers
// without re-deriving both roots.
func checksumRootOf(storageRoot, receiptRoot [32]byte, blockHash [32]byte) [32]byte {
	buf := make([]byte, 0, 96)
	buf = append(buf, blockHash[:]...)
	buf = append(buf, storageRoot[:]...)
	buf = append(buf, receiptRoot[:]...)
	return sha256.Sum256(buf)
}
