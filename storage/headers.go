package storage

import (
	"encoding/json"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/opnet-labs/opnetd/errkind"
)

// BlockHeader is the persisted record of a committed block.
type BlockHeader struct {
	Hash         [32]byte
	Height       uint64
	PrevHash     [32]byte
	MerkleRoot   [32]byte
	Time         uint64
	MedianTime   uint64
	NumTx        uint32
	Weight       uint32
	Bits         uint32
	Nonce        uint32
	// Difficulty is float64 the way Bitcoin Core's getblock RPC reports
	// it. It is display-only: no root or consensus check is derived
	// from it, so it never enters a persisted hash path.
	Difficulty float64
	Version    int32

	StorageRoot  [32]byte
	ReceiptRoot  [32]byte
	ChecksumRoot [32]byte
}

// SafeU64 derives the stable 64-bit fingerprint used wherever a 64-bit
// identity is required: XOR-fold the 32-byte hash in 8-byte lanes,
// rotating each byte left by 7 bits first. This must stay bit-for-bit
// identical to every other implementation that computes it.
func (h BlockHeader) SafeU64() uint64 {
	var folded [8]byte
	for i, b := range h.Hash {
		rotated := b<<7 | b>>1
		folded[i%8] ^= rotated
	}
	return beUint64(folded[:])
}

func headerKey(height uint64) []byte {
	key := make([]byte, 9)
	key[0] = prefixHeader
	copy(key[1:], beBytes(height))
	return key
}

// PutHeader stages h's record at its own height within sn.
func (s *Store) PutHeader(sn *Snapshot, h BlockHeader) error {
	data, err := json.Marshal(h)
	if err != nil {
		return errkind.New(errkind.KindStorage, "Corruption", true, err)
	}
	sn.batch.Put(headerKey(h.Height), data)
	return nil
}

// GetHeader returns the committed header at height, or nil if absent.
func (s *Store) GetHeader(height uint64) (*BlockHeader, error) {
	data, err := s.db.Get(headerKey(height), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errkind.New(errkind.KindStorage, "Corruption", true, err)
	}
	var h BlockHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, errkind.New(errkind.KindStorage, "Corruption", true, err)
	}
	return &h, nil
}
