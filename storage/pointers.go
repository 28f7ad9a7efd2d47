package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/opnet-labs/opnetd/contract"
	"github.com/opnet-labs/opnetd/errkind"
)

const pointerKeyLen = 1 + 32 + 32 + 8

func pointerKey(c contract.Address, p contract.Pointer, lastSeenAt uint64) []byte {
	key := make([]byte, pointerKeyLen)
	key[0] = prefixPointer
	copy(key[1:33], c[:])
	copy(key[33:65], p[:])
	binary.BigEndian.PutUint64(key[65:73], lastSeenAt)
	return key
}

func pointerRangeKey(c contract.Address, p contract.Pointer) []byte {
	key := make([]byte, 1+32+32)
	key[0] = prefixPointer
	copy(key[1:33], c[:])
	copy(key[33:65], p[:])
	return key
}

func hotCacheKey(c contract.Address, p contract.Pointer, atHeight uint64) string {
	return fmt.Sprintf("%x:%x:%d", c[:], p[:], atHeight)
}

// GetPointer returns the entry with the maximum last_seen_at <=
// atHeight, implementing storage.Store as the vm package's
// SnapshotReader.
func (s *Store) GetPointer(c contract.Address, p contract.Pointer, atHeight uint64) (*contract.StorageEntry, error) {
	cacheKey := hotCacheKey(c, p, atHeight)
	if v, ok := s.pointers.get(cacheKey); ok {
		return &contract.StorageEntry{Contract: c, Pointer: p, Value: v, LastSeenAt: atHeight}, nil
	}

	base := pointerRangeKey(c, p)
	upper := append(append([]byte(nil), base...), beBytes(atHeight+1)...)
	rng := &util.Range{Start: base, Limit: upper}

	it := s.db.NewIterator(rng, nil)
	defer it.Release()

	if !it.Last() {
		if err := it.Error(); err != nil {
			return nil, errkind.New(errkind.KindStorage, "Corruption", true, err)
		}
		return nil, nil
	}

	key := it.Key()
	if len(key) != pointerKeyLen {
		return nil, errkind.New(errkind.KindStorage, "Corruption", true, nil)
	}
	lastSeenAt := binary.BigEndian.Uint64(key[65:73])

	var value contract.Value
	copy(value[:], it.Value())

	s.pointers.put(cacheKey, value)
	return &contract.StorageEntry{Contract: c, Pointer: p, Value: value, LastSeenAt: lastSeenAt}, nil
}

// PutPointers upserts a batch of storage entries into sn, keyed by
// (contract, pointer, last_seen_at). A duplicate key within the same
// batch fails the whole batch atomically; nothing is staged.
func (s *Store) PutPointers(sn *Snapshot, entries []contract.StorageEntry) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		k := string(pointerKey(e.Contract, e.Pointer, e.LastSeenAt))
		if seen[k] {
			return errkind.New(errkind.KindStorage, "Conflict", false, nil)
		}
		seen[k] = true
	}
	for _, e := range entries {
		sn.batch.Put(pointerKey(e.Contract, e.Pointer, e.LastSeenAt), e.Value[:])
	}
	return nil
}
