package storage

import (
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/opnet-labs/opnetd/errkind"
)

// rawGet/rawPut/rawDelete back the Contract, UTXO, Mempool, and Epoch
// sub-stores, which share the same get/put/delete-with-snapshot
// discipline as the pointer store but don't need its last_seen_at
// versioning.
func (s *Store) rawGet(prefix byte, key []byte) ([]byte, error) {
	full := append([]byte{prefix}, key...)
	value, err := s.db.Get(full, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errkind.New(errkind.KindStorage, "Corruption", true, err)
	}
	return value, nil
}

func (s *Store) rawPut(sn *Snapshot, prefix byte, key, value []byte) {
	full := append([]byte{prefix}, key...)
	sn.batch.Put(full, value)
}

func (s *Store) rawDelete(sn *Snapshot, prefix byte, key []byte) {
	full := append([]byte{prefix}, key...)
	sn.batch.Delete(full)
}
