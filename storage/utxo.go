package storage

import (
	"encoding/json"

	"github.com/opnet-labs/opnetd/errkind"
)

// UTXORecord tracks one base-chain output opnetd has observed, for
// the mempool's spend checks.
type UTXORecord struct {
	Txid        [32]byte
	Vout        uint32
	ValueSat    uint64
	ScriptType  string
	ScriptHex   string
	BlockHeight uint64
	SpentAt     *uint64
}

func utxoKey(txid [32]byte, vout uint32) []byte {
	key := make([]byte, 36)
	copy(key[:32], txid[:])
	copy(key[32:], beBytes(uint64(vout))[4:])
	return key
}

// GetUTXO returns the record for (txid, vout), or nil if unknown.
func (s *Store) GetUTXO(txid [32]byte, vout uint32) (*UTXORecord, error) {
	data, err := s.rawGet(prefixUTXO, utxoKey(txid, vout))
	if err != nil || data == nil {
		return nil, err
	}
	var rec UTXORecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errkind.New(errkind.KindStorage, "Corruption", true, err)
	}
	return &rec, nil
}

// PutUTXO stages rec within sn.
func (s *Store) PutUTXO(sn *Snapshot, rec UTXORecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errkind.New(errkind.KindStorage, "Corruption", true, err)
	}
	s.rawPut(sn, prefixUTXO, utxoKey(rec.Txid, rec.Vout), data)
	return nil
}

// MarkSpent records spentAtHeight against an existing UTXO. It is a
// read-modify-write within the caller's snapshot: the caller must
// already hold the record from GetUTXO to avoid losing concurrent
// fields.
func (s *Store) MarkSpent(sn *Snapshot, rec UTXORecord, spentAtHeight uint64) error {
	rec.SpentAt = &spentAtHeight
	return s.PutUTXO(sn, rec)
}
